// ABOUTME: Tests for configuration loading
// ABOUTME: Covers YAML and TOML parsing, env expansion, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "client.yaml", `
server:
  base_url: https://beacon.example
  stream_path: /api/v2/stream
notifier:
  enabled: true
  url: ws://127.0.0.1:7171/messages
  origin: https://beacon.example
auth:
  verify_path: /api/auth/check
  token_file: /tmp/beacon/token
storage:
  path: /tmp/beacon/snapshots.db
  session_id: session-abc
  dedupe_ttl: 90s
logging:
  level: debug
  format: json
metrics:
  enabled: true
  addr: 127.0.0.1:9191
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://beacon.example", cfg.Server.BaseURL)
	assert.Equal(t, "/api/v2/stream", cfg.Server.StreamPath)
	assert.True(t, cfg.Notifier.Enabled)
	assert.Equal(t, "ws://127.0.0.1:7171/messages", cfg.Notifier.URL)
	assert.Equal(t, "/api/auth/check", cfg.Auth.VerifyPath)
	assert.Equal(t, 90*time.Second, cfg.Storage.DedupeTTL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:9191", cfg.Metrics.Addr)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "client.toml", `
[server]
base_url = "https://beacon.example"

[storage]
path = "/tmp/beacon/snapshots.db"
dedupe_ttl = "45s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://beacon.example", cfg.Server.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Storage.DedupeTTL)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("BEACON_TEST_BASE", "https://env.example")

	path := writeConfig(t, "client.yaml", `
server:
  base_url: ${BEACON_TEST_BASE}
storage:
  path: /tmp/snapshots.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", cfg.Server.BaseURL)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "client.yaml", `
server:
  base_url: https://beacon.example
storage:
  path: /tmp/snapshots.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/api/stream", cfg.Server.StreamPath)
	assert.Equal(t, "/api/auth/verify", cfg.Auth.VerifyPath)
	assert.Equal(t, "BEACON_TOKEN", cfg.Auth.TokenEnv)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing base url",
			content: "storage:\n  path: /tmp/db\n",
			wantErr: "server.base_url",
		},
		{
			name:    "missing storage path",
			content: "server:\n  base_url: https://x.example\n",
			wantErr: "storage.path",
		},
		{
			name: "notifier enabled without url",
			content: `
server:
  base_url: https://x.example
notifier:
  enabled: true
storage:
  path: /tmp/db
`,
			wantErr: "notifier.url",
		},
		{
			name: "bad logging format",
			content: `
server:
  base_url: https://x.example
storage:
  path: /tmp/db
logging:
  format: xml
`,
			wantErr: "logging.format",
		},
		{
			name: "metrics enabled without addr",
			content: `
server:
  base_url: https://x.example
storage:
  path: /tmp/db
metrics:
  enabled: true
`,
			wantErr: "metrics.addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "client.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, "client.yaml", `
server:
  base_url: https://x.example
storage:
  path: /tmp/db
  dedupe_ttl: ninety seconds
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedupe_ttl")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
