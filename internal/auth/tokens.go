// ABOUTME: Token storage for the access guard
// ABOUTME: File-backed store with env var override, plus an in-memory store for tests

package auth

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TokenStore holds the session's bearer token. Load returns an empty
// string when no token is present.
type TokenStore interface {
	Load() string
	Save(token string) error
	Clear() error
}

// FileTokenStore reads the token from an environment variable first and
// falls back to a token file. Save and Clear operate on the file only;
// the env var is treated as externally managed.
type FileTokenStore struct {
	EnvVar string
	Path   string
}

// NewFileTokenStore creates a token store over the given env var and file path.
func NewFileTokenStore(envVar, path string) *FileTokenStore {
	return &FileTokenStore{EnvVar: envVar, Path: path}
}

// Load returns the current token, or empty if none is configured.
func (f *FileTokenStore) Load() string {
	if f.EnvVar != "" {
		if token := os.Getenv(f.EnvVar); token != "" {
			return token
		}
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Save writes the token to the token file, creating parent directories.
func (f *FileTokenStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return err
	}
	return os.WriteFile(f.Path, []byte(token), 0600)
}

// Clear removes the token file. A missing file is not an error.
func (f *FileTokenStore) Clear() error {
	err := os.Remove(f.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// MemoryTokenStore is an in-memory TokenStore for tests.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore creates a store pre-loaded with token.
func NewMemoryTokenStore(token string) *MemoryTokenStore {
	return &MemoryTokenStore{token: token}
}

// Load returns the stored token.
func (m *MemoryTokenStore) Load() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Save replaces the stored token.
func (m *MemoryTokenStore) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

// Clear removes the stored token.
func (m *MemoryTokenStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
