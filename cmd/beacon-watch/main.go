// ABOUTME: Entry point for the beacon client watcher
// ABOUTME: Resolves auth, connects the realtime stream, and bridges notifier navigation

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beaconhq/beacon-client/internal/auth"
	"github.com/beaconhq/beacon-client/internal/cache"
	"github.com/beaconhq/beacon-client/internal/config"
	"github.com/beaconhq/beacon-client/internal/dedupe"
	"github.com/beaconhq/beacon-client/internal/prefetch"
	"github.com/beaconhq/beacon-client/internal/push"
	"github.com/beaconhq/beacon-client/internal/realtime"
	"github.com/beaconhq/beacon-client/internal/snapshot"
)

// Version is set at build time.
var version = "dev"

// getConfigPath returns the path to the client config file.
// Priority: BEACON_CONFIG env var > XDG_CONFIG_HOME/beacon/client.yaml > ~/.config/beacon/client.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BEACON_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "client.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "beacon", "client.yaml")
}

// getDataPath returns the path to the beacon data directory.
// Priority: XDG_DATA_HOME/beacon > ~/.local/share/beacon
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "beacon")
}

// setupLogger builds the process logger from config.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	configPath := flag.String("config", getConfigPath(), "Path to the client config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("beacon-watch %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Durable per-session snapshot store backing the dedupe gate
	sessionID := cfg.Storage.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	store, err := snapshot.NewSQLiteStore(cfg.Storage.Path, sessionID)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer store.Close()

	gate := dedupe.New(dedupe.Config{
		Store:  store,
		TTL:    cfg.Storage.DedupeTTL,
		Logger: logger,
	})
	readCache := cache.New(logger)

	// Resolve authentication before anything protected runs
	tokenFile := cfg.Auth.TokenFile
	if tokenFile == "" {
		tokenFile = filepath.Join(getDataPath(), "token")
	}
	tokens := auth.NewFileTokenStore(cfg.Auth.TokenEnv, tokenFile)
	verifier := auth.NewHTTPVerifier(cfg.Server.BaseURL, cfg.Auth.VerifyPath)
	guard := auth.NewGuard(tokens, verifier, func(s auth.State) {
		logger.Info("auth state", "state", s.String())
	}, logger)

	if guard.Check(ctx) != auth.StateAuthorized {
		color.Yellow("Not signed in. Set %s or place a token at %s and retry.", cfg.Auth.TokenEnv, tokenFile)
		return nil
	}
	color.Green("Signed in.")

	identity, err := auth.IdentityFromToken(guard.Token())
	if err != nil {
		return fmt.Errorf("resolving identity: %w", err)
	}

	if cfg.Metrics.Enabled {
		go serveMetrics(ctx, cfg.Metrics.Addr, logger)
	}

	// Feed activity that names a report warms its detail key ahead of
	// navigation, the same way hovering a feed entry does.
	warmer := prefetch.New(readCache, newReportLoader(cfg.Server.BaseURL, guard.Token), 0, logger)

	channel, err := realtime.NewChannel(realtime.Config{
		BaseURL:          cfg.Server.BaseURL,
		StreamPath:       cfg.Server.StreamPath,
		Gate:             gate,
		Cache:            readCache,
		Token:            guard.Token,
		OnPayload:        payloadHandler(ctx, warmer),
		ValidatePayloads: true,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	sub, err := channel.Connect(ctx, identity)
	if err != nil {
		return fmt.Errorf("connecting stream: %w", err)
	}
	defer sub.Close()

	staleKeys, _ := readCache.Subscribe(ctx)
	go watchInvalidations(staleKeys, func(keys []string) {
		color.Yellow("⟳ stale: %s", strings.Join(keys, ", "))
	})

	if cfg.Notifier.Enabled {
		source := push.NewWebsocketSource(cfg.Notifier.URL, logger)
		bridge := push.NewBridge(source, cfg.Notifier.Origin, logger)
		stop, err := bridge.Listen(func(path string) {
			color.Cyan("→ navigate %s", path)
		})
		if err != nil {
			logger.Warn("notifier unavailable", "error", err)
		} else {
			defer stop()
		}
	}

	color.White("Watching %s as %s. Ctrl+C to quit.", cfg.Server.BaseURL, identity)

	select {
	case <-ctx.Done():
	case <-sub.Done():
		// Only full closure is detected; reconnection is the operator's call.
		color.Red("Stream closed by server.")
	}
	return nil
}

// reportKey returns the detail cache key for the report a payload names,
// or "" when the payload references no report.
func reportKey(p realtime.Payload) string {
	if id := p.EntityRefs["report"]; id != "" {
		return "report:" + id
	}
	return ""
}

// newReportLoader fetches report detail snapshots from the server. The
// returned loader expects keys of the form "report:<id>".
func newReportLoader(baseURL string, token func() string) prefetch.Loader {
	client := &http.Client{Timeout: 10 * time.Second}
	return func(ctx context.Context, key string) (any, error) {
		id := strings.TrimPrefix(key, "report:")
		endpoint := fmt.Sprintf("%s/api/reports/%s", baseURL, url.PathEscape(id))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if token != nil {
			if t := token(); t != "" {
				req.Header.Set("Authorization", "Bearer "+t)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("report fetch returned status %d", resp.StatusCode)
		}

		var detail json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
			return nil, err
		}
		return detail, nil
	}
}

// payloadHandler prints each payload and warms the detail key of any
// report it names, so the follow-up navigation hits a warm cache.
func payloadHandler(ctx context.Context, warmer *prefetch.Prefetcher) func(realtime.Payload) {
	return func(p realtime.Payload) {
		printPayload(p)
		if key := reportKey(p); key != "" {
			warmer.Touch(ctx, key)
		}
	}
}

// watchInvalidations drains a cache subscription and surfaces each
// invalidated key set via notify. Returns when the channel closes.
func watchInvalidations(ch <-chan []string, notify func([]string)) {
	for keys := range ch {
		notify(keys)
	}
}

func printPayload(p realtime.Payload) {
	switch p.Type {
	case "report":
		color.Green("• new report activity (%s)", p.ID)
	case "comment":
		color.Blue("• comment (%s)", p.ID)
	case "resolve":
		color.Magenta("• report resolved (%s)", p.ID)
	case "follow":
		color.Cyan("• new follower (%s)", p.ID)
	default:
		fmt.Printf("• %s (%s)\n", p.Type, p.ID)
	}
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", "error", err)
	}
}
