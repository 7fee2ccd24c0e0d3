// ABOUTME: Per-identity SSE stream consumer patching the shared read cache
// ABOUTME: Parse failures drop the message; duplicates are skipped; no auto-reconnect

package realtime

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/beaconhq/beacon-client/internal/cache"
	"github.com/beaconhq/beacon-client/internal/dedupe"
	"github.com/beaconhq/beacon-client/internal/metrics"
)

const (
	// DefaultStreamPath is the streaming endpoint relative to the base URL.
	DefaultStreamPath = "/api/stream"

	// DefaultListKey is the cache list entity snapshots are upserted into
	// unless the payload names another via entityRefs["list"].
	DefaultListKey = "feed:reports"

	// maxEventSize bounds a single SSE event's data.
	maxEventSize = 1 << 20
)

// DefaultInvalidations maps recognized notification types to the cache
// keys they mark stale. Unrecognized types invalidate nothing; the
// snapshot upsert and the caller callback still run.
func DefaultInvalidations() map[string][]string {
	return map[string][]string{
		"report":  {"feed:reports"},
		"comment": {"feed:reports"},
		"resolve": {"feed:reports"},
		"follow":  {"profile"},
	}
}

// Config controls Channel construction.
type Config struct {
	BaseURL       string
	StreamPath    string
	HTTPClient    *http.Client
	Gate          *dedupe.Gate
	Cache         *cache.Cache
	Token         func() string
	OnPayload     func(Payload)
	Invalidations map[string][]string
	ListKey       string
	// ValidatePayloads enables JSON Schema validation of the payload
	// envelope; validation failures follow the parse-failure policy.
	ValidatePayloads bool
	Logger           *slog.Logger
}

// Channel opens one streaming connection per resolved identity and
// applies each admitted payload to the cache. Connecting for a new
// identity closes the previous connection first, so no connection
// survives identity rotation.
type Channel struct {
	mu            sync.Mutex
	current       *Subscription
	baseURL       string
	streamPath    string
	client        *http.Client
	gate          *dedupe.Gate
	cache         *cache.Cache
	token         func() string
	onPayload     func(Payload)
	invalidations map[string][]string
	listKey       string
	schema        *jsonschema.Schema
	logger        *slog.Logger
}

// NewChannel creates a channel. Gate and Cache are required.
func NewChannel(cfg Config) (*Channel, error) {
	if cfg.Gate == nil {
		return nil, fmt.Errorf("realtime: gate is required")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("realtime: cache is required")
	}
	if cfg.StreamPath == "" {
		cfg.StreamPath = DefaultStreamPath
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Invalidations == nil {
		cfg.Invalidations = DefaultInvalidations()
	}
	if cfg.ListKey == "" {
		cfg.ListKey = DefaultListKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ch := &Channel{
		baseURL:       cfg.BaseURL,
		streamPath:    cfg.StreamPath,
		client:        cfg.HTTPClient,
		gate:          cfg.Gate,
		cache:         cfg.Cache,
		token:         cfg.Token,
		onPayload:     cfg.OnPayload,
		invalidations: cfg.Invalidations,
		listKey:       cfg.ListKey,
		logger:        cfg.Logger.With("component", "realtime"),
	}

	if cfg.ValidatePayloads {
		schema, err := compilePayloadSchema()
		if err != nil {
			return nil, err
		}
		ch.schema = schema
	}
	return ch, nil
}

// Subscription is one open stream connection. Close disposes it; Done is
// closed once the read loop has fully exited.
type Subscription struct {
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Close tears down the connection. Safe to call multiple times.
func (s *Subscription) Close() {
	s.closeOnce.Do(s.cancel)
}

// Done is closed when the stream is fully closed, whether by Close, by
// context cancellation, or by the server ending the stream. No further
// payloads are delivered after Done closes.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Connect opens the streaming connection for identity. Any previously
// open connection is closed first. Messages are processed in delivery
// order on a single goroutine. On stream error only full closure is
// detected; no automatic reconnect is attempted — callers observe
// closure via Subscription.Done and decide.
func (c *Channel) Connect(ctx context.Context, identity string) (*Subscription, error) {
	if identity == "" {
		return nil, fmt.Errorf("realtime: identity is required")
	}

	// The lock is held across the close/dial/swap so racing Connect
	// calls cannot leave a live connection untracked past rotation.
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		c.current.Close()
		c.current = nil
	}

	streamCtx, cancel := context.WithCancel(ctx)

	endpoint := fmt.Sprintf("%s%s?identity=%s", c.baseURL, c.streamPath, url.QueryEscape(identity))
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connecting stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	c.current = sub

	c.logger.Info("stream connected", "identity", identity)

	go func() {
		defer close(sub.done)
		defer resp.Body.Close()
		c.readLoop(streamCtx, resp)
		c.logger.Info("stream closed", "identity", identity)
	}()

	return sub, nil
}

// readLoop parses the SSE wire format: data lines accumulate until an
// empty line terminates the event.
func (c *Channel) readLoop(ctx context.Context, resp *http.Response) {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	var dataLines []string
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if len(dataLines) > 0 {
				c.handleMessage(strings.Join(dataLines, "\n"))
			}
			dataLines = nil
			continue
		}

		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// Comment and event-type lines are ignored; payloads are self-tagged.
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("stream read error", "error", err)
	}
}

// handleMessage applies one stream message: parse, validate, dedupe,
// snapshot upsert, invalidations, callback. Every failure path resolves
// to dropping the message; the stream stays open.
func (c *Channel) handleMessage(data string) {
	metrics.StreamMessages.Inc()

	var p Payload
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		metrics.StreamParseFailures.Inc()
		c.logger.Warn("dropping malformed stream payload", "error", err)
		return
	}

	if c.schema != nil {
		if err := validatePayload(c.schema, []byte(data)); err != nil {
			metrics.StreamParseFailures.Inc()
			c.logger.Warn("dropping schema-invalid stream payload", "error", err)
			return
		}
	}

	if !c.gate.Admit(p.ID) {
		metrics.StreamDuplicates.Inc()
		c.logger.Debug("skipping duplicate event", "event_id", p.ID)
		return
	}

	if id := p.entityID(); id != "" {
		listKey := c.listKey
		if named, ok := p.EntityRefs["list"]; ok && named != "" {
			listKey = named
		}
		c.cache.UpsertList(listKey, cache.Entity{ID: id, Data: p.FullEntity}, cache.Prepend)
	}

	if keys := c.invalidations[p.Type]; len(keys) > 0 {
		c.cache.Invalidate(keys...)
	}

	if c.onPayload != nil {
		c.onPayload(p)
	}
}
