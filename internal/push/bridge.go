// ABOUTME: Bridge converting notifier NAVIGATE_TO messages into navigation intents
// ABOUTME: Normalizes absolute URLs against the configured origin; fail-closed on foreign origins

package push

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// messageTypeNavigate is the only message type the bridge acts on.
const messageTypeNavigate = "NAVIGATE_TO"

// Message is the notifier-to-client wire shape.
type Message struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// MessageSource delivers raw notifier messages to a handler and returns
// a disposer that stops delivery. Implementations must not call the
// handler after the disposer returns.
type MessageSource interface {
	Subscribe(handler func(data []byte)) (unsubscribe func(), err error)
}

// Bridge listens for notifier messages and invokes a navigate function
// with origin-normalized relative paths.
type Bridge struct {
	mu          sync.Mutex
	source      MessageSource
	origin      string
	logger      *slog.Logger
	active      bool
	unsubscribe func()
}

// NewBridge creates a bridge over source. origin is the platform's own
// origin (scheme://host); absolute URLs on that origin are reduced to
// relative paths, absolute URLs on any other origin are dropped.
func NewBridge(source MessageSource, origin string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		source: source,
		origin: strings.TrimSuffix(origin, "/"),
		logger: logger.With("component", "push"),
	}
}

// Listen registers the navigation listener. Registering while already
// listening is a no-op returning an unsubscribe for the existing
// registration, so repeated mount cycles never double-fire navigation.
// The returned unsubscribe is idempotent.
func (b *Bridge) Listen(navigate func(path string)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active {
		return b.stopOnce(), nil
	}

	unsubscribe, err := b.source.Subscribe(func(data []byte) {
		b.handle(data, navigate)
	})
	if err != nil {
		return nil, err
	}

	b.active = true
	b.unsubscribe = unsubscribe
	return b.stopOnce(), nil
}

// stopOnce returns a disposer that unregisters the listener exactly
// once. Must be called with mu held.
func (b *Bridge) stopOnce() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if !b.active {
				return
			}
			b.active = false
			if b.unsubscribe != nil {
				b.unsubscribe()
				b.unsubscribe = nil
			}
		})
	}
}

// handle parses one notifier message. Non-navigation shapes and
// malformed payloads are ignored silently.
func (b *Bridge) handle(data []byte, navigate func(path string)) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Type != messageTypeNavigate || msg.URL == "" {
		return
	}

	path, ok := b.normalize(msg.URL)
	if !ok {
		b.logger.Debug("dropping navigation to foreign origin", "url", msg.URL)
		return
	}
	navigate(path)
}

// normalize reduces raw to a relative path. Own-origin absolute URLs
// have the origin prefix stripped; relative paths pass through; foreign
// absolute URLs are rejected (don't-navigate is the safe default).
func (b *Bridge) normalize(raw string) (string, bool) {
	if b.origin != "" && strings.HasPrefix(raw, b.origin) {
		rest := strings.TrimPrefix(raw, b.origin)
		if rest == "" {
			return "/", true
		}
		if strings.HasPrefix(rest, "/") {
			return rest, true
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.IsAbs() || u.Host != "" {
		return "", false
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path, true
}
