// ABOUTME: Access guard gating protected functionality on resolved auth state
// ABOUTME: One transition cycle per guard; fail-closed on any verification failure

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Guard resolves the session's authentication state once per lifecycle.
// A guard starts in StateUnknown; Check moves it to StateUnauthorized or
// StateAuthorized and it never reverts to StateUnknown. Construct a new
// guard to re-run the cycle (remount or explicit token change).
type Guard struct {
	mu       sync.Mutex
	tokens   TokenStore
	verifier Verifier
	state    State
	token    string
	onChange func(State)
	logger   *slog.Logger
	now      func() time.Time
}

// NewGuard creates a guard in StateUnknown. onChange, when non-nil, is
// invoked on every state transition. Pass nil logger for default.
func NewGuard(tokens TokenStore, verifier Verifier, onChange func(State), logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		tokens:   tokens,
		verifier: verifier,
		state:    StateUnknown,
		onChange: onChange,
		logger:   logger.With("component", "guard"),
		now:      time.Now,
	}
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Allowed reports whether protected functionality may be exposed. It is
// true if and only if the state is StateAuthorized.
func (g *Guard) Allowed() bool {
	return g.State() == StateAuthorized
}

// Token returns the verified token, or empty unless StateAuthorized.
func (g *Guard) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateAuthorized {
		return ""
	}
	return g.token
}

// Check runs one resolution cycle and returns the resulting state.
//
//   - No local token: StateUnauthorized without any network call.
//   - Token already expired (local JWT inspection): cleared,
//     StateUnauthorized, no network call.
//   - Verification succeeds: StateAuthorized.
//   - Verification fails for any reason, including network errors: the
//     token is cleared and the state is StateUnauthorized.
func (g *Guard) Check(ctx context.Context) State {
	token := g.tokens.Load()
	if token == "" {
		return g.transition(StateUnauthorized, "")
	}

	if tokenExpired(token, g.now()) {
		g.clearToken()
		return g.transition(StateUnauthorized, "")
	}

	if err := g.verifier.Verify(ctx, token); err != nil {
		g.logger.Debug("token verification failed", "error", err)
		g.clearToken()
		return g.transition(StateUnauthorized, "")
	}

	return g.transition(StateAuthorized, token)
}

// Invalidate force-clears the token and moves to StateUnauthorized. Used
// when the server rejects the token mid-session (401, expiry).
func (g *Guard) Invalidate() {
	g.clearToken()
	g.transition(StateUnauthorized, "")
}

func (g *Guard) clearToken() {
	if err := g.tokens.Clear(); err != nil {
		g.logger.Debug("clearing token failed", "error", err)
	}
}

func (g *Guard) transition(next State, token string) State {
	g.mu.Lock()
	changed := g.state != next
	g.state = next
	g.token = token
	onChange := g.onChange
	g.mu.Unlock()

	if changed {
		g.logger.Debug("auth state changed", "state", next.String())
		if onChange != nil {
			onChange(next)
		}
	}
	return next
}
