// ABOUTME: Tests for the realtime stream channel
// ABOUTME: Covers invalidation mapping, snapshot upserts, dedupe, drops, and teardown

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon-client/internal/cache"
	"github.com/beaconhq/beacon-client/internal/dedupe"
	"github.com/beaconhq/beacon-client/internal/snapshot"
)

// newStreamServer serves an SSE stream fed from the returned channel.
// Closing the channel ends the stream from the server side.
func newStreamServer(t *testing.T, onRequest func(*http.Request)) (*httptest.Server, chan string) {
	t.Helper()
	events := make(chan string, 16)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onRequest != nil {
			onRequest(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		flusher.Flush()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", ev)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, events
}

type channelFixture struct {
	channel  *Channel
	cache    *cache.Cache
	payloads chan Payload
}

func newChannelFixture(t *testing.T, baseURL string, validate bool) *channelFixture {
	t.Helper()

	f := &channelFixture{
		cache:    cache.New(nil),
		payloads: make(chan Payload, 16),
	}

	gate := dedupe.New(dedupe.Config{
		Store: snapshot.NewMemoryStore(),
		Roll:  func() float64 { return 1.0 },
	})

	channel, err := NewChannel(Config{
		BaseURL:          baseURL,
		Gate:             gate,
		Cache:            f.cache,
		Token:            func() string { return "tok-stream" },
		OnPayload:        func(p Payload) { f.payloads <- p },
		ValidatePayloads: validate,
	})
	require.NoError(t, err)
	f.channel = channel
	return f
}

func (f *channelFixture) waitPayload(t *testing.T) Payload {
	t.Helper()
	select {
	case p := <-f.payloads:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return Payload{}
	}
}

func (f *channelFixture) expectNoPayload(t *testing.T) {
	t.Helper()
	select {
	case p := <-f.payloads:
		t.Fatalf("unexpected payload: %+v", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestChannel_FollowInvalidatesProfile(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	f.cache.Set("profile", "fresh")

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)
	defer sub.Close()

	events <- `{"id":"e1","type":"follow"}`
	p := f.waitPayload(t)

	assert.Equal(t, "follow", p.Type)
	_, ok := f.cache.Get("profile")
	assert.False(t, ok, "follow must mark the profile key stale")
}

func TestChannel_FullEntityReplacesExisting(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	f.cache.UpsertList(DefaultListKey, cache.Entity{
		ID:   "r1",
		Data: json.RawMessage(`{"id":"r1","status":"open"}`),
	}, cache.Prepend)

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)
	defer sub.Close()

	events <- `{"id":"e2","type":"report","fullEntity":{"id":"r1","status":"resolved"}}`
	f.waitPayload(t)

	l := f.cache.GetList(DefaultListKey)
	require.NotNil(t, l)
	require.Equal(t, 1, l.Len(), "existing entity must be replaced, not duplicated")
	assert.JSONEq(t, `{"id":"r1","status":"resolved"}`, string(l.Items()[0].Data))
}

func TestChannel_FullEntityPrependsNew(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	f.cache.UpsertList(DefaultListKey, cache.Entity{ID: "r1"}, cache.Prepend)

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)
	defer sub.Close()

	events <- `{"id":"e3","type":"report","fullEntity":{"id":"r2"}}`
	f.waitPayload(t)

	items := f.cache.GetList(DefaultListKey).Items()
	require.Len(t, items, 2)
	assert.Equal(t, "r2", items[0].ID, "new entities go to the head of the feed")
}

func TestChannel_MalformedPayloadDropped(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)
	defer sub.Close()

	events <- `{not json`
	events <- `{"id":"e4","type":"report"}`

	// The malformed message is dropped and the stream stays open
	p := f.waitPayload(t)
	assert.Equal(t, "e4", p.ID)
}

func TestChannel_DuplicateEventSkipped(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)
	defer sub.Close()

	events <- `{"id":"dup-1","type":"report"}`
	events <- `{"id":"dup-1","type":"report"}`

	f.waitPayload(t)
	f.expectNoPayload(t)
}

func TestChannel_UnrecognizedTypeStillInvokesCallback(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	f.cache.Set("profile", "fresh")

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)
	defer sub.Close()

	events <- `{"id":"e5","type":"mystery"}`
	p := f.waitPayload(t)

	assert.Equal(t, "mystery", p.Type)
	_, ok := f.cache.Get("profile")
	assert.True(t, ok, "unrecognized types must not invalidate anything")
}

func TestChannel_SchemaInvalidPayloadDropped(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, true)

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)
	defer sub.Close()

	// Valid JSON but missing the required type tag
	events <- `{"id":"e6"}`
	events <- `{"id":"e7","type":"report"}`

	p := f.waitPayload(t)
	assert.Equal(t, "e7", p.ID)
}

func TestChannel_SendsAuthAndIdentity(t *testing.T) {
	type connInfo struct {
		auth     string
		identity string
	}
	seen := make(chan connInfo, 1)
	srv, events := newStreamServer(t, func(r *http.Request) {
		seen <- connInfo{
			auth:     r.Header.Get("Authorization"),
			identity: r.URL.Query().Get("identity"),
		}
	})
	defer close(events)

	f := newChannelFixture(t, srv.URL, false)

	sub, err := f.channel.Connect(context.Background(), "user-42")
	require.NoError(t, err)
	defer sub.Close()

	info := <-seen
	assert.Equal(t, "Bearer tok-stream", info.auth)
	assert.Equal(t, "user-42", info.identity)
}

func TestChannel_ConnectRejectsEmptyIdentity(t *testing.T) {
	f := newChannelFixture(t, "http://127.0.0.1:0", false)

	_, err := f.channel.Connect(context.Background(), "")
	assert.Error(t, err)
}

func TestChannel_ConnectNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	f := newChannelFixture(t, srv.URL, false)

	_, err := f.channel.Connect(context.Background(), "user-1")
	assert.Error(t, err)
}

func TestChannel_CloseStopsDelivery(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)

	sub.Close()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream teardown")
	}

	// Close is idempotent
	sub.Close()

	select {
	case events <- `{"id":"late","type":"report"}`:
	default:
	}
	f.expectNoPayload(t)
}

func TestChannel_ServerCloseSignalsDone(t *testing.T) {
	srv, events := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	sub, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)

	// Server ends the stream; only full closure is detected, and the
	// channel does not reconnect on its own.
	close(events)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for closure signal")
	}
}

func TestChannel_ConcurrentConnectsLeaveOneLive(t *testing.T) {
	srv, _ := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	const connects = 4
	subs := make([]*Subscription, connects)

	var wg sync.WaitGroup
	for i := 0; i < connects; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, err := f.channel.Connect(context.Background(), fmt.Sprintf("user-%d", i))
			if err == nil {
				subs[i] = sub
			}
		}(i)
	}
	wg.Wait()

	// Every rotation closes its predecessor, so exactly one connection
	// survives no matter how the calls interleave.
	assert.Eventually(t, func() bool {
		open := 0
		for _, sub := range subs {
			if sub == nil {
				continue
			}
			select {
			case <-sub.Done():
			default:
				open++
			}
		}
		return open == 1
	}, 2*time.Second, 10*time.Millisecond)

	for _, sub := range subs {
		if sub != nil {
			sub.Close()
		}
	}
}

func TestChannel_IdentityRotationClosesPrevious(t *testing.T) {
	srv, _ := newStreamServer(t, nil)
	f := newChannelFixture(t, srv.URL, false)

	first, err := f.channel.Connect(context.Background(), "user-1")
	require.NoError(t, err)

	second, err := f.channel.Connect(context.Background(), "user-2")
	require.NoError(t, err)
	defer second.Close()

	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("previous connection must be closed on identity rotation")
	}
}
