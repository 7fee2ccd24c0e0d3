// ABOUTME: MessageSource implementation over the notifier's websocket channel
// ABOUTME: One connection per subscription; the disposer waits for the read loop to exit

package push

import (
	"context"
	"log/slog"

	"nhooyr.io/websocket"
)

// WebsocketSource subscribes to the background notifier's message
// channel over a websocket connection.
type WebsocketSource struct {
	URL    string
	Logger *slog.Logger
}

// NewWebsocketSource creates a source dialing the given websocket URL.
func NewWebsocketSource(url string, logger *slog.Logger) *WebsocketSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebsocketSource{
		URL:    url,
		Logger: logger.With("component", "push-ws"),
	}
}

// Subscribe dials the notifier and delivers every received message to
// handler. The returned disposer closes the connection and does not
// return until delivery has fully stopped.
func (s *WebsocketSource) Subscribe(handler func(data []byte)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())

	conn, _, err := websocket.Dial(ctx, s.URL, nil)
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.Logger.Debug("notifier connection closed", "error", err)
				}
				return
			}
			handler(data)
		}
	}()

	unsubscribe := func() {
		cancel()
		conn.Close(websocket.StatusNormalClosure, "listener removed")
		<-done
	}
	return unsubscribe, nil
}
