package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"loto-predictor/internal/engine"
	"loto-predictor/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Watcher follows the live prediction feed, reconnecting with exponential
// backoff when the connection drops.
type Watcher struct {
	url        string
	ping       time.Duration
	backoff    time.Duration
	maxBackoff time.Duration
	reconnects metrics.MetricsCounter
}

func NewWatcher(url string) *Watcher {
	return &Watcher{
		url:        url,
		ping:       15 * time.Second,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// SetBackoff changes the first and the largest reconnection delay.
func (w *Watcher) SetBackoff(initial, maxDelay time.Duration) {
	w.backoff = initial
	w.maxBackoff = maxDelay
}

// SetPing changes the keep-alive interval.
func (w *Watcher) SetPing(ping time.Duration) {
	w.ping = ping
}

// SetReconnectCounter counts every reconnection attempt.
func (w *Watcher) SetReconnectCounter(c metrics.MetricsCounter) {
	w.reconnects = c
}

// Watch delivers feed predictions to out until ctx is done.
func (w *Watcher) Watch(ctx context.Context, out chan<- engine.Prediction) error {
	backoff := w.backoff

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		received, err := w.watchOnce(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Reset backoff once a connection delivered data
		if received {
			backoff = w.backoff
		}
		log.Warn().Err(err).Dur("backoff", backoff).Msg("Prediction feed connection lost, reconnecting with exponential backoff...")
		if w.reconnects != nil {
			w.reconnects.Inc()
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		// Double the backoff, up to maxBackoff
		backoff *= 2
		if backoff > w.maxBackoff {
			backoff = w.maxBackoff
		}
	}
}

func (w *Watcher) watchOnce(ctx context.Context, out chan<- engine.Prediction) (bool, error) {
	log.Info().Str("url", w.url).Msg("Connecting to prediction feed")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	resp.Body.Close()
	defer conn.Close()

	readTimeout := 2 * w.ping
	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Set pong handler for keep-alive
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(w.ping)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
					log.Debug().Err(err).Msg("Feed ping failed")
				}
			}
		}
	}()

	received := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read failed: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		var p engine.Prediction
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Msg("Ignoring malformed feed message")
			continue
		}
		received = true

		select {
		case out <- p:
		case <-ctx.Done():
			return received, ctx.Err()
		}
	}
}
