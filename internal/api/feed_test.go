package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loto-predictor/internal/engine"
	"loto-predictor/internal/ml"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialFeed(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpURL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFeed_BroadcastsPredictions(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, 20)

	server := httptest.NewServer(f.srv.Handler())
	defer server.Close()
	go f.srv.Hub().Run()
	defer f.srv.Hub().Stop()

	conn := dialFeed(t, server.URL+"/ws/predictions")
	require.Eventually(t, func() bool { return f.srv.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WSClients))

	resp, err := http.Post(server.URL+"/categories/"+category+"/predict", "application/json", nil)
	require.NoError(t, err)
	var generated engine.Prediction
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&generated))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var pushed engine.Prediction
	require.NoError(t, json.Unmarshal(data, &pushed))
	assert.Equal(t, generated.ID, pushed.ID)
	assert.Equal(t, generated.Numbers, pushed.Numbers)
	assert.Equal(t, ml.ModelHybrid, pushed.Model)
	assert.Eventually(t, func() bool { return testutil.ToFloat64(f.metrics.WSBroadcasts) == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeed_ClientDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	go hub.Run()
	defer hub.Stop()

	conn := dialFeed(t, server.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeed_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < feedBuffer*2; i++ {
			hub.Publish(engine.Prediction{CategoryID: category})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked without a running hub")
	}
}

func TestFeed_StopClosesClients(t *testing.T) {
	hub := NewHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()
	go hub.Run()

	dialFeed(t, server.URL)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Stop()
	assert.Equal(t, 0, hub.Clients())
	hub.Stop() // idempotent
}

func TestFeed_NoRegistrationAfterStop(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Stop()
	assert.False(t, hub.register(nil))
	assert.Zero(t, hub.Clients())

	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialFeed(t, server.URL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "a stopped hub closes new connections")
	assert.Zero(t, hub.Clients())
}
