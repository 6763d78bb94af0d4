package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"loto-predictor/internal/api"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/engine"
	"loto-predictor/internal/ml"
	"loto-predictor/internal/storage"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const category = "samedi-18h15-national"

func newAPI(t *testing.T) (*api.Server, *httptest.Server) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hybrid := ml.NewHybrid(
		ml.NewBoostModel(ml.DefaultBoostParams()),
		ml.NewForestModel(ml.ForestParams{Trees: 5, MaxDepth: 4, MinLeaf: 2, Seed: 1}),
		ml.NewSequenceModel(ml.DefaultSequenceParams()),
		store,
		ml.DefaultHybridConfig(),
		nil,
	)
	eng := engine.New(store, store, hybrid, nil, engine.DefaultOptions())
	srv := api.NewServer(eng, store, nil, api.Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func records(n int) []draws.Record {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]draws.Record, n)
	for i := range out {
		base := (i*11)%86 + 1
		out[i] = draws.Record{
			CategoryID: category,
			Date:       start.AddDate(0, 0, -7*i).Format(draws.DateLayout),
			Winning:    []int{base, base + 1, base + 2, base + 3, base + 4},
		}
	}
	return out
}

func TestClient_Workflow(t *testing.T) {
	_, ts := newAPI(t)
	c := NewREST(ts.URL+"/", 5*time.Second)

	health, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	stored, err := c.StoreDraws(records(25))
	require.NoError(t, err)
	assert.Equal(t, 25, stored)

	cats, err := c.Categories()
	require.NoError(t, err)
	require.Len(t, cats, 28)

	history, err := c.History(category)
	require.NoError(t, err)
	assert.Len(t, history, 25)

	model := "random_forest"
	p, err := c.Predict(category, api.PredictRequest{Model: &model})
	require.NoError(t, err)
	assert.Equal(t, ml.ModelForest, p.Model)
	require.NoError(t, draws.ValidateNumbers(p.Numbers))

	perfs, err := c.Evaluate(category)
	require.NoError(t, err)
	assert.Len(t, perfs, 4)

	tag, err := c.Recommend(category)
	require.NoError(t, err)
	assert.Equal(t, ml.ModelHybrid, tag)

	report, err := c.Adapt(category)
	require.NoError(t, err)
	assert.False(t, report.Applied)

	w, err := c.Weights()
	require.NoError(t, err)
	assert.Equal(t, ml.DefaultWeights(), w)

	w, err = c.ResetWeights()
	require.NoError(t, err)
	assert.Equal(t, ml.DefaultWeights(), w)

	pruned, err := c.Prune(36500)
	require.NoError(t, err)
	assert.Zero(t, pruned.Removed)
}

func TestClient_Errors(t *testing.T) {
	_, ts := newAPI(t)
	c := NewREST(ts.URL, 5*time.Second)

	_, err := c.Predict(category, api.PredictRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Contains(t, apiErr.Message, "insufficient data")
	assert.True(t, errors.Is(err, ml.ErrInsufficientData))

	_, err = c.Train("dimanche-25h-nowhere")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	_, err = c.StoreDraws(nil)
	assert.Error(t, err)

	_, err = c.Prune(0)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	unreachable := NewREST("http://127.0.0.1:1", time.Second)
	_, err = unreachable.Health()
	assert.Error(t, err)
	assert.False(t, errors.As(err, &apiErr))
}

func TestClient_AccentedCategory(t *testing.T) {
	_, ts := newAPI(t)
	c := NewREST(ts.URL, 5*time.Second)

	history, err := c.History("lundi-10h-réveil")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWatcher_ReceivesPredictions(t *testing.T) {
	srv, ts := newAPI(t)
	go srv.Hub().Run()
	defer srv.Hub().Stop()

	c := NewREST(ts.URL, 5*time.Second)
	_, err := c.StoreDraws(records(15))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan engine.Prediction, 1)
	w := NewWatcher(wsURL(ts.URL) + "/ws/predictions")
	errc := make(chan error, 1)
	go func() { errc <- w.Watch(ctx, out) }()

	require.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	p, err := c.Predict(category, api.PredictRequest{})
	require.NoError(t, err)

	select {
	case got := <-out:
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, p.Numbers, got.Numbers)
	case <-time.After(5 * time.Second):
		t.Fatal("no prediction received from the feed")
	}

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

type countingCounter struct{ n atomic.Int32 }

func (c *countingCounter) Inc() { c.n.Add(1) }

func TestWatcher_Reconnects(t *testing.T) {
	var (
		mu    sync.Mutex
		dials int
	)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		mu.Lock()
		dials++
		first := dials == 1
		mu.Unlock()
		if first {
			return // drop the first connection straight away
		}
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(engine.Prediction{ID: "p1", CategoryID: category, Output: ml.Output{Numbers: []int{1, 2, 3, 4, 5}}})
		conn.ReadMessage()
	}))
	defer ts.Close()

	reconnects := &countingCounter{}
	w := NewWatcher(wsURL(ts.URL))
	w.SetBackoff(10*time.Millisecond, 50*time.Millisecond)
	w.SetReconnectCounter(reconnects)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make(chan engine.Prediction, 1)
	go w.Watch(ctx, out)

	select {
	case got := <-out:
		assert.Equal(t, "p1", got.ID)
	case <-ctx.Done():
		t.Fatal("no prediction after reconnecting")
	}
	assert.GreaterOrEqual(t, reconnects.n.Load(), int32(1))
}

func TestWatcher_DialFailureBacksOff(t *testing.T) {
	reconnects := &countingCounter{}
	w := NewWatcher("ws://127.0.0.1:1/ws/predictions")
	w.SetBackoff(5*time.Millisecond, 20*time.Millisecond)
	w.SetReconnectCounter(reconnects)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := w.Watch(ctx, make(chan engine.Prediction))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, reconnects.n.Load(), int32(1))
}
