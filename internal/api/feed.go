package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"loto-predictor/internal/engine"
	"loto-predictor/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	feedBuffer   = 100
	writeTimeout = 5 * time.Second
)

// Hub streams generated predictions to connected websocket clients. It
// implements engine.Notifier.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan engine.Prediction
	stop      chan struct{}
	stopOnce  sync.Once

	connected  metrics.MetricsGauge
	broadcasts metrics.MetricsCounter
}

// NewHub creates a hub. The metrics may be nil.
func NewHub(connected metrics.MetricsGauge, broadcasts metrics.MetricsCounter) *Hub {
	if connected == nil {
		connected = nopGauge{}
	}
	if broadcasts == nil {
		broadcasts = nopCounter{}
	}
	return &Hub{
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan engine.Prediction, feedBuffer),
		stop:       make(chan struct{}),
		connected:  connected,
		broadcasts: broadcasts,
	}
}

// Run forwards published predictions to the clients until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case p := <-h.broadcast:
			h.broadcastToClients(p)
		case <-h.stop:
			return
		}
	}
}

// Publish queues a prediction for the clients. It never blocks: when the
// queue is full the prediction is dropped.
func (h *Hub) Publish(p engine.Prediction) {
	select {
	case h.broadcast <- p:
	default:
		log.Warn().Str("category", p.CategoryID).Msg("Prediction feed full, dropping update")
	}
}

// Stop ends Run and closes every client connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)

		h.clientsMu.Lock()
		for client := range h.clients {
			client.Close()
		}
		h.clients = make(map[*websocket.Conn]bool)
		h.connected.Set(0)
		h.clientsMu.Unlock()
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcastToClients(p engine.Prediction) {
	data, err := json.Marshal(p)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal prediction for broadcast")
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Msg("Failed to send prediction to websocket client")
			client.Close()
			delete(h.clients, client)
			h.connected.Add(-1)
		}
	}
	h.broadcasts.Inc()
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}
	defer conn.Close()

	if !h.register(conn) {
		return
	}

	log.Debug().Str("remote", r.RemoteAddr).Msg("Prediction feed client connected")

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	if h.clients[conn] {
		delete(h.clients, conn)
		h.connected.Add(-1)
	}
	h.clientsMu.Unlock()
}

// register adds conn to the clients unless the hub is stopped. The stop check
// runs under clientsMu so Stop cannot clear the map in between.
func (h *Hub) register(conn *websocket.Conn) bool {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	select {
	case <-h.stop:
		return false
	default:
	}
	h.clients[conn] = true
	h.connected.Add(1)
	return true
}

type nopGauge struct{}

func (nopGauge) Set(float64) {}
func (nopGauge) Add(float64) {}

type nopCounter struct{}

func (nopCounter) Inc() {}
