// Package api serves the prediction engine over HTTP: JSON endpoints for
// predicting, training, evaluating and adapting the models, draw ingestion,
// and a websocket feed of generated predictions.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"loto-predictor/internal/draws"
	"loto-predictor/internal/engine"
	"loto-predictor/internal/metrics"
	"loto-predictor/internal/ml"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Store is the draw storage the server ingests into and reports on.
type Store interface {
	engine.DrawSource
	StoreDraws(list []draws.Draw) error
	CountDraws() (map[string]int, error)
	ClearOldData(cutoff time.Time) (int, error)
}

// Recorder receives transport metrics. metrics.MetricsWrapper implements it.
type Recorder interface {
	HTTPRequest(route string, status int)
	DrawsIngested() metrics.MetricsCounter
	PredictionsSaved() metrics.MetricsCounter
	WSClients() metrics.MetricsGauge
	WSBroadcasts() metrics.MetricsCounter
}

// Options configure the server.
type Options struct {
	Port int
	// Defaults returns the prediction configuration a request starts from.
	Defaults func(categoryID string) ml.Config
	// RequestTimeout bounds a prediction request.
	RequestTimeout time.Duration
	// TrainRate limits training requests per second. Zero disables the limit.
	TrainRate  float64
	TrainBurst int
}

// DefaultOptions returns the standard server options.
func DefaultOptions(port int) Options {
	return Options{
		Port:           port,
		RequestTimeout: 60 * time.Second,
		TrainRate:      0.2,
		TrainBurst:     2,
	}
}

// Server exposes an engine over HTTP.
type Server struct {
	engine   *engine.Engine
	store    Store
	hub      *Hub
	recorder Recorder
	limiter  *rate.Limiter
	opts     Options
	router   *mux.Router
	server   *http.Server
	now      func() time.Time
}

// NewServer builds the routes and registers the prediction feed as the
// engine's notifier. recorder may be nil.
func NewServer(eng *engine.Engine, store Store, recorder Recorder, opts Options) *Server {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if opts.Defaults == nil {
		opts.Defaults = func(string) ml.Config { return ml.DefaultConfig() }
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	s := &Server{
		engine:   eng,
		store:    store,
		hub:      NewHub(recorder.WSClients(), recorder.WSBroadcasts()),
		recorder: recorder,
		opts:     opts,
		now:      time.Now,
	}
	if opts.TrainRate > 0 {
		burst := opts.TrainBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.TrainRate), burst)
	}
	eng.SetNotifier(s.hub)

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	r.HandleFunc("/categories/{id}/draws", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/categories/{id}/predict", s.handlePredict).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}/train", s.handleTrain).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}/evaluate", s.handleEvaluate).Methods(http.MethodGet)
	r.HandleFunc("/categories/{id}/recommend", s.handleRecommend).Methods(http.MethodGet)
	r.HandleFunc("/categories/{id}/adapt", s.handleAdapt).Methods(http.MethodPost)
	r.HandleFunc("/draws", s.handleStoreDraws).Methods(http.MethodPost)
	r.HandleFunc("/draws/prune", s.handlePrune).Methods(http.MethodPost)
	r.HandleFunc("/weights", s.handleWeights).Methods(http.MethodGet)
	r.HandleFunc("/weights", s.handleResetWeights).Methods(http.MethodDelete)
	r.Handle("/ws/predictions", s.hub).Methods(http.MethodGet)
	r.Use(s.instrument)
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the prediction feed.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins serving HTTP requests and the prediction feed. It blocks until
// the server is shut down.
func (s *Server) Start() error {
	go s.hub.Run()
	log.Info().Str("addr", s.server.Addr).Msg("Starting API server")
	return s.server.ListenAndServe()
}

// Shutdown stops the feed and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.server.Shutdown(ctx)
}

// PredictRequest overrides fields of the default prediction configuration.
type PredictRequest struct {
	Model                 *string  `json:"model,omitempty"`
	ConfidenceThreshold   *float64 `json:"confidence_threshold,omitempty"`
	LookbackDays          *int     `json:"lookback_days,omitempty"`
	IncludeMachineNumbers *bool    `json:"include_machine_numbers,omitempty"`
	WeightRecent          *bool    `json:"weight_recent,omitempty"`
}

// Apply overlays the request on base.
func (r PredictRequest) Apply(base ml.Config) (ml.Config, error) {
	c := base
	if r.Model != nil {
		tag, err := ml.ParseModelTag(*r.Model)
		if err != nil {
			return c, err
		}
		c.Model = tag
	}
	if r.ConfidenceThreshold != nil {
		c.ConfidenceThreshold = *r.ConfidenceThreshold
	}
	if r.LookbackDays != nil {
		c.LookbackDays = *r.LookbackDays
	}
	if r.IncludeMachineNumbers != nil {
		c.IncludeMachineNumbers = *r.IncludeMachineNumbers
	}
	if r.WeightRecent != nil {
		c.WeightRecent = *r.WeightRecent
	}
	return c.Normalize(), nil
}

// StoreDrawsResponse reports a draw ingestion.
type StoreDrawsResponse struct {
	Stored int `json:"stored"`
}

// PruneRequest asks to drop the records older than Days.
type PruneRequest struct {
	Days int `json:"days"`
}

// PruneResponse reports a prune.
type PruneResponse struct {
	Removed int       `json:"removed"`
	Cutoff  time.Time `json:"cutoff"`
}

// RecommendResponse carries the recommended model.
type RecommendResponse struct {
	CategoryID string      `json:"category_id"`
	Model      ml.ModelTag `json:"model"`
}

// CategoryInfo is a scheduled category with its stored draw count.
type CategoryInfo struct {
	draws.Category
	Draws int `json:"draws"`
}

// HealthResponse reports the service state.
type HealthResponse struct {
	Status      string     `json:"status"`
	Time        time.Time  `json:"time"`
	Weights     ml.Weights `json:"weights"`
	FeedClients int        `json:"feed_clients"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Time:        s.now().UTC(),
		Weights:     s.engine.Hybrid().Weights(),
		FeedClients: s.hub.Clients(),
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountDraws()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	cats := draws.Categories()
	out := make([]CategoryInfo, len(cats))
	for i, c := range cats {
		out[i] = CategoryInfo{Category: c, Draws: counts[c.ID]}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.category(w, r)
	if !ok {
		return
	}
	history, err := s.store.GetDrawHistory(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if history == nil {
		history = []draws.Draw{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	id, ok := s.category(w, r)
	if !ok {
		return
	}

	var req PredictRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	config, err := req.Apply(s.opts.Defaults(id))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	p, err := s.engine.GeneratePrediction(ctx, id, config)
	if err != nil {
		log.Error().Err(err).Str("category", id).Msg("Prediction failed")
		writeError(w, statusFor(err), err)
		return
	}
	if p.ID != "" {
		s.recorder.PredictionsSaved().Inc()
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	id, ok := s.category(w, r)
	if !ok {
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, errors.New("training requests are rate limited"))
		return
	}

	report, err := s.engine.TrainAll(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.category(w, r)
	if !ok {
		return
	}
	perfs, err := s.engine.Evaluate(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, perfs)
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	id, ok := s.category(w, r)
	if !ok {
		return
	}
	tag, err := s.engine.RecommendModel(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendResponse{CategoryID: id, Model: tag})
}

func (s *Server) handleAdapt(w http.ResponseWriter, r *http.Request) {
	id, ok := s.category(w, r)
	if !ok {
		return
	}
	report, err := s.engine.AdaptWeights(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStoreDraws(w http.ResponseWriter, r *http.Request) {
	var records []draws.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no draws in request"))
		return
	}

	list := make([]draws.Draw, 0, len(records))
	for _, rec := range records {
		d, err := rec.Draw()
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, ok := draws.CategoryByID(d.CategoryID); !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("unknown category %q", d.CategoryID))
			return
		}
		list = append(list, d)
	}

	if err := s.store.StoreDraws(list); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	counter := s.recorder.DrawsIngested()
	for range list {
		counter.Inc()
	}
	log.Info().Int("draws", len(list)).Msg("Draws stored")
	writeJSON(w, http.StatusCreated, StoreDrawsResponse{Stored: len(list)})
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Days <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("days must be positive, got %d", req.Days))
		return
	}

	cutoff := draws.Day(s.now()).AddDate(0, 0, -req.Days)
	removed, err := s.store.ClearOldData(cutoff)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("Old data cleared")
	writeJSON(w, http.StatusOK, PruneResponse{Removed: removed, Cutoff: cutoff})
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Hybrid().Weights())
}

func (s *Server) handleResetWeights(w http.ResponseWriter, r *http.Request) {
	s.engine.Hybrid().ResetWeights()
	writeJSON(w, http.StatusOK, s.engine.Hybrid().Weights())
}

// category returns the scheduled category named in the path, answering 404
// for an unknown one.
func (s *Server) category(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, ok := draws.CategoryByID(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown category %q", id))
		return "", false
	}
	return id, true
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ml.ErrUnknownModel):
		return http.StatusBadRequest
	case errors.Is(err, ml.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ml.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// instrument counts requests per route template and status class.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.recorder.HTTPRequest(route, rec.status)
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("API request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

type nopRecorder struct{}

func (nopRecorder) HTTPRequest(string, int)                  {}
func (nopRecorder) DrawsIngested() metrics.MetricsCounter    { return nopCounter{} }
func (nopRecorder) PredictionsSaved() metrics.MetricsCounter { return nopCounter{} }
func (nopRecorder) WSClients() metrics.MetricsGauge          { return nopGauge{} }
func (nopRecorder) WSBroadcasts() metrics.MetricsCounter     { return nopCounter{} }
