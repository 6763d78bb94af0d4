// Package client talks to the prediction API: a REST client for the engine
// operations and a websocket watcher for the live prediction feed.
package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loto-predictor/internal/api"
	"loto-predictor/internal/draws"
	"loto-predictor/internal/engine"
	"loto-predictor/internal/ml"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status %d: %s", e.Status, e.Message)
}

// Unwrap maps the status codes the engine errors are served with back to
// their sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnprocessableEntity:
		return ml.ErrInsufficientData
	case http.StatusServiceUnavailable:
		return ml.ErrModelUnavailable
	}
	return nil
}

type Client struct {
	base string
	rest *resty.Client
}

func NewREST(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	r.SetHeader("Accept", "application/json")
	return &Client{strings.TrimRight(base, "/"), r}
}

// SetTimeout changes the request timeout, e.g. for long training requests.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.rest.SetTimeout(timeout)
}

func (c *Client) do(method, path string, body, result any) error {
	req := c.rest.R().SetError(&api.ErrorResponse{})
	if result != nil {
		req.SetResult(result)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(resp.String())
		if e, ok := resp.Error().(*api.ErrorResponse); ok && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode(), Message: msg}
	}
	return nil
}

func categoryPath(categoryID, op string) string {
	return "/categories/" + url.PathEscape(categoryID) + "/" + op
}

func (c *Client) Health() (api.HealthResponse, error) {
	var out api.HealthResponse
	err := c.do(http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) Categories() ([]api.CategoryInfo, error) {
	var out []api.CategoryInfo
	err := c.do(http.MethodGet, "/categories", nil, &out)
	return out, err
}

// History returns the stored draws of a category, most recent first.
func (c *Client) History(categoryID string) ([]draws.Draw, error) {
	var out []draws.Draw
	err := c.do(http.MethodGet, categoryPath(categoryID, "draws"), nil, &out)
	return out, err
}

// Predict generates a prediction. Unset request fields keep the server defaults.
func (c *Client) Predict(categoryID string, req api.PredictRequest) (engine.Prediction, error) {
	var out engine.Prediction
	err := c.do(http.MethodPost, categoryPath(categoryID, "predict"), req, &out)
	return out, err
}

func (c *Client) Train(categoryID string) (engine.TrainReport, error) {
	var out engine.TrainReport
	err := c.do(http.MethodPost, categoryPath(categoryID, "train"), nil, &out)
	return out, err
}

func (c *Client) Evaluate(categoryID string) ([]ml.Performance, error) {
	var out []ml.Performance
	err := c.do(http.MethodGet, categoryPath(categoryID, "evaluate"), nil, &out)
	return out, err
}

func (c *Client) Recommend(categoryID string) (ml.ModelTag, error) {
	var out api.RecommendResponse
	if err := c.do(http.MethodGet, categoryPath(categoryID, "recommend"), nil, &out); err != nil {
		return ml.ModelHybrid, err
	}
	return out.Model, nil
}

func (c *Client) Adapt(categoryID string) (engine.AdaptReport, error) {
	var out engine.AdaptReport
	err := c.do(http.MethodPost, categoryPath(categoryID, "adapt"), nil, &out)
	return out, err
}

// StoreDraws uploads draws and returns how many were stored.
func (c *Client) StoreDraws(records []draws.Record) (int, error) {
	if len(records) == 0 {
		return 0, errors.New("no draws to store")
	}
	var out api.StoreDrawsResponse
	err := c.do(http.MethodPost, "/draws", records, &out)
	return out.Stored, err
}

// Prune drops the records older than days.
func (c *Client) Prune(days int) (api.PruneResponse, error) {
	var out api.PruneResponse
	err := c.do(http.MethodPost, "/draws/prune", api.PruneRequest{Days: days}, &out)
	return out, err
}

func (c *Client) Weights() (ml.Weights, error) {
	var out ml.Weights
	err := c.do(http.MethodGet, "/weights", nil, &out)
	return out, err
}

func (c *Client) ResetWeights() (ml.Weights, error) {
	var out ml.Weights
	err := c.do(http.MethodDelete, "/weights", nil, &out)
	return out, err
}
