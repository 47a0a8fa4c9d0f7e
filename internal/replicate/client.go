// Package replicate is a client for the Replicate predictions API and its
// webhook callbacks. Only asynchronous, webhook-driven predictions are used:
// a create call returns as soon as the job is accepted and the result is
// delivered later to the webhook URL.
package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Replicate API base URL.
	DefaultBaseURL = "https://api.replicate.com/v1"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	// maxResponseSize caps API response bodies.
	maxResponseSize = 1 << 20
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Title      string `json:"title"`
	Detail     string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("replicate API error (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("replicate API error (status %d)", e.StatusCode)
}

// Client creates predictions.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
}

// NewClient creates a client authenticated with token. An empty baseURL
// selects DefaultBaseURL.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// CreatePrediction submits a prediction and returns the provider's
// acknowledgment. The request is bounded by ctx.
func (c *Client) CreatePrediction(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	path, err := predictionPath(&req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal prediction request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create prediction: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return nil, apiErr
	}

	var p Prediction
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}

	log.Info().
		Str("predictionId", p.ID).
		Str("status", p.Status).
		Str("path", path).
		Dur("elapsed", time.Since(start)).
		Msg("Prediction created")
	return &p, nil
}

// predictionPath picks the endpoint for req and normalises its Version to a
// bare version id.
func predictionPath(req *PredictionRequest) (string, error) {
	switch {
	case req.Version != "":
		if i := strings.LastIndex(req.Version, ":"); i >= 0 {
			req.Version = req.Version[i+1:]
		}
		return "/predictions", nil
	case req.Model != "":
		if strings.Count(req.Model, "/") != 1 {
			return "", fmt.Errorf("model must be owner/name, got %q", req.Model)
		}
		return "/models/" + req.Model + "/predictions", nil
	}
	return "", fmt.Errorf("prediction request needs a model or version")
}
