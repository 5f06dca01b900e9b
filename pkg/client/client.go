// Package client is a Go SDK for the gmfm-server API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/gmfm-scoring/internal/assessment"
	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/scoring"
)

// Client is a Go SDK for gmfm-server API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new gmfm-server client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is an error reported by the server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// NotFound reports whether the requested patient or session does not exist
func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Domain is one domain of a scale as listed by the catalog
type Domain struct {
	Code      string `json:"code"`
	Title     string `json:"title"`
	Label     string `json:"label"`
	ItemCount int    `json:"item_count"`
	Items     []int  `json:"items"`
}

// ListOptions pages through patients
type ListOptions struct {
	Limit  int
	Offset int
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Score computes domain and total percentages without storing anything
func (c *Client) Score(ctx context.Context, scale string, ratings map[int]int) (*scoring.ScoreResult, error) {
	var result scoring.ScoreResult
	req := models.ScoreRequest{Scale: scale, Ratings: ratings}
	if err := c.call(ctx, http.MethodPost, "/api/v1/score/", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Missing lists the items of the scale that have no rating yet
func (c *Client) Missing(ctx context.Context, scale string, ratings map[int]int) ([]int, error) {
	var result struct {
		Missing []int `json:"missing"`
	}
	req := models.ScoreRequest{Scale: scale, Ratings: ratings}
	if err := c.call(ctx, http.MethodPost, "/api/v1/score/missing", req, &result); err != nil {
		return nil, err
	}
	return result.Missing, nil
}

// Domains lists the domains of a scale ("66", "88", "reduced", "full")
func (c *Client) Domains(ctx context.Context, scale string) ([]Domain, error) {
	var result struct {
		Domains []Domain `json:"domains"`
	}
	path := fmt.Sprintf("/api/v1/catalog/%s/domains", url.PathEscape(scale))
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Domains, nil
}

// CreatePatient registers a patient
func (c *Client) CreatePatient(ctx context.Context, req models.PatientRequest) (*models.Patient, error) {
	var patient models.Patient
	if err := c.call(ctx, http.MethodPost, "/api/v1/patients/", req, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// GetPatient retrieves a patient by ID
func (c *Client) GetPatient(ctx context.Context, id string) (*models.Patient, error) {
	var patient models.Patient
	if err := c.call(ctx, http.MethodGet, "/api/v1/patients/"+url.PathEscape(id), nil, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// ListPatients retrieves a page of patients
func (c *Client) ListPatients(ctx context.Context, opts ListOptions) ([]*models.Patient, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/api/v1/patients/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Patients []*models.Patient `json:"patients"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Patients, nil
}

// RecordSession scores and stores an assessment of the patient
func (c *Client) RecordSession(ctx context.Context, patientID string, req models.SessionRequest) (*assessment.SessionView, error) {
	var view assessment.SessionView
	path := fmt.Sprintf("/api/v1/patients/%s/sessions", url.PathEscape(patientID))
	if err := c.call(ctx, http.MethodPost, path, req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetSession retrieves a session with its score
func (c *Client) GetSession(ctx context.Context, id string) (*assessment.SessionView, error) {
	var view assessment.SessionView
	if err := c.call(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// LatestSession retrieves the most recent session of a patient
func (c *Client) LatestSession(ctx context.Context, patientID string) (*assessment.SessionView, error) {
	var view assessment.SessionView
	path := fmt.Sprintf("/api/v1/patients/%s/sessions/latest", url.PathEscape(patientID))
	if err := c.call(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// DeleteSession removes a session
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(id), nil, nil)
}

// History retrieves the per-domain score trend of a patient
func (c *Client) History(ctx context.Context, patientID string) (*assessment.History, error) {
	var history assessment.History
	path := fmt.Sprintf("/api/v1/patients/%s/history", url.PathEscape(patientID))
	if err := c.call(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// Compare diffs two sessions
func (c *Client) Compare(ctx context.Context, fromID, toID string) (*assessment.Comparison, error) {
	q := url.Values{"from": {fromID}, "to": {toID}}

	var cmp assessment.Comparison
	if err := c.call(ctx, http.MethodGet, "/api/v1/sessions/compare?"+q.Encode(), nil, &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}

// call sends in as JSON and decodes the envelope's data into out
func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	status, resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	var result envelope
	if err := json.Unmarshal(resp, &result); err != nil {
		if status >= 400 {
			return &APIError{StatusCode: status, Code: "http_error", Message: string(resp)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success || status >= 400 {
		apiErr := &APIError{StatusCode: status, Code: "unknown_error", Message: http.StatusText(status)}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		return apiErr
	}

	if out == nil || len(result.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
