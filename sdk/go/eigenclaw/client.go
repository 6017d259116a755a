// Package eigenclaw provides a minimal Go client for the eigenclaw
// labeling daemon's REST API.
package eigenclaw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Single-label calls proxy an inference backend, so it
// is noticeably longer than a typical REST timeout.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with the eigenclaw REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Record mirrors a transaction record sent for labeling. Arbitrary keys are
// preserved; the daemon reads the description field and writes a label field.
type Record map[string]any

// Label is the structured classification returned for one description.
type Label struct {
	ActionType string   `json:"action_type"`
	Protocol   string   `json:"protocol"`
	TokenIn    *string  `json:"token_in"`
	AmountIn   *float64 `json:"amount_in"`
	TokenOut   *string  `json:"token_out"`
	AmountOut  *float64 `json:"amount_out"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// ServiceInfo is the response of GET /info.
type ServiceInfo struct {
	Backend string         `json:"backend"`
	Network string         `json:"network"`
	Wallet  map[string]any `json:"wallet"`
}

// Job is the async batch job view returned by the jobs endpoints.
type Job struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Done      int      `json:"done"`
	Total     int      `json:"total"`
	Results   []Record `json:"results,omitempty"`
	LastError string   `json:"last_error,omitempty"`
}

// HistoryRecord is one persisted labeling result.
type HistoryRecord struct {
	ID          int64  `json:"id"`
	TxHash      string `json:"tx_hash"`
	Description string `json:"description"`
	ActionType  string `json:"action_type"`
	Protocol    string `json:"protocol"`
	Label       string `json:"label"`
	Backend     string `json:"backend"`
	CreatedAt   int64  `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("eigenclaw api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the eigenclaw API. When httpClient is
// nil, a default client with a labeling-friendly timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Health reports whether the daemon answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &status); err != nil {
		return err
	}
	if status.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", status.Status)
	}
	return nil
}

// Info returns the daemon's backend, network and wallet summary.
func (c *Client) Info(ctx context.Context) (ServiceInfo, error) {
	var info ServiceInfo
	if err := c.get(ctx, "/info", &info); err != nil {
		return ServiceInfo{}, err
	}
	return info, nil
}

// LabelOne classifies a single transaction description synchronously.
func (c *Client) LabelOne(ctx context.Context, description string) (Label, error) {
	var label Label
	payload := map[string]string{"description": description}
	if err := c.post(ctx, "/label", payload, &label); err != nil {
		return Label{}, err
	}
	return label, nil
}

// LabelBatch classifies a batch of records synchronously. The response keeps
// the input order; failed records carry an embedded error marker.
func (c *Client) LabelBatch(ctx context.Context, records []Record) ([]Record, error) {
	var results []Record
	if err := c.post(ctx, "/label/batch", records, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// SubmitJob enqueues a batch for asynchronous labeling and returns the
// accepted job. Field may be empty to use the default description key.
func (c *Client) SubmitJob(ctx context.Context, records []Record, field string) (Job, error) {
	var created Job
	payload := map[string]any{"records": records}
	if field != "" {
		payload["field"] = field
	}
	if err := c.post(ctx, "/api/v1/jobs", payload, &created); err != nil {
		return Job{}, err
	}
	return created, nil
}

// GetJob fetches the current state of an asynchronous job.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var found Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), &found); err != nil {
		return Job{}, err
	}
	return found, nil
}

// WaitForJob polls a job until it reaches a terminal state or ctx expires.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		found, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if found.Status == "succeeded" || found.Status == "failed" {
			return found, nil
		}
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ListLabels returns the most recent persisted labeling results.
func (c *Client) ListLabels(ctx context.Context, limit int) ([]HistoryRecord, error) {
	endpoint := "/api/v1/labels"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var records []HistoryRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("read error response: %w", readErr)
		}
		if len(data) > 0 {
			if unmarshalErr := json.Unmarshal(data, apiErr); unmarshalErr != nil || apiErr.Message == "" {
				apiErr.Message = string(bytes.TrimSpace(data))
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsNotFound reports whether an error is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
