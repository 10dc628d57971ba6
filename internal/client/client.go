// Package client provides a REST client for the qaharvest server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
	"github.com/raphaelgruber/qaharvest/internal/models"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// Client talks to the qaharvest HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses QAH_SERVER_URL or defaults to localhost:8080.
// Timeout can be configured via QAH_CLIENT_TIMEOUT (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("QAH_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("QAH_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// APIError is an error response from the server.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server error %d: %s", e.Status, e.Message)
	for _, d := range e.Details {
		msg += fmt.Sprintf(" (%s %s)", d.Field, d.Message)
	}
	return msg
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// do sends a request and decodes a JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var env struct {
			Error APIError `json:"error"`
		}
		if err := json.Unmarshal(data, &env); err != nil || env.Error.Message == "" {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		}
		env.Error.Status = resp.StatusCode
		return &env.Error
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TYPES
// =============================================================================

// SubmitResult is the server's answer to a submitted URL.
type SubmitResult struct {
	JobID   string           `json:"job_id"`
	URL     string           `json:"url"`
	Status  models.JobStatus `json:"status"`
	Message string           `json:"message"`
}

// RandomResult is the answer to a random submission.
type RandomResult struct {
	Message string         `json:"message"`
	Jobs    []SubmitResult `json:"jobs"`
}

// Stats is the server-wide statistics response.
type Stats struct {
	models.Stats
	Metrics metrics.Snapshot `json:"metrics"`
}

// Health is the health check response.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Submit creates a scrape job for url.
func (c *Client) Submit(ctx context.Context, rawURL string) (*SubmitResult, error) {
	var res SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/scrape", nil, map[string]string{"url": rawURL}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SubmitRandom asks the server to discover and submit count articles.
func (c *Client) SubmitRandom(ctx context.Context, count int) (*RandomResult, error) {
	var res RandomResult
	q := url.Values{"count": {strconv.Itoa(count)}}
	if err := c.do(ctx, http.MethodPost, "/api/scrape/random", q, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Discover previews up to count unprocessed article URLs.
func (c *Client) Discover(ctx context.Context, count int) ([]string, error) {
	var res struct {
		URLs []string `json:"urls"`
	}
	q := url.Values{"count": {strconv.Itoa(count)}}
	if err := c.do(ctx, http.MethodGet, "/api/discover", q, nil, &res); err != nil {
		return nil, err
	}
	return res.URLs, nil
}

// GetJob fetches a job by ID.
func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Results returns the Q&A pairs extracted by a job.
func (c *Client) Results(ctx context.Context, id string) ([]models.QAPair, error) {
	var pairs []models.QAPair
	path := "/api/jobs/" + url.PathEscape(id) + "/results"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

// ListQA returns one page of stored pairs, newest first.
func (c *Client) ListQA(ctx context.Context, limit, offset int) (*models.QAPage, error) {
	var page models.QAPage
	q := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
	if err := c.do(ctx, http.MethodGet, "/api/qa", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Stats returns aggregate counts and operation metrics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Cleanup deletes terminal jobs older than olderThan and returns the count.
func (c *Client) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	var res struct {
		Deleted int `json:"deleted"`
	}
	q := url.Values{"older_than": {olderThan.String()}}
	if err := c.do(ctx, http.MethodDelete, "/api/jobs", q, nil, &res); err != nil {
		return 0, err
	}
	return res.Deleted, nil
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// =============================================================================
// WATCH
// =============================================================================

// WatchJob streams status changes of a job until it is terminal.
// onUpdate is called for every received job state. Return an error from
// onUpdate to abort.
func (c *Client) WatchJob(ctx context.Context, id string, onUpdate func(models.Job) error) error {
	wsURL := c.baseURL
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	u, err := url.Parse(wsURL + "/api/jobs/" + url.PathEscape(id) + "/watch")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return &APIError{Status: resp.StatusCode, Message: "Job not found"}
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var job models.Job
		if err := conn.ReadJSON(&job); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		if err := onUpdate(job); err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return nil
		}
	}
}
