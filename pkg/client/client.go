// Package client is a thin typed HTTP client for a pgjq server. It issues the
// engine's operations as remote calls and adds no behavior of its own.
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
	"strings"
	"time"

	"github.com/radek-baczynski/pgjq/internal/models"
)

// Client talks to one pgjq server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// NewWithHTTPClient allows substituting the underlying HTTP client.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	c := New(baseURL)
	if hc != nil {
		c.http = hc
	}
	return c
}

// EnqueueOptions carries the optional enqueue arguments.
type EnqueueOptions struct {
	Headers    json.RawMessage
	StaleAfter time.Duration
	Priority   int
}

// ListOptions mirrors the server's job listing parameters. Zero values fall
// back to server defaults.
type ListOptions struct {
	Page     int
	PerPage  int
	SortBy   string
	SortDir  string
	Statuses []string
}

// ChartOptions bounds the activity chart query. Zero From/To default to the
// server's trailing window.
type ChartOptions struct {
	From   time.Time
	To     time.Time
	Bucket time.Duration
}

func (c *Client) CreateQueue(ctx context.Context, queue string) error {
	return c.do(ctx, http.MethodPut, c.queuePath(queue, ""), nil, nil)
}

func (c *Client) DropQueue(ctx context.Context, queue string) (bool, error) {
	var out struct {
		Dropped bool `json:"dropped"`
	}
	err := c.do(ctx, http.MethodDelete, c.queuePath(queue, ""), nil, &out)
	return out.Dropped, err
}

func (c *Client) QueueExists(ctx context.Context, queue string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := c.do(ctx, http.MethodGet, c.queuePath(queue, "/exists"), nil, &out)
	return out.Exists, err
}

func (c *Client) PurgeQueue(ctx context.Context, queue string) (int, error) {
	var out struct {
		Purged int `json:"purged"`
	}
	err := c.do(ctx, http.MethodPost, c.queuePath(queue, "/purge"), nil, &out)
	return out.Purged, err
}

func (c *Client) ListQueues(ctx context.Context) ([]models.QueueRecord, error) {
	var out struct {
		Queues []models.QueueRecord `json:"queues"`
	}
	err := c.do(ctx, http.MethodGet, "/api/queues", nil, &out)
	return out.Queues, err
}

// Enqueue inserts a job and returns its id. payload must be valid JSON.
func (c *Client) Enqueue(ctx context.Context, queue string, payload json.RawMessage, opts EnqueueOptions) (string, error) {
	req := map[string]any{
		"job":      payload,
		"priority": opts.Priority,
	}
	if len(opts.Headers) > 0 {
		req["headers"] = opts.Headers
	}
	if opts.StaleAfter > 0 {
		req["stale_after"] = opts.StaleAfter.String()
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	err := c.do(ctx, http.MethodPost, c.queuePath(queue, "/jobs"), req, &out)
	return out.JobID, err
}

// Dequeue claims the best pending job, or returns (nil, nil) when the queue
// has none.
func (c *Client) Dequeue(ctx context.Context, queue string) (*models.Job, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.queuePath(queue, "/dequeue"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}
	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func (c *Client) Ack(ctx context.Context, queue, jobID string) (bool, error) {
	var out struct {
		Acked bool `json:"acked"`
	}
	err := c.do(ctx, http.MethodPost, c.jobPath(queue, jobID, "/ack"), nil, &out)
	return out.Acked, err
}

func (c *Client) Nack(ctx context.Context, queue, jobID string) (bool, error) {
	var out struct {
		Nacked bool `json:"nacked"`
	}
	err := c.do(ctx, http.MethodPost, c.jobPath(queue, jobID, "/nack"), nil, &out)
	return out.Nacked, err
}

func (c *Client) DeleteJob(ctx context.Context, queue, jobID string) (bool, error) {
	var out struct {
		Deleted bool `json:"deleted"`
	}
	err := c.do(ctx, http.MethodDelete, c.jobPath(queue, jobID, ""), nil, &out)
	return out.Deleted, err
}

func (c *Client) MarkStaleJobs(ctx context.Context, queue string) ([]string, error) {
	var out struct {
		Staled []string `json:"staled"`
	}
	err := c.do(ctx, http.MethodPost, c.queuePath(queue, "/stale"), nil, &out)
	return out.Staled, err
}

func (c *Client) GetJob(ctx context.Context, queue, jobID string) (models.Job, error) {
	var job models.Job
	err := c.do(ctx, http.MethodGet, c.jobPath(queue, jobID, ""), nil, &job)
	return job, err
}

func (c *Client) ListJobs(ctx context.Context, queue string, opts ListOptions) (models.JobList, error) {
	vals := url.Values{}
	if opts.Page > 0 {
		vals.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PerPage > 0 {
		vals.Set("per_page", strconv.Itoa(opts.PerPage))
	}
	if opts.SortBy != "" {
		vals.Set("sort_by", opts.SortBy)
	}
	if opts.SortDir != "" {
		vals.Set("sort_dir", opts.SortDir)
	}
	if len(opts.Statuses) > 0 {
		vals.Set("status", strings.Join(opts.Statuses, ","))
	}
	path := c.queuePath(queue, "/jobs")
	if enc := vals.Encode(); enc != "" {
		path += "?" + enc
	}
	var out models.JobList
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) Metrics(ctx context.Context, queue string) (models.MetricsSnapshot, error) {
	var out models.MetricsSnapshot
	err := c.do(ctx, http.MethodGet, c.queuePath(queue, "/stats"), nil, &out)
	return out, err
}

func (c *Client) MetricsAll(ctx context.Context) ([]models.MetricsSnapshot, error) {
	var out struct {
		Metrics []models.MetricsSnapshot `json:"metrics"`
	}
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &out)
	return out.Metrics, err
}

func (c *Client) MetricsTotal(ctx context.Context) (models.TotalSnapshot, error) {
	var out models.TotalSnapshot
	err := c.do(ctx, http.MethodGet, "/api/stats/total", nil, &out)
	return out, err
}

func (c *Client) JobsChart(ctx context.Context, queue string, opts ChartOptions) ([]models.ChartPoint, error) {
	vals := url.Values{}
	if !opts.From.IsZero() {
		vals.Set("from", opts.From.Format(time.RFC3339))
	}
	if !opts.To.IsZero() {
		vals.Set("to", opts.To.Format(time.RFC3339))
	}
	if opts.Bucket > 0 {
		vals.Set("bucket", opts.Bucket.String())
	}
	path := c.queuePath(queue, "/chart")
	if enc := vals.Encode(); enc != "" {
		path += "?" + enc
	}
	var out struct {
		Points []models.ChartPoint `json:"points"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Points, err
}

func (c *Client) queuePath(queue, suffix string) string {
	return "/api/queues/" + url.PathEscape(queue) + suffix
}

func (c *Client) jobPath(queue, jobID, suffix string) string {
	return c.queuePath(queue, "/jobs/"+url.PathEscape(jobID)+suffix)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
