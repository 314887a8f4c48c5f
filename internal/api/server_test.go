package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/radek-baczynski/pgjq/internal/config"
	"github.com/radek-baczynski/pgjq/internal/models"
	"github.com/radek-baczynski/pgjq/internal/store"
)

// stubEngine records calls and returns canned results.
type stubEngine struct {
	job        *models.Job
	enqueueID  string
	lastQueue  string
	lastParams store.ListParams
	err        error
}

func (s *stubEngine) CreateQueue(_ context.Context, name string) error {
	s.lastQueue = name
	return s.err
}

func (s *stubEngine) DropQueue(_ context.Context, name string) (bool, error) {
	s.lastQueue = name
	return true, s.err
}

func (s *stubEngine) QueueExists(context.Context, string) (bool, error) { return true, nil }

func (s *stubEngine) ListQueues(context.Context) ([]models.QueueRecord, error) { return nil, nil }

func (s *stubEngine) Enqueue(_ context.Context, queue string, _ store.EnqueueParams) (string, error) {
	s.lastQueue = queue
	return s.enqueueID, s.err
}

func (s *stubEngine) Dequeue(_ context.Context, queue string) (*models.Job, error) {
	s.lastQueue = queue
	return s.job, s.err
}

func (s *stubEngine) Ack(context.Context, string, string) (bool, error) { return true, nil }

func (s *stubEngine) Nack(context.Context, string, string) (bool, error) { return false, nil }

func (s *stubEngine) DeleteJob(context.Context, string, string) (bool, error) { return true, nil }

func (s *stubEngine) PurgeQueue(context.Context, string) (int, error) { return 3, nil }

func (s *stubEngine) GetJob(_ context.Context, queue, jobID string) (models.Job, error) {
	if s.err != nil {
		return models.Job{}, s.err
	}
	return *s.job, nil
}

func (s *stubEngine) ListJobs(_ context.Context, queue string, params store.ListParams) (models.JobList, error) {
	s.lastQueue = queue
	s.lastParams = params
	return models.JobList{Jobs: []models.Job{}}, s.err
}

func (s *stubEngine) MarkStaleJobs(context.Context, string) ([]string, error) {
	return []string{"abcdefghij"}, nil
}

func (s *stubEngine) CheckStaleJobs(context.Context) (map[string][]string, error) {
	return nil, nil
}

func (s *stubEngine) Metrics(_ context.Context, queue string) (models.MetricsSnapshot, error) {
	return models.MetricsSnapshot{QueueName: queue}, s.err
}

func (s *stubEngine) MetricsAll(context.Context) ([]models.MetricsSnapshot, error) {
	return nil, nil
}

func (s *stubEngine) MetricsTotal(context.Context) (models.TotalSnapshot, error) {
	return models.TotalSnapshot{TotalQueues: 2}, nil
}

func (s *stubEngine) JobsChart(context.Context, string, time.Time, time.Time, time.Duration) ([]models.ChartPoint, error) {
	return nil, nil
}

func newTestServer(engine Engine) *httptest.Server {
	srv := New(config.Config{}, engine, nil)
	return httptest.NewServer(srv.Router())
}

func TestEnqueueRejectsBadStaleAfter(t *testing.T) {
	ts := newTestServer(&stubEngine{enqueueID: "abcdefghij"})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/queues/orders/jobs", "application/json",
		strings.NewReader(`{"job": {"a": 1}, "stale_after": "soon"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEnqueueReturnsJobID(t *testing.T) {
	engine := &stubEngine{enqueueID: "abcdefghij"}
	ts := newTestServer(engine)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/queues/orders/jobs", "application/json",
		strings.NewReader(`{"job": {"a": 1}, "stale_after": "2m", "priority": 3}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.JobID != "abcdefghij" {
		t.Fatalf("job_id = %q", out.JobID)
	}
	if engine.lastQueue != "orders" {
		t.Fatalf("engine saw queue %q, want orders", engine.lastQueue)
	}
}

func TestDequeueEmptyIs204(t *testing.T) {
	ts := newTestServer(&stubEngine{job: nil})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/queues/orders/dequeue", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestDequeueReturnsJob(t *testing.T) {
	job := &models.Job{
		JobID:      "abcdefghij",
		Status:     models.StatusActive,
		ReadCt:     1,
		Payload:    json.RawMessage(`{"a": 1}`),
		StaleAfter: time.Minute,
	}
	ts := newTestServer(&stubEngine{job: job})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/queues/orders/dequeue", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got models.Job
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.JobID != job.JobID || got.Status != models.StatusActive || string(got.Payload) != `{"a": 1}` {
		t.Fatalf("unexpected job: %+v", got)
	}
}

func TestListJobsPassesParams(t *testing.T) {
	engine := &stubEngine{}
	ts := newTestServer(engine)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/queues/orders/jobs?page=2&per_page=10&sort_by=priority&sort_dir=DESC&status=pending,active")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	want := store.ListParams{Page: 2, PerPage: 10, SortBy: "priority", SortDir: "DESC", Statuses: []string{"pending", "active"}}
	got := engine.lastParams
	if got.Page != want.Page || got.PerPage != want.PerPage || got.SortBy != want.SortBy ||
		got.SortDir != want.SortDir || len(got.Statuses) != 2 {
		t.Fatalf("engine saw %+v, want %+v", got, want)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&store.ValidationError{Msg: "bad input"}, http.StatusBadRequest},
		{store.ErrQueueNotFound, http.StatusNotFound},
		{store.ErrJobNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		job := models.Job{JobID: "abcdefghij"}
		ts := newTestServer(&stubEngine{err: tc.err, job: &job})
		resp, err := http.Get(ts.URL + "/api/queues/orders/jobs/abcdefghij")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		ts.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("error %v mapped to %d, want %d", tc.err, resp.StatusCode, tc.want)
		}
	}
}
