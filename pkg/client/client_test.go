package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/radek-baczynski/pgjq/internal/models"
)

// fakeServer speaks just enough of the pgjq HTTP surface for the client.
func fakeServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	mux := http.NewServeMux()

	job := models.Job{
		JobID:      "abcdefghij",
		ReadCt:     1,
		EnqueuedAt: time.Now().UTC(),
		Payload:    json.RawMessage(`{"a": 1}`),
		Status:     models.StatusActive,
		StaleAfter: time.Minute,
		Priority:   2,
	}

	record := func(r *http.Request) { paths = append(paths, r.Method+" "+r.URL.RequestURI()) }
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("PUT /api/queues/orders", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"queue_name": "orders"})
	})
	mux.HandleFunc("POST /api/queues/orders/jobs", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		var req struct {
			Job        json.RawMessage `json:"job"`
			StaleAfter string          `json:"stale_after"`
			Priority   int             `json:"priority"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if string(req.Job) != `{"a":1}` || req.StaleAfter != "2m0s" || req.Priority != 2 {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"job_id": job.JobID})
	})
	mux.HandleFunc("POST /api/queues/orders/dequeue", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, job)
	})
	mux.HandleFunc("POST /api/queues/empty/dequeue", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/queues/orders/jobs/abcdefghij/ack", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]bool{"acked": true})
	})
	mux.HandleFunc("GET /api/queues/missing/jobs/nosuchjob00", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		http.Error(w, "job does not exist", http.StatusNotFound)
	})
	mux.HandleFunc("GET /api/stats/total", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, models.TotalSnapshot{TotalQueues: 1, TotalJobs: 4})
	})

	return httptest.NewServer(mux), &paths
}

func TestClientRoundTrip(t *testing.T) {
	ts, _ := fakeServer(t)
	defer ts.Close()
	ctx := context.Background()
	c := New(ts.URL)

	if err := c.CreateQueue(ctx, "orders"); err != nil {
		t.Fatalf("create queue: %v", err)
	}

	id, err := c.Enqueue(ctx, "orders", json.RawMessage(`{"a":1}`), EnqueueOptions{
		StaleAfter: 2 * time.Minute,
		Priority:   2,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id != "abcdefghij" {
		t.Fatalf("job id = %q", id)
	}

	job, err := c.Dequeue(ctx, "orders")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job == nil || job.JobID != id || job.StaleAfter != time.Minute {
		t.Fatalf("unexpected job: %+v", job)
	}

	acked, err := c.Ack(ctx, "orders", id)
	if err != nil || !acked {
		t.Fatalf("ack = (%v, %v), want (true, nil)", acked, err)
	}

	total, err := c.MetricsTotal(ctx)
	if err != nil {
		t.Fatalf("metrics total: %v", err)
	}
	if total.TotalQueues != 1 || total.TotalJobs != 4 {
		t.Fatalf("unexpected total: %+v", total)
	}
}

func TestClientDequeueEmpty(t *testing.T) {
	ts, _ := fakeServer(t)
	defer ts.Close()

	job, err := New(ts.URL).Dequeue(context.Background(), "empty")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if job != nil {
		t.Fatalf("empty queue returned job %+v", job)
	}
}

func TestClientSurfacesServerErrors(t *testing.T) {
	ts, _ := fakeServer(t)
	defer ts.Close()

	_, err := New(ts.URL).GetJob(context.Background(), "missing", "nosuchjob00")
	if err == nil {
		t.Fatal("expected an error for a missing job")
	}
}

func TestClientListJobsQuery(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.JobList{TotalCount: 0, Jobs: []models.Job{}})
	}))
	defer ts.Close()

	_, err := New(ts.URL).ListJobs(context.Background(), "orders", ListOptions{
		Page:     2,
		PerPage:  10,
		SortBy:   "priority",
		SortDir:  "DESC",
		Statuses: []string{"pending", "active"},
	})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	want := "page=2&per_page=10&sort_by=priority&sort_dir=DESC&status=pending%2Cactive"
	if gotQuery != want {
		t.Fatalf("query = %q, want %q", gotQuery, want)
	}
}
