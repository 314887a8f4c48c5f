// A reference worker: claims jobs over the HTTP API, dispatches on the
// payload's "type" field, and acks or nacks. A crashed worker needs no
// cleanup — its claimed job goes stale after its lease and is reclaimed by
// the server's reaper.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/radek-baczynski/pgjq/internal/config"
	"github.com/radek-baczynski/pgjq/internal/models"
	"github.com/radek-baczynski/pgjq/pkg/client"
)

// Handler processes one claimed job. A returned error nacks the job.
type Handler func(ctx context.Context, job models.Job) error

func main() {
	cfg := config.Load()

	queue := os.Getenv("PGJQ_QUEUE")
	if queue == "" {
		queue = "default"
	}
	workerID := os.Getenv("WORKER_ID")
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	c := client.New(cfg.ServerURL)
	if err := c.CreateQueue(ctx, queue); err != nil {
		log.Fatalf("create queue %q: %v", queue, err)
	}

	handlers := map[string]Handler{
		"echo":  handleEcho,
		"sleep": handleSleep,
	}

	log.Printf("%s polling %q on %s", workerID, queue, cfg.ServerURL)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := c.Dequeue(ctx, queue)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("dequeue: %v", err)
			sleep(ctx, cfg.WorkerPollInterval)
			continue
		}
		if job == nil {
			sleep(ctx, cfg.WorkerPollInterval)
			continue
		}

		if err := run(ctx, handlers, *job); err != nil {
			log.Printf("job %s failed: %v", job.JobID, err)
			if _, err := c.Nack(ctx, queue, job.JobID); err != nil {
				log.Printf("nack %s: %v", job.JobID, err)
			}
			continue
		}
		if _, err := c.Ack(ctx, queue, job.JobID); err != nil {
			log.Printf("ack %s: %v", job.JobID, err)
		}
	}
}

func run(ctx context.Context, handlers map[string]Handler, job models.Job) error {
	var payload struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	handler, ok := handlers[payload.Type]
	if !ok {
		return fmt.Errorf("no handler for type %q", payload.Type)
	}
	return handler(ctx, job)
}

func handleEcho(_ context.Context, job models.Job) error {
	log.Printf("echo %s: %s", job.JobID, job.Payload)
	return nil
}

func handleSleep(ctx context.Context, job models.Job) error {
	var payload struct {
		DurationMs int `json:"duration_ms"`
	}
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return err
	}
	sleep(ctx, time.Duration(payload.DurationMs)*time.Millisecond)
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
