package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radek-baczynski/pgjq/internal/api"
	"github.com/radek-baczynski/pgjq/internal/config"
	"github.com/radek-baczynski/pgjq/internal/ratelimit"
	"github.com/radek-baczynski/pgjq/internal/store"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN,
		store.WithDefaultStaleAfter(cfg.DefaultStaleAfter),
		store.WithStaleCheckInterval(cfg.StaleCheckInterval),
	)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	// Rate limiting of enqueue is opt-in: capacity <= 0 leaves it off.
	var limiter *ratelimit.TokenBucket
	if cfg.RateLimitCapacity > 0 {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = ratelimit.NewTokenBucket(rdb, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	// Background reaper: the store throttles sweeps internally, so a tick
	// shorter than the check interval just keeps the sweep timely.
	go func() {
		ticker := time.NewTicker(cfg.ReaperTick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				marked, err := st.CheckStaleJobs(ctx)
				if err != nil {
					log.Printf("stale check: %v", err)
					continue
				}
				for queue, ids := range marked {
					log.Printf("reaper: marked %d stale job(s) in %q", len(ids), queue)
				}
			}
		}
	}()

	server := api.New(cfg, st, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	log.Printf("pgjq listening on :%s", cfg.HTTPPort)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
