package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/abtime"

	"academics/internal/blocking"
	"academics/internal/config"
	"academics/internal/metrics"
	"academics/internal/queue"
	"academics/internal/store"
	"academics/internal/worker"
)

// Worker consumes audit events published by the API and releases accounts
// whose scheduled unblock time has passed.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	defer redisClient.Close()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory: the API consumes its own audit events, run the worker with QUEUE_BACKEND=redis")
	}
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis not reachable at %s, consumer will keep retrying", cfg.RedisAddr)
	}
	q := queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.WorkerMetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.WorkerMetricsAddr, mux); err != nil {
				log.Printf("worker metrics server: %v", err)
			}
		}()
	}

	// Releases made here go straight back onto the audit queue.
	authority := blocking.NewAuthority(db, abtime.NewRealTime(), q, m)
	sup := worker.NewSupervisor("records worker",
		worker.AuditConsumer{Queue: q, Metrics: m},
		worker.UnblockSweeper{Releaser: authority, Interval: cfg.UnblockSweep},
	)

	log.Println("worker started, waiting for audit events...")
	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker supervisor: %v", err)
	}
	log.Println("worker stopped")
}
