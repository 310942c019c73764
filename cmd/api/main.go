package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/abtime"

	"academics/internal/auth"
	"academics/internal/blocking"
	"academics/internal/config"
	"academics/internal/handler"
	"academics/internal/httpmiddleware"
	"academics/internal/ledger"
	"academics/internal/metrics"
	"academics/internal/principal"
	"academics/internal/queue"
	"academics/internal/store"
	"academics/internal/worker"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := store.Migrate(db); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword)
	defer redisClient.Close()

	clock := abtime.NewRealTime()
	m := metrics.New(prometheus.DefaultRegisterer)

	var revocations auth.Revocations
	if cfg.RevocationBackend == "redis" {
		revocations = auth.NewRedisRevocations(redisClient.Client, "records:revoked:", clock.Now)
	} else {
		revocations = auth.NewMemoryRevocations()
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.AuditQueueKey)
	}

	hasher := auth.NewHasher(cfg.BcryptCost)
	principals := principal.NewService(db, hasher, clock, cfg.Location())
	seeded, err := principals.EnsureSuperAdmin(ctx, principal.SuperAdminSeed{
		ID:    cfg.SeedSuperAdminID,
		Name:  cfg.SeedSuperAdminName,
		Email: cfg.SeedSuperAdminEmail,
		DOB:   cfg.SeedSuperAdminDOB,
	})
	if err != nil {
		return err
	}
	if seeded {
		log.Printf("seeded super admin %s", cfg.SeedSuperAdminID)
	}

	var assertions auth.AssertionVerifier
	federated, err := auth.NewJWTAssertionVerifier(auth.FederatedConfig{
		Issuer:        cfg.FederatedIssuer,
		Audience:      cfg.FederatedAudience,
		PublicKeyFile: cfg.FederatedKeyFile,
		SharedSecret:  cfg.FederatedSecret,
	}, clock)
	if err != nil {
		return err
	}
	if federated != nil {
		assertions = federated
		log.Println("federated login enabled")
	}

	sessions := auth.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.SessionTTL, revocations, clock)
	authority := blocking.NewAuthority(db, clock, q, m)
	api := &handler.API{
		Auth:         auth.NewService(auth.NewVerifier(principals.Repository(), hasher, assertions), sessions, m),
		Guard:        auth.NewGuard(sessions, principals.Repository(), m),
		Principals:   principals,
		Blocking:     authority,
		Ledger:       ledger.NewService(db, clock, cfg.Location(), m),
		LoginLimiter: httpmiddleware.NewLimiter(cfg.LoginRateLimit),
	}

	// No separate worker can read an in-process queue, so the API runs the
	// background loops itself.
	if cfg.QueueBackend == "memory" {
		sup := worker.NewSupervisor("records api background",
			worker.AuditConsumer{Queue: q, Metrics: m},
			worker.UnblockSweeper{Releaser: authority, Interval: cfg.UnblockSweep},
		)
		sup.ServeBackground(ctx)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.NewLimiter(cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	checks := map[string]func(*gin.Context) bool{
		"db": func(c *gin.Context) bool { return db.Healthy(c.Request.Context()) },
	}
	if cfg.RevocationBackend == "redis" || cfg.QueueBackend != "memory" {
		checks["redis"] = func(c *gin.Context) bool { return redisClient.Healthy(c.Request.Context()) }
	}
	r.GET("/healthz", handler.Health(checks))
	api.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}
	log.Println("Server exited")
	return nil
}
