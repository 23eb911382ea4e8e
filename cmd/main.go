package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/mstgnz/gopos/handler"
	"github.com/mstgnz/gopos/infra/config"
	"github.com/mstgnz/gopos/infra/logger"
	"github.com/mstgnz/gopos/infra/metrics"
	"github.com/mstgnz/gopos/infra/middle"
	"github.com/mstgnz/gopos/infra/opensearch"
	"github.com/mstgnz/gopos/infra/session"
	"github.com/mstgnz/gopos/infra/store"
	"github.com/mstgnz/gopos/infra/validate"
	"github.com/mstgnz/gopos/provider"
	"github.com/mstgnz/gopos/provider/threed"
	"github.com/mstgnz/gopos/router"
	v1 "github.com/mstgnz/gopos/router/v1"
	"github.com/mstgnz/gopos/service"
)

func main() {
	// .env is optional; the environment wins
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Load Env Error: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config Error: %v", err)
	}
	validate.CustomValidate()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gateways := provider.DefaultRegistry.GetGatewayNames()

	// OpenSearch audit log and system log sink
	var audit *opensearch.AuditLogger
	osClient, err := opensearch.NewClient(ctx, cfg, gateways...)
	if err != nil {
		log.Printf("Failed to initialize OpenSearch client: %v", err)
		log.Println("Continuing without OpenSearch logging...")
		logger.InitGlobalLogger(nil)
	} else {
		audit = opensearch.NewAuditLogger(osClient)
		if osClient.IsEnabled() {
			logger.InitGlobalLogger(audit)
		} else {
			logger.InitGlobalLogger(nil)
		}
	}

	accounts, err := store.NewSQLiteAccountStore(cfg.SQLitePath)
	if err != nil {
		logger.Fatal("Failed to open account store", err)
	}
	defer accounts.Close()

	// Redis shares sessions and rate limits across replicas; without it
	// both stay in process memory.
	var (
		sessions    threed.SessionStore
		limiter     middle.Limiter
		pingSession handler.Pinger
	)
	window := time.Minute
	if cfg.RedisAddr != "" {
		rdb := session.NewRedisClient(cfg)
		defer rdb.Close()
		sessions = session.NewRedisStore(rdb, cfg.SessionTTL)
		limiter = middle.NewRedisRateLimiter(rdb, cfg.RateLimitPerMinute, window)
		pingSession = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("Redis session store enabled", logger.LogContext{Fields: map[string]any{"addr": cfg.RedisAddr}})
	} else {
		sessions = threed.NewMemoryStore(cfg.SessionTTL)
		limiter = middle.NewRateLimiter(ctx, cfg.RateLimitPerMinute, window)
	}

	transport := metrics.InstrumentTransport(provider.NewHTTPTransport(
		provider.NewGatewayHTTPClient(provider.CreateHTTPClientConfig(cfg.IsProduction(), cfg.GatewayTimeout)),
	))

	cache := provider.NewAccountCache(cfg.AccountCacheSize, cfg.AccountCacheTTL)
	sweep := cfg.AccountCacheTTL
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cache.Cleanup()
			}
		}
	}()

	opts := service.Options{
		Registry:     provider.DefaultRegistry,
		Transport:    transport,
		Accounts:     accounts,
		Sessions:     sessions,
		Cache:        cache,
		CallbackBase: cfg.CallbackBase,
	}
	if audit != nil {
		opts.Audit = audit
	}
	paymentService, err := service.NewPaymentService(opts)
	if err != nil {
		logger.Fatal("Failed to create payment service", err)
	}

	handlers := v1.Handlers{
		Payment: handler.NewPaymentHandler(paymentService, config.App().Validator, cfg.GatewayTimeout),
		Account: handler.NewAccountHandler(paymentService),
	}
	if audit != nil {
		handlers.Logs = handler.NewLogsHandler(audit)
	}

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(metrics.Middleware)

	// Security Middleware
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.IPWhitelistMiddleware(cfg.IPWhitelist))
	r.Use(middle.RequestValidationMiddleware())

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With", middle.MerchantHeader},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           300, // Preflight cache time (second)
	}))

	router.Routes(r, router.Config{
		APIKey:   cfg.APIKey,
		Limiter:  limiter,
		Handlers: handlers,
		Health: handler.NewHealthHandler(handler.HealthOptions{
			Accounts:    accounts,
			Sessions:    pingSession,
			CacheStats:  paymentService.CacheStats,
			Gateways:    paymentService.Gateways,
			AuditOn:     osClient != nil && osClient.IsEnabled(),
			Environment: cfg.Environment,
		}),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.GatewayTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", err)
		}
	}()

	logger.Info("API is running", logger.LogContext{Fields: map[string]any{
		"port":     cfg.Port,
		"gateways": gateways,
	}})

	// Block until a signal is received
	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", err)
	}
}
