package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/hranalytics/explaind/internal/background"
	"github.com/hranalytics/explaind/internal/cachestore"
	"github.com/hranalytics/explaind/internal/explain"
	"github.com/hranalytics/explaind/internal/metrics"
	"github.com/hranalytics/explaind/internal/model"
	"github.com/hranalytics/explaind/internal/server"
	"github.com/hranalytics/explaind/pkg/otel"
)

func main() {
	// Load the model artifact: fitted regressor, scaler and feature schema.
	// Resolved once here and injected into every service.
	artifactPath := getEnv("MODEL_ARTIFACT", "data/model.json")
	artifact, err := model.LoadArtifact(artifactPath)
	if err != nil {
		log.Fatalf("Failed to load model artifact %s: %v", artifactPath, err)
	}

	comps, err := artifact.Build()
	if err != nil {
		log.Fatalf("Failed to build model components: %v", err)
	}
	log.Printf("Loaded model %s with %d features (linear attribution: %v)",
		comps.Model.Version(), len(comps.Schema), comps.LinearAttribution())

	// Setup cache store
	cacheBackend := getEnv("CACHE_BACKEND", "file")
	var store cachestore.Store

	switch cacheBackend {
	case "file":
		store = cachestore.NewFileStore(getEnv("CACHE_FILE", "explain_global_cache.json"))
	case "memory":
		store, err = cachestore.NewMemoryStore()
		if err != nil {
			log.Fatalf("Failed to create memory cache store: %v", err)
		}
	case "redis":
		store, err = cachestore.NewRedisStore(
			getEnv("REDIS_ADDR", "localhost:6379"),
			getEnv("REDIS_PASSWORD", ""),
			getEnvInt("REDIS_DB", 0),
		)
		if err != nil {
			log.Fatalf("Failed to create Redis cache store: %v", err)
		}
	case "postgres":
		store, err = cachestore.NewPostgresStore(getEnv("POSTGRES_CONN", ""))
		if err != nil {
			log.Fatalf("Failed to create Postgres cache store: %v", err)
		}
	default:
		log.Fatalf("Unknown CACHE_BACKEND: %s", cacheBackend)
	}

	// Setup tracing
	var tracerShutdown func()
	if getEnv("OTEL_ENABLED", "") == "true" {
		cfg := otel.DefaultConfig("explaind")
		cfg.CollectorEndpoint = getEnv("OTEL_COLLECTOR_ENDPOINT", cfg.CollectorEndpoint)
		cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

		tp, err := otel.InitTracer(context.Background(), cfg)
		if err != nil {
			log.Fatalf("Failed to initialize tracing: %v", err)
		}
		tracerShutdown = func() {
			if err := otel.Shutdown(context.Background(), tp); err != nil {
				log.Printf("Tracer shutdown error: %v", err)
			}
		}
	}

	// Setup metrics
	m := metrics.New()

	// Services
	sampler := background.NewSampler(comps, time.Now().UnixNano())
	global := explain.NewGlobalService(comps, sampler, store, m)
	local := explain.NewLocalService(comps, sampler)
	surrogate := explain.NewSurrogateService(comps, sampler, time.Now().UnixNano())
	cf := explain.NewCounterfactualService(comps, sampler)

	// Rate limiter
	tokenRate := getEnvInt("TOKEN_RATE", 100)
	limiter := rate.NewLimiter(rate.Limit(tokenRate), tokenRate*2)

	srv := server.New(comps, global, local, surrogate, cf, m, limiter)
	srv.MetricsAuth.Enabled = getEnv("METRICS_USER", "") != ""
	srv.MetricsAuth.User = getEnv("METRICS_USER", "")
	srv.MetricsAuth.Password = getEnv("METRICS_PASS", "")

	// HTTP server
	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdown
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := store.Close(); err != nil {
		log.Printf("Error closing cache store: %v", err)
	}
	if tracerShutdown != nil {
		tracerShutdown()
	}

	log.Println("Server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
