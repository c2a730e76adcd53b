package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"branch-distance-service/internal/adapters/alert"
	"branch-distance-service/internal/adapters/carrier"
	"branch-distance-service/internal/adapters/maps"
	"branch-distance-service/internal/adapters/store"
	"branch-distance-service/internal/api"
	"branch-distance-service/internal/config"
	"branch-distance-service/internal/platform/db"
	"branch-distance-service/internal/ports"
	"branch-distance-service/internal/services"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// main is the application composition root. It builds the configuration
// object once, wires concrete adapters (Postgres, Redis, mapping provider,
// carrier) behind ports, and starts the HTTP server.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	var alerts ports.AlertSink = alert.NopSink{}
	if cfg.AlertWebhookURL != "" {
		alerts = alert.NewWebhookSink(cfg.AlertWebhookURL)
	}

	var factStore ports.FactStore = store.NewSQLFactStore(pool, cfg.StoreTimeout)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		factStore = store.NewCachedFactStore(factStore, rdb, cfg.FactTTL)
		log.Printf("fact cache enabled addr=%s ttl=%s", cfg.RedisAddr, cfg.FactTTL)
	}

	origins := store.NewSQLOriginLookup(pool, cfg.StoreTimeout)

	distanceProvider, err := maps.NewMatrixProvider(cfg.MapsAPIKey, cfg.MapsBaseURL, cfg.ProviderBackoff, alerts)
	if err != nil {
		log.Fatal(err)
	}

	transitProvider, err := carrier.NewTimeInTransitProvider(cfg.CarrierBaseURL, cfg.CarrierAPIKey)
	if err != nil {
		log.Fatal(err)
	}

	saver := services.NewWriteBack(factStore, alerts, cfg.WriteBackBackoff)
	resolver := services.NewResolver(factStore, origins, distanceProvider, transitProvider, saver)

	router := api.NewRouter(resolver)

	// Write timeout is tuned for cold-cache resolution: a full provider
	// retry cycle can take several minutes.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      6 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server listening addr=:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	// Detached write-backs may still be persisting provider results.
	saver.Drain()
}
