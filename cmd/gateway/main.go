package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/vTajae/oddsgateway/internal/audit"
	"github.com/vTajae/oddsgateway/internal/catalogue"
	"github.com/vTajae/oddsgateway/internal/config"
	"github.com/vTajae/oddsgateway/internal/handlers"
	"github.com/vTajae/oddsgateway/internal/metrics"
	"github.com/vTajae/oddsgateway/internal/publisher"
	"github.com/vTajae/oddsgateway/internal/telemetry"
)

func main() {
	cfg := config.Load()

	logLevel := telemetry.ParseLevel(cfg.LogLevel)
	if cfg.WSDebug || cfg.Trace {
		logLevel = slog.LevelDebug
	}
	telemetry.InitWithTraceFile(logLevel, cfg.TraceFile)
	telemetry.Infof("oddsgateway starting")

	cat := catalogue.NewClient(optionsBaseURL, cfg.OpticOddsAPIKey)

	auditSink, err := audit.NewSink(cfg.AuditDatabaseURL)
	if err != nil {
		telemetry.Errorf("audit sink: %v", err)
		os.Exit(1)
	}
	defer auditSink.Close()

	var redisClient *redis.Client
	if cfg.OpportunityStreamEnabled && cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			telemetry.Warnf("redis stream publisher unreachable, continuing without it: %v", err)
			redisClient = nil
		}
		cancel()
	}
	streamPublisher := publisher.NewStreamPublisher(redisClient, cfg.OpportunityStreamEnabled && redisClient != nil)

	metricsRegistry := metrics.New()

	handler := handlers.NewHandler(handlers.Deps{
		Catalogue:                 cat,
		BaseURL:                   optionsBaseURL,
		APIKey:                    cfg.OpticOddsAPIKey,
		MaxWorkers:                cfg.MaxWorkers,
		SportsbookChunkSize:       cfg.SportsbookChunkSize,
		LeagueChunkSize:           cfg.LeagueChunkSize,
		SportsbookChunkSizeSoccer: cfg.SportsbookChunkSizeSoccer,
		LeagueChunkSizeSoccer:     cfg.LeagueChunkSizeSoccer,
		DefaultOddsFormat:         cfg.OddsFormat,
		DefaultEVThreshold:        cfg.EVThresholdPercent,
		DefaultArbThreshold:       cfg.ARBThresholdPercent,
		DefaultIncludeFixtures:    cfg.IncludeFixtureUpdate,
		DefaultAllowedMarkets:     parseMarketAllowlist(cfg.ARBMarkets),
		DefaultSportsAllowlist:    cfg.SportsAllowlist,
		IngestFiltersEnabled:      cfg.IngestFilters,
		Metrics:                   metricsRegistry,
		Publisher:                 streamPublisher,
		Audit:                     auditSink,
	})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", handler.Health)
	r.Get("/readyz", handler.Ready)
	r.Handle("/metrics", handler.Metrics())
	r.Get("/stream", handler.Stream)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streaming connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		telemetry.Infof("listening on :%s", cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		telemetry.Errorf("server error: %v", err)
		os.Exit(1)
	case sig := <-shutdown:
		telemetry.Infof("received signal %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			telemetry.Warnf("graceful shutdown failed, forcing close: %v", err)
			srv.Close()
		}
	}

	telemetry.Infof("shutdown complete")
}

const optionsBaseURL = "https://api.opticodds.com/api/v3"

// parseMarketAllowlist turns ARB_MARKETS ("all", "", or a comma list) into
// the ingestion-level market allowlist: nil means unrestricted.
func parseMarketAllowlist(raw string) []string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" || trimmed == "all" || trimmed == "*" {
		return nil
	}
	var out []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}
