package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chasingmana/weather-api/internal/api"
	"github.com/chasingmana/weather-api/internal/cache"
	"github.com/chasingmana/weather-api/internal/config"
	"github.com/chasingmana/weather-api/internal/weather"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Server.LogLevel}))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Upstream.APIKey == "" {
		log.Warn("OPENWEATHERMAP_API_KEY is not set; upstream calls will be rejected")
	}

	// Redis is optional; an empty REDIS_URL disables response caching.
	responseCache, closeCache, err := cache.Open(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = closeCache() }()
	log.Info("response cache configured", "enabled", responseCache.Enabled(), "ttl", cfg.Cache.TTL)

	geocoder := weather.NewGeocodingClient(cfg.Upstream.APIKey,
		weather.WithBaseURL(cfg.Upstream.GeoBaseURL),
		weather.WithTimeout(cfg.Upstream.Timeout),
		weather.WithRateLimit(cfg.Upstream.RequestsPerSec),
	)
	defer geocoder.Close()

	provider := weather.NewWeatherClient(cfg.Upstream.APIKey,
		weather.WithBaseURL(cfg.Upstream.DataBaseURL),
		weather.WithTimeout(cfg.Upstream.Timeout),
		weather.WithRateLimit(cfg.Upstream.RequestsPerSec),
	)
	defer provider.Close()

	handlers := api.NewHandlers(geocoder, provider, responseCache, log)
	router := api.NewRouter(handlers, api.RouterOptions{
		AllowedOrigins:     cfg.Server.AllowedOrigins(),
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server shut down cleanly")
	return nil
}
