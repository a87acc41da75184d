package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "substream/subtitleservice/internal/api/http"
	"substream/subtitleservice/internal/app"
	"substream/subtitleservice/internal/metrics"
	"substream/subtitleservice/internal/probe"
	"substream/subtitleservice/internal/providers/rest"
	"substream/subtitleservice/internal/search"
	"substream/subtitleservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "subtitle-search")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "subtitle-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("providerTimeout", cfg.ProviderTimeout),
		slog.Int("providerEndpoints", len(cfg.Providers)),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("providerCacheTTL", cfg.ProviderCacheTTL),
	)

	providers := make([]search.Provider, 0, len(cfg.Providers))
	for _, endpoint := range cfg.Providers {
		providers = append(providers, rest.NewProvider(rest.Config{
			Name:      endpoint.Name,
			Endpoint:  endpoint.Endpoint,
			APIKey:    endpoint.APIKey,
			UserAgent: cfg.UserAgent,
			Client: &http.Client{
				Timeout:   cfg.ProviderTimeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
		}))
	}
	if len(providers) == 0 {
		logger.Warn("no provider endpoints configured; every lookup will fail")
	}

	caches := search.NewCacheService(
		cfg.ProviderCacheTTL, cfg.NegativeCacheTTL, cfg.ResolvedCacheTTL,
		buildCacheOptions(cfg, logger)...,
	)
	caches.Open()
	defer caches.Close()

	subtitleService := search.NewService(providers, caches, search.Options{
		ProviderTimeout:     cfg.ProviderTimeout,
		GlobalConcurrency:   cfg.GlobalConcurrency,
		ProviderConcurrency: cfg.ProviderConcurrency,
		RetryAttempts:       cfg.RetryAttempts,
		RetryDelay:          cfg.RetryDelay,
		ProviderMinInterval: cfg.ProviderMinInterval,
		BreakerTTL:          cfg.BreakerTTL,
		ProviderResultCap:   cfg.ProviderResultCap,
		GlobalResultCap:     cfg.GlobalResultCap,
		UnlimitedProviders:  cfg.UnlimitedProviders,
		DisabledProviders:   cfg.DisabledProviders,
		BlockedTitles:       cfg.BlockedTitles,
		DownloadRetries:     cfg.DownloadRetries,
		DownloadRetryDelay:  cfg.DownloadRetryDelay,
		ResolveWaitTimeout:  cfg.ResolveWaitTimeout,
	})

	serverOptions := []apihttp.ServerOption{apihttp.WithLogger(logger)}
	if cfg.ProbeBinary != "" {
		serverOptions = append(serverOptions, apihttp.WithProber(probe.New(cfg.ProbeBinary)))
	}
	handler := apihttp.NewServer(subtitleService, serverOptions...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("subtitle search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Int("providers", len(providers)),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("subtitle search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildCacheOptions(cfg app.Config, logger *slog.Logger) []search.CacheOption {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	redisClient := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return []search.CacheOption{search.WithRedisContentCache(search.NewRedisContentCache(redisClient))}
}
