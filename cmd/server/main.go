package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pricepulse/backend/config"
	httpDelivery "github.com/pricepulse/backend/internal/delivery/http"
	"github.com/pricepulse/backend/internal/domain"
	"github.com/pricepulse/backend/internal/infrastructure/cache"
	"github.com/pricepulse/backend/internal/infrastructure/catalog"
	"github.com/pricepulse/backend/internal/infrastructure/metrics"
	"github.com/pricepulse/backend/internal/infrastructure/scraper"
	"github.com/pricepulse/backend/internal/usecase"
)

func main() {
	// .env.local takes precedence over .env; real environment variables win over both
	if err := config.LoadEnvFiles(".env.local", ".env"); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env files")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg)
	development := cfg.Server.Environment == "development"

	// Initialize infrastructure dependencies
	m := metrics.New()

	scrapeConfig := scraper.Config{
		HTTPTimeout:   cfg.Scrape.HTTPTimeout,
		MinDelay:      cfg.Scrape.MinDelay,
		MaxDelay:      cfg.Scrape.MaxDelay,
		MaxContainers: cfg.Scrape.MaxContainers,
		MaxProducts:   cfg.Scrape.MaxProducts,
	}
	var scrapers []domain.ProductSearcher
	for _, profile := range scraper.DefaultProfiles() {
		scrapers = append(scrapers, scraper.New(profile, scrapeConfig))
	}

	catalogSearchers := catalog.NewSearchers(catalogEndpoints(cfg), catalog.ClientConfig{
		Timeout:       cfg.Catalog.Timeout,
		RatePerSecond: cfg.Catalog.RatePerSecond,
		MaxProducts:   cfg.Scrape.MaxProducts,
	})
	if development {
		for _, s := range catalogSearchers {
			if client, ok := s.(*catalog.Client); ok {
				client.SetDebug(true)
			}
		}
	}

	resultCache, closeCache := buildCache(cfg)
	defer closeCache.Close()

	// Initialize usecase layer
	comparisonService := usecase.NewComparisonService(
		scrapers,
		catalogSearchers,
		resultCache,
		usecase.ComparisonServiceConfig{
			CacheTTL:       cfg.Cache.TTL,
			RequestTimeout: cfg.Scrape.RequestTimeout,
			Sequential:     !cfg.Scrape.Parallel,
			Retry: usecase.RetryConfig{
				MaxRetries:  cfg.Scrape.MaxRetries,
				BackoffBase: cfg.Scrape.BackoffBase,
			},
			Recorder:     m,
			DebugQueries: development,
		},
	)

	handler := httpDelivery.NewHandler(comparisonService, cfg.Frontend.IndexPath)
	router := httpDelivery.SetupRouter(cfg, handler, m.Handler())

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Scrape.RequestTimeout + 10*time.Second,
	}

	// Channel to listen for termination signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		<-stop
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		close(done)
	}()

	logBanner(cfg, comparisonService.APIAvailable())

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	<-done
	log.Info().Msg("Server stopped")
}

// setupLogging configures the global zerolog logger
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Use console writer in development
	if cfg.Server.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		return
	}

	log.Logger = zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "pricepulse").
		Logger()
}

func catalogEndpoints(cfg *config.Config) []catalog.Endpoint {
	return []catalog.Endpoint{
		{Site: domain.SiteFlipkart, BaseURL: cfg.Catalog.Flipkart.BaseURL, Token: cfg.Catalog.Flipkart.Token, HomeURL: "https://www.flipkart.com"},
		{Site: domain.SiteAmazon, BaseURL: cfg.Catalog.Amazon.BaseURL, Token: cfg.Catalog.Amazon.Token, HomeURL: "https://www.amazon.in"},
		{Site: domain.SiteRelianceDigital, BaseURL: cfg.Catalog.Reliance.BaseURL, Token: cfg.Catalog.Reliance.Token, HomeURL: "https://www.reliancedigital.in"},
	}
}

// buildCache returns the result cache, or nil when caching is disabled.
// An unreachable Redis falls back to the in-memory cache.
func buildCache(cfg *config.Config) (domain.CacheRepository, io.Closer) {
	if !cfg.Cache.Enabled {
		log.Info().Msg("Result cache disabled")
		return nil, closerFunc(func() error { return nil })
	}

	if cfg.Cache.Type == "redis" {
		redisCache, err := cache.NewRedisCache(context.Background(), cfg.Cache.RedisURL)
		if err == nil {
			log.Info().Dur("ttl", cfg.Cache.TTL).Msg("Result cache: redis")
			return redisCache, redisCache
		}
		log.Warn().Err(err).Msg("Redis unavailable, falling back to in-memory cache")
	}

	memoryCache := cache.NewMemoryCache()
	log.Info().Dur("ttl", cfg.Cache.TTL).Msg("Result cache: memory")
	return memoryCache, memoryCache
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func logBanner(cfg *config.Config, apiAvailable bool) {
	apiSupport := "Not available (using web scraping)"
	if apiAvailable {
		apiSupport = "Available"
	}

	log.Info().Msg("=========================================")
	log.Info().Msg("  PricePulse - Price Comparison App")
	log.Info().Msg("=========================================")
	log.Info().
		Str("environment", cfg.Server.Environment).
		Str("url", fmt.Sprintf("http://localhost:%s", cfg.Server.Port)).
		Str("api_support", apiSupport).
		Bool("parallel", cfg.Scrape.Parallel).
		Int("max_retries", cfg.Scrape.MaxRetries).
		Msg("Starting server")
}
