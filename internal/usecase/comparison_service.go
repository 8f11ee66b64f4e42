package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/pricepulse/backend/internal/domain"
)

// ComparisonServiceConfig holds configuration for the comparison service
type ComparisonServiceConfig struct {
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	Sequential     bool
	Retry          RetryConfig
	Recorder       Recorder
	DebugQueries   bool
}

// ComparisonService fans a query out to every site and merges the outcomes
type ComparisonService struct {
	scrapers       []domain.ProductSearcher
	catalog        []domain.ProductSearcher
	cache          domain.CacheRepository
	retrier        *Retrier
	preprocessor   *QueryPreprocessor
	recorder       Recorder
	cacheTTL       time.Duration
	requestTimeout time.Duration
	sequential     bool
}

// NewComparisonService creates a comparison service. cache may be nil to disable
// result caching; catalog may be empty when no site API is configured.
func NewComparisonService(
	scrapers []domain.ProductSearcher,
	catalog []domain.ProductSearcher,
	cache domain.CacheRepository,
	config ComparisonServiceConfig,
) *ComparisonService {
	recorder := config.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 10 * time.Minute
	}

	requestTimeout := config.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = 90 * time.Second
	}

	return &ComparisonService{
		scrapers:       scrapers,
		catalog:        catalog,
		cache:          cache,
		retrier:        NewRetrier(config.Retry, recorder),
		preprocessor:   NewQueryPreprocessor(config.DebugQueries),
		recorder:       recorder,
		cacheTTL:       cacheTTL,
		requestTimeout: requestTimeout,
		sequential:     config.Sequential,
	}
}

// availabilityReporter is implemented by searchers that may be present but
// unconfigured. Searchers without it are always available.
type availabilityReporter interface {
	Available() bool
}

// APIAvailable reports whether at least one site has a catalog API configured
func (s *ComparisonService) APIAvailable() bool {
	for _, searcher := range s.catalog {
		if r, ok := searcher.(availabilityReporter); !ok || r.Available() {
			return true
		}
	}
	return false
}

// ResolveMethod returns the method that will actually serve a request.
// Anything other than an available "api" is served by scraping.
func (s *ComparisonService) ResolveMethod(method string) string {
	if method == domain.MethodAPI && s.APIAvailable() {
		return domain.MethodAPI
	}
	return domain.MethodScrape
}

// Compare searches all sites for query. When every site fails the partial
// comparison is returned together with a *domain.AllFailedError.
// Flow: clean query -> check cache -> search sites -> cache if any succeeded -> return
func (s *ComparisonService) Compare(ctx context.Context, query, method string) (*domain.Comparison, error) {
	query = s.preprocessor.Clean(query)
	if query == "" {
		return nil, domain.ErrInvalidQuery
	}

	method = s.ResolveMethod(method)
	cacheKey := s.preprocessor.CacheKey(method, query)
	logger := log.With().Str("component", "compare").Str("method", method).Str("query", query).Logger()

	if cached, ok := s.getFromCache(ctx, cacheKey); ok {
		logger.Debug().Msg("Serving comparison from cache")
		cached.Method = method
		s.recorder.ObserveCompare(method, "cache_hit")
		return cached, nil
	}

	searchers := s.scrapers
	if method == domain.MethodAPI {
		searchers = s.catalog
	}

	start := time.Now()
	comparison := &domain.Comparison{
		Method:  method,
		Results: s.searchAll(ctx, searchers, query),
	}

	if comparison.AllFailed() {
		logger.Warn().Dur("elapsed", time.Since(start)).Msg("All sites failed")
		s.recorder.ObserveCompare(method, "all_failed")
		return comparison, domain.NewAllFailedError(method)
	}

	logger.Info().
		Dur("elapsed", time.Since(start)).
		Int("sites", len(comparison.Results)).
		Int("failed_sites", countFailed(comparison)).
		Msg("Comparison complete")
	s.recorder.ObserveCompare(method, "success")

	s.setInCache(ctx, cacheKey, comparison)
	return comparison, nil
}

// searchAll runs the retry wrapper for each searcher under the overall deadline.
// Each goroutine writes only its own slot.
func (s *ComparisonService) searchAll(ctx context.Context, searchers []domain.ProductSearcher, query string) []domain.SiteResult {
	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	results := make([]domain.SiteResult, len(searchers))

	if s.sequential {
		for i, searcher := range searchers {
			results[i] = domain.SiteResult{Site: searcher.Site(), Outcome: s.retrier.Do(ctx, searcher, query)}
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(searchers))
	for i, searcher := range searchers {
		g.Go(func() error {
			results[i] = domain.SiteResult{Site: searcher.Site(), Outcome: s.retrier.Do(gctx, searcher, query)}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in each Outcome

	return results
}

func countFailed(c *domain.Comparison) int {
	n := 0
	for _, r := range c.Results {
		if r.Outcome.Failed() {
			n++
		}
	}
	return n
}

// getFromCache returns a previously stored comparison
func (s *ComparisonService) getFromCache(ctx context.Context, key string) (*domain.Comparison, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			log.Warn().Str("component", "cache").Err(err).Str("key", key).Msg("Cache read failed")
		}
		return nil, false
	}

	var comparison domain.Comparison
	if err := json.Unmarshal(data, &comparison); err != nil {
		log.Warn().Str("component", "cache").Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Warn().Str("component", "cache").Err(err).Str("key", key).Msg("Cache delete failed")
		}
		return nil, false
	}
	return &comparison, true
}

// setInCache stores a comparison. Failures are logged and otherwise ignored.
func (s *ComparisonService) setInCache(ctx context.Context, key string, comparison *domain.Comparison) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(comparison)
	if err != nil {
		log.Warn().Str("component", "cache").Err(err).Msg("Failed to encode comparison for cache")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		log.Warn().Str("component", "cache").Err(err).Str("key", key).Msg("Cache write failed")
	}
}
