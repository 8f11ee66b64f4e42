package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricepulse/backend/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	mu       sync.Mutex
	data     map[string][]byte
	getError    error
	setError    error
	setCalls    int
	deleteCalls int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{data: make(map[string][]byte)}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getError != nil {
		return nil, m.getError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	delete(m.data, key)
	return nil
}

type siteStubs struct {
	flipkart *stubSearcher
	amazon   *stubSearcher
	reliance *stubSearcher
}

func (s siteStubs) searchers() []domain.ProductSearcher {
	return []domain.ProductSearcher{s.flipkart, s.amazon, s.reliance}
}

func (s siteStubs) totalCalls() int {
	return s.flipkart.Calls() + s.amazon.Calls() + s.reliance.Calls()
}

func succeedingSites() siteStubs {
	return siteStubs{
		flipkart: newStubSearcher(domain.SiteFlipkart, stubResponse{products: laptop("Flipkart")}),
		amazon:   newStubSearcher(domain.SiteAmazon, stubResponse{products: laptop("Amazon")}),
		reliance: newStubSearcher(domain.SiteRelianceDigital, stubResponse{products: laptop("Reliance")}),
	}
}

func failingSites() siteStubs {
	return siteStubs{
		flipkart: newStubSearcher(domain.SiteFlipkart, stubResponse{err: timeoutErr(domain.SiteFlipkart)}),
		amazon:   newStubSearcher(domain.SiteAmazon, stubResponse{err: timeoutErr(domain.SiteAmazon)}),
		reliance: newStubSearcher(domain.SiteRelianceDigital, stubResponse{err: timeoutErr(domain.SiteRelianceDigital)}),
	}
}

// unconfiguredCatalog stands in for a site whose catalog API has no endpoint
type unconfiguredCatalog struct {
	*stubSearcher
}

func (unconfiguredCatalog) Available() bool { return false }

func newUnconfiguredCatalog(site string) unconfiguredCatalog {
	err := domain.NewScrapeError(domain.KindUnavailable, site, site+" API error: catalog API not configured", domain.ErrCatalogUnavailable)
	return unconfiguredCatalog{newStubSearcher(site, stubResponse{err: err})}
}

func testServiceConfig(sleeper *sleepRecorder) ComparisonServiceConfig {
	return ComparisonServiceConfig{
		RequestTimeout: 5 * time.Second,
		Retry:          RetryConfig{MaxRetries: 2, BackoffBase: 2 * time.Second, Sleep: sleeper.Sleep},
	}
}

func TestNewComparisonService(t *testing.T) {
	t.Run("creates service with default values", func(t *testing.T) {
		svc := NewComparisonService(nil, nil, nil, ComparisonServiceConfig{})
		assert.Equal(t, 10*time.Minute, svc.cacheTTL)
		assert.Equal(t, 90*time.Second, svc.requestTimeout)
		assert.False(t, svc.sequential)
		assert.False(t, svc.APIAvailable())
	})

	t.Run("creates service with custom values", func(t *testing.T) {
		svc := NewComparisonService(nil, succeedingSites().searchers(), nil, ComparisonServiceConfig{
			CacheTTL:       time.Hour,
			RequestTimeout: 30 * time.Second,
			Sequential:     true,
		})
		assert.Equal(t, time.Hour, svc.cacheTTL)
		assert.Equal(t, 30*time.Second, svc.requestTimeout)
		assert.True(t, svc.sequential)
		assert.True(t, svc.APIAvailable())
	})
}

func TestResolveMethod(t *testing.T) {
	withAPI := NewComparisonService(nil, succeedingSites().searchers(), nil, ComparisonServiceConfig{})
	withoutAPI := NewComparisonService(nil, nil, nil, ComparisonServiceConfig{})

	assert.Equal(t, domain.MethodAPI, withAPI.ResolveMethod("api"))
	assert.Equal(t, domain.MethodScrape, withAPI.ResolveMethod("scrape"))
	assert.Equal(t, domain.MethodScrape, withAPI.ResolveMethod(""))
	assert.Equal(t, domain.MethodScrape, withAPI.ResolveMethod("bogus"))
	assert.Equal(t, domain.MethodScrape, withoutAPI.ResolveMethod("api"))
}

func TestCompare(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects blank query without searching", func(t *testing.T) {
		sites := succeedingSites()
		svc := NewComparisonService(sites.searchers(), nil, nil, testServiceConfig(&sleepRecorder{}))

		for _, q := range []string{"", "   ", "\t\n"} {
			_, err := svc.Compare(ctx, q, "scrape")
			assert.ErrorIs(t, err, domain.ErrInvalidQuery)
		}
		assert.Equal(t, 0, sites.totalCalls())
	})

	t.Run("all sites succeed in site order", func(t *testing.T) {
		sites := succeedingSites()
		sites.flipkart.delay = 30 * time.Millisecond
		sites.amazon.delay = 15 * time.Millisecond
		recorder := &fakeRecorder{}
		config := testServiceConfig(&sleepRecorder{})
		config.Recorder = recorder
		svc := NewComparisonService(sites.searchers(), nil, nil, config)

		comparison, err := svc.Compare(ctx, "  laptop ", "scrape")

		require.NoError(t, err)
		require.Len(t, comparison.Results, 3)
		assert.Equal(t, domain.MethodScrape, comparison.Method)
		assert.Equal(t, domain.SiteFlipkart, comparison.Results[0].Site)
		assert.Equal(t, domain.SiteAmazon, comparison.Results[1].Site)
		assert.Equal(t, domain.SiteRelianceDigital, comparison.Results[2].Site)
		for _, r := range comparison.Results {
			assert.False(t, r.Outcome.Failed(), r.Site)
		}
		assert.Equal(t, []string{"scrape:success"}, recorder.compares)
	})

	t.Run("partial success keeps failed sites' errors verbatim", func(t *testing.T) {
		sites := succeedingSites()
		amazonErr := domain.NewScrapeError(domain.KindNoContainers, domain.SiteAmazon,
			"No products found on Amazon. Website structure may have changed.", nil)
		sites.amazon = newStubSearcher(domain.SiteAmazon, stubResponse{err: amazonErr})
		svc := NewComparisonService(sites.searchers(), nil, nil, testServiceConfig(&sleepRecorder{}))

		comparison, err := svc.Compare(ctx, "laptop", "scrape")

		require.NoError(t, err)
		outcome, ok := comparison.Get(domain.SiteAmazon)
		require.True(t, ok)
		assert.Same(t, amazonErr, outcome.Err)

		body, err := json.Marshal(comparison)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"Amazon":[{"error":"No products found on Amazon. Website structure may have changed."}]`)
	})

	t.Run("all sites failed returns diagnostic error", func(t *testing.T) {
		sites := failingSites()
		sleeper := &sleepRecorder{}
		svc := NewComparisonService(sites.searchers(), nil, nil, testServiceConfig(sleeper))

		comparison, err := svc.Compare(ctx, "laptop", "scrape")

		require.ErrorIs(t, err, domain.ErrAllSitesFailed)
		var allFailed *domain.AllFailedError
		require.True(t, errors.As(err, &allFailed))
		assert.Equal(t, domain.MethodScrape, allFailed.Method)
		assert.Contains(t, allFailed.Diagnostic, "SUGGESTED ACTIONS")
		require.NotNil(t, comparison)
		assert.True(t, comparison.AllFailed())
		assert.Equal(t, 9, sites.totalCalls())
		assert.Len(t, sleeper.Sleeps(), 6)
	})

	t.Run("api method uses catalog searchers", func(t *testing.T) {
		scrapers := succeedingSites()
		catalog := succeedingSites()
		svc := NewComparisonService(scrapers.searchers(), catalog.searchers(), nil, testServiceConfig(&sleepRecorder{}))

		comparison, err := svc.Compare(ctx, "laptop", "api")

		require.NoError(t, err)
		assert.Equal(t, domain.MethodAPI, comparison.Method)
		assert.Equal(t, 0, scrapers.totalCalls())
		assert.Equal(t, 3, catalog.totalCalls())
	})

	t.Run("api method without catalog falls back to scraping", func(t *testing.T) {
		scrapers := succeedingSites()
		svc := NewComparisonService(scrapers.searchers(), nil, nil, testServiceConfig(&sleepRecorder{}))

		comparison, err := svc.Compare(ctx, "laptop", "api")

		require.NoError(t, err)
		assert.Equal(t, domain.MethodScrape, comparison.Method)
		assert.Equal(t, 3, scrapers.totalCalls())
	})

	t.Run("api method reports sites without a catalog", func(t *testing.T) {
		scrapers := succeedingSites()
		flipkart := newUnconfiguredCatalog(domain.SiteFlipkart)
		amazon := newStubSearcher(domain.SiteAmazon, stubResponse{products: laptop("Amazon")})
		reliance := newUnconfiguredCatalog(domain.SiteRelianceDigital)
		sleeper := &sleepRecorder{}
		svc := NewComparisonService(scrapers.searchers(),
			[]domain.ProductSearcher{flipkart, amazon, reliance}, nil, testServiceConfig(sleeper))

		require.True(t, svc.APIAvailable())
		comparison, err := svc.Compare(ctx, "laptop", "api")

		require.NoError(t, err)
		assert.Equal(t, domain.MethodAPI, comparison.Method)
		require.Len(t, comparison.Results, 3)

		for _, site := range []string{domain.SiteFlipkart, domain.SiteRelianceDigital} {
			outcome, ok := comparison.Get(site)
			require.True(t, ok, site)
			require.NotNil(t, outcome.Err, site)
			assert.Equal(t, domain.KindUnavailable, outcome.Err.Kind)
		}
		outcome, ok := comparison.Get(domain.SiteAmazon)
		require.True(t, ok)
		assert.False(t, outcome.Failed())

		assert.Equal(t, 1, flipkart.Calls())
		assert.Equal(t, 1, reliance.Calls())
		assert.Empty(t, sleeper.Sleeps())
		assert.Equal(t, 0, scrapers.totalCalls())

		body, err := json.Marshal(comparison)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"Flipkart":[{"error":"Flipkart API error: catalog API not configured"}]`)
		assert.Contains(t, string(body), `"Reliance Digital":[{"error":`)
	})

	t.Run("api method with only unconfigured catalogs falls back to scraping", func(t *testing.T) {
		scrapers := succeedingSites()
		catalog := []domain.ProductSearcher{
			newUnconfiguredCatalog(domain.SiteFlipkart),
			newUnconfiguredCatalog(domain.SiteAmazon),
			newUnconfiguredCatalog(domain.SiteRelianceDigital),
		}
		svc := NewComparisonService(scrapers.searchers(), catalog, nil, testServiceConfig(&sleepRecorder{}))

		assert.False(t, svc.APIAvailable())
		comparison, err := svc.Compare(ctx, "laptop", "api")

		require.NoError(t, err)
		assert.Equal(t, domain.MethodScrape, comparison.Method)
		assert.Equal(t, 3, scrapers.totalCalls())
	})

	t.Run("sequential mode gives the same result", func(t *testing.T) {
		sites := succeedingSites()
		config := testServiceConfig(&sleepRecorder{})
		config.Sequential = true
		svc := NewComparisonService(sites.searchers(), nil, nil, config)

		comparison, err := svc.Compare(ctx, "laptop", "scrape")

		require.NoError(t, err)
		require.Len(t, comparison.Results, 3)
		assert.Equal(t, domain.SiteRelianceDigital, comparison.Results[2].Site)
	})
}

func TestCompare_RequestTimeout(t *testing.T) {
	sites := succeedingSites()
	sites.reliance.delay = time.Minute
	config := testServiceConfig(&sleepRecorder{})
	config.RequestTimeout = 50 * time.Millisecond
	svc := NewComparisonService(sites.searchers(), nil, nil, config)

	start := time.Now()
	comparison, err := svc.Compare(context.Background(), "laptop", "scrape")

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	outcome, _ := comparison.Get(domain.SiteRelianceDigital)
	require.True(t, outcome.Failed())
	assert.Equal(t, domain.KindTimeout, outcome.Err.Kind)
	assert.Equal(t, 1, sites.reliance.Calls())
}

func TestCompare_Cache(t *testing.T) {
	ctx := context.Background()

	t.Run("second request is served from cache", func(t *testing.T) {
		sites := succeedingSites()
		cache := NewMockCacheRepository()
		recorder := &fakeRecorder{}
		config := testServiceConfig(&sleepRecorder{})
		config.Recorder = recorder
		svc := NewComparisonService(sites.searchers(), nil, cache, config)

		first, err := svc.Compare(ctx, "Laptop", "scrape")
		require.NoError(t, err)
		second, err := svc.Compare(ctx, "laptop ", "scrape")
		require.NoError(t, err)

		assert.Equal(t, 3, sites.totalCalls())
		assert.Equal(t, first.Results, second.Results)
		assert.Equal(t, domain.MethodScrape, second.Method)
		assert.Contains(t, cache.data, "compare:scrape:laptop")
		assert.Equal(t, []string{"scrape:success", "scrape:cache_hit"}, recorder.compares)
	})

	t.Run("all-failed comparisons are not cached", func(t *testing.T) {
		cache := NewMockCacheRepository()
		svc := NewComparisonService(failingSites().searchers(), nil, cache, testServiceConfig(&sleepRecorder{}))

		_, err := svc.Compare(ctx, "laptop", "scrape")

		require.ErrorIs(t, err, domain.ErrAllSitesFailed)
		assert.Equal(t, 0, cache.setCalls)
	})

	t.Run("cache failures do not fail the request", func(t *testing.T) {
		sites := succeedingSites()
		cache := NewMockCacheRepository()
		cache.getError = domain.ErrCacheUnavailable
		cache.setError = domain.ErrCacheUnavailable
		svc := NewComparisonService(sites.searchers(), nil, cache, testServiceConfig(&sleepRecorder{}))

		comparison, err := svc.Compare(ctx, "laptop", "scrape")

		require.NoError(t, err)
		assert.Len(t, comparison.Results, 3)
		assert.Equal(t, 1, cache.setCalls)
	})

	t.Run("undecodable cache entry is evicted and replaced", func(t *testing.T) {
		sites := succeedingSites()
		cache := NewMockCacheRepository()
		cache.data["compare:scrape:laptop"] = []byte("not json")
		svc := NewComparisonService(sites.searchers(), nil, cache, testServiceConfig(&sleepRecorder{}))

		comparison, err := svc.Compare(ctx, "laptop", "scrape")

		require.NoError(t, err)
		assert.Len(t, comparison.Results, 3)
		assert.Equal(t, 3, sites.totalCalls())
		assert.Equal(t, 1, cache.deleteCalls)

		var cached domain.Comparison
		require.NoError(t, json.Unmarshal(cache.data["compare:scrape:laptop"], &cached))
		assert.Len(t, cached.Results, 3)
	})
}
