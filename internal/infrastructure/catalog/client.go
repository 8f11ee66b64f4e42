package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/pricepulse/backend/internal/domain"
)

// Endpoint identifies one site's partner catalog API
type Endpoint struct {
	Site    string
	BaseURL string
	Token   string
	HomeURL string
}

// Configured reports whether the endpoint can be called
func (e Endpoint) Configured() bool {
	return e.BaseURL != ""
}

// ClientConfig holds the tunables shared by catalog clients
type ClientConfig struct {
	Timeout       time.Duration
	RatePerSecond float64
	MaxAttempts   int
	MaxProducts   int
}

// Client handles communication with a site's partner catalog API
type Client struct {
	httpClient  *http.Client
	endpoint    Endpoint
	rateLimiter *rate.Limiter
	maxAttempts int
	maxProducts int
	debug       bool
}

// NewClient creates a new catalog API client
func NewClient(endpoint Endpoint, config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.MaxProducts <= 0 {
		config.MaxProducts = 3
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		endpoint:    endpoint,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), 5),
		maxAttempts: config.MaxAttempts,
		maxProducts: config.MaxProducts,
	}
}

// SetDebug enables logging of raw response bodies
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// Site returns the site this client searches
func (c *Client) Site() string {
	return c.endpoint.Site
}

// exponentialBackoff returns the wait before retrying attempt (1-based)
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// doRequest executes an HTTP GET request with proper headers
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "PricePulse/1.0")
	req.Header.Set("Accept", "application/json")
	if c.endpoint.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.endpoint.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogFailure, err)
	}
	return resp, nil
}

// Search queries the catalog API and maps the top results to products
func (c *Client) Search(ctx context.Context, query string) ([]domain.Product, error) {
	site := c.Site()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewScrapeError(domain.KindValidation, site, "Query parameter is required", domain.ErrInvalidQuery)
	}
	if !c.endpoint.Configured() {
		return nil, c.apiError(domain.KindUnavailable, domain.ErrCatalogUnavailable)
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("limit", strconv.Itoa(c.maxProducts+2))
	reqURL := fmt.Sprintf("%s/search?%s", strings.TrimRight(c.endpoint.BaseURL, "/"), params.Encode())

	logger := log.With().Str("component", "catalog").Str("site", site).Logger()
	logger.Debug().Str("query", query).Msg("Searching catalog API")

	var lastErr *domain.ScrapeError
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, c.apiError(domain.KindCanceled, err)
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, c.apiError(domain.KindCanceled, err)
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Catalog request failed")
			lastErr = c.apiError(domain.KindNetwork, err)
			if !c.backoff(ctx, attempt) {
				return nil, lastErr
			}
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = c.apiError(domain.KindNetwork, err)
			continue
		}
		if c.debug {
			logger.Debug().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Catalog response")
		}

		if resp.StatusCode != http.StatusOK {
			statusErr := fmt.Errorf("%w: status %d", domain.ErrCatalogFailure, resp.StatusCode)
			lastErr = c.apiError(domain.KindUnreachable, statusErr)
			// 4xx other than 429 will not get better by asking again
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, lastErr
			}
			logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Catalog API error")
			if !c.backoff(ctx, attempt) {
				return nil, lastErr
			}
			continue
		}

		var searchResp SearchResponse
		if err := json.Unmarshal(body, &searchResp); err != nil {
			return nil, c.apiError(domain.KindParse, fmt.Errorf("failed to decode response: %w", err))
		}

		products := MapToProducts(searchResp.Products, c.endpoint.HomeURL, c.maxProducts)
		if len(products) == 0 {
			return nil, domain.NewScrapeError(domain.KindNoProducts, site, fmt.Sprintf("No products found on %s", site), nil)
		}

		logger.Debug().Int("products", len(products)).Msg("Catalog search complete")
		return products, nil
	}

	return nil, lastErr
}

func (c *Client) apiError(kind domain.ErrorKind, err error) *domain.ScrapeError {
	return domain.NewScrapeError(kind, c.Site(),
		fmt.Sprintf("%s API error: %s", c.Site(), domain.TruncateMessage(err, 80)), err)
}

// backoff waits before the next attempt. It returns false when there is no
// next attempt or the context ended first.
func (c *Client) backoff(ctx context.Context, attempt int) bool {
	if attempt >= c.maxAttempts {
		return false
	}
	return sleepOrDone(ctx, exponentialBackoff(attempt))
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Available reports whether the site's catalog API is configured
func (c *Client) Available() bool {
	return c.endpoint.Configured()
}

// NewSearchers builds one client per endpoint, in endpoint order. Clients for
// unconfigured endpoints fail every search with ErrCatalogUnavailable so the
// comparison still reports every site.
func NewSearchers(endpoints []Endpoint, config ClientConfig) []domain.ProductSearcher {
	searchers := make([]domain.ProductSearcher, 0, len(endpoints))
	for _, e := range endpoints {
		searchers = append(searchers, NewClient(e, config))
	}
	return searchers
}
