package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/pricepulse/backend/internal/domain"
)

// maxBodyBytes caps how much of a search page is read
const maxBodyBytes = 8 << 20

// Config holds the tunables shared by all site scrapers
type Config struct {
	HTTPTimeout   time.Duration
	MinDelay      time.Duration
	MaxDelay      time.Duration
	MaxContainers int
	MaxProducts   int
}

// DefaultConfig returns the scraper defaults: 25s timeout, 1-3s jitter, 5 containers, 3 products
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:   25 * time.Second,
		MinDelay:      1 * time.Second,
		MaxDelay:      3 * time.Second,
		MaxContainers: 5,
		MaxProducts:   3,
	}
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option configures a Scraper
type Option func(*Scraper)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.httpClient = c }
}

// WithSleep replaces the politeness delay implementation
func WithSleep(fn SleepFunc) Option {
	return func(s *Scraper) { s.sleep = fn }
}

// Scraper fetches and parses one site's search results page
type Scraper struct {
	profile    SiteProfile
	config     Config
	httpClient *http.Client
	sleep      SleepFunc
	homeURL    *url.URL

	containers *Cascade
	names      *Cascade
	prices     *Cascade
	links      *Cascade
}

// New creates a scraper for the given site profile
func New(profile SiteProfile, config Config, opts ...Option) *Scraper {
	defaults := DefaultConfig()
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = defaults.HTTPTimeout
	}
	if config.MaxContainers <= 0 {
		config.MaxContainers = defaults.MaxContainers
	}
	if config.MaxProducts <= 0 {
		config.MaxProducts = defaults.MaxProducts
	}
	if config.MaxDelay < config.MinDelay {
		config.MaxDelay = config.MinDelay
	}

	home, err := url.Parse(profile.HomeURL)
	if err != nil {
		home = &url.URL{}
	}

	s := &Scraper{
		profile: profile,
		config:  config,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
		sleep:      SleepContext,
		homeURL:    home,
		containers: NewCascade("container", profile.Containers, nil),
		names:      NewCascade("name", profile.Names, profile.AcceptName),
		prices:     NewCascade("price", profile.Prices, profile.AcceptPrice),
		links:      NewCascade("link", profile.Links, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Site returns the display name of the scraped site
func (s *Scraper) Site() string {
	return s.profile.Name
}

// SearchURL builds the search page URL for a query
func (s *Scraper) SearchURL(query string) string {
	return fmt.Sprintf(s.profile.SearchTemplate, url.QueryEscape(query))
}

// Search fetches the site's search page for query and extracts up to
// MaxProducts products. Every failure is returned as a *domain.ScrapeError.
func (s *Scraper) Search(ctx context.Context, query string) ([]domain.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewScrapeError(domain.KindValidation, s.Site(), "Query parameter is required", domain.ErrInvalidQuery)
	}

	searchURL := s.SearchURL(query)

	if err := s.sleep(ctx, s.jitter()); err != nil {
		return nil, s.transportError(err)
	}

	body, err := s.fetch(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	products, err := s.Parse(body)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("component", "scraper").
		Str("site", s.Site()).
		Str("query", query).
		Int("products", len(products)).
		Msg("Search page parsed")
	return products, nil
}

// jitter returns a random delay in [MinDelay, MaxDelay]
func (s *Scraper) jitter() time.Duration {
	spread := s.config.MaxDelay - s.config.MinDelay
	if spread <= 0 {
		return s.config.MinDelay
	}
	return s.config.MinDelay + rand.N(spread+1)
}

// fetch performs the GET and returns the response body
func (s *Scraper) fetch(ctx context.Context, searchURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, domain.NewScrapeError(domain.KindNetwork, s.Site(),
			fmt.Sprintf("Network error with %s: %s", s.Site(), domain.TruncateMessage(err, 50)), err)
	}
	applyHeaders(req, s.profile)

	log.Debug().Str("component", "scraper").Str("site", s.Site()).Str("url", searchURL).Msg("Fetching search page")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, s.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		statusErr := fmt.Errorf("%s for url %s", resp.Status, searchURL)
		log.Warn().Str("component", "scraper").Str("site", s.Site()).Int("status", resp.StatusCode).Msg("Search page returned non-2xx status")
		return nil, domain.NewScrapeError(domain.KindUnreachable, s.Site(),
			fmt.Sprintf("Network error with %s: %s", s.Site(), domain.TruncateMessage(statusErr, 50)), statusErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, s.transportError(err)
	}
	return body, nil
}

// transportError maps a request failure to the matching error record
func (s *Scraper) transportError(err error) *domain.ScrapeError {
	site := s.Site()
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return domain.NewScrapeError(domain.KindCanceled, site, fmt.Sprintf("Search on %s was canceled", site), err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return domain.NewScrapeError(domain.KindTimeout, site,
			fmt.Sprintf("%s is taking too long to respond. Please try again later.", site), err)
	case isConnectionError(err):
		return domain.NewScrapeError(domain.KindConnection, site,
			fmt.Sprintf("Unable to connect to %s. Check your internet connection.", site), err)
	default:
		return domain.NewScrapeError(domain.KindNetwork, site,
			fmt.Sprintf("Network error with %s: %s", site, domain.TruncateMessage(err, 50)), err)
	}
}

func isConnectionError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

// Parse extracts products from a search results page. A panic anywhere in
// parsing is recovered and reported as a parse error for this site only.
func (s *Scraper) Parse(body []byte) (products []domain.Product, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			cause := fmt.Errorf("%v", rec)
			log.Error().Str("component", "scraper").Str("site", s.Site()).Interface("panic", rec).Msg("Recovered while parsing search page")
			products = nil
			err = s.parseError(cause)
		}
	}()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, s.parseError(err)
	}
	return s.extract(doc.Selection)
}

func (s *Scraper) parseError(err error) *domain.ScrapeError {
	return domain.NewScrapeError(domain.KindParse, s.Site(),
		fmt.Sprintf("Error scraping %s: %s", s.Site(), domain.TruncateMessage(err, 50)), err)
}

// extract runs the container cascade, then the field cascades per container
func (s *Scraper) extract(doc *goquery.Selection) ([]domain.Product, error) {
	containers, pattern := s.containers.All(doc, s.config.MaxContainers)
	if containers.Length() == 0 {
		return nil, domain.NewScrapeError(domain.KindNoContainers, s.Site(),
			fmt.Sprintf("No products found on %s. Website structure may have changed.", s.Site()), nil)
	}

	log.Debug().
		Str("component", "scraper").
		Str("site", s.Site()).
		Str("pattern", s.containers.Selectors()[pattern]).
		Int("containers", containers.Length()).
		Msg("Matched product containers")

	products := make([]domain.Product, 0, s.config.MaxProducts)
	containers.EachWithBreak(func(_ int, c *goquery.Selection) bool {
		name, _ := s.names.Text(c)
		if name == "" {
			return true
		}
		price, _ := s.prices.Text(c)
		if price == "" {
			return true
		}
		if s.profile.NormalizePrice != nil {
			price = s.profile.NormalizePrice(price)
		}

		products = append(products, domain.NewProduct(name, price, s.resolveLink(c)))
		return len(products) < s.config.MaxProducts
	})

	if len(products) == 0 {
		return nil, domain.NewScrapeError(domain.KindNoProducts, s.Site(),
			fmt.Sprintf("No products found on %s", s.Site()), nil)
	}
	return products, nil
}

// resolveLink makes the container's link absolute, falling back to the homepage
func (s *Scraper) resolveLink(c *goquery.Selection) string {
	href, _ := s.links.Attr(c, "href")
	if href == "" {
		return s.profile.HomeURL
	}
	ref, err := url.Parse(href)
	if err != nil {
		return s.profile.HomeURL
	}
	abs := s.homeURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return s.profile.HomeURL
	}
	return abs.String()
}

// SleepContext waits for d unless ctx is done first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
