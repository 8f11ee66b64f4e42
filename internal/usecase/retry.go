package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pricepulse/backend/internal/domain"
)

// Recorder receives per-attempt and per-request observations
type Recorder interface {
	ObserveAttempt(site, outcome string, d time.Duration)
	ObserveCompare(method, result string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(string, string, time.Duration) {}
func (nopRecorder) ObserveCompare(string, string)                {}

// SleepFunc pauses for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryConfig holds configuration for the retry wrapper
type RetryConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	Sleep       SleepFunc
}

// Retrier runs a site search with exponential backoff between attempts
type Retrier struct {
	maxRetries  int
	backoffBase time.Duration
	sleep       SleepFunc
	recorder    Recorder
}

// NewRetrier creates a retrier. Defaults: 2 retries, 2s base (waits of 2s, 4s, 8s...).
func NewRetrier(config RetryConfig, recorder Recorder) *Retrier {
	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	backoffBase := config.BackoffBase
	if backoffBase == 0 {
		backoffBase = 2 * time.Second
	}

	sleep := config.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Retrier{
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		sleep:       sleep,
		recorder:    recorder,
	}
}

// Backoff returns the wait before the retry following the given zero-based attempt
func (r *Retrier) Backoff(attempt int) time.Duration {
	return r.backoffBase << attempt
}

// Attempts returns the total number of tries per search
func (r *Retrier) Attempts() int {
	return r.maxRetries + 1
}

// Do searches one site, retrying failures. It always returns an Outcome.
func (r *Retrier) Do(ctx context.Context, searcher domain.ProductSearcher, query string) domain.Outcome {
	site := searcher.Site()
	logger := log.With().Str("component", "retry").Str("site", site).Logger()
	attempts := r.Attempts()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		products, err := r.attempt(ctx, searcher, query)
		if err == nil && len(products) == 0 {
			err = domain.NewScrapeError(domain.KindNoProducts, site, fmt.Sprintf("No products found on %s", site), nil)
		}
		r.recorder.ObserveAttempt(site, outcomeLabel(err), time.Since(start))

		if err == nil {
			if attempt > 0 {
				logger.Info().Int("attempt", attempt+1).Msg("Search succeeded after retry")
			}
			return domain.Success(products)
		}
		lastErr = err

		if se, ok := asScrapeError(err); ok && !se.Retryable() {
			return domain.Failure(se)
		}
		if errors.Is(err, domain.ErrInvalidQuery) {
			return domain.Failure(domain.NewScrapeError(domain.KindValidation, site, "Query parameter is required", err))
		}
		if ctx.Err() != nil {
			return domain.Failure(contextError(ctx, site, err))
		}
		if attempt == attempts-1 {
			break
		}

		wait := r.Backoff(attempt)
		logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("backoff", wait).
			Msg("Search attempt failed, retrying")

		if err := r.sleep(ctx, wait); err != nil {
			return domain.Failure(contextError(ctx, site, err))
		}
	}

	logger.Error().Err(lastErr).Int("attempts", attempts).Msg("All search attempts failed")

	if se, ok := asScrapeError(lastErr); ok {
		return domain.Failure(se)
	}
	return domain.Failure(domain.NewScrapeError(domain.KindExhausted, site,
		fmt.Sprintf("Failed after %d attempts: %s", attempts, domain.TruncateMessage(lastErr, 100)), lastErr))
}

// attempt runs one search, turning a panic into an error
func (r *Retrier) attempt(ctx context.Context, searcher domain.ProductSearcher, query string) (products []domain.Product, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("component", "retry").Str("site", searcher.Site()).Interface("panic", rec).Msg("Recovered from panic in search")
			products = nil
			err = fmt.Errorf("%v", rec)
		}
	}()
	return searcher.Search(ctx, query)
}

func asScrapeError(err error) (*domain.ScrapeError, bool) {
	var se *domain.ScrapeError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// contextError reports why ctx ended: the overall deadline or a cancellation
func contextError(ctx context.Context, site string, cause error) *domain.ScrapeError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewScrapeError(domain.KindTimeout, site,
			fmt.Sprintf("%s is taking too long to respond. Please try again later.", site), cause)
	}
	return domain.NewScrapeError(domain.KindCanceled, site, fmt.Sprintf("Search on %s was canceled", site), cause)
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if se, ok := asScrapeError(err); ok {
		return string(se.Kind)
	}
	return "error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
