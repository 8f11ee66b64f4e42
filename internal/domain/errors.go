package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidQuery is returned when the search query is missing or blank
	ErrInvalidQuery = errors.New("query parameter is required")

	// ErrAllSitesFailed is returned when no site produced any product
	ErrAllSitesFailed = errors.New("unable to fetch data from any e-commerce platform")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheUnavailable is returned when cache service is unavailable
	ErrCacheUnavailable = errors.New("cache service unavailable")

	// ErrCatalogUnavailable is returned when no catalog API is configured for a site
	ErrCatalogUnavailable = errors.New("catalog API not configured")

	// ErrCatalogFailure is returned when a catalog API request fails
	ErrCatalogFailure = errors.New("catalog API request failed")
)

// ErrorKind classifies a per-site failure
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindTimeout      ErrorKind = "timeout"
	KindConnection   ErrorKind = "connection"
	KindNetwork      ErrorKind = "network"
	KindUnreachable  ErrorKind = "unreachable"
	KindUnavailable  ErrorKind = "unavailable"
	KindNoContainers ErrorKind = "no_containers"
	KindNoProducts   ErrorKind = "no_products"
	KindParse        ErrorKind = "parse"
	KindExhausted    ErrorKind = "exhausted"
	KindCanceled     ErrorKind = "canceled"
	KindUnknown      ErrorKind = "unknown"
)

// ScrapeError is the error record for one site. Message is what clients see.
type ScrapeError struct {
	Kind    ErrorKind
	Site    string
	Message string
	Err     error
}

func (e *ScrapeError) Error() string {
	return e.Message
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could change the result
func (e *ScrapeError) Retryable() bool {
	switch e.Kind {
	case KindValidation, KindCanceled, KindUnavailable:
		return false
	}
	return true
}

// NewScrapeError creates a ScrapeError
func NewScrapeError(kind ErrorKind, site, message string, cause error) *ScrapeError {
	return &ScrapeError{Kind: kind, Site: site, Message: message, Err: cause}
}

// AllFailedError carries the diagnostic returned when every site failed
type AllFailedError struct {
	Method     string
	Diagnostic string
}

func (e *AllFailedError) Error() string {
	return ErrAllSitesFailed.Error()
}

func (e *AllFailedError) Unwrap() error {
	return ErrAllSitesFailed
}

// NewAllFailedError builds the top-level diagnostic for a failed comparison
func NewAllFailedError(method string) *AllFailedError {
	return &AllFailedError{Method: method, Diagnostic: allFailedDiagnostic}
}

const allFailedDiagnostic = "Unable to fetch data from any e-commerce platform. This may be due to:\n" +
	"1. Websites blocking our requests (anti-bot measures)\n" +
	"2. Website structure changes\n" +
	"3. Network connectivity issues\n" +
	"4. Temporary server issues\n\n" +
	"Try again later or search for a different product.\n\n" +
	"SUGGESTED ACTIONS:\n" +
	"- Wait 2-3 minutes before retrying\n" +
	"- Try a more generic search term\n" +
	"- Check your internet connection\n" +
	"- Restart the application"

// Ellipsize cuts s to max runes and appends "..." when it was longer
func Ellipsize(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// TruncateMessage shortens an error message for inclusion in an error record
func TruncateMessage(err error, max int) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	runes := []rune(msg)
	if len(runes) > max {
		msg = string(runes[:max])
	}
	return fmt.Sprintf("%s...", msg)
}
