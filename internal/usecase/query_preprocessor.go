package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

// MaxQueryLength caps the query sent to the sites
const MaxQueryLength = 200

// Compiled regex patterns for query preprocessing
var (
	multiSpacePattern = regexp.MustCompile(`\s+`)

	// Anything but letters, digits and spaces is dropped from cache keys
	cacheKeyStripPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
)

// QueryPreprocessor cleans user search terms before they reach the sites
type QueryPreprocessor struct {
	enableDebugLogging bool
}

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor(enableDebugLogging bool) *QueryPreprocessor {
	return &QueryPreprocessor{
		enableDebugLogging: enableDebugLogging,
	}
}

// Clean trims the query, drops control characters, collapses whitespace and
// caps the length. Case and punctuation are kept since the sites search on them.
func (p *QueryPreprocessor) Clean(query string) string {
	if query == "" {
		return ""
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, query)
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if runes := []rune(cleaned); len(runes) > MaxQueryLength {
		cleaned = strings.TrimSpace(string(runes[:MaxQueryLength]))
	}

	if p.enableDebugLogging && cleaned != query {
		log.Debug().Str("component", "compare").Str("original", query).Str("cleaned", cleaned).Msg("Query preprocessed")
	}

	return cleaned
}

// CacheKey builds the result cache key for a query.
// Format: "compare:{method}:{normalized_query}"
func (p *QueryPreprocessor) CacheKey(method, query string) string {
	return fmt.Sprintf("compare:%s:%s", method, normalizeForCacheKey(query))
}

// normalizeForCacheKey lowercases, strips punctuation and collapses whitespace
func normalizeForCacheKey(s string) string {
	if s == "" {
		return ""
	}
	result := strings.ToLower(s)
	result = cacheKeyStripPattern.ReplaceAllString(result, " ")
	result = multiSpacePattern.ReplaceAllString(result, " ")
	return strings.TrimSpace(result)
}
