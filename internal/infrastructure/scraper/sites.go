package scraper

import (
	"strings"

	"github.com/pricepulse/backend/internal/domain"
)

// SiteProfile describes how to search and parse one site.
// Selector lists are snapshots of each site's markup; several historical
// class names are kept per field because the sites rename them often.
type SiteProfile struct {
	Name           string
	HomeURL        string
	SearchTemplate string // contains one %s for the escaped query
	UserAgents     []string
	Navigation     bool // send Sec-Fetch-* and Cache-Control headers

	Containers []string
	Names      []string
	Prices     []string
	Links      []string

	AcceptName     func(string) bool
	AcceptPrice    func(string) bool
	NormalizePrice func(string) string
}

// FlipkartProfile returns the scraping profile for flipkart.com
func FlipkartProfile() SiteProfile {
	return SiteProfile{
		Name:           domain.SiteFlipkart,
		HomeURL:        "https://www.flipkart.com",
		SearchTemplate: "https://www.flipkart.com/search?q=%s",
		UserAgents:     []string{uaChrome120Windows, uaChrome119Windows, uaChrome120Mac},
		Navigation:     true,
		Containers: []string{
			"div._13oc-S",
			"div._2kHMtA",
			"[data-id]",
			"div._1AtVbE",
			"div.col",
		},
		Names: []string{
			"a[title]",
			"div._4rR01T",
			"a.s1Q9rs",
			"div._2WkVRV",
			"a.IRpwTa",
		},
		Prices: []string{
			"div._30jeq3",
			"div._25b18c",
			"div._30jeq3._1_WHN1",
			"div._1vC4OE",
		},
		Links: []string{"a[href]"},
	}
}

// AmazonProfile returns the scraping profile for amazon.in
func AmazonProfile() SiteProfile {
	return SiteProfile{
		Name:           domain.SiteAmazon,
		HomeURL:        "https://www.amazon.in",
		SearchTemplate: "https://www.amazon.in/s?k=%s",
		UserAgents:     []string{uaChrome120Windows, uaFirefox120, uaChrome120Mac},
		Navigation:     true,
		Containers: []string{
			`div[data-component-type="s-search-result"]`,
			"div.s-result-item",
			"div.sg-col",
			"div.a-section",
		},
		Names: []string{
			"h2 a span",
			"span.a-size-base-plus",
			"h2 span.a-text-normal",
			"div.a-row a span",
		},
		Prices: []string{
			"span.a-price-whole",
			"span.a-offscreen",
			"span.a-price span.a-offscreen",
		},
		Links: []string{"h2 a[href], a.a-link-normal[href]"},
		AcceptName: func(s string) bool {
			return len([]rune(s)) > 2
		},
		AcceptPrice:    isRupeeAmount,
		NormalizePrice: withRupeePrefix,
	}
}

// RelianceDigitalProfile returns the scraping profile for reliancedigital.in
func RelianceDigitalProfile() SiteProfile {
	return SiteProfile{
		Name:           domain.SiteRelianceDigital,
		HomeURL:        "https://www.reliancedigital.in",
		SearchTemplate: "https://www.reliancedigital.in/search?q=%s:relevance",
		UserAgents:     []string{uaChrome120Windows, uaChrome119Windows},
		Containers: []string{
			"li.product-item",
			"div.plp-product-details",
			"div.product-item",
			"div.col-md-3",
		},
		Names: []string{
			"p.sp__name",
			"div.product-name",
			"h3.product-title a",
		},
		Prices: []string{
			"span.sc__price--current",
			"span.price",
			"div.price",
		},
		Links: []string{"a[href]"},
	}
}

// DefaultProfiles returns the profiles for all supported sites in response order
func DefaultProfiles() []SiteProfile {
	return []SiteProfile{FlipkartProfile(), AmazonProfile(), RelianceDigitalProfile()}
}

// isRupeeAmount accepts text that carries a rupee sign or is a bare number
// such as "49,990" or "49,990."
func isRupeeAmount(s string) bool {
	if strings.Contains(s, "₹") {
		return true
	}
	digits := strings.NewReplacer(",", "", ".", "").Replace(s)
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func withRupeePrefix(s string) string {
	if strings.HasPrefix(s, "₹") {
		return s
	}
	return "₹" + s
}
