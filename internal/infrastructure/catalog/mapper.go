package catalog

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/pricepulse/backend/internal/domain"
)

// SearchResponse is the body returned by a catalog search endpoint
type SearchResponse struct {
	Products []Item `json:"products"`
	Total    int    `json:"total"`
}

// Item is one product in a catalog search response
type Item struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Price        Price  `json:"price"`
	URL          string `json:"url"`
	Availability string `json:"availability,omitempty"`
}

// Price is a monetary amount in a catalog response
type Price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// MapToProducts converts catalog items to products, skipping items without
// a title or a positive price, and stopping after limit products.
func MapToProducts(items []Item, homeURL string, limit int) []domain.Product {
	products := make([]domain.Product, 0, limit)
	for _, item := range items {
		if len(products) >= limit {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" || item.Price.Amount <= 0 {
			continue
		}
		products = append(products, domain.NewProduct(title, FormatPrice(item.Price), resolveURL(homeURL, item.URL)))
	}
	return products
}

// FormatPrice renders a price the way Indian storefronts display it, e.g. ₹1,23,456
func FormatPrice(p Price) string {
	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" || currency == "INR" {
		return "₹" + groupIndian(p.Amount)
	}
	return currency + " " + strconv.FormatFloat(p.Amount, 'f', 2, 64)
}

// groupIndian formats an amount with lakh/crore digit grouping.
// Paise are shown only when non-zero.
func groupIndian(amount float64) string {
	rupees := math.Floor(amount)
	paise := int(math.Round((amount - rupees) * 100))
	if paise == 100 {
		rupees++
		paise = 0
	}

	digits := strconv.FormatFloat(rupees, 'f', 0, 64)
	var grouped string
	if len(digits) <= 3 {
		grouped = digits
	} else {
		head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
		var parts []string
		for len(head) > 2 {
			parts = append([]string{head[len(head)-2:]}, parts...)
			head = head[:len(head)-2]
		}
		if head != "" {
			parts = append([]string{head}, parts...)
		}
		grouped = strings.Join(parts, ",") + "," + tail
	}

	if paise > 0 {
		return grouped + "." + leftPad2(paise)
	}
	return grouped
}

func leftPad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// resolveURL makes a product URL absolute against the site's homepage
func resolveURL(homeURL, raw string) string {
	if raw == "" {
		return homeURL
	}
	base, err := url.Parse(homeURL)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return homeURL
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return homeURL
	}
	return abs.String()
}
