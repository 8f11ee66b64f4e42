package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Site names as they appear in comparison responses
const (
	SiteFlipkart        = "Flipkart"
	SiteAmazon          = "Amazon"
	SiteRelianceDigital = "Reliance Digital"
)

// Sites lists the supported sites in response order
var Sites = []string{SiteFlipkart, SiteAmazon, SiteRelianceDigital}

// Search methods accepted by the compare endpoint
const (
	MethodScrape = "scrape"
	MethodAPI    = "api"
)

// MaxNameLength is the longest product name kept before ellipsizing
const MaxNameLength = 100

// Product represents a single product listing extracted from a site
type Product struct {
	Name  string `json:"name"`
	Price string `json:"price"` // display string, e.g. "₹50,000"
	Link  string `json:"link"`
}

// NewProduct builds a Product, ellipsizing names longer than MaxNameLength
func NewProduct(name, price, link string) Product {
	return Product{
		Name:  Ellipsize(name, MaxNameLength),
		Price: price,
		Link:  link,
	}
}

// Outcome is the result of searching one site: either products or an error, never both.
type Outcome struct {
	Products []Product
	Err      *ScrapeError
}

// Success wraps a non-empty product list
func Success(products []Product) Outcome {
	return Outcome{Products: products}
}

// Failure wraps a scrape error
func Failure(err *ScrapeError) Outcome {
	return Outcome{Err: err}
}

// Failed reports whether the outcome carries only an error
func (o Outcome) Failed() bool {
	return o.Err != nil || len(o.Products) == 0
}

// MarshalJSON renders the outcome as a list: products, or a single error record
func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Err != nil {
		return json.Marshal([]errorRecord{{Error: o.Err.Message}})
	}
	if o.Products == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(o.Products)
}

// UnmarshalJSON accepts the list form produced by MarshalJSON
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var records []struct {
		Name  string  `json:"name"`
		Price string  `json:"price"`
		Link  string  `json:"link"`
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	*o = Outcome{}
	for _, r := range records {
		if r.Error != nil {
			o.Err = &ScrapeError{Kind: KindUnknown, Message: *r.Error}
			o.Products = nil
			return nil
		}
		o.Products = append(o.Products, Product{Name: r.Name, Price: r.Price, Link: r.Link})
	}
	return nil
}

type errorRecord struct {
	Error string `json:"error"`
}

// SiteResult pairs a site name with its search outcome
type SiteResult struct {
	Site    string
	Outcome Outcome
}

// Comparison is the per-query result across all sites, kept in site order
type Comparison struct {
	Method  string
	Results []SiteResult
}

// AllFailed reports whether every site failed. An empty comparison counts as failed.
func (c *Comparison) AllFailed() bool {
	for _, r := range c.Results {
		if !r.Outcome.Failed() {
			return false
		}
	}
	return true
}

// Get returns the outcome for a site
func (c *Comparison) Get(site string) (Outcome, bool) {
	for _, r := range c.Results {
		if r.Site == site {
			return r.Outcome, true
		}
	}
	return Outcome{}, false
}

// MarshalJSON renders the comparison as an object keyed by site name, in site order
func (c Comparison) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range c.Results {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(r.Site)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.Outcome)
		if err != nil {
			return nil, fmt.Errorf("marshal %s outcome: %w", r.Site, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a comparison, ordering known sites first
func (c *Comparison) UnmarshalJSON(data []byte) error {
	var raw map[string]Outcome
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Results = c.Results[:0]
	for _, site := range Sites {
		if outcome, ok := raw[site]; ok {
			c.Results = append(c.Results, SiteResult{Site: site, Outcome: outcome})
			delete(raw, site)
		}
	}
	for site, outcome := range raw {
		c.Results = append(c.Results, SiteResult{Site: site, Outcome: outcome})
	}
	return nil
}
