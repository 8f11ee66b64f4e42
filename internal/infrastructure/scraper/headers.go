package scraper

import (
	"math/rand/v2"
	"net/http"
)

const (
	uaChrome120Windows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaChrome119Windows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	uaChrome120Mac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaFirefox120       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/120.0"
)

// baseHeaders are sent to every site.
// Accept-Encoding is left to the transport so gzip bodies are decoded for us.
var baseHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
}

// navigationHeaders make the request look like a top-level browser navigation
var navigationHeaders = map[string]string{
	"Sec-Fetch-Dest": "document",
	"Sec-Fetch-Mode": "navigate",
	"Sec-Fetch-Site": "none",
	"Cache-Control":  "max-age=0",
}

// pickUserAgent returns a random entry from the pool
func pickUserAgent(pool []string) string {
	if len(pool) == 0 {
		return uaChrome120Windows
	}
	return pool[rand.IntN(len(pool))]
}

// applyHeaders sets the browser-like headers for a profile on req
func applyHeaders(req *http.Request, p SiteProfile) {
	req.Header.Set("User-Agent", pickUserAgent(p.UserAgents))
	for k, v := range baseHeaders {
		req.Header.Set(k, v)
	}
	if p.Navigation {
		for k, v := range navigationHeaders {
			req.Header.Set(k, v)
		}
	}
}
