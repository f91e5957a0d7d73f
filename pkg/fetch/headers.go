package fetch

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// userAgents contains realistic user agents from major browsers, rotated
// across requests to avoid a constant fingerprint
var userAgents = []string{
	// chrome on windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",

	// chrome on macos
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",

	// firefox on windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/119.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/118.0",

	// firefox on macos
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:109.0) Gecko/20100101 Firefox/119.0",

	// safari on macos
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",

	// edge on windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0",

	// chrome on linux
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0.0.0 Safari/537.36",
}

// acceptLanguages contains common browser Accept-Language values
var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.9,es;q=0.8",
	"en-GB,en;q=0.9",
	"en-US,en;q=0.9,fr;q=0.8",
	"en-US,en;q=0.9,de;q=0.8",
	"en-US,en;q=0.9,it;q=0.8",
}

var acceptValues = []string{
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
	"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

var acceptEncodings = []string{
	"gzip, deflate, br",
	"gzip, deflate",
}

// HeaderRotator produces plausible browser headers per request. User agents
// rotate round-robin 80% of the time and uniformly at random 20% of the time
// so the sequence has no detectable period.
type HeaderRotator struct {
	mu  sync.Mutex
	idx int
}

// NewHeaderRotator creates a rotator starting at the first pooled user agent
func NewHeaderRotator() *HeaderRotator {
	return &HeaderRotator{}
}

// Apply sets browser-like headers on the request. A referrer is synthesized
// with 40% probability when none is given.
func (h *HeaderRotator) Apply(req *http.Request, referrer string) {
	ua := h.nextUserAgent()

	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", acceptValues[rand.Intn(len(acceptValues))])                      //nolint:gosec // non-cryptographic randomness is fine for header variation
	req.Header.Set("Accept-Language", acceptLanguages[rand.Intn(len(acceptLanguages))])      //nolint:gosec // non-cryptographic randomness is fine
	req.Header.Set("Accept-Encoding", acceptEncodings[rand.Intn(len(acceptEncodings))])      //nolint:gosec // non-cryptographic randomness is fine
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	if rand.Float32() < 0.3 { //nolint:gosec // non-cryptographic randomness is fine
		req.Header.Set("Cache-Control", "no-cache")
	}

	switch {
	case referrer != "":
		req.Header.Set("Referer", referrer)
	case rand.Float32() < 0.4: //nolint:gosec // non-cryptographic randomness is fine
		req.Header.Set("Referer", syntheticReferrer(req.URL))
	}

	// chrome sends client-hint and sec-fetch headers; other browsers don't
	if strings.Contains(ua, "Chrome") {
		req.Header.Set("sec-ch-ua", secChUA(ua))
		req.Header.Set("sec-ch-ua-mobile", "?0")
		req.Header.Set("sec-ch-ua-platform", uaPlatform(ua))
		req.Header.Set("Sec-Fetch-Dest", "document")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		if referrer == "" {
			req.Header.Set("Sec-Fetch-Site", "none")
		} else {
			req.Header.Set("Sec-Fetch-Site", "same-origin")
		}
		req.Header.Set("Sec-Fetch-User", "?1")
	}
}

func (h *HeaderRotator) nextUserAgent() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rand.Float32() < 0.8 { //nolint:gosec // non-cryptographic randomness is fine
		ua := userAgents[h.idx]
		h.idx = (h.idx + 1) % len(userAgents)
		return ua
	}
	return userAgents[rand.Intn(len(userAgents))] //nolint:gosec // non-cryptographic randomness is fine
}

// syntheticReferrer picks a realistic referrer for the target URL
func syntheticReferrer(u *url.URL) string {
	candidates := []string{
		"https://www.google.com/",
		"https://www.bing.com/",
		"https://www.facebook.com/",
		"https://www.pinterest.com/",
	}
	if u != nil && u.Host != "" {
		candidates = append(candidates, fmt.Sprintf("https://%s/", u.Host))
	}
	return candidates[rand.Intn(len(candidates))] //nolint:gosec // non-cryptographic randomness is fine
}

func secChUA(ua string) string {
	switch {
	case strings.Contains(ua, "Chrome/119"):
		return `"Google Chrome";v="119", "Chromium";v="119", "Not?A_Brand";v="24"`
	case strings.Contains(ua, "Chrome/118"):
		return `"Google Chrome";v="118", "Chromium";v="118", "Not=A?Brand";v="99"`
	case strings.Contains(ua, "Chrome/117"):
		return `"Google Chrome";v="117", "Chromium";v="117", "Not;A=Brand";v="8"`
	default:
		return `"Chromium";v="119", "Not?A_Brand";v="24"`
	}
}

func uaPlatform(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return `"Windows"`
	case strings.Contains(ua, "Macintosh"):
		return `"macOS"`
	case strings.Contains(ua, "Linux"):
		return `"Linux"`
	default:
		return `"Unknown"`
	}
}
