package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// blockIndicators are phrases that mark a 200/403 body as a protection page
// rather than real content
var blockIndicators = []string{
	"cloudflare",
	"captcha",
	"access denied",
	"are you a robot",
	"please verify you are a human",
	"enable javascript and cookies",
	"attention required",
	"ddos protection",
	"just a moment",
}

// Options configures the HTTP Client
type Options struct {
	Timeout     time.Duration // per-request timeout, default 30s
	MaxBodySize int64         // response body cap in bytes, default 10MB
	Proxies     []string      // optional proxy URLs to rotate through
	RateLimit   *RateLimiter  // shared limiter, created if nil
	Retrier     *Retrier      // shared retrier, created if nil
	Metrics     *Metrics      // shared metrics, created if nil
}

// Client fetches pages with rotating browser headers, per-domain rate
// limiting and sessions, optional proxies, and retry with backoff. It is the
// shared transport under every non-browser fetch method.
type Client struct {
	httpTimeout time.Duration
	maxBodySize int64

	headers  *HeaderRotator
	limiter  *RateLimiter
	retrier  *Retrier
	sessions *SessionStore
	proxies  *ProxyRotator
	metrics  *Metrics
}

// NewClient creates a client with the given options
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 10 * 1024 * 1024
	}
	if opts.RateLimit == nil {
		opts.RateLimit = NewRateLimiter(0, 0)
	}
	if opts.Retrier == nil {
		opts.Retrier = NewRetrier(0, 0, 0)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Client{
		httpTimeout: opts.Timeout,
		maxBodySize: opts.MaxBodySize,
		headers:     NewHeaderRotator(),
		limiter:     opts.RateLimit,
		retrier:     opts.Retrier,
		sessions:    NewSessionStore(0),
		proxies:     NewProxyRotator(opts.Proxies),
		metrics:     opts.Metrics,
	}
}

// Limiter exposes the shared rate limiter for callers that fetch through
// other transports but must respect the same per-domain spacing
func (c *Client) Limiter() *RateLimiter { return c.limiter }

// Metrics exposes the shared metrics collector
func (c *Client) Metrics() *Metrics { return c.metrics }

// EvictSessions drops idle per-domain sessions and returns the count removed
func (c *Client) EvictSessions() int { return c.sessions.Evict() }

// Fetch retrieves a page as decoded HTML. It waits on the domain's rate
// limit, retries transient failures with backoff, and classifies block pages
// as ProtectionError so callers can escalate to a stronger method.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &TerminalError{Err: fmt.Errorf("invalid url %q", rawURL)}
	}
	domain := u.Hostname()

	var html string
	err = c.retrier.Do(ctx, func() error {
		if werr := c.limiter.Wait(ctx, domain); werr != nil {
			return &TerminalError{Err: werr}
		}

		body, aerr := c.attempt(ctx, u)
		if aerr != nil {
			c.limiter.RecordFailure(domain, IsRateLimited(aerr))
			var pe *ProtectionError
			c.metrics.RecordFailure("http", domain, errors.As(aerr, &pe))
			log.Printf("[DEBUG] fetch failed for %s: %v", rawURL, aerr)
			return aerr
		}

		c.limiter.RecordSuccess(domain)
		c.metrics.RecordSuccess("http", domain)
		html = body
		return nil
	})
	if err != nil {
		return "", err
	}
	return html, nil
}

// attempt performs a single request through the next proxy in rotation
func (c *Client) attempt(ctx context.Context, u *url.URL) (string, error) {
	domain := u.Hostname()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", &TerminalError{Err: fmt.Errorf("build request: %w", err)}
	}
	c.headers.Apply(req, "")
	for _, cookie := range c.sessions.Cookies(domain) {
		req.AddCookie(cookie)
	}

	proxy := c.proxies.Next()
	client := &http.Client{Timeout: c.httpTimeout}
	if proxy != nil {
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxy)}
	}

	resp, err := client.Do(req)
	if err != nil {
		c.proxies.RecordFailure(proxy)
		return "", &TransientError{Domain: domain, Err: err}
	}
	defer resp.Body.Close()

	c.sessions.Store(domain, resp.Cookies())

	body, err := c.readBody(resp)
	if err != nil {
		c.proxies.RecordFailure(proxy)
		return "", &TransientError{Domain: domain, Err: fmt.Errorf("read body: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", &TerminalError{Err: fmt.Errorf("page not found (status %d)", resp.StatusCode)}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		c.proxies.RecordFailure(proxy)
		if reason := BlockReason(body); reason != "" {
			return "", &ProtectionError{Domain: domain, Method: "http", Reason: reason}
		}
		return "", &TransientError{Domain: domain, Status: resp.StatusCode, Err: fmt.Errorf("blocked response")}
	case resp.StatusCode >= 400:
		c.proxies.RecordFailure(proxy)
		return "", &TransientError{Domain: domain, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	c.proxies.RecordSuccess(proxy)

	if reason := BlockReason(body); reason != "" && len(body) < 5000 {
		return "", &ProtectionError{Domain: domain, Method: "http", Reason: reason}
	}
	return body, nil
}

// readBody decompresses the response according to Content-Encoding. We set
// Accept-Encoding ourselves so the transport does not transparently
// decompress for us.
func (c *Client) readBody(resp *http.Response) (string, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}

	data, err := io.ReadAll(io.LimitReader(reader, c.maxBodySize))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BlockReason returns the matched protection phrase, or empty when the body
// looks like real content
func BlockReason(body string) string {
	lower := strings.ToLower(body)
	for _, ind := range blockIndicators {
		if strings.Contains(lower, ind) {
			return ind
		}
	}
	return ""
}
