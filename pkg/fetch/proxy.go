package fetch

import (
	"net/url"
	"sync"
)

// failureThreshold is the consecutive failure count after which a proxy is
// skipped during rotation
const failureThreshold = 3

// ProxyRotator cycles through configured proxies, skipping ones that keep
// failing. When every proxy is marked bad, all failure counts reset so the
// pool gets another chance instead of going dark.
type ProxyRotator struct {
	mu       sync.Mutex
	proxies  []*url.URL
	failures map[string]int
	idx      int
}

// NewProxyRotator creates a rotator from proxy URLs, ignoring unparsable
// entries. An empty list is valid and yields direct connections.
func NewProxyRotator(addrs []string) *ProxyRotator {
	r := &ProxyRotator{failures: make(map[string]int)}
	for _, addr := range addrs {
		u, err := url.Parse(addr)
		if err != nil || u.Host == "" {
			continue
		}
		r.proxies = append(r.proxies, u)
	}
	return r
}

// Next returns the next usable proxy, or nil when no proxies are configured.
// Proxies at or above the failure threshold are skipped; if all are, the
// counts reset and rotation starts over.
func (r *ProxyRotator) Next() *url.URL {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.proxies) == 0 {
		return nil
	}

	for range r.proxies {
		p := r.proxies[r.idx]
		r.idx = (r.idx + 1) % len(r.proxies)
		if r.failures[p.String()] < failureThreshold {
			return p
		}
	}

	// every proxy exhausted, reset and hand out the next one
	r.failures = make(map[string]int)
	p := r.proxies[r.idx]
	r.idx = (r.idx + 1) % len(r.proxies)
	return p
}

// RecordSuccess resets the failure count for a proxy
func (r *ProxyRotator) RecordSuccess(p *url.URL) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[p.String()] = 0
}

// RecordFailure increments the failure count for a proxy
func (r *ProxyRotator) RecordFailure(p *url.URL) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[p.String()]++
}

// Available returns how many proxies are currently under the failure
// threshold
func (r *ProxyRotator) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.proxies {
		if r.failures[p.String()] < failureThreshold {
			n++
		}
	}
	return n
}
