package fetch

import (
	"fmt"
	"sort"
	"sync"
)

// MethodStats aggregates outcomes for one fetch method
type MethodStats struct {
	Attempts  int     `json:"attempts"`
	Successes int     `json:"successes"`
	Failures  int     `json:"failures"`
	Blocked   int     `json:"blocked"`
	Rate      float64 `json:"success_rate"`
}

// Metrics tracks fetch outcomes per method and per domain so operators can
// see which sites resist which methods
type Metrics struct {
	mu      sync.Mutex
	methods map[string]*MethodStats
	domains map[string]*MethodStats
}

// NewMetrics creates an empty metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		methods: make(map[string]*MethodStats),
		domains: make(map[string]*MethodStats),
	}
}

// RecordSuccess counts a successful fetch for a method and domain
func (m *Metrics) RecordSuccess(method, domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.method(method)
	s.Attempts++
	s.Successes++
	d := m.domain(domain)
	d.Attempts++
	d.Successes++
}

// RecordFailure counts a failed fetch. Blocked marks failures caused by site
// protection rather than ordinary errors.
func (m *Metrics) RecordFailure(method, domain string, blocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.method(method)
	s.Attempts++
	s.Failures++
	d := m.domain(domain)
	d.Attempts++
	d.Failures++
	if blocked {
		s.Blocked++
		d.Blocked++
	}
}

func (m *Metrics) method(name string) *MethodStats {
	s, ok := m.methods[name]
	if !ok {
		s = &MethodStats{}
		m.methods[name] = s
	}
	return s
}

func (m *Metrics) domain(name string) *MethodStats {
	s, ok := m.domains[name]
	if !ok {
		s = &MethodStats{}
		m.domains[name] = s
	}
	return s
}

// Snapshot returns a copy of all stats with success rates computed
func (m *Metrics) Snapshot() (methods, domains map[string]MethodStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	methods = make(map[string]MethodStats, len(m.methods))
	for k, v := range m.methods {
		s := *v
		if s.Attempts > 0 {
			s.Rate = float64(s.Successes) / float64(s.Attempts)
		}
		methods[k] = s
	}
	domains = make(map[string]MethodStats, len(m.domains))
	for k, v := range m.domains {
		s := *v
		if s.Attempts > 0 {
			s.Rate = float64(s.Successes) / float64(s.Attempts)
		}
		domains[k] = s
	}
	return methods, domains
}

// Recommendations derives operator hints from the collected stats
func (m *Metrics) Recommendations() []string {
	methods, domains := m.Snapshot()

	var recs []string
	for name, s := range methods {
		if s.Attempts >= 5 && s.Rate < 0.5 {
			recs = append(recs, fmt.Sprintf("method %q succeeds on %.0f%% of attempts, consider adjusting its configuration", name, s.Rate*100))
		}
	}
	for name, s := range domains {
		if s.Attempts >= 3 && s.Blocked > s.Attempts/2 {
			recs = append(recs, fmt.Sprintf("domain %q blocks most requests, consider enabling browser fetching or proxies for it", name))
		}
	}
	sort.Strings(recs)
	return recs
}
