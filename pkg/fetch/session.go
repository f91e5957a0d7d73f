package fetch

import (
	"net/http"
	"sync"
	"time"
)

// session holds cookies accumulated for one domain
type session struct {
	cookies  map[string]*http.Cookie
	lastUsed time.Time
}

// SessionStore keeps per-domain cookies between requests so consecutive
// fetches to the same site look like one browsing session. Sessions idle
// longer than the TTL are evicted.
type SessionStore struct {
	ttl time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSessionStore creates a store with the given idle TTL, defaulting to 24h
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{ttl: ttl, sessions: make(map[string]*session)}
}

// Cookies returns the stored cookies for a domain, refreshing its idle timer
func (s *SessionStore) Cookies(domain string) []*http.Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[domain]
	if !ok {
		return nil
	}
	sess.lastUsed = time.Now()

	cookies := make([]*http.Cookie, 0, len(sess.cookies))
	for _, c := range sess.cookies {
		cookies = append(cookies, c)
	}
	return cookies
}

// Store merges response cookies into the domain's session, creating it if
// needed. Cookies with the same name are replaced.
func (s *SessionStore) Store(domain string, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[domain]
	if !ok {
		sess = &session{cookies: make(map[string]*http.Cookie)}
		s.sessions[domain] = sess
	}
	for _, c := range cookies {
		sess.cookies[c.Name] = c
	}
	sess.lastUsed = time.Now()
}

// Evict removes sessions idle longer than the TTL and returns how many were
// removed
func (s *SessionStore) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	removed := 0
	for domain, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, domain)
			removed++
		}
	}
	return removed
}

// Len returns the number of active sessions
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
