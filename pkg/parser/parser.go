// Package parser turns a recipe source (URL or caption text) into a Recipe.
// URL parsing runs a chain of strategies: structured-data scraper first, then
// manual HTTP with the full extraction heuristics, then headless browser for
// sites that block plain HTTP.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/plateful/plateful/pkg/fetch"
	"github.com/plateful/plateful/pkg/progress"
	"github.com/plateful/plateful/pkg/recipe"
)

// Parser is a single extraction strategy
type Parser interface {
	Name() string
	Parse(ctx context.Context, rawURL string) (*recipe.Recipe, error)
}

// Chain runs strategies in fixed order and escalates when a site blocks the
// cheaper method. The browser strategy is optional.
type Chain struct {
	scraper Parser
	manual  Parser
	browser Parser             // nil when browser automation is unavailable
	limiter *fetch.RateLimiter // read for progress reporting, outcomes are recorded by the transports
}

// NewChain builds the default chain around a shared fetch client. The browser
// parser may be nil.
func NewChain(client *fetch.Client, browser Parser) *Chain {
	return &Chain{
		scraper: NewScraperParser(client),
		manual:  NewManualParser(client),
		browser: browser,
		limiter: client.Limiter(),
	}
}

// Parse runs the chain for a URL, reporting progress to sess (which may be
// nil for callers that do not stream).
func (c *Chain) Parse(ctx context.Context, rawURL string, sess *progress.Session) (*recipe.Recipe, error) {
	domain := domainOf(rawURL)
	emit(sess, progress.PhaseInitializing, progress.StatusInProgress,
		fmt.Sprintf("Starting to parse recipe from %s", rawURL),
		progress.WithMetadata(map[string]any{"url": rawURL, "domain": domain}))

	emit(sess, progress.PhaseRateLimiting, progress.StatusInProgress,
		fmt.Sprintf("Respecting rate limits for %s", domain),
		progress.WithMetadata(map[string]any{"domain": domain, "delay_ms": c.limiter.Delay(domain).Milliseconds()}))

	// structured-data scraper covers well-behaved sites cheaply
	emit(sess, progress.PhaseTryingScrapers, progress.StatusInProgress,
		"Attempting extraction from structured recipe data",
		progress.WithMethod(c.scraper.Name()))
	rec, err := c.scraper.Parse(ctx, rawURL)
	if err == nil {
		c.complete(sess, c.scraper.Name(), rec)
		return rec, nil
	}
	if fetch.IsTerminal(err) {
		c.fail(sess, c.scraper.Name(), err)
		return nil, err
	}
	log.Printf("[WARN] %s failed for %s: %v", c.scraper.Name(), rawURL, err)
	emit(sess, progress.PhaseScrapersFailed, progress.StatusFailed,
		truncate(fmt.Sprintf("Structured extraction failed: %v", err), 120),
		progress.WithMethod(c.scraper.Name()), progress.WithError(err.Error()),
		progress.WithSuggestions("Falling back to manual parsing",
			"This is normal for sites without structured recipe data"))

	// manual HTTP with the full heuristic set
	emit(sess, progress.PhaseTryingManual, progress.StatusInProgress,
		"Attempting manual parsing with rotating headers and rate limiting",
		progress.WithMethod(c.manual.Name()))
	rec, err = c.manual.Parse(ctx, rawURL)
	if err == nil {
		c.complete(sess, c.manual.Name(), rec)
		return rec, nil
	}
	if fetch.IsTerminal(err) {
		c.fail(sess, c.manual.Name(), err)
		return nil, err
	}

	var protErr *fetch.ProtectionError
	blocked := errors.As(err, &protErr)
	if blocked {
		emit(sess, progress.PhaseManualBlocked, progress.StatusFailed,
			truncate(fmt.Sprintf("Manual parsing blocked: %v", err), 120),
			progress.WithMethod(c.manual.Name()), progress.WithError(err.Error()),
			progress.WithSuggestions("Trying browser automation", "Website has anti-bot protection"))
	}

	if c.browser == nil || (!blocked && !browserWorthRetrying(err)) {
		c.fail(sess, c.manual.Name(), err)
		return nil, err
	}

	// headless browser as the last resort for protected sites
	emit(sess, progress.PhaseTryingBrowser, progress.StatusInProgress,
		"Attempting browser automation, this may take longer",
		progress.WithMethod(c.browser.Name()),
		progress.WithMetadata(map[string]any{"browser": "chromium", "headless": true}))
	log.Printf("[INFO] trying browser automation for %s", rawURL)

	rec, berr := c.browser.Parse(ctx, rawURL)
	if berr == nil {
		c.complete(sess, c.browser.Name(), rec)
		return rec, nil
	}
	log.Printf("[WARN] browser automation failed for %s: %v", rawURL, berr)
	c.fail(sess, c.browser.Name(), berr)
	if blocked {
		return nil, err // the protection error describes the root cause better
	}
	return nil, berr
}

func (c *Chain) complete(sess *progress.Session, method string, rec *recipe.Recipe) {
	emit(sess, progress.PhaseCompleted, progress.StatusSuccess,
		fmt.Sprintf("Successfully parsed recipe: %s", rec.Title),
		progress.WithMethod(method),
		progress.WithMetadata(map[string]any{"title": rec.Title, "confidence": rec.Confidence}))
}

func (c *Chain) fail(sess *progress.Session, method string, err error) {
	emit(sess, progress.PhaseFailed, progress.StatusFailed,
		truncate(fmt.Sprintf("All parsing methods failed: %v", err), 150),
		progress.WithMethod(method), progress.WithError(err.Error()),
		progress.WithSuggestions(ErrorSuggestions(err)...))
}

// browserWorthRetrying reports whether a non-protection failure still
// justifies the browser fallback
func browserWorthRetrying(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, ind := range []string{"403", "forbidden", "timeout", "connection"} {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

// ErrorSuggestions maps a parse failure to user-facing next steps
func ErrorSuggestions(err error) []string {
	var protErr *fetch.ProtectionError
	if errors.As(err, &protErr) {
		return []string{
			"Try a different URL",
			"Copy and paste the recipe text manually",
			"Website may have strong protection",
		}
	}
	if fetch.IsTerminal(err) {
		return []string{"Check the URL and try again", "The page may have moved or been deleted"}
	}
	return []string{"Try again later", "Copy and paste the recipe text manually"}
}

func emit(sess *progress.Session, phase progress.Phase, status progress.Status, msg string, opts ...progress.EventOption) {
	if sess == nil {
		return
	}
	sess.Emit(phase, status, msg, opts...)
}

func domainOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Hostname()
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
