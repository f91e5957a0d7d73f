package parser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/plateful/plateful/pkg/fetch"
	"github.com/plateful/plateful/pkg/recipe"
)

// stealthScript runs before every page load and hides the usual automation
// giveaways from fingerprinting checks
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
Object.defineProperty(navigator, 'languages', {get: () => ['en-US', 'en']});
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
	parameters.name === 'notifications' ?
		Promise.resolve({state: 'granted'}) : originalQuery(parameters)
);
`

// recipeSelectors are checked after load to wait out lazy-rendered recipe
// cards before capturing the DOM
var recipeSelectors = []string{
	`script[type="application/ld+json"]`,
	`[itemprop="recipeIngredient"]`,
	".recipe-ingredients",
	".wprm-recipe",
	".recipe-card",
	".ingredients",
	".recipe",
}

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

// BrowserOptions configures the headless browser strategy
type BrowserOptions struct {
	Timeout  time.Duration // per-page budget, default 60s
	Headless bool
	Limiter  *fetch.RateLimiter // shared per-domain limiter, created if nil
	Metrics  *fetch.Metrics     // shared metrics, created if nil
}

// BrowserParser renders pages in headless Chrome for sites that block plain
// HTTP. The slowest strategy, used last. It bypasses the shared HTTP client,
// so it records limiter and metrics outcomes itself.
type BrowserParser struct {
	timeout  time.Duration
	headless bool
	limiter  *fetch.RateLimiter
	metrics  *fetch.Metrics
}

func NewBrowserParser(opts BrowserOptions) *BrowserParser {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = fetch.NewRateLimiter(0, 0)
	}
	if opts.Metrics == nil {
		opts.Metrics = fetch.NewMetrics()
	}
	return &BrowserParser{timeout: opts.Timeout, headless: opts.Headless, limiter: opts.Limiter, metrics: opts.Metrics}
}

func (p *BrowserParser) Name() string { return "browser" }

// Available probes whether a Chrome binary can actually be launched. Callers
// should skip the browser strategy entirely when this fails.
func (p *BrowserParser) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(probeCtx, p.execOptions()...)
	defer allocCancel()
	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	var ua string
	if err := chromedp.Run(chromeCtx, chromedp.Evaluate(`navigator.userAgent`, &ua)); err != nil {
		log.Printf("[WARN] browser automation unavailable: %v", err)
		return false
	}
	return ua != ""
}

func (p *BrowserParser) Parse(ctx context.Context, rawURL string) (*recipe.Recipe, error) {
	domain := domainOf(rawURL)
	if err := p.limiter.Wait(ctx, domain); err != nil {
		return nil, &fetch.TerminalError{Err: err}
	}

	html, err := p.render(ctx, rawURL)
	if err != nil {
		err = fmt.Errorf("browser render %s: %w", rawURL, err)
		p.recordFailure(domain, err)
		return nil, err
	}

	rec, err := extractRecipe(html, rawURL, p.Name())
	if err != nil {
		p.recordFailure(domain, err)
		return nil, err
	}
	p.limiter.RecordSuccess(domain)
	p.metrics.RecordSuccess(p.Name(), domain)
	return rec, nil
}

func (p *BrowserParser) recordFailure(domain string, err error) {
	p.limiter.RecordFailure(domain, fetch.IsRateLimited(err))
	var protErr *fetch.ProtectionError
	p.metrics.RecordFailure(p.Name(), domain, errors.As(err, &protErr))
}

// render loads the page and returns the final DOM after dynamic content
// settles. Allocator and browser contexts are torn down before returning.
func (p *BrowserParser) render(parentCtx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(parentCtx, p.timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, p.execOptions()...)
	defer allocCancel()
	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	var html string
	err := chromedp.Run(chromeCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
		waitForRecipeContent(5*time.Second),
		humanBehavior(),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (p *BrowserParser) execOptions() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", p.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.UserAgent(browserUserAgent),
		chromedp.WindowSize(1920, 1080),
	}
}

// waitForRecipeContent polls for any known recipe selector until the budget
// runs out. A miss is not an error, the page may still be parseable.
func waitForRecipeContent(budget time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.Now().Add(budget)
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()

		for time.Now().Before(deadline) {
			for _, sel := range recipeSelectors {
				var found bool
				expr := fmt.Sprintf(`document.querySelector(%q) !== null`, sel)
				if err := chromedp.Evaluate(expr, &found).Do(ctx); err != nil {
					return err
				}
				if found {
					return nil
				}
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

// humanBehavior scrolls halfway and moves the mouse, some sites gate content
// on interaction signals
func humanBehavior() chromedp.Action {
	return chromedp.Tasks{
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight/2)`, nil),
		chromedp.Sleep(500 * time.Millisecond),
		input.DispatchMouseEvent(input.MouseMoved, 100, 100),
		chromedp.Sleep(250 * time.Millisecond),
		input.DispatchMouseEvent(input.MouseMoved, 200, 200),
	}
}
