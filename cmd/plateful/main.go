package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/plateful/plateful/pkg/config"
	"github.com/plateful/plateful/pkg/fetch"
	"github.com/plateful/plateful/pkg/parser"
	"github.com/plateful/plateful/pkg/progress"
	"github.com/plateful/plateful/pkg/validate"
	"github.com/plateful/plateful/server"
)

// Opts with all CLI options
type Opts struct {
	Config    string `short:"c" long:"config" env:"CONFIG" description:"config file path"`
	NoBrowser bool   `long:"no-browser" env:"NO_BROWSER" description:"disable the headless browser fallback"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	p := flags.NewParser(&opts, flags.Default)
	if _, err := p.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	setupLog(opts.Debug, opts.NoColor)

	log.Printf("[INFO] starting plateful version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Print("[INFO] termination signal received")
		cancel()
	}()

	if err := run(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		cancel()
		os.Exit(1)
	}
	cancel()

	log.Print("[INFO] shutdown complete")
}

func run(ctx context.Context, opts Opts) error {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	fetchCfg := cfg.GetFetchConfig()
	client := fetch.NewClient(fetch.Options{
		Timeout:     fetchCfg.Timeout,
		MaxBodySize: fetchCfg.MaxBodySize,
		Proxies:     fetchCfg.Proxies,
		RateLimit:   fetch.NewRateLimiter(fetchCfg.RateBaseDelay, fetchCfg.RateMaxDelay),
		Retrier:     fetch.NewRetrier(fetchCfg.RetryAttempts, fetchCfg.RetryBase, fetchCfg.RetryMaxDelay),
	})

	// idle cookie sessions accumulate per domain, drop them periodically
	go evictSessions(ctx, client, fetchCfg.SessionEvict)

	browser := makeBrowser(ctx, cfg.GetBrowserConfig(), opts.NoBrowser, client)

	srv := server.New(server.Options{
		Config:   cfg,
		URLs:     parser.NewChain(client, browser),
		Captions: parser.NewCaptionParser(),
		Pipeline: validate.NewPipelineWithThresholds(validate.Thresholds{
			Minimum:     cfg.Validation.Minimum,
			Review:      cfg.Validation.ReviewRequired,
			AutoApprove: cfg.Validation.AutoApprove,
		}),
		Sessions:      progress.NewManager(),
		Metrics:       client.Metrics(),
		Limiter:       client.Limiter(),
		Version:       revision,
		Debug:         opts.Debug,
		MaxBatch:      cfg.Caption.MaxBatch,
		MaxConcurrent: cfg.Caption.MaxConcurrent,
	})

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// makeBrowser returns the browser fallback parser, or nil when it is disabled
// or Chrome cannot be launched. Returning nil here keeps the extraction chain
// on HTTP-only strategies.
func makeBrowser(ctx context.Context, browserCfg config.BrowserConfig, noBrowser bool, client *fetch.Client) parser.Parser {
	if noBrowser || !browserCfg.Enabled() {
		log.Print("[INFO] browser fallback disabled")
		return nil
	}

	bp := parser.NewBrowserParser(parser.BrowserOptions{
		Timeout:  browserCfg.Timeout,
		Headless: !browserCfg.Windowed,
		Limiter:  client.Limiter(),
		Metrics:  client.Metrics(),
	})
	if !bp.Available(ctx) {
		return nil
	}
	log.Print("[INFO] browser fallback enabled")
	return bp
}

// evictSessions drops idle per-domain fetch sessions on the configured interval
func evictSessions(ctx context.Context, client *fetch.Client, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := client.EvictSessions(); n > 0 {
				log.Printf("[DEBUG] evicted %d idle fetch sessions", n)
			}
		}
	}
}

func setupLog(dbg, noColor bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	if !noColor {
		colorizer := lgr.Mapper{
			ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
			WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
			InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
			DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
			CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
			TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
		}
		logOpts = append(logOpts, lgr.Map(colorizer))
	}

	if len(secs) > 0 {
		logOpts = append(logOpts, lgr.Secret(secs...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
