package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/plateful/plateful/pkg/fetch"
	"github.com/plateful/plateful/pkg/progress"
	"github.com/plateful/plateful/pkg/recipe"
	"github.com/plateful/plateful/pkg/validate"
)

//go:generate moq -out mocks/config.go -pkg mocks -skip-ensure -fmt goimports . ConfigProvider
//go:generate moq -out mocks/url_parser.go -pkg mocks -skip-ensure -fmt goimports . URLParser
//go:generate moq -out mocks/caption_parser.go -pkg mocks -skip-ensure -fmt goimports . CaptionParser

// Server represents HTTP server instance
type Server struct {
	config   ConfigProvider
	urls     URLParser
	captions CaptionParser
	pipeline *validate.Pipeline
	sessions *progress.Manager
	metrics  *fetch.Metrics
	limiter  *fetch.RateLimiter
	version  string
	debug    bool

	maxBatch      int
	maxConcurrent int

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// URLParser runs the extraction chain for a recipe URL
type URLParser interface {
	Parse(ctx context.Context, rawURL string, sess *progress.Session) (*recipe.Recipe, error)
}

// CaptionParser extracts a recipe from free caption text
type CaptionParser interface {
	Parse(text string) (*recipe.Recipe, error)
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// Options bundles the collaborators the server routes traffic to
type Options struct {
	Config        ConfigProvider
	URLs          URLParser
	Captions      CaptionParser
	Pipeline      *validate.Pipeline
	Sessions      *progress.Manager
	Metrics       *fetch.Metrics
	Limiter       *fetch.RateLimiter // optional, adds per-domain delays to /metrics
	Version       string
	Debug         bool
	MaxBatch      int // captions per batch request
	MaxConcurrent int // concurrent caption parses per batch
}

// New initializes a new server instance
func New(opts Options) *Server {
	if opts.MaxBatch <= 0 {
		opts.MaxBatch = 10
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	s := &Server{
		config:        opts.Config,
		urls:          opts.URLs,
		captions:      opts.Captions,
		pipeline:      opts.Pipeline,
		sessions:      opts.Sessions,
		metrics:       opts.Metrics,
		limiter:       opts.Limiter,
		version:       opts.Version,
		debug:         opts.Debug,
		maxBatch:      opts.MaxBatch,
		maxConcurrent: opts.MaxConcurrent,
		router:        routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:        listen,
		Handler:     s.router,
		ReadTimeout: timeout,
		// no write timeout, SSE streams stay open until the parse finishes
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("plateful", "plateful", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("GET /metrics", s.metricsHandler)

		r.HandleFunc("POST /parse/url", s.parseURLHandler)
		r.HandleFunc("POST /parse/url/stream", s.streamURLHandler)
		r.HandleFunc("POST /parse/caption", s.parseCaptionHandler)
		r.HandleFunc("POST /parse/caption/batch", s.parseCaptionBatchHandler)

		r.HandleFunc("GET /validation/pending", s.pendingHandler)
		r.HandleFunc("GET /validation/summary", s.validationSummaryHandler)
		r.HandleFunc("GET /validation/{id}", s.validationRecordHandler)
		r.HandleFunc("POST /validation/{id}/approve", s.approveHandler)
		r.HandleFunc("POST /validation/{id}/reject", s.rejectHandler)

		r.HandleFunc("GET /progress/sessions", s.progressSessionsHandler)
		r.HandleFunc("GET /progress/sessions/{id}", s.progressSessionHandler)
	})
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// metricsHandler reports per-method and per-domain fetch statistics
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	methods, domains := s.metrics.Snapshot()
	payload := map[string]interface{}{
		"methods":         methods,
		"domains":         domains,
		"recommendations": s.metrics.Recommendations(),
	}
	if s.limiter != nil {
		payload["rate_limits"] = s.limiter.Stats()
	}
	renderJSON(w, r, http.StatusOK, payload)
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}
