package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/plateful/plateful/pkg/fetch"
	"github.com/plateful/plateful/pkg/parser"
	"github.com/plateful/plateful/pkg/recipe"
	"github.com/plateful/plateful/pkg/validate"
)

// sseKeepalive is how often comment lines are sent to keep idle streams open
const sseKeepalive = 30 * time.Second

type parseURLRequest struct {
	URL string `json:"url"`
}

type parseCaptionRequest struct {
	Text string `json:"text"`
}

type parseCaptionBatchRequest struct {
	Captions []string `json:"captions"`
}

// parseURLHandler parses a recipe URL synchronously and returns the
// validation record
func (s *Server) parseURLHandler(w http.ResponseWriter, r *http.Request) {
	var req parseURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		renderError(w, r, fmt.Errorf("url is required"), http.StatusBadRequest)
		return
	}

	rec, err := s.urls.Parse(r.Context(), req.URL, nil)
	if err != nil {
		s.renderParseError(w, r, err)
		return
	}

	record := s.pipeline.Validate(rec, req.URL, map[string]any{"source": "url"})
	renderJSON(w, r, http.StatusOK, record)
}

// renderParseError maps parse failures to HTTP responses, protection pages
// get 403 plus suggestions so clients can prompt for manual entry
func (s *Server) renderParseError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusBadRequest
	var protErr *fetch.ProtectionError
	if errors.As(err, &protErr) {
		code = http.StatusForbidden
	}
	renderJSON(w, r, code, map[string]any{
		"error":       err.Error(),
		"suggestions": parser.ErrorSuggestions(err),
	})
}

// streamURLHandler parses a URL while streaming progress over SSE. The
// terminal message is a result event with the validation record, or an error
// event with suggestions.
func (s *Server) streamURLHandler(w http.ResponseWriter, r *http.Request) {
	var req parseURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		renderError(w, r, fmt.Errorf("url is required"), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		renderError(w, r, fmt.Errorf("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess := s.sessions.Create(req.URL)
	defer s.sessions.Cleanup(sess.ID)

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	type outcome struct {
		rec *recipe.Recipe
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		rec, err := s.urls.Parse(r.Context(), req.URL, sess)
		done <- outcome{rec: rec, err: err}
	}()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Printf("[DEBUG] stream client disconnected for %s", req.URL)
			return

		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()

		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(w, "", ev)
			flusher.Flush()
			if !ev.Terminal() {
				continue
			}

			// terminal progress event seen, deliver the final payload
			out := <-done
			if out.err != nil {
				writeSSE(w, "error", map[string]any{
					"error":       out.err.Error(),
					"suggestions": parser.ErrorSuggestions(out.err),
				})
				flusher.Flush()
				return
			}
			record := s.pipeline.Validate(out.rec, req.URL, map[string]any{"source": "url"})
			writeSSE(w, "result", record)
			flusher.Flush()
			return
		}
	}
}

// writeSSE writes one server-sent event, with an optional event name
func writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("[ERROR] can't encode SSE payload: %v", err)
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

// parseCaptionHandler extracts a recipe from free caption text
func (s *Server) parseCaptionHandler(w http.ResponseWriter, r *http.Request) {
	var req parseCaptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		renderError(w, r, fmt.Errorf("text is required"), http.StatusBadRequest)
		return
	}

	rec, err := s.captions.Parse(req.Text)
	if err != nil {
		renderError(w, r, err, http.StatusBadRequest)
		return
	}

	record := s.pipeline.Validate(rec, "caption", map[string]any{"source": "caption"})
	renderJSON(w, r, http.StatusOK, record)
}

// parseCaptionBatchHandler parses several captions concurrently, one result
// per caption in input order
func (s *Server) parseCaptionBatchHandler(w http.ResponseWriter, r *http.Request) {
	var req parseCaptionBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Captions) == 0 {
		renderError(w, r, fmt.Errorf("captions are required"), http.StatusBadRequest)
		return
	}
	if len(req.Captions) > s.maxBatch {
		renderError(w, r, fmt.Errorf("too many captions, limit is %d", s.maxBatch), http.StatusBadRequest)
		return
	}

	type batchResult struct {
		Record *validate.Record `json:"record,omitempty"`
		Error  string           `json:"error,omitempty"`
	}
	results := make([]batchResult, len(req.Captions))

	g, _ := errgroup.WithContext(r.Context())
	g.SetLimit(s.maxConcurrent)
	for i, caption := range req.Captions {
		g.Go(func() error {
			rec, err := s.captions.Parse(caption)
			if err != nil {
				results[i] = batchResult{Error: err.Error()}
				return nil
			}
			record := s.pipeline.Validate(rec, "caption", map[string]any{"source": "caption", "batch_index": i})
			results[i] = batchResult{Record: record}
			return nil
		})
	}
	_ = g.Wait() // workers report per-item errors in results

	renderJSON(w, r, http.StatusOK, map[string]any{"results": results})
}
