package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plateful/plateful/pkg/fetch"
	"github.com/plateful/plateful/pkg/progress"
	"github.com/plateful/plateful/pkg/recipe"
	"github.com/plateful/plateful/pkg/validate"
)

type stubConfig struct{}

func (stubConfig) GetServerConfig() (string, time.Duration) { return "127.0.0.1:0", 5 * time.Second }

type stubURLs struct {
	rec    *recipe.Recipe
	err    error
	called int
}

func (s *stubURLs) Parse(_ context.Context, _ string, sess *progress.Session) (*recipe.Recipe, error) {
	s.called++
	if sess != nil {
		sess.Emit(progress.PhaseInitializing, progress.StatusInProgress, "starting extraction")
		sess.Emit(progress.PhaseTryingScrapers, progress.StatusInProgress, "trying recipe scrapers")
		if s.err != nil {
			sess.Emit(progress.PhaseFailed, progress.StatusFailed, "extraction failed")
			return nil, s.err
		}
		sess.Emit(progress.PhaseCompleted, progress.StatusSuccess, "extraction complete")
	}
	return s.rec, s.err
}

type stubCaptions struct {
	rec *recipe.Recipe
	err error
}

func (s *stubCaptions) Parse(string) (*recipe.Recipe, error) { return s.rec, s.err }

func fullRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Title:       "Weeknight Pasta",
		Description: "Fast pantry pasta for busy evenings",
		SourceType:  recipe.SourceWebsite,
		SourceURL:   "https://example.com/pasta",
		PrepTime:    5,
		CookTime:    15,
		TotalTime:   20,
		Servings:    2,
		IngredientsHTML: "<ul><li>200g spaghetti</li><li>2 cloves garlic</li>" +
			"<li>3 tbsp olive oil</li></ul>",
		InstructionsHTML: "<ol><li>Boil pasta.</li><li>Fry garlic in oil.</li>" +
			"<li>Toss together and serve.</li></ol>",
		Confidence: 0.9,
	}
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.Config == nil {
		opts.Config = stubConfig{}
	}
	if opts.Pipeline == nil {
		opts.Pipeline = validate.NewPipeline()
	}
	if opts.Sessions == nil {
		opts.Sessions = progress.NewManager()
	}
	if opts.Metrics == nil {
		opts.Metrics = fetch.NewMetrics()
	}
	if opts.Version == "" {
		opts.Version = "test"
	}
	srv := New(opts)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return srv, ts
}

func decodeBody(t *testing.T, body io.Reader, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(body).Decode(dst))
}

func TestServer_Status(t *testing.T) {
	_, ts := newTestServer(t, Options{Version: "1.2.3"})

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status map[string]any
	decodeBody(t, resp.Body, &status)
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, "1.2.3", status["version"])
}

func TestServer_Ping(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong", strings.TrimSpace(string(body)))
}

func TestServer_Metrics(t *testing.T) {
	metrics := fetch.NewMetrics()
	metrics.RecordSuccess("scraper", "example.com")
	metrics.RecordFailure("manual-http", "blocked.example.com", true)
	limiter := fetch.NewRateLimiter(10*time.Millisecond, 100*time.Millisecond)
	limiter.RecordFailure("blocked.example.com", false)
	_, ts := newTestServer(t, Options{Metrics: metrics, Limiter: limiter})

	resp, err := http.Get(ts.URL + "/api/v1/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Methods    map[string]fetch.MethodStats `json:"methods"`
		Domains    map[string]fetch.MethodStats `json:"domains"`
		RateLimits map[string]fetch.DomainDelay `json:"rate_limits"`
	}
	decodeBody(t, resp.Body, &payload)
	assert.Equal(t, 1, payload.Methods["scraper"].Successes)
	assert.Equal(t, 1, payload.Methods["manual-http"].Failures)
	assert.Contains(t, payload.Domains, "example.com")
	assert.Equal(t, 1, payload.RateLimits["blocked.example.com"].Failures)
}

func TestServer_ParseURL(t *testing.T) {
	urls := &stubURLs{rec: fullRecipe()}
	_, ts := newTestServer(t, Options{URLs: urls})

	resp, err := http.Post(ts.URL+"/api/v1/parse/url", "application/json",
		strings.NewReader(`{"url":"https://example.com/pasta"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record validate.Record
	decodeBody(t, resp.Body, &record)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, validate.StatusApproved, record.Status)
	assert.Equal(t, "https://example.com/pasta", record.Source)
	require.NotNil(t, record.Recipe)
	assert.Equal(t, "Weeknight Pasta", record.Recipe.Title)
	assert.Equal(t, 1, urls.called)
}

func TestServer_ParseURL_BadRequest(t *testing.T) {
	_, ts := newTestServer(t, Options{URLs: &stubURLs{rec: fullRecipe()}})

	for _, body := range []string{"", "{}", `{"url":"  "}`, "not json"} {
		resp, err := http.Post(ts.URL+"/api/v1/parse/url", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
	}
}

func TestServer_ParseURL_Protection(t *testing.T) {
	urls := &stubURLs{err: &fetch.ProtectionError{
		Domain: "blocked.example.com", Method: "manual-http", Reason: "cloudflare challenge",
	}}
	_, ts := newTestServer(t, Options{URLs: urls})

	resp, err := http.Post(ts.URL+"/api/v1/parse/url", "application/json",
		strings.NewReader(`{"url":"https://blocked.example.com/r"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var payload struct {
		Error       string   `json:"error"`
		Suggestions []string `json:"suggestions"`
	}
	decodeBody(t, resp.Body, &payload)
	assert.Contains(t, payload.Error, "site protection detected")
	assert.NotEmpty(t, payload.Suggestions)
}

func TestServer_ParseURL_GenericFailure(t *testing.T) {
	urls := &stubURLs{err: fmt.Errorf("connection reset")}
	_, ts := newTestServer(t, Options{URLs: urls})

	resp, err := http.Post(ts.URL+"/api/v1/parse/url", "application/json",
		strings.NewReader(`{"url":"https://example.com/r"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ParseCaption(t *testing.T) {
	_, ts := newTestServer(t, Options{Captions: &stubCaptions{rec: fullRecipe()}})

	resp, err := http.Post(ts.URL+"/api/v1/parse/caption", "application/json",
		strings.NewReader(`{"text":"Easy pasta! 200g spaghetti..."}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var record validate.Record
	decodeBody(t, resp.Body, &record)
	assert.Equal(t, "caption", record.Source)
	require.NotNil(t, record.Recipe)
}

func TestServer_ParseCaptionBatch(t *testing.T) {
	_, ts := newTestServer(t, Options{Captions: &stubCaptions{rec: fullRecipe()}, MaxBatch: 3})

	resp, err := http.Post(ts.URL+"/api/v1/parse/caption/batch", "application/json",
		strings.NewReader(`{"captions":["first recipe text","second recipe text"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Results []struct {
			Record *validate.Record `json:"record"`
			Error  string           `json:"error"`
		} `json:"results"`
	}
	decodeBody(t, resp.Body, &payload)
	require.Len(t, payload.Results, 2)
	for _, res := range payload.Results {
		assert.Empty(t, res.Error)
		require.NotNil(t, res.Record)
		assert.Equal(t, "caption", res.Record.Source)
	}
}

func TestServer_ParseCaptionBatch_Errors(t *testing.T) {
	_, ts := newTestServer(t, Options{Captions: &stubCaptions{err: fmt.Errorf("empty caption text")}})

	resp, err := http.Post(ts.URL+"/api/v1/parse/caption/batch", "application/json",
		strings.NewReader(`{"captions":["whatever"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Results []struct {
			Error string `json:"error"`
		} `json:"results"`
	}
	decodeBody(t, resp.Body, &payload)
	require.Len(t, payload.Results, 1)
	assert.Equal(t, "empty caption text", payload.Results[0].Error)
}

func TestServer_ParseCaptionBatch_OverLimit(t *testing.T) {
	_, ts := newTestServer(t, Options{Captions: &stubCaptions{rec: fullRecipe()}, MaxBatch: 2})

	resp, err := http.Post(ts.URL+"/api/v1/parse/caption/batch", "application/json",
		strings.NewReader(`{"captions":["a","b","c"]}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payload map[string]string
	decodeBody(t, resp.Body, &payload)
	assert.Contains(t, payload["error"], "limit is 2")
}

func TestServer_ValidationFlow(t *testing.T) {
	pipeline := validate.NewPipeline()
	lowConf := fullRecipe()
	lowConf.Confidence = 0.4
	_, ts := newTestServer(t, Options{URLs: &stubURLs{rec: lowConf}, Pipeline: pipeline})

	// parsing a low-confidence recipe queues it for review
	resp, err := http.Post(ts.URL+"/api/v1/parse/url", "application/json",
		strings.NewReader(`{"url":"https://example.com/pasta"}`))
	require.NoError(t, err)
	var queued validate.Record
	decodeBody(t, resp.Body, &queued)
	resp.Body.Close()
	require.Equal(t, validate.StatusNeedsReview, queued.Status)

	resp, err = http.Get(ts.URL + "/api/v1/validation/pending")
	require.NoError(t, err)
	var pending struct {
		Records []validate.Record `json:"records"`
		Count   int               `json:"count"`
	}
	decodeBody(t, resp.Body, &pending)
	resp.Body.Close()
	require.Equal(t, 1, pending.Count)
	assert.Equal(t, queued.ID, pending.Records[0].ID)

	resp, err = http.Get(ts.URL + "/api/v1/validation/" + queued.ID)
	require.NoError(t, err)
	var fetched validate.Record
	decodeBody(t, resp.Body, &fetched)
	resp.Body.Close()
	assert.Equal(t, queued.ID, fetched.ID)

	resp, err = http.Get(ts.URL + "/api/v1/validation/summary")
	require.NoError(t, err)
	var summary validate.SummaryData
	decodeBody(t, resp.Body, &summary)
	resp.Body.Close()
	assert.Equal(t, 1, summary.TotalPending)

	// approve with edits bumps confidence and removes the record from the queue
	resp, err = http.Post(ts.URL+"/api/v1/validation/"+queued.ID+"/approve", "application/json",
		strings.NewReader(`{"edits":{"title":"Corrected Pasta","servings":4}}`))
	require.NoError(t, err)
	var approved validate.Record
	decodeBody(t, resp.Body, &approved)
	resp.Body.Close()
	assert.Equal(t, validate.StatusApproved, approved.Status)
	assert.Equal(t, "Corrected Pasta", approved.Recipe.Title)
	assert.Equal(t, 4, approved.Recipe.Servings)
	assert.InDelta(t, 0.7, approved.Recipe.Confidence, 0.001)

	resp, err = http.Get(ts.URL + "/api/v1/validation/" + queued.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ValidationReject(t *testing.T) {
	pipeline := validate.NewPipeline()
	lowConf := fullRecipe()
	lowConf.Confidence = 0.3
	record := pipeline.Validate(lowConf, "https://example.com/pasta", nil)
	_, ts := newTestServer(t, Options{Pipeline: pipeline})

	resp, err := http.Post(ts.URL+"/api/v1/validation/"+record.ID+"/reject", "application/json",
		strings.NewReader(`{"reason":"wrong recipe entirely"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rejected validate.Record
	decodeBody(t, resp.Body, &rejected)
	assert.Equal(t, validate.StatusRejected, rejected.Status)
	require.NotEmpty(t, rejected.Issues)
	last := rejected.Issues[len(rejected.Issues)-1]
	assert.Equal(t, "user_rejected", last.Type)
	assert.Contains(t, last.Message, "wrong recipe entirely")
}

func TestServer_ValidationNotFound(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/api/v1/validation/no-such-id")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/v1/validation/no-such-id/approve", "application/json", http.NoBody)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/v1/validation/no-such-id/reject", "application/json", http.NoBody)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_PendingLimit(t *testing.T) {
	pipeline := validate.NewPipeline()
	for i := 0; i < 5; i++ {
		rec := fullRecipe()
		rec.Confidence = 0.4
		pipeline.Validate(rec, fmt.Sprintf("https://example.com/r%d", i), nil)
	}
	_, ts := newTestServer(t, Options{Pipeline: pipeline})

	resp, err := http.Get(ts.URL + "/api/v1/validation/pending?limit=2")
	require.NoError(t, err)
	var pending struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp.Body, &pending)
	resp.Body.Close()
	assert.Equal(t, 2, pending.Count)

	resp, err = http.Get(ts.URL + "/api/v1/validation/pending?limit=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_ProgressSessions(t *testing.T) {
	sessions := progress.NewManager()
	sess := sessions.Create("https://example.com/pasta")
	sess.Emit(progress.PhaseInitializing, progress.StatusInProgress, "starting extraction")
	sess.Emit(progress.PhaseTryingScrapers, progress.StatusInProgress, "trying recipe scrapers")
	_, ts := newTestServer(t, Options{Sessions: sessions})

	resp, err := http.Get(ts.URL + "/api/v1/progress/sessions")
	require.NoError(t, err)
	var listing struct {
		Sessions map[string]progress.Summary `json:"sessions"`
		Count    int                         `json:"count"`
	}
	decodeBody(t, resp.Body, &listing)
	resp.Body.Close()
	require.Equal(t, 1, listing.Count)
	assert.Contains(t, listing.Sessions, sess.ID)

	resp, err = http.Get(ts.URL + "/api/v1/progress/sessions/" + sess.ID)
	require.NoError(t, err)
	var detail struct {
		Summary progress.Summary `json:"summary"`
		Events  []progress.Event `json:"events"`
	}
	decodeBody(t, resp.Body, &detail)
	resp.Body.Close()
	assert.Equal(t, "https://example.com/pasta", detail.Summary.URL)
	require.Len(t, detail.Events, 2)
	assert.Equal(t, progress.PhaseTryingScrapers, detail.Events[1].Phase)

	resp, err = http.Get(ts.URL + "/api/v1/progress/sessions/no-such-session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// sseMessage is one decoded server-sent event
type sseMessage struct {
	event string
	data  string
}

func readSSE(t *testing.T, body io.Reader) []sseMessage {
	t.Helper()
	var messages []sseMessage
	var current sseMessage
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.data != "":
			messages = append(messages, current)
			current = sseMessage{}
		}
	}
	return messages
}

func TestServer_StreamURL(t *testing.T) {
	sessions := progress.NewManager()
	_, ts := newTestServer(t, Options{URLs: &stubURLs{rec: fullRecipe()}, Sessions: sessions})

	resp, err := http.Post(ts.URL+"/api/v1/parse/url/stream", "application/json",
		strings.NewReader(`{"url":"https://example.com/pasta"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	messages := readSSE(t, resp.Body)
	require.GreaterOrEqual(t, len(messages), 4) // 3 progress events plus the result

	var phases []progress.Phase
	for _, msg := range messages[:len(messages)-1] {
		var ev progress.Event
		require.NoError(t, json.Unmarshal([]byte(msg.data), &ev))
		phases = append(phases, ev.Phase)
	}
	assert.Equal(t, []progress.Phase{progress.PhaseInitializing, progress.PhaseTryingScrapers,
		progress.PhaseCompleted}, phases)

	final := messages[len(messages)-1]
	require.Equal(t, "result", final.event)
	var record validate.Record
	require.NoError(t, json.Unmarshal([]byte(final.data), &record))
	assert.Equal(t, validate.StatusApproved, record.Status)
	assert.Equal(t, "Weeknight Pasta", record.Recipe.Title)

	// stream sessions are cleaned up once the final payload is delivered
	assert.Empty(t, sessions.Active())
}

func TestServer_StreamURL_Failure(t *testing.T) {
	urls := &stubURLs{err: &fetch.ProtectionError{
		Domain: "blocked.example.com", Method: "browser", Reason: "challenge never cleared",
	}}
	_, ts := newTestServer(t, Options{URLs: urls})

	resp, err := http.Post(ts.URL+"/api/v1/parse/url/stream", "application/json",
		strings.NewReader(`{"url":"https://blocked.example.com/r"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	messages := readSSE(t, resp.Body)
	require.NotEmpty(t, messages)
	final := messages[len(messages)-1]
	require.Equal(t, "error", final.event)

	var payload struct {
		Error       string   `json:"error"`
		Suggestions []string `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal([]byte(final.data), &payload))
	assert.Contains(t, payload.Error, "site protection detected")
	assert.NotEmpty(t, payload.Suggestions)
}

func TestServer_Run(t *testing.T) {
	srv := New(Options{
		Config:   stubConfig{},
		URLs:     &stubURLs{rec: fullRecipe()},
		Captions: &stubCaptions{rec: fullRecipe()},
		Pipeline: validate.NewPipeline(),
		Sessions: progress.NewManager(),
		Metrics:  fetch.NewMetrics(),
		Version:  "test",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
