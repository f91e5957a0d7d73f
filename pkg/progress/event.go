// Package progress tracks multi-phase extraction runs and fans events out to
// streaming subscribers.
package progress

import "time"

// Phase identifies a stage of the extraction pipeline, in execution order
type Phase string

const (
	PhaseInitializing   Phase = "initializing"
	PhaseRateLimiting   Phase = "rate_limiting"
	PhaseTryingScrapers Phase = "trying_scrapers"
	PhaseScrapersFailed Phase = "scrapers_failed"
	PhaseTryingManual   Phase = "trying_manual"
	PhaseManualBlocked  Phase = "manual_blocked"
	PhaseTryingBrowser  Phase = "trying_browser"
	PhaseParsingContent Phase = "parsing_content"
	PhaseValidating     Phase = "validating"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
)

// phaseOrder lists phases in pipeline order for progress interpolation
var phaseOrder = []Phase{
	PhaseInitializing,
	PhaseRateLimiting,
	PhaseTryingScrapers,
	PhaseScrapersFailed,
	PhaseTryingManual,
	PhaseManualBlocked,
	PhaseTryingBrowser,
	PhaseParsingContent,
	PhaseValidating,
	PhaseCompleted,
	PhaseFailed,
}

// phaseWeights maps each phase to its overall progress percentage on entry
var phaseWeights = map[Phase]int{
	PhaseInitializing:   5,
	PhaseRateLimiting:   10,
	PhaseTryingScrapers: 25,
	PhaseTryingManual:   35,
	PhaseTryingBrowser:  50,
	PhaseParsingContent: 85,
	PhaseValidating:     95,
	PhaseCompleted:      100,
	PhaseFailed:         0,
}

// expectedDurations gives per-phase duration estimates used to interpolate
// progress within a phase and to project remaining time
var expectedDurations = map[Phase]time.Duration{
	PhaseInitializing:   500 * time.Millisecond,
	PhaseRateLimiting:   2 * time.Second,
	PhaseTryingScrapers: 5 * time.Second,
	PhaseTryingManual:   8 * time.Second,
	PhaseTryingBrowser:  15 * time.Second,
	PhaseParsingContent: 2 * time.Second,
	PhaseValidating:     time.Second,
}

// defaultPhaseDuration is assumed for phases without an explicit estimate
const defaultPhaseDuration = 5 * time.Second

// Status describes the state of the operation an event reports on
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusRetrying   Status = "retrying"
)

// Event is a single progress update within an extraction session
type Event struct {
	EventID   string  `json:"event_id"`
	Phase     Phase   `json:"phase"`
	Status    Status  `json:"status"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
	Datetime  string  `json:"datetime"`

	Method        string `json:"method,omitempty"`
	Attempt       int    `json:"attempt,omitempty"`
	TotalAttempts int    `json:"total_attempts,omitempty"`
	DurationMs    int64  `json:"duration_ms"`

	Metadata     map[string]any `json:"metadata,omitempty"`
	ErrorDetails string         `json:"error_details,omitempty"`
	Suggestions  []string       `json:"suggestions,omitempty"`

	ProgressPercent      int   `json:"progress_percent"`
	EstimatedRemainingMs int64 `json:"estimated_remaining_ms"`
}

// Terminal reports whether the event ends its session's stream
func (e Event) Terminal() bool {
	return e.Phase == PhaseCompleted || e.Phase == PhaseFailed
}

func phaseIndex(p Phase) int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}
