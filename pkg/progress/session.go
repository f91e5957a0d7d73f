package progress

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// subscriberBuffer caps each subscriber's queue; events beyond it are
// dropped rather than blocking the emitter
const subscriberBuffer = 100

// maxHistory bounds how many events a session retains for late subscribers
const maxHistory = 200

// Session tracks one extraction run: its current phase, event history and
// live subscribers. Safe for concurrent use.
type Session struct {
	ID  string
	URL string

	mu           sync.Mutex
	started      time.Time
	counter      int
	currentPhase Phase
	phaseEntered map[Phase]time.Time
	phaseTimes   map[Phase]time.Duration
	events       []Event
	subscribers  []chan Event
	maxPercent   int
}

// NewSession creates a session for tracking one extraction
func NewSession(id, url string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		URL:          url,
		started:      now,
		currentPhase: PhaseInitializing,
		phaseEntered: map[Phase]time.Time{PhaseInitializing: now},
		phaseTimes:   map[Phase]time.Duration{},
	}
}

// Emit records an event for the given phase and delivers it to subscribers.
// Subscribers with full queues miss the event instead of blocking emission.
func (s *Session) Emit(phase Phase, status Status, message string, opts ...EventOption) Event {
	s.mu.Lock()

	now := time.Now()
	if phase != s.currentPhase {
		if entered, ok := s.phaseEntered[s.currentPhase]; ok {
			s.phaseTimes[s.currentPhase] = now.Sub(entered)
		}
		s.currentPhase = phase
		s.phaseEntered[phase] = now
	}

	s.counter++
	ev := Event{
		EventID:              fmt.Sprintf("%s-%d", s.ID, s.counter),
		Phase:                phase,
		Status:               status,
		Message:              message,
		Timestamp:            float64(now.UnixNano()) / float64(time.Second),
		Datetime:             now.Format(time.RFC3339),
		DurationMs:           now.Sub(s.started).Milliseconds(),
		ProgressPercent:      s.progressPercentLocked(now),
		EstimatedRemainingMs: s.remainingLocked(now),
	}
	for _, opt := range opts {
		opt(&ev)
	}

	// percent never goes backwards within a session, except on failure
	if ev.Phase != PhaseFailed {
		if ev.ProgressPercent < s.maxPercent {
			ev.ProgressPercent = s.maxPercent
		}
		s.maxPercent = ev.ProgressPercent
	}

	s.events = append(s.events, ev)
	if len(s.events) > maxHistory {
		s.events = s.events[len(s.events)-maxHistory:]
	}

	subscribers := make([]chan Event, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	for _, sub := range subscribers {
		select {
		case sub <- ev:
		default:
			log.Printf("[WARN] progress queue full for session %s, event dropped", s.ID)
		}
	}
	return ev
}

// EventOption attaches optional detail to an emitted event
type EventOption func(*Event)

// WithMethod records which fetch method produced the event
func WithMethod(method string) EventOption {
	return func(e *Event) { e.Method = method }
}

// WithAttempt records retry position
func WithAttempt(attempt, total int) EventOption {
	return func(e *Event) { e.Attempt = attempt; e.TotalAttempts = total }
}

// WithMetadata attaches structured context
func WithMetadata(md map[string]any) EventOption {
	return func(e *Event) { e.Metadata = md }
}

// WithError attaches failure detail
func WithError(details string) EventOption {
	return func(e *Event) { e.ErrorDetails = details }
}

// WithSuggestions attaches operator hints for a failure
func WithSuggestions(suggestions ...string) EventOption {
	return func(e *Event) { e.Suggestions = suggestions }
}

// Subscribe returns a channel of future events plus a replay of history so
// late subscribers see the whole run. The cancel func must be called when
// done.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	// history goes into the buffer before the subscriber registers, still
	// under the lock, so a concurrent Emit cannot slip a live event ahead
	// of the replay
	s.mu.Lock()
	history := s.events
	if len(history) > subscriberBuffer/2 {
		history = history[len(history)-subscriberBuffer/2:]
	}
	for _, ev := range history {
		ch <- ev
	}
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subscribers {
			if sub == ch {
				s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}

// Events returns a copy of the session's retained history
func (s *Session) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Summary describes the session's aggregate state
type Summary struct {
	SessionID            string             `json:"session_id"`
	URL                  string             `json:"url"`
	StartTime            float64            `json:"start_time"`
	TotalDurationMs      int64              `json:"total_duration_ms"`
	CurrentPhase         Phase              `json:"current_phase"`
	TotalEvents          int                `json:"total_events"`
	ProgressPercent      int                `json:"progress_percent"`
	EstimatedRemainingMs int64              `json:"estimated_remaining_ms"`
	PhaseDurations       map[string]float64 `json:"phase_durations"`
}

// Summary returns the session's aggregate state
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	durations := make(map[string]float64, len(s.phaseTimes))
	for phase, d := range s.phaseTimes {
		durations[string(phase)] = d.Seconds()
	}

	percent := s.progressPercentLocked(now)
	if s.currentPhase != PhaseFailed && percent < s.maxPercent {
		percent = s.maxPercent
	}

	return Summary{
		SessionID:            s.ID,
		URL:                  s.URL,
		StartTime:            float64(s.started.UnixNano()) / float64(time.Second),
		TotalDurationMs:      now.Sub(s.started).Milliseconds(),
		CurrentPhase:         s.currentPhase,
		TotalEvents:          len(s.events),
		ProgressPercent:      percent,
		EstimatedRemainingMs: s.remainingLocked(now),
		PhaseDurations:       durations,
	}
}

// Done reports whether the session has reached a terminal phase
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPhase == PhaseCompleted || s.currentPhase == PhaseFailed
}

// progressPercentLocked interpolates between the current phase's weight and
// the next phase's weight based on elapsed time in phase
func (s *Session) progressPercentLocked(now time.Time) int {
	base := phaseWeights[s.currentPhase]
	if s.currentPhase == PhaseCompleted || s.currentPhase == PhaseFailed {
		return base
	}

	if entered, ok := s.phaseEntered[s.currentPhase]; ok {
		expected := expectedDurations[s.currentPhase]
		if expected == 0 {
			expected = defaultPhaseDuration
		}
		frac := float64(now.Sub(entered)) / float64(expected)
		if frac > 1 {
			frac = 1
		}

		if idx := phaseIndex(s.currentPhase); idx >= 0 && idx < len(phaseOrder)-1 {
			next := phaseOrder[idx+1]
			nextWeight, ok := phaseWeights[next]
			if !ok {
				nextWeight = base + 10
			}
			base += int(float64(nextWeight-base) * frac)
		}
	}

	if base > 100 {
		base = 100
	}
	if base < 0 {
		base = 0
	}
	return base
}

// remainingLocked projects remaining time from the per-phase estimates
func (s *Session) remainingLocked(now time.Time) int64 {
	if s.currentPhase == PhaseCompleted || s.currentPhase == PhaseFailed {
		return 0
	}

	var remaining time.Duration
	if entered, ok := s.phaseEntered[s.currentPhase]; ok {
		expected := expectedDurations[s.currentPhase]
		if expected == 0 {
			expected = defaultPhaseDuration
		}
		if left := expected - now.Sub(entered); left > 0 {
			remaining += left
		}
	}

	idx := phaseIndex(s.currentPhase)
	for i := idx + 1; i >= 0 && i < len(phaseOrder); i++ {
		phase := phaseOrder[i]
		if phase == PhaseCompleted || phase == PhaseFailed {
			break
		}
		if expected, ok := expectedDurations[phase]; ok {
			remaining += expected
		} else {
			remaining += defaultPhaseDuration
		}
	}
	return remaining.Milliseconds()
}
