// Package validate reviews extracted recipes: automated quality checks first,
// then a human approve/reject queue for anything not auto-approved.
package validate

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plateful/plateful/pkg/recipe"
)

// Status is the review state of an extracted recipe
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusNeedsReview Status = "needs_review"
)

// Thresholds are the confidence levels dividing auto-approval, review and
// rejection advice
type Thresholds struct {
	Minimum     float64 // below this confidence is an error
	Review      float64 // below this warns and queues for review
	AutoApprove float64 // at or above this may auto-approve
}

// DefaultThresholds returns the stock confidence thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{Minimum: 0.2, Review: 0.5, AutoApprove: 0.8}
}

// Issue is one problem found while checking a recipe
type Issue struct {
	Type       string `json:"type"`
	Severity   string `json:"severity"` // "error", "warning" or "info"
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Record is a validated recipe with its review state
type Record struct {
	ID        string         `json:"id"`
	Recipe    *recipe.Recipe `json:"parsed_recipe"`
	Status    Status         `json:"validation_status"`
	Issues    []Issue        `json:"issues"`
	CreatedAt time.Time      `json:"created_at"`
	Source    string         `json:"original_source"`
	Metadata  map[string]any `json:"parsing_metadata,omitempty"`
}

// ErrNotFound is returned when a validation record is not in the pending set
var ErrNotFound = fmt.Errorf("validation record not found")

// Pipeline runs quality checks over extracted recipes and keeps the queue of
// records awaiting human review. Safe for concurrent use.
type Pipeline struct {
	thresholds Thresholds

	mu      sync.Mutex
	pending map[string]*Record
}

// NewPipeline creates a pipeline with the default thresholds and an empty
// review queue
func NewPipeline() *Pipeline {
	return NewPipelineWithThresholds(DefaultThresholds())
}

// NewPipelineWithThresholds creates a pipeline with custom confidence
// thresholds, zero values fall back to the defaults
func NewPipelineWithThresholds(t Thresholds) *Pipeline {
	defaults := DefaultThresholds()
	if t.Minimum <= 0 {
		t.Minimum = defaults.Minimum
	}
	if t.Review <= 0 {
		t.Review = defaults.Review
	}
	if t.AutoApprove <= 0 {
		t.AutoApprove = defaults.AutoApprove
	}
	return &Pipeline{thresholds: t, pending: make(map[string]*Record)}
}

// Validate checks a recipe, assigns its review status and queues it when it
// needs human attention
func (p *Pipeline) Validate(rec *recipe.Recipe, source string, metadata map[string]any) *Record {
	var issues []Issue
	issues = append(issues, checkRequiredFields(rec)...)
	issues = append(issues, p.checkConfidence(rec)...)
	issues = append(issues, checkContentQuality(rec)...)
	issues = append(issues, checkConsistency(rec)...)

	record := &Record{
		ID:        uuid.New().String(),
		Recipe:    rec,
		Status:    p.determineStatus(rec, issues),
		Issues:    issues,
		CreatedAt: time.Now().UTC(),
		Source:    source,
		Metadata:  metadata,
	}

	if record.Status == StatusPending || record.Status == StatusNeedsReview {
		p.mu.Lock()
		p.pending[record.ID] = record
		p.mu.Unlock()
	}
	return record
}

// Get returns a pending record by id
func (p *Pipeline) Get(id string) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	record, ok := p.pending[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record, nil
}

// Approve marks a pending record approved and removes it from the queue.
// Optional user edits are applied first; an edited recipe gets a confidence
// bump since a person has reviewed it.
func (p *Pipeline) Approve(id string, edits map[string]any) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.pending[id]
	if !ok {
		return nil, ErrNotFound
	}

	if len(edits) > 0 {
		applyEdits(record.Recipe, edits)
		record.Recipe.Confidence = min(record.Recipe.Confidence+0.3, 1.0)
	}
	record.Status = StatusApproved
	delete(p.pending, id)
	return record, nil
}

// Reject marks a pending record rejected with a reason and removes it from
// the queue
func (p *Pipeline) Reject(id, reason string) (*Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.pending[id]
	if !ok {
		return nil, ErrNotFound
	}

	record.Status = StatusRejected
	record.Issues = append(record.Issues, Issue{
		Type:       "user_rejected",
		Severity:   "error",
		Message:    fmt.Sprintf("Rejected by user: %s", reason),
		Suggestion: "Manual entry may be required",
	})
	delete(p.pending, id)
	return record, nil
}

// ListPending returns up to limit records awaiting review
func (p *Pipeline) ListPending(limit int) []*Record {
	if limit <= 0 {
		limit = 50
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*Record, 0, len(p.pending))
	for _, record := range p.pending {
		out = append(out, record)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// SummaryData aggregates the review queue state
type SummaryData struct {
	TotalPending    int                `json:"total_pending"`
	StatusBreakdown map[Status]int     `json:"status_breakdown"`
	CommonIssues    map[string]int     `json:"common_issues"`
	Thresholds      map[string]float64 `json:"thresholds"`
}

// Summary reports queue size, status counts and the most common issues
func (p *Pipeline) Summary() SummaryData {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make(map[Status]int)
	issues := make(map[string]int)
	for _, record := range p.pending {
		statuses[record.Status]++
		for _, issue := range record.Issues {
			issues[issue.Type]++
		}
	}

	return SummaryData{
		TotalPending:    len(p.pending),
		StatusBreakdown: statuses,
		CommonIssues:    issues,
		Thresholds: map[string]float64{
			"minimum":         p.thresholds.Minimum,
			"review_required": p.thresholds.Review,
			"auto_approve":    p.thresholds.AutoApprove,
		},
	}
}

func checkRequiredFields(rec *recipe.Recipe) []Issue {
	var issues []Issue

	if len(strings.TrimSpace(rec.Title)) < 3 {
		issues = append(issues, Issue{
			Type:       "missing_title",
			Severity:   "error",
			Message:    "Recipe title is missing or too short",
			Field:      "title",
			Suggestion: "Add a descriptive title for the recipe",
		})
	}
	if strings.TrimSpace(rec.IngredientsHTML) == "" {
		issues = append(issues, Issue{
			Type:       "missing_ingredients",
			Severity:   "error",
			Message:    "No ingredients found",
			Field:      "ingredients",
			Suggestion: "Add at least one ingredient",
		})
	}
	if strings.TrimSpace(rec.InstructionsHTML) == "" {
		issues = append(issues, Issue{
			Type:       "missing_instructions",
			Severity:   "error",
			Message:    "No cooking instructions found",
			Field:      "instructions",
			Suggestion: "Add step-by-step cooking instructions",
		})
	}
	return issues
}

func (p *Pipeline) checkConfidence(rec *recipe.Recipe) []Issue {
	switch {
	case rec.Confidence < p.thresholds.Minimum:
		return []Issue{{
			Type:       "very_low_confidence",
			Severity:   "error",
			Message:    fmt.Sprintf("Very low parsing confidence (%.2f)", rec.Confidence),
			Field:      "confidence_score",
			Suggestion: "Consider manual review of all extracted data",
		}}
	case rec.Confidence < p.thresholds.Review:
		return []Issue{{
			Type:       "low_confidence",
			Severity:   "warning",
			Message:    fmt.Sprintf("Low parsing confidence (%.2f)", rec.Confidence),
			Field:      "confidence_score",
			Suggestion: "Review and verify extracted ingredients and instructions",
		}}
	}
	return nil
}

func checkContentQuality(rec *recipe.Recipe) []Issue {
	var issues []Issue

	if strings.TrimSpace(rec.IngredientsHTML) != "" && rec.IngredientCount() == 0 {
		issues = append(issues, Issue{
			Type:       "unformatted_ingredients",
			Severity:   "warning",
			Message:    "Ingredients may not be properly formatted",
			Field:      "ingredients",
			Suggestion: "Consider formatting as a bulleted list",
		})
	}
	if strings.TrimSpace(rec.InstructionsHTML) != "" && rec.InstructionCount() == 0 {
		issues = append(issues, Issue{
			Type:       "unformatted_instructions",
			Severity:   "warning",
			Message:    "Instructions may not be properly formatted",
			Field:      "instructions",
			Suggestion: "Consider formatting as a numbered or bulleted list",
		})
	}

	var missing []string
	if len(strings.TrimSpace(rec.Description)) < 10 {
		missing = append(missing, "description")
	}
	if rec.PrepTime == 0 && rec.CookTime == 0 && rec.TotalTime == 0 {
		missing = append(missing, "timing information")
	}
	if rec.Servings == 0 {
		missing = append(missing, "serving size")
	}
	if len(missing) > 0 {
		issues = append(issues, Issue{
			Type:       "missing_recommended",
			Severity:   "info",
			Message:    fmt.Sprintf("Missing recommended fields: %s", strings.Join(missing, ", ")),
			Suggestion: "Consider adding these fields for a complete recipe",
		})
	}
	return issues
}

func checkConsistency(rec *recipe.Recipe) []Issue {
	var issues []Issue

	if rec.PrepTime > 0 && rec.CookTime > 0 && rec.TotalTime > 0 &&
		rec.TotalTime < max(rec.PrepTime, rec.CookTime) {
		issues = append(issues, Issue{
			Type:       "timing_inconsistency",
			Severity:   "warning",
			Message:    "Total time seems inconsistent with prep/cook times",
			Field:      "timing",
			Suggestion: "Verify timing information",
		})
	}

	if rec.IngredientCount() > 0 && rec.IngredientCount() < 2 && rec.Servings > 6 {
		issues = append(issues, Issue{
			Type:       "servings_mismatch",
			Severity:   "info",
			Message:    "High serving count with few ingredients",
			Field:      "servings",
			Suggestion: "Verify serving size or ingredient list",
		})
	}
	return issues
}

// determineStatus derives the review status: any error forces review, high
// confidence with at most one warning auto-approves, everything else waits
// for a person
func (p *Pipeline) determineStatus(rec *recipe.Recipe, issues []Issue) Status {
	errors, warnings := 0, 0
	for _, issue := range issues {
		switch issue.Severity {
		case "error":
			errors++
		case "warning":
			warnings++
		}
	}

	if errors > 0 {
		return StatusNeedsReview
	}
	if rec.Confidence >= p.thresholds.AutoApprove && warnings <= 1 {
		return StatusApproved
	}
	return StatusNeedsReview
}

// applyEdits overwrites known recipe fields from a user edit map
func applyEdits(rec *recipe.Recipe, edits map[string]any) {
	for field, value := range edits {
		switch field {
		case "title":
			if s, ok := value.(string); ok {
				rec.Title = s
			}
		case "description":
			if s, ok := value.(string); ok {
				rec.Description = s
			}
		case "ingredients":
			if s, ok := value.(string); ok {
				rec.IngredientsHTML = s
			}
		case "instructions":
			if s, ok := value.(string); ok {
				rec.InstructionsHTML = s
			}
		case "prep_time":
			if n, ok := asInt(value); ok {
				rec.PrepTime = n
			}
		case "cook_time":
			if n, ok := asInt(value); ok {
				rec.CookTime = n
			}
		case "total_time":
			if n, ok := asInt(value); ok {
				rec.TotalTime = n
			}
		case "servings":
			if n, ok := asInt(value); ok {
				rec.Servings = n
			}
		}
	}
}

// asInt accepts the numeric types JSON decoding produces
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
