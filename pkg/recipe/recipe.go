package recipe

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SourceType identifies where a recipe was extracted from
type SourceType string

// recognized recipe sources
const (
	SourceManual  SourceType = "manual"
	SourceWebsite SourceType = "website"
	SourceSocial  SourceType = "social"
	SourceImage   SourceType = "image"
)

// Image references a single media asset attached to a recipe
type Image struct {
	URL    string `json:"url"`
	Alt    string `json:"alt,omitempty"`
	Source string `json:"source,omitempty"`
}

// Media holds media references extracted alongside a recipe
type Media struct {
	Images []Image `json:"images,omitempty"`
}

// Recipe is the result of a single extraction. Created by an extractor and
// immutable afterwards, except for explicit user edits applied during review.
type Recipe struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	SourceType       SourceType `json:"source_type"`
	SourceURL        string     `json:"source_url,omitempty"`
	PrepTime         int        `json:"prep_time,omitempty"`  // minutes
	CookTime         int        `json:"cook_time,omitempty"`  // minutes
	TotalTime        int        `json:"total_time,omitempty"` // minutes
	Servings         int        `json:"servings,omitempty"`
	IngredientsHTML  string     `json:"ingredients"`
	InstructionsHTML string     `json:"instructions"`
	Confidence       float64    `json:"confidence_score"`
	Media            *Media     `json:"media,omitempty"`
}

// IngredientGroup is an optionally-categorized run of ingredient lines,
// rendered as a heading plus a bulleted list.
type IngredientGroup struct {
	Category string
	Items    []string
}

// textPolicy strips all markup from extracted text before it is embedded in
// the rendered ingredient/instruction HTML
var textPolicy = bluemonday.StrictPolicy()

// IngredientCount estimates the number of parsed ingredient items
func (r *Recipe) IngredientCount() int { return strings.Count(r.IngredientsHTML, "<li>") }

// InstructionCount estimates the number of parsed instruction steps
func (r *Recipe) InstructionCount() int { return strings.Count(r.InstructionsHTML, "<li>") }

// Score computes the extraction confidence from field completeness.
// Additive out of 100, normalized to [0,1]: title >3 chars +20, instructions
// >=3/>=1 items +30/+15, ingredients >=3/>=1 items +25/+10, any timing +10,
// servings +5, description >=10 chars +10.
func (r *Recipe) Score() float64 {
	score := 0.0

	if len(strings.TrimSpace(r.Title)) > 3 {
		score += 20
	}

	switch n := r.InstructionCount(); {
	case n >= 3:
		score += 30
	case n >= 1:
		score += 15
	}

	switch n := r.IngredientCount(); {
	case n >= 3:
		score += 25
	case n >= 1:
		score += 10
	}

	if r.PrepTime > 0 || r.CookTime > 0 || r.TotalTime > 0 {
		score += 10
	}
	if r.Servings > 0 {
		score += 5
	}
	if len(strings.TrimSpace(r.Description)) >= 10 {
		score += 10
	}

	return min(score/100, 1.0)
}

// Finalize computes the confidence score and fills required defaults.
// Called once by each extractor before the recipe is handed downstream.
func (r *Recipe) Finalize() {
	r.Confidence = r.Score()
	if r.Title == "" {
		r.Title = "Untitled Recipe"
	}
}

var (
	stepNumRe   = regexp.MustCompile(`^\d+[.)]\s*`)
	stepWordRe  = regexp.MustCompile(`(?i)^step\s*\d+:?\s*`)
	multiWSRe   = regexp.MustCompile(`\s+`)
	numMarkerRe = regexp.MustCompile(`\d+\.`)
)

var bulletPrefixes = []string{"- ", "• ", "* ", "◦ ", "▪ ", "▫ "}

// CleanIngredient normalizes a single extracted ingredient line
func CleanIngredient(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range bulletPrefixes {
		s = strings.TrimPrefix(s, p)
	}
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ",:;")
	return capitalize(s)
}

// CleanInstruction normalizes a single extracted instruction step, stripping
// pre-existing numbering and ensuring a sentence ending.
func CleanInstruction(s string) string {
	s = strings.TrimSpace(s)
	s = stepNumRe.ReplaceAllString(s, "")
	s = stepWordRe.ReplaceAllString(s, "")
	for _, p := range bulletPrefixes {
		s = strings.TrimPrefix(s, p)
	}
	s = multiWSRe.ReplaceAllString(strings.TrimSpace(s), " ")
	s = capitalize(s)
	if s != "" && !strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "!") && !strings.HasSuffix(s, "?") {
		s += "."
	}
	return s
}

// SplitSteps breaks a single concatenated numbered instruction string into
// individual steps. Some scrapers return all steps as one "1. ... 2. ..."
// blob; anything already split passes through unchanged.
func SplitSteps(steps []string) []string {
	if len(steps) != 1 || steps[0] == "" {
		return steps
	}

	parts := numMarkerRe.Split(steps[0], -1)
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 1 {
		return out
	}
	return steps
}

// IngredientsToHTML renders categorized ingredients as sanitized HTML:
// an optional <h3> per category followed by a <ul> of items.
func IngredientsToHTML(groups []IngredientGroup) string {
	var b strings.Builder
	for _, g := range groups {
		items := make([]string, 0, len(g.Items))
		for _, it := range g.Items {
			if cleaned := CleanIngredient(it); cleaned != "" {
				items = append(items, cleaned)
			}
		}
		if len(items) == 0 {
			continue
		}
		if g.Category != "" {
			b.WriteString("<h3>" + textPolicy.Sanitize(g.Category) + "</h3>")
		}
		b.WriteString("<ul>")
		for _, it := range items {
			b.WriteString("<li>" + textPolicy.Sanitize(it) + "</li>")
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

// InstructionsToHTML renders instruction steps as a sanitized ordered list
func InstructionsToHTML(steps []string) string {
	cleaned := make([]string, 0, len(steps))
	for _, s := range SplitSteps(steps) {
		if c := CleanInstruction(s); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<ol>")
	for _, s := range cleaned {
		b.WriteString("<li>" + textPolicy.Sanitize(s) + "</li>")
	}
	b.WriteString("</ol>")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] = r[0] - 'a' + 'A'
	}
	return string(r)
}
