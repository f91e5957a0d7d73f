package parser

import (
	"fmt"
	"strings"

	"github.com/plateful/plateful/pkg/extract"
	"github.com/plateful/plateful/pkg/recipe"
)

// CaptionParser extracts recipes from free text, social media captions
// mostly. No fetching involved, the caller already has the text.
type CaptionParser struct{}

func NewCaptionParser() *CaptionParser { return &CaptionParser{} }

func (p *CaptionParser) Name() string { return "caption" }

// Parse classifies the caption line by line into ingredients and
// instructions. Empty input is an error, an unrecognizable caption is a
// low-confidence recipe annotated for review.
func (p *CaptionParser) Parse(text string) (*recipe.Recipe, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("caption text is empty")
	}

	rec := extract.RecipeFromText(text)

	if rec.IngredientsHTML == "" && rec.InstructionsHTML == "" {
		rec.Description = "Post detected but no recipe content found. Please add ingredients and instructions manually."
		rec.Confidence = 0.1
		return rec, nil
	}

	if rec.Confidence < 0.3 {
		if rec.Description != "" {
			rec.Description += " [Note: Low confidence parsing - please review]"
		} else {
			rec.Description = "Recipe extracted from a social post. Please review and edit as needed."
		}
	}
	return rec, nil
}
