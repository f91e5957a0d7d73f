package parser

import (
	"context"
	"fmt"

	"github.com/plateful/plateful/pkg/extract"
	"github.com/plateful/plateful/pkg/fetch"
	"github.com/plateful/plateful/pkg/recipe"
)

// Site is the narrow accessor surface a per-site scraper has to provide.
// Implementations return zero values for fields a site does not expose.
type Site interface {
	Title() string
	Description() string
	Ingredients() []string
	Instructions() []string
	PrepTime() int  // minutes
	CookTime() int  // minutes
	TotalTime() int // minutes
	Yields() string
	Image() string
}

// ScraperParser is the first-line strategy: fetch the page and read its
// schema.org structured data through the Site interface. Sites without
// structured data fail fast and fall through to manual parsing.
type ScraperParser struct {
	client *fetch.Client
}

func NewScraperParser(client *fetch.Client) *ScraperParser {
	return &ScraperParser{client: client}
}

func (p *ScraperParser) Name() string { return "scraper" }

func (p *ScraperParser) Parse(ctx context.Context, rawURL string) (*recipe.Recipe, error) {
	html, err := p.client.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := extract.ParseHTML(html)
	if err != nil {
		return nil, &fetch.TerminalError{Err: err}
	}

	data, ok := extract.FindJSONLDRecipe(doc)
	if !ok {
		return nil, fmt.Errorf("no structured recipe data on %s", rawURL)
	}

	rec := SiteRecipe(newSchemaSite(data), rawURL)
	if sparseExtraction(rec) {
		return nil, &fetch.ProtectionError{
			Domain: domainOf(rawURL), Method: p.Name(),
			Reason: "structured data present but nearly empty, likely a stub served to bots",
		}
	}
	return rec, nil
}

// SiteRecipe builds a Recipe from any Site implementation
func SiteRecipe(site Site, sourceURL string) *recipe.Recipe {
	rec := &recipe.Recipe{
		Title:       site.Title(),
		Description: site.Description(),
		SourceType:  recipe.SourceWebsite,
		SourceURL:   sourceURL,
		PrepTime:    site.PrepTime(),
		CookTime:    site.CookTime(),
		TotalTime:   site.TotalTime(),
		Servings:    recipe.ParseYield(site.Yields()),
	}

	if ingredients := site.Ingredients(); len(ingredients) > 0 {
		rec.IngredientsHTML = recipe.IngredientsToHTML([]recipe.IngredientGroup{{Items: ingredients}})
	}
	if instructions := site.Instructions(); len(instructions) > 0 {
		rec.InstructionsHTML = recipe.InstructionsToHTML(recipe.SplitSteps(instructions))
	}
	if img := site.Image(); img != "" {
		rec.Media = &recipe.Media{Images: []recipe.Image{{URL: img}}}
	}

	rec.Finalize()
	return rec
}

// schemaSite is the default Site over a schema.org Recipe node
type schemaSite struct {
	data map[string]any
}

func newSchemaSite(data map[string]any) *schemaSite { return &schemaSite{data: data} }

func (s *schemaSite) Title() string       { return s.str("name") }
func (s *schemaSite) Description() string { return s.str("description") }

func (s *schemaSite) Ingredients() []string { return s.list("recipeIngredient") }

func (s *schemaSite) Instructions() []string {
	switch v := s.data["recipeInstructions"].(type) {
	case string:
		return []string{v}
	case []any:
		var out []string
		for _, item := range v {
			switch step := item.(type) {
			case string:
				out = append(out, step)
			case map[string]any:
				if text, ok := step["text"].(string); ok && text != "" {
					out = append(out, text)
				}
			}
		}
		return out
	}
	return nil
}

func (s *schemaSite) PrepTime() int  { return recipe.ParseDuration(s.str("prepTime")) }
func (s *schemaSite) CookTime() int  { return recipe.ParseDuration(s.str("cookTime")) }
func (s *schemaSite) TotalTime() int { return recipe.ParseDuration(s.str("totalTime")) }

func (s *schemaSite) Yields() string {
	switch v := s.data["recipeYield"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int(v))
	case []any:
		if len(v) > 0 {
			if str, ok := v[0].(string); ok {
				return str
			}
		}
	}
	return ""
}

func (s *schemaSite) Image() string {
	switch v := s.data["image"].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			if str, ok := v[0].(string); ok {
				return str
			}
		}
	case map[string]any:
		if u, ok := v["url"].(string); ok {
			return u
		}
	}
	return ""
}

func (s *schemaSite) str(key string) string {
	if v, ok := s.data[key].(string); ok {
		return v
	}
	return ""
}

func (s *schemaSite) list(key string) []string {
	items, ok := s.data[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if str, ok := item.(string); ok && str != "" {
			out = append(out, str)
		}
	}
	return out
}
