// Package extract pulls recipe data out of web pages and free-form text.
// Structured data (JSON-LD) is preferred, with CSS heuristics and text
// classification as fallbacks.
package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/plateful/plateful/pkg/recipe"
)

// FindJSONLDRecipe scans the document's ld+json scripts for a schema.org
// Recipe object, looking inside top-level arrays and @graph containers
func FindJSONLDRecipe(doc *goquery.Document) (map[string]any, bool) {
	var found map[string]any

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var data any
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return true // malformed script, keep scanning
		}
		if r, ok := findRecipeNode(data); ok {
			found = r
			return false
		}
		return true
	})

	return found, found != nil
}

// findRecipeNode walks a decoded JSON-LD value looking for a Recipe node
func findRecipeNode(data any) (map[string]any, bool) {
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			if r, ok := findRecipeNode(item); ok {
				return r, true
			}
		}
	case map[string]any:
		if isRecipeType(v["@type"]) {
			return v, true
		}
		if graph, ok := v["@graph"]; ok {
			return findRecipeNode(graph)
		}
	}
	return nil, false
}

// isRecipeType handles @type as either a string or a list of strings
func isRecipeType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Recipe"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "Recipe" {
				return true
			}
		}
	}
	return false
}

// RecipeFromJSONLD builds a recipe from a schema.org Recipe node
func RecipeFromJSONLD(data map[string]any, sourceURL string) *recipe.Recipe {
	ingredients := stringList(data["recipeIngredient"])
	instructions := flattenInstructions(data["recipeInstructions"])

	rec := &recipe.Recipe{
		Title:            asString(data["name"]),
		Description:      asString(data["description"]),
		SourceType:       recipe.SourceWebsite,
		SourceURL:        sourceURL,
		PrepTime:         recipe.ParseDuration(asString(data["prepTime"])),
		CookTime:         recipe.ParseDuration(asString(data["cookTime"])),
		TotalTime:        recipe.ParseDuration(asString(data["totalTime"])),
		Servings:         recipe.ParseYield(yieldString(data["recipeYield"])),
		IngredientsHTML:  recipe.IngredientsToHTML([]recipe.IngredientGroup{{Items: ingredients}}),
		InstructionsHTML: recipe.InstructionsToHTML(instructions),
	}

	if imgs := jsonldImages(data["image"], sourceURL); len(imgs) > 0 {
		rec.Media = &recipe.Media{Images: imgs}
	}

	rec.Finalize()
	return rec
}

// flattenInstructions normalizes recipeInstructions, which may be a plain
// string, a list of strings, HowToStep objects, or HowToSection groups
func flattenInstructions(v any) []string {
	var steps []string

	var walk func(any)
	walk = func(node any) {
		switch n := node.(type) {
		case string:
			if s := strings.TrimSpace(n); s != "" {
				steps = append(steps, s)
			}
		case []any:
			for _, item := range n {
				walk(item)
			}
		case map[string]any:
			switch asString(n["@type"]) {
			case "HowToSection":
				walk(n["itemListElement"])
			default:
				if text := asString(n["text"]); text != "" {
					steps = append(steps, strings.TrimSpace(text))
				} else if name := asString(n["name"]); name != "" {
					steps = append(steps, strings.TrimSpace(name))
				}
			}
		}
	}
	walk(v)

	return steps
}

// jsonldImages extracts image URLs from the Recipe image field, which may be
// a string, a list, or an ImageObject
func jsonldImages(v any, baseURL string) []recipe.Image {
	var urls []string

	var walk func(any)
	walk = func(node any) {
		if len(urls) >= maxImages {
			return
		}
		switch n := node.(type) {
		case string:
			if u := absoluteURL(n, baseURL); u != "" {
				urls = appendUnique(urls, u)
			}
		case []any:
			for _, item := range n {
				walk(item)
			}
		case map[string]any:
			walk(n["url"])
		}
	}
	walk(v)

	images := make([]recipe.Image, 0, len(urls))
	for _, u := range urls {
		images = append(images, recipe.Image{URL: u, Alt: "Recipe image", Source: "json-ld"})
	}
	return images
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// yieldString renders recipeYield as text whether it arrives as a string, a
// number, or a list
func yieldString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.Itoa(int(n))
	case []any:
		for _, item := range n {
			if s := yieldString(item); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringList(v any) []string {
	var out []string
	switch n := v.(type) {
	case string:
		if s := strings.TrimSpace(n); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range n {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
