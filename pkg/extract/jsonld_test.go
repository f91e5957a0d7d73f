package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindJSONLDRecipe(t *testing.T) {
	tests := []struct {
		name  string
		html  string
		found bool
		title string
	}{
		{
			name: "plain recipe object",
			html: `<html><head><script type="application/ld+json">
				{"@type": "Recipe", "name": "Chocolate Cake"}
			</script></head><body></body></html>`,
			found: true,
			title: "Chocolate Cake",
		},
		{
			name: "recipe inside top-level array",
			html: `<html><head><script type="application/ld+json">
				[{"@type": "WebSite"}, {"@type": "Recipe", "name": "Banana Bread"}]
			</script></head><body></body></html>`,
			found: true,
			title: "Banana Bread",
		},
		{
			name: "recipe inside @graph",
			html: `<html><head><script type="application/ld+json">
				{"@context": "https://schema.org", "@graph": [
					{"@type": "Organization", "name": "Blog"},
					{"@type": "Recipe", "name": "Lemon Tart"}
				]}
			</script></head><body></body></html>`,
			found: true,
			title: "Lemon Tart",
		},
		{
			name: "type as list",
			html: `<html><head><script type="application/ld+json">
				{"@type": ["Recipe", "NewsArticle"], "name": "Apple Pie"}
			</script></head><body></body></html>`,
			found: true,
			title: "Apple Pie",
		},
		{
			name: "malformed script skipped, later one found",
			html: `<html><head>
				<script type="application/ld+json">{not valid json</script>
				<script type="application/ld+json">{"@type": "Recipe", "name": "Pancakes"}</script>
			</head><body></body></html>`,
			found: true,
			title: "Pancakes",
		},
		{
			name:  "no structured data",
			html:  `<html><body><h1>Just a blog post</h1></body></html>`,
			found: false,
		},
		{
			name: "non-recipe type",
			html: `<html><head><script type="application/ld+json">
				{"@type": "NewsArticle", "name": "Headline"}
			</script></head><body></body></html>`,
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseHTML(tt.html)
			require.NoError(t, err)

			data, ok := FindJSONLDRecipe(doc)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.title, data["name"])
			}
		})
	}
}

func TestRecipeFromJSONLD(t *testing.T) {
	data := map[string]any{
		"@type":       "Recipe",
		"name":        "Chocolate Chip Cookies",
		"description": "Crispy outside, chewy inside.",
		"prepTime":    "PT15M",
		"cookTime":    "PT12M",
		"totalTime":   "PT27M",
		"recipeYield": "24 cookies",
		"recipeIngredient": []any{
			"2 cups flour",
			"1 tsp baking soda",
			"1 cup butter",
		},
		"recipeInstructions": []any{
			map[string]any{"@type": "HowToStep", "text": "Cream the butter and sugar"},
			map[string]any{"@type": "HowToStep", "text": "Fold in the flour"},
			map[string]any{"@type": "HowToStep", "text": "Bake at 350F for 12 minutes"},
		},
		"image": []any{"https://example.com/cookies.jpg"},
	}

	rec := RecipeFromJSONLD(data, "https://example.com/cookies")

	assert.Equal(t, "Chocolate Chip Cookies", rec.Title)
	assert.Equal(t, "Crispy outside, chewy inside.", rec.Description)
	assert.Equal(t, 15, rec.PrepTime)
	assert.Equal(t, 12, rec.CookTime)
	assert.Equal(t, 27, rec.TotalTime)
	assert.Equal(t, 24, rec.Servings)
	assert.Equal(t, 3, rec.IngredientCount())
	assert.Equal(t, 3, rec.InstructionCount())
	assert.Contains(t, rec.IngredientsHTML, "<li>2 cups flour</li>")
	assert.Contains(t, rec.InstructionsHTML, "<li>Cream the butter and sugar.</li>")
	require.NotNil(t, rec.Media)
	require.Len(t, rec.Media.Images, 1)
	assert.Equal(t, "https://example.com/cookies.jpg", rec.Media.Images[0].URL)
	assert.Greater(t, rec.Confidence, 0.8, "complete structured recipe scores high")
}

func TestRecipeFromJSONLD_HowToSections(t *testing.T) {
	data := map[string]any{
		"@type": "Recipe",
		"name":  "Layer Cake",
		"recipeInstructions": []any{
			map[string]any{
				"@type": "HowToSection",
				"name":  "Cake",
				"itemListElement": []any{
					map[string]any{"@type": "HowToStep", "text": "Mix the batter"},
					map[string]any{"@type": "HowToStep", "text": "Bake the layers"},
				},
			},
			map[string]any{
				"@type": "HowToSection",
				"name":  "Frosting",
				"itemListElement": []any{
					map[string]any{"@type": "HowToStep", "text": "Whip the cream"},
				},
			},
		},
	}

	rec := RecipeFromJSONLD(data, "https://example.com/cake")
	assert.Equal(t, 3, rec.InstructionCount(), "section steps are flattened in order")
	assert.Contains(t, rec.InstructionsHTML, "<li>Mix the batter.</li>")
	assert.Contains(t, rec.InstructionsHTML, "<li>Whip the cream.</li>")
}

func TestRecipeFromJSONLD_InstructionsAsString(t *testing.T) {
	data := map[string]any{
		"@type":              "Recipe",
		"name":               "Toast",
		"recipeInstructions": "1. Slice the bread. 2. Toast until golden. 3. Butter generously.",
	}

	rec := RecipeFromJSONLD(data, "https://example.com/toast")
	assert.Equal(t, 3, rec.InstructionCount(), "concatenated numbered steps are split")
}

func TestRecipeFromJSONLD_YieldVariants(t *testing.T) {
	tests := []struct {
		name  string
		yield any
		want  int
	}{
		{"string with unit", "4 servings", 4},
		{"bare number", float64(6), 6},
		{"list", []any{"8", "8 servings"}, 8},
		{"missing", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := RecipeFromJSONLD(map[string]any{"@type": "Recipe", "name": "X", "recipeYield": tt.yield}, "https://example.com")
			assert.Equal(t, tt.want, rec.Servings)
		})
	}
}

func TestRecipeFromJSONLD_ImageObject(t *testing.T) {
	data := map[string]any{
		"@type": "Recipe",
		"name":  "Soup",
		"image": map[string]any{"@type": "ImageObject", "url": "/images/soup.jpg"},
	}

	rec := RecipeFromJSONLD(data, "https://example.com/soup")
	require.NotNil(t, rec.Media)
	require.Len(t, rec.Media.Images, 1)
	assert.Equal(t, "https://example.com/images/soup.jpg", rec.Media.Images[0].URL, "relative image resolved against page URL")
}
