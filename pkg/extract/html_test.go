package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recipeCardHTML = `<html>
<head><title>Grandma's Goulash - My Food Blog</title></head>
<body>
	<p>A long story about my childhood...</p>
	<a href="#recipe-card">Jump to Recipe</a>
	<p>More story...</p>
	<div id="recipe-card">
		<h2>Grandma's Goulash</h2>
		<div class="recipe-description">Hearty beef goulash the old way.</div>
		<span class="prep-time">15 minutes</span>
		<span class="cook-time">45 minutes</span>
		<span class="servings">Serves 6</span>
		<div class="recipe-ingredients">
			<ul>
				<li>2 lbs beef chuck</li>
				<li>3 onions, chopped</li>
				<li>2 tbsp paprika</li>
			</ul>
		</div>
		<div class="recipe-instructions">
			<ul>
				<li>Brown the beef in batches</li>
				<li>Soften the onions with paprika</li>
				<li>Simmer covered for two hours</li>
			</ul>
		</div>
	</div>
</body></html>`

func TestJumpTarget_Anchor(t *testing.T) {
	doc, err := ParseHTML(recipeCardHTML)
	require.NoError(t, err)

	section := JumpTarget(doc)
	require.NotNil(t, section)
	id, _ := section.Attr("id")
	assert.Equal(t, "recipe-card", id)
}

func TestJumpTarget_Button(t *testing.T) {
	html := `<html><body>
		<button data-target="#the-recipe">View Recipe</button>
		<div id="the-recipe"><h2>Stew</h2></div>
	</body></html>`
	doc, err := ParseHTML(html)
	require.NoError(t, err)

	section := JumpTarget(doc)
	require.NotNil(t, section)
	id, _ := section.Attr("id")
	assert.Equal(t, "the-recipe", id)
}

func TestJumpTarget_None(t *testing.T) {
	doc, err := ParseHTML(`<html><body><a href="/about">About us</a></body></html>`)
	require.NoError(t, err)
	assert.Nil(t, JumpTarget(doc))
}

func TestRecipeFromSection(t *testing.T) {
	doc, err := ParseHTML(recipeCardHTML)
	require.NoError(t, err)
	section := JumpTarget(doc)
	require.NotNil(t, section)

	rec := RecipeFromSection(section, doc, "https://example.com/goulash")

	assert.Equal(t, "Grandma's Goulash", rec.Title)
	assert.Equal(t, "Hearty beef goulash the old way.", rec.Description)
	assert.Equal(t, 15, rec.PrepTime)
	assert.Equal(t, 45, rec.CookTime)
	assert.Equal(t, 6, rec.Servings)
	assert.Equal(t, 3, rec.IngredientCount())
	assert.Equal(t, 3, rec.InstructionCount())
	assert.Contains(t, rec.IngredientsHTML, "2 lbs beef chuck")
	assert.Contains(t, rec.InstructionsHTML, "Brown the beef in batches.")
	assert.Greater(t, rec.Confidence, 0.8)
}

func TestRecipeFromPage_SchemaMarkup(t *testing.T) {
	html := `<html>
	<head><title>Quick Pasta</title></head>
	<body>
		<div itemscope itemtype="https://schema.org/Recipe">
			<span itemprop="recipeIngredient">200g spaghetti</span>
			<span itemprop="recipeIngredient">2 cloves garlic</span>
			<span itemprop="recipeIngredient">Olive oil and chili flakes</span>
			<div itemprop="recipeInstructions">Boil the pasta until al dente</div>
			<span itemprop="recipeYield">2 servings</span>
		</div>
	</body></html>`
	doc, err := ParseHTML(html)
	require.NoError(t, err)

	rec := RecipeFromPage(doc, html, "https://example.com/pasta")

	assert.Equal(t, "Quick Pasta", rec.Title)
	assert.Equal(t, 3, rec.IngredientCount())
	assert.Equal(t, 1, rec.InstructionCount())
	assert.Equal(t, 2, rec.Servings)
}

func TestRecipeFromPage_NoRecipeContent(t *testing.T) {
	html := `<html><head><title>My Travel Blog</title></head>
	<body><p>We went to Lisbon last summer.</p></body></html>`
	doc, err := ParseHTML(html)
	require.NoError(t, err)

	rec := RecipeFromPage(doc, html, "https://example.com/travel")

	assert.Equal(t, 0, rec.IngredientCount())
	assert.Equal(t, 0, rec.InstructionCount())
	assert.LessOrEqual(t, rec.Confidence, 0.3, "pages without recipe content score low")
}

func TestPageImages_MetaFirst(t *testing.T) {
	html := `<html><head>
		<meta property="og:image" content="https://example.com/hero.jpg">
		<meta name="twitter:image" content="https://example.com/card.jpg">
	</head>
	<body>
		<div class="recipe-content"><img src="/inline.jpg" alt="finished dish of food"></div>
	</body></html>`
	doc, err := ParseHTML(html)
	require.NoError(t, err)

	images := PageImages(doc, "https://example.com/page")
	require.NotEmpty(t, images)
	assert.Equal(t, "https://example.com/hero.jpg", images[0].URL, "og:image wins")
	assert.LessOrEqual(t, len(images), 3)
}

func TestPageImages_LazyLoadAndFilter(t *testing.T) {
	html := `<html><body>
		<div class="recipe-card">
			<img data-lazy-src="/photos/dish.webp" alt="the finished recipe">
			<img src="/assets/site-logo.png" alt="logo">
			<img src="/avatar-author.jpg" alt="author headshot">
		</div>
	</body></html>`
	doc, err := ParseHTML(html)
	require.NoError(t, err)

	images := PageImages(doc, "https://example.com/page")
	require.Len(t, images, 1)
	assert.Equal(t, "https://example.com/photos/dish.webp", images[0].URL, "lazy-load attribute read, branding filtered")
}

func TestPageImages_SkipsTinyImages(t *testing.T) {
	html := `<html><body>
		<div class="recipe-content">
			<img src="/tiny.png" width="32" height="32" alt="food dish">
			<img src="/full.jpg" width="800" height="600" alt="food dish">
		</div>
	</body></html>`
	doc, err := ParseHTML(html)
	require.NoError(t, err)

	images := PageImages(doc, "https://example.com/page")
	require.Len(t, images, 1)
	assert.Equal(t, "https://example.com/full.jpg", images[0].URL)
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		base string
		want string
	}{
		{"absolute passthrough", "https://cdn.example.com/a.jpg", "https://example.com/p", "https://cdn.example.com/a.jpg"},
		{"protocol relative", "//cdn.example.com/a.jpg", "https://example.com/p", "https://cdn.example.com/a.jpg"},
		{"root relative", "/a.jpg", "https://example.com/dir/page", "https://example.com/a.jpg"},
		{"path relative", "a.jpg", "https://example.com/dir/page", "https://example.com/dir/a.jpg"},
		{"empty", "", "https://example.com/p", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, absoluteURL(tt.raw, tt.base))
		})
	}
}
