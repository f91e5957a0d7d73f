package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-trafilatura"

	"github.com/plateful/plateful/pkg/recipe"
)

// maxImages caps how many images are harvested per recipe
const maxImages = 3

// ingredientSelectors are tried in order until one matches. Schema.org
// markup first, then the class names popular recipe plugins emit.
var ingredientSelectors = []string{
	`[itemprop="recipeIngredient"]`,
	".recipe-ingredient",
	".ingredient",
	".recipe-ingredients li",
	".ingredients li",
	".ingredient-list li",
	".recipe-ingredient-list li",
	"[data-ingredient]",
	".wp-block-recipe-ingredient",
	".wprm-recipe-ingredient",
	".recipe-card-ingredients li",
	".entry-summary .ingredients li",
}

var instructionSelectors = []string{
	`[itemprop="recipeInstructions"]`,
	".recipe-instruction",
	".instruction",
	".recipe-instructions li",
	".instructions li",
	".directions li",
	".recipe-directions li",
	".method li",
	".recipe-method li",
	".wp-block-recipe-instruction",
	".wprm-recipe-instruction",
	".recipe-card-instructions li",
	".recipe-card-directions li",
	"[data-instruction]",
	".preparation-steps li",
	".cooking-directions li",
	".step",
	".recipe-step",
}

var descriptionSelectors = []string{
	".recipe-description",
	".description",
	`[itemprop="description"]`,
	".recipe-summary",
	".wprm-recipe-summary",
}

// jumpPatterns are the link/button labels recipe blogs use for their
// skip-the-story anchors
var jumpPatterns = []string{
	"jump to recipe",
	"skip to recipe",
	"go to recipe",
	"recipe card",
	"jump to card",
	"recipe below",
	"scroll to recipe",
	"view recipe",
	"get recipe",
}

// ParseHTML builds a queryable document from raw HTML
func ParseHTML(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// JumpTarget follows "jump to recipe" anchors or buttons to the recipe card
// element they point at. Returns nil when the page has no such anchor.
func JumpTarget(doc *goquery.Document) *goquery.Selection {
	var target *goquery.Selection

	doc.Find("a[href]").EachWithBreak(func(_ int, link *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(link.Text()))
		if !matchesJumpPattern(text) {
			return true
		}
		href, _ := link.Attr("href")
		if !strings.HasPrefix(href, "#") || len(href) < 2 {
			return true
		}
		if sel := doc.Find("#" + cssEscape(href[1:])); sel.Length() > 0 {
			target = sel.First()
			return false
		}
		return true
	})
	if target != nil {
		return target
	}

	// some themes use buttons with data attributes instead of anchors
	doc.Find("button").EachWithBreak(func(_ int, button *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(button.Text()))
		if !matchesJumpPattern(text) {
			return true
		}
		for _, attr := range []string{"data-target", "data-href", "data-anchor"} {
			val, _ := button.Attr(attr)
			if !strings.HasPrefix(val, "#") || len(val) < 2 {
				continue
			}
			if sel := doc.Find("#" + cssEscape(val[1:])); sel.Length() > 0 {
				target = sel.First()
				return false
			}
		}
		return true
	})

	return target
}

func matchesJumpPattern(text string) bool {
	for _, p := range jumpPatterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// cssEscape quotes characters that would break an id selector
func cssEscape(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RecipeFromSection extracts a recipe from a targeted recipe card section
func RecipeFromSection(section *goquery.Selection, doc *goquery.Document, sourceURL string) *recipe.Recipe {
	title := selectFirstText(section, []string{"h1", "h2", ".recipe-title", ".wprm-recipe-name", `[itemprop="name"]`})
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	rec := &recipe.Recipe{
		Title:            title,
		Description:      selectFirstText(section, descriptionSelectors),
		SourceType:       recipe.SourceWebsite,
		SourceURL:        sourceURL,
		PrepTime:         sectionTime(section, []string{"prep", "preparation"}),
		CookTime:         sectionTime(section, []string{"cook", "cooking", "bake", "baking"}),
		TotalTime:        sectionTime(section, []string{"total", "ready"}),
		Servings:         sectionServings(section),
		IngredientsHTML:  ingredientsHTML(collectItems(section, ingredientSelectors, 3)),
		InstructionsHTML: instructionsHTML(collectItems(section, instructionSelectors, 11)),
	}

	if imgs := sectionImages(section, sourceURL); len(imgs) > 0 {
		rec.Media = &recipe.Media{Images: imgs}
	}

	rec.Finalize()
	return rec
}

// RecipeFromPage extracts a recipe from the whole page using common
// selectors, falling back to trafilatura metadata for title and description
func RecipeFromPage(doc *goquery.Document, rawHTML, sourceURL string) *recipe.Recipe {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	description := selectFirstText(doc.Selection, descriptionSelectors)

	// trafilatura digs metadata out of pages the selectors miss
	if title == "" || description == "" {
		if meta := trafilaturaMetadata(rawHTML, sourceURL); meta != nil {
			if title == "" {
				title = meta.Title
			}
			if description == "" {
				description = meta.Description
			}
		}
	}

	rec := &recipe.Recipe{
		Title:            title,
		Description:      description,
		SourceType:       recipe.SourceWebsite,
		SourceURL:        sourceURL,
		PrepTime:         classTime(doc, []string{"prep-time", "prepTime", "prep_time"}, "prepTime"),
		CookTime:         classTime(doc, []string{"cook-time", "cookTime", "cook_time"}, "cookTime"),
		TotalTime:        classTime(doc, []string{"total-time", "totalTime", "total_time"}, "totalTime"),
		Servings:         sectionServings(doc.Selection),
		IngredientsHTML:  ingredientsHTML(collectItems(doc.Selection, ingredientSelectors, 3)),
		InstructionsHTML: instructionsHTML(collectItems(doc.Selection, instructionSelectors, 11)),
	}

	if imgs := PageImages(doc, sourceURL); len(imgs) > 0 {
		rec.Media = &recipe.Media{Images: imgs}
	}

	rec.Finalize()
	return rec
}

// trafilaturaMetadata runs trafilatura over the raw page for its metadata
func trafilaturaMetadata(rawHTML, sourceURL string) *trafilatura.Metadata {
	opts := trafilatura.Options{
		EnableFallback:  true,
		ExcludeComments: true,
		Deduplicate:     true,
	}
	if u, err := url.Parse(sourceURL); err == nil {
		opts.OriginalURL = u
	}

	result, err := trafilatura.Extract(strings.NewReader(rawHTML), opts)
	if err != nil || result == nil {
		return nil
	}
	return &result.Metadata
}

// selectFirstText returns trimmed text of the first selector that matches
func selectFirstText(root *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if el := root.Find(sel).First(); el.Length() > 0 {
			if text := strings.TrimSpace(el.Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

// collectItems gathers text from the first selector with matches, skipping
// entries shorter than minLen
func collectItems(root *goquery.Selection, selectors []string, minLen int) []string {
	for _, sel := range selectors {
		elements := root.Find(sel)
		if elements.Length() == 0 {
			continue
		}
		var items []string
		elements.Each(func(_ int, el *goquery.Selection) {
			text := strings.TrimSpace(el.Text())
			if len(text) >= minLen {
				items = append(items, text)
			}
		})
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func ingredientsHTML(items []string) string {
	return recipe.IngredientsToHTML([]recipe.IngredientGroup{{Items: items}})
}

func instructionsHTML(items []string) string {
	return recipe.InstructionsToHTML(items)
}

// sectionTime finds a duration near elements whose class or itemprop names
// the given time kind
func sectionTime(section *goquery.Selection, kinds []string) int {
	for _, kind := range kinds {
		selectors := []string{
			"." + kind + "-time",
			".wprm-recipe-" + kind + "-time",
			`[itemprop="` + kind + `Time"]`,
			`[class*="` + kind + `"]`,
		}
		for _, sel := range selectors {
			found := 0
			section.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
				for _, attr := range []string{"data-minutes", "data-value", "datetime"} {
					if val, ok := el.Attr(attr); ok {
						if mins := recipe.ParseDuration(val); mins > 0 {
							found = mins
							return false
						}
					}
				}
				if mins := recipe.ParseDuration(strings.TrimSpace(el.Text())); mins > 0 {
					found = mins
					return false
				}
				return true
			})
			if found > 0 {
				return found
			}
		}
	}
	return 0
}

// classTime finds a duration by exact class names or a matching itemprop
func classTime(doc *goquery.Document, classNames []string, itemprop string) int {
	for _, name := range classNames {
		if el := doc.Find("." + name).First(); el.Length() > 0 {
			if mins := recipe.ParseDuration(strings.TrimSpace(el.Text())); mins > 0 {
				return mins
			}
		}
	}
	if el := doc.Find(`[itemprop="` + itemprop + `"]`).First(); el.Length() > 0 {
		if val, ok := el.Attr("datetime"); ok {
			if mins := recipe.ParseDuration(val); mins > 0 {
				return mins
			}
		}
		if val, ok := el.Attr("content"); ok {
			if mins := recipe.ParseDuration(val); mins > 0 {
				return mins
			}
		}
		if mins := recipe.ParseDuration(strings.TrimSpace(el.Text())); mins > 0 {
			return mins
		}
	}
	return 0
}

// sectionServings finds a serving count per common yield selectors
func sectionServings(root *goquery.Selection) int {
	selectors := []string{
		".servings",
		".serves",
		".wprm-recipe-servings",
		`[itemprop="recipeYield"]`,
		".recipe-yield",
		".yield",
	}
	for _, sel := range selectors {
		found := 0
		root.Find(sel).EachWithBreak(func(_ int, el *goquery.Selection) bool {
			for _, attr := range []string{"data-servings", "data-serves", "data-value", "content"} {
				if val, ok := el.Attr(attr); ok {
					if n := recipe.ParseYield(val); n > 0 {
						found = n
						return false
					}
				}
			}
			if n := recipe.ParseYield(strings.TrimSpace(el.Text())); n > 0 {
				found = n
				return false
			}
			return true
		})
		if found > 0 {
			return found
		}
	}
	return 0
}
