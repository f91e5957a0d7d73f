package extract

import (
	"regexp"
	"strings"

	"github.com/plateful/plateful/pkg/recipe"
)

// vocabulary for classifying free-form caption lines
var (
	ingredientHeaders  = []string{"ingredients", "ingredient", "you'll need", "you need", "shopping list", "what you need", "grocery list", "supplies"}
	instructionHeaders = []string{"instructions", "instruction", "directions", "direction", "method", "steps", "how to make", "preparation", "cooking method", "procedure"}

	measurementUnits = []string{
		"cup", "cups", "tbsp", "tablespoon", "tablespoons", "tsp", "teaspoon", "teaspoons",
		"oz", "ounce", "ounces", "lb", "pound", "pounds", "gram", "grams",
		"kg", "kilogram", "kilograms", "ml", "milliliter", "milliliters",
		"liter", "liters", "pinch", "dash", "handful", "clove", "cloves",
		"slice", "slices", "piece", "pieces", "can", "cans", "jar", "jars",
		"package", "packages", "bunch", "bunches",
	}

	cookingActions = []string{
		"mix", "stir", "combine", "whisk", "beat", "fold", "chop", "dice",
		"mince", "slice", "cut", "heat", "cook", "bake", "fry", "saute",
		"boil", "simmer", "roast", "grill", "season", "add", "remove",
		"serve", "garnish", "blend", "process", "knead", "roll", "pour",
	}

	foodWords = []string{
		"oil", "salt", "pepper", "sugar", "flour", "butter", "milk",
		"egg", "cheese", "chicken", "beef", "fish", "onion", "garlic",
		"tomato", "water", "vinegar", "lemon", "herbs", "spice", "vanilla",
		"baking", "powder", "soda", "chocolate", "chips",
	}

	categoryWords = []string{
		"dressing", "sauce", "marinade", "filling", "topping", "garnish",
		"salad", "chicken", "beef", "fish", "vegetables", "base", "mix",
		"for serving", "assembly", "crust", "batter",
	}

	instructionStarters = []string{
		"make the", "in a", "add the", "combine", "mix", "stir", "blend",
		"season with", "pour", "toss", "cook", "heat", "bake", "fry",
	}

	recipeKeywords = []string{
		"recipe", "cook", "bake", "ingredients", "instructions",
		"delicious", "homemade", "easy", "simple", "tasty",
	}
)

var (
	urlRe          = regexp.MustCompile(`https?://\S+`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	digitRe        = regexp.MustCompile(`\d+`)
	numberedStepRe = regexp.MustCompile(`^\d+[.)]`)
	stepPrefixRe   = regexp.MustCompile(`(?i)^step \d+`)
	sequenceRe     = regexp.MustCompile(`(?i)^(first|then|next|finally)\b`)
	timeTempRe     = regexp.MustCompile(`(?i)until|for \d+|°|degrees|minutes?|hours?|oven|bake`)
	bulletRe       = regexp.MustCompile(`^\s*[-•*]\s+`)
	servingsTextRe = regexp.MustCompile(`(?i)makes?\s+\d+.*servings?|serves?\s+\d+`)
	hashtagRe      = regexp.MustCompile(`#(\w+)`)
	mentionRe      = regexp.MustCompile(`@(\w+)`)

	servingsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)makes?\s+(\d+)(?:\s*to\s*\d+)?\s*servings?`),
		regexp.MustCompile(`(?i)serves?\s+(\d+)(?:\s*to\s*\d+)?`),
		regexp.MustCompile(`(?i)(\d+)(?:\s*-\s*\d+)?\s*servings?`),
		regexp.MustCompile(`(?i)yield:?\s*(\d+)(?:\s*to\s*\d+)?`),
	}
)

// RecipeFromText classifies caption lines into ingredients, instructions
// and metadata. Works on any free-form text, including social media
// captions with emoji and hashtags.
func RecipeFromText(text string) *recipe.Recipe {
	cleaned := cleanText(text)
	lines := nonEmptyLines(cleaned)

	rec := &recipe.Recipe{
		Title:      extractTitle(lines),
		SourceType: recipe.SourceSocial,
		Servings:   extractServings(cleaned),
	}

	description := descriptionLine(lines)
	rec.Description = description

	groups, instructions := classifyLines(lines, description)
	rec.IngredientsHTML = recipe.IngredientsToHTML(groups)
	rec.InstructionsHTML = recipe.InstructionsToHTML(instructions)
	rec.Confidence = textConfidence(rec, cleaned)

	if rec.Title == "" {
		rec.Title = "Recipe from Social Media"
	}
	return rec
}

// Hashtags returns hashtag words found in the text, without the # prefix
func Hashtags(text string) []string {
	var tags []string
	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		tags = append(tags, m[1])
	}
	return tags
}

// Mentions returns mentioned account names, without the @ prefix
func Mentions(text string) []string {
	var names []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		names = append(names, m[1])
	}
	return names
}

// recipeTypes maps a coarse category to its trigger words, checked in order
var recipeTypes = []struct {
	name  string
	words []string
}{
	{"dessert", []string{"cake", "cookie", "pie", "dessert", "sweet", "chocolate", "sugar"}},
	{"main_dish", []string{"chicken", "beef", "fish", "pasta", "rice", "dinner", "lunch"}},
	{"breakfast", []string{"breakfast", "pancake", "eggs", "toast", "cereal", "morning"}},
	{"soup", []string{"soup", "broth", "stew", "chili"}},
	{"salad", []string{"salad", "greens", "lettuce", "fresh"}},
	{"beverage", []string{"drink", "smoothie", "juice", "coffee", "tea"}},
}

// DetectRecipeType guesses the dish category, or returns empty when none of
// the trigger words appear
func DetectRecipeType(text string) string {
	lower := strings.ToLower(text)
	for _, rt := range recipeTypes {
		for _, w := range rt.words {
			if strings.Contains(lower, w) {
				return rt.name
			}
		}
	}
	return ""
}

func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	text = urlRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// extractTitle prefers a short early line with recipe-ish words, falling
// back to the first meaningful line
func extractTitle(lines []string) string {
	for i, line := range lines {
		if i >= 3 {
			break
		}
		runes := []rune(line)
		if len(runes) >= 5 && len(runes) <= 50 && !looksLikeIngredient(line) {
			lower := strings.ToLower(line)
			for _, w := range []string{"recipe", "easy", "homemade", "delicious", "simple"} {
				if strings.Contains(lower, w) {
					return line
				}
			}
		}
	}

	for _, line := range lines {
		if len([]rune(line)) > 5 && len(strings.Fields(line)) >= 2 {
			if runes := []rune(line); len(runes) > 50 {
				return string(runes[:50])
			}
			return line
		}
	}
	return ""
}

// descriptionLine finds a long descriptive paragraph near the top that
// should not be classified as an ingredient
func descriptionLine(lines []string) string {
	for i, line := range lines {
		if i >= 5 {
			break
		}
		if len([]rune(line)) > 50 &&
			!servingsTextRe.MatchString(line) &&
			!looksLikeIngredient(line) &&
			!looksLikeInstruction(line) {
			return line
		}
	}
	return ""
}

// classifyLines splits caption lines into categorized ingredients and
// ordered instructions
func classifyLines(lines []string, description string) (groups []recipe.IngredientGroup, instructions []string) {
	var currentCategory string
	var currentItems []string

	flush := func() {
		if len(currentItems) > 0 {
			groups = append(groups, recipe.IngredientGroup{Category: currentCategory, Items: currentItems})
			currentItems = nil
		}
	}

	inInstructions := false
	for _, line := range lines {
		if line == description {
			continue
		}
		lower := strings.ToLower(line)

		if hasAnyHeader(lower, ingredientHeaders) && !hasAnyHeader(lower, instructionHeaders) && len(strings.Fields(line)) <= 3 {
			inInstructions = false
			continue
		}
		if hasAnyHeader(lower, instructionHeaders) && len(strings.Fields(line)) <= 3 {
			inInstructions = true
			continue
		}

		if servingsTextRe.MatchString(line) {
			continue
		}

		if looksLikeInstruction(line) {
			instructions = append(instructions, recipe.CleanInstruction(line))
			continue
		}

		if inInstructions {
			continue
		}

		if looksLikeCategoryHeader(line) {
			flush()
			currentCategory = strings.TrimSuffix(strings.TrimSpace(line), ":")
			continue
		}

		if looksLikeIngredient(line) {
			currentItems = append(currentItems, recipe.CleanIngredient(line))
		}
	}
	flush()

	if len(instructions) > 15 {
		instructions = instructions[:15]
	}
	return groups, instructions
}

func hasAnyHeader(lower string, headers []string) bool {
	for _, h := range headers {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func looksLikeIngredient(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if len([]rune(lower)) < 3 {
		return false
	}

	if bulletRe.MatchString(line) {
		clean := bulletRe.ReplaceAllString(lower, "")
		if len(strings.Fields(clean)) <= 8 && len([]rune(clean)) > 3 {
			return true
		}
	}

	for _, unit := range measurementUnits {
		if containsWord(lower, unit) {
			return true
		}
	}

	if digitRe.MatchString(line) && len(strings.Fields(line)) <= 8 {
		for _, food := range foodWords {
			if strings.Contains(lower, food) {
				return true
			}
		}
	}
	return false
}

func looksLikeInstruction(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	if len([]rune(lower)) < 10 {
		return false
	}

	for _, starter := range instructionStarters {
		if strings.HasPrefix(lower, starter) {
			return true
		}
	}

	if numberedStepRe.MatchString(lower) || stepPrefixRe.MatchString(lower) || sequenceRe.MatchString(lower) {
		return true
	}

	words := len(strings.Fields(line))
	if words >= 5 {
		for _, action := range cookingActions {
			if containsWord(lower, action) {
				return true
			}
		}
	}
	if words >= 3 && timeTempRe.MatchString(lower) {
		return true
	}
	return false
}

func looksLikeCategoryHeader(line string) bool {
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)

	for _, h := range instructionHeaders {
		if strings.Contains(lower, h) {
			return false
		}
	}

	if len(strings.Fields(line)) > 3 || len([]rune(line)) <= 3 || digitRe.MatchString(line) {
		return false
	}
	for _, unit := range measurementUnits {
		if containsWord(lower, unit) {
			return false
		}
	}

	for _, cat := range categoryWords {
		if strings.Contains(lower, cat) {
			return true
		}
	}

	if !strings.HasPrefix(lower, "a ") && !strings.HasPrefix(lower, "an ") && !strings.HasPrefix(lower, "the ") &&
		strings.HasSuffix(line, ":") {
		for _, verb := range []string{"make", "add", "mix", "cook", "heat"} {
			if strings.Contains(lower, verb) {
				return false
			}
		}
		return true
	}
	return false
}

// containsWord reports whether w appears as a whole word in lower
func containsWord(lower, w string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], w)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(w)
		beforeOK := start == 0 || !isWordChar(lower[start-1])
		afterOK := end == len(lower) || !isWordChar(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func extractServings(text string) int {
	for _, re := range servingsPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n := recipe.ParseYield(m[1]); n > 0 {
				return n
			}
		}
	}
	return 0
}

// textConfidence scores free-text extraction: content presence and volume
// first, recipe vocabulary as a small bonus, short captions penalized
func textConfidence(rec *recipe.Recipe, fullText string) float64 {
	score := 0.0

	ingredients := rec.IngredientCount()
	instructions := rec.InstructionCount()

	if ingredients > 0 {
		score += 0.3
	}
	if instructions > 0 {
		score += 0.3
	}
	if ingredients >= 3 {
		score += 0.2
	}
	if instructions >= 2 {
		score += 0.2
	}

	lower := strings.ToLower(fullText)
	keywordScore := 0.0
	for _, kw := range recipeKeywords {
		if strings.Contains(lower, kw) {
			keywordScore += 0.05
		}
	}
	if keywordScore > 0.15 {
		keywordScore = 0.15
	}
	score += keywordScore

	if len(strings.Fields(fullText)) < 10 {
		score *= 0.5
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
