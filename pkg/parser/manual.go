package parser

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/plateful/plateful/pkg/extract"
	"github.com/plateful/plateful/pkg/fetch"
	"github.com/plateful/plateful/pkg/recipe"
)

// ManualParser fetches a page over plain HTTP and runs the full extraction
// cascade: JSON-LD, jump-to-recipe section, then page-wide heuristics.
type ManualParser struct {
	client *fetch.Client
}

func NewManualParser(client *fetch.Client) *ManualParser {
	return &ManualParser{client: client}
}

func (p *ManualParser) Name() string { return "manual-http" }

func (p *ManualParser) Parse(ctx context.Context, rawURL string) (*recipe.Recipe, error) {
	html, err := p.client.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return extractRecipe(html, rawURL, p.Name())
}

// extractRecipe runs the extraction cascade over fetched HTML. Shared by the
// manual and browser strategies.
func extractRecipe(html, rawURL, method string) (*recipe.Recipe, error) {
	doc, err := extract.ParseHTML(html)
	if err != nil {
		return nil, &fetch.TerminalError{Err: err}
	}

	pageText := doc.Text()
	if reason := fetch.BlockReason(pageText); reason != "" {
		return nil, &fetch.ProtectionError{Domain: domainOf(rawURL), Method: method, Reason: reason}
	}

	if data, ok := extract.FindJSONLDRecipe(doc); ok {
		rec := extract.RecipeFromJSONLD(data, rawURL)
		if sparseExtraction(rec) {
			return nil, &fetch.ProtectionError{
				Domain: domainOf(rawURL), Method: method,
				Reason: "structured data present but nearly empty, likely a stub served to bots",
			}
		}
		return rec, nil
	}

	if section := extract.JumpTarget(doc); section != nil {
		return extract.RecipeFromSection(section, doc, rawURL), nil
	}

	rec := extract.RecipeFromPage(doc, html, rawURL)
	if likelyBlockedContent(rec, doc) {
		return nil, &fetch.ProtectionError{
			Domain: domainOf(rawURL), Method: method,
			Reason: "page yields no usable recipe content, site may be blocking automated access",
		}
	}
	return rec, nil
}

// sparseExtraction flags a result too thin to be a real recipe. Blocked
// sites sometimes serve a page that still carries an empty Recipe node, so
// structured-data results get this check too.
func sparseExtraction(rec *recipe.Recipe) bool {
	return rec.Confidence <= 0.2 &&
		len(strings.TrimSpace(rec.IngredientsHTML)) < 50 &&
		len(strings.TrimSpace(rec.InstructionsHTML)) < 100
}

// likelyBlockedContent flags a low-confidence, near-empty extraction that
// came from a page which looks like a challenge or stub rather than a recipe
func likelyBlockedContent(rec *recipe.Recipe, doc *goquery.Document) bool {
	if !sparseExtraction(rec) {
		return false
	}

	pageText := strings.ToLower(doc.Text())
	if fetch.BlockReason(pageText) != "" {
		return true
	}

	meaningful := strings.Join(strings.Fields(pageText), " ")
	if len(meaningful) < 500 {
		return true
	}

	// script-heavy page with no recipe vocabulary is likely a JS challenge
	if doc.Find("script").Length() > 20 && !strings.Contains(pageText, "recipe") {
		return true
	}
	return false
}
