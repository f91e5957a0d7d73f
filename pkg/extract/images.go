package extract

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/plateful/plateful/pkg/recipe"
)

// skipURLFragments mark images that are ads, branding or social chrome
var skipURLFragments = []string{
	"avatar", "profile", "icon", "logo", "banner", "ad-", "advertisement",
	"social", "facebook", "twitter", "instagram", "pinterest",
}

var goodAltWords = []string{
	"recipe", "food", "dish", "cooking", "baked", "cooked",
	"ingredients", "meal", "dinner", "lunch", "breakfast",
}

var badAltWords = []string{
	"author", "profile", "logo", "icon", "social", "share",
	"advertisement", "ad", "banner",
}

// PageImages harvests up to maxImages recipe images from a page. Meta tags
// come first since they carry the editor-chosen hero image, then JSON-LD,
// then images inside recipe containers.
func PageImages(doc *goquery.Document, baseURL string) []recipe.Image {
	images := metaImages(doc, baseURL)

	if len(images) == 0 {
		if data, ok := FindJSONLDRecipe(doc); ok {
			images = jsonldImages(data["image"], baseURL)
		}
	}

	if len(images) < 2 {
		for _, img := range containerImages(doc, baseURL) {
			if !containsImage(images, img.URL) {
				images = append(images, img)
				if len(images) >= maxImages {
					break
				}
			}
		}
	}

	if len(images) > maxImages {
		images = images[:maxImages]
	}
	return images
}

// metaImages reads og:image, twitter:image and itemprop image meta tags
func metaImages(doc *goquery.Document, baseURL string) []recipe.Image {
	var images []recipe.Image
	add := func(content string) {
		u := absoluteURL(content, baseURL)
		if u != "" && !containsImage(images, u) {
			images = append(images, recipe.Image{URL: u, Alt: "Recipe image", Source: "meta-tag"})
		}
	}

	if content, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		add(content)
	}
	if content, ok := doc.Find(`meta[name="twitter:image"]`).First().Attr("content"); ok {
		add(content)
	}
	if content, ok := doc.Find(`meta[itemprop="image"]`).First().Attr("content"); ok {
		add(content)
	}
	return images
}

// containerImages scans recipe-related containers for plausible food photos
func containerImages(doc *goquery.Document, baseURL string) []recipe.Image {
	containers := []string{
		".recipe", ".recipe-card", ".recipe-content", ".recipe-container",
		".entry-content", ".post-content", ".main-content",
		`[itemtype*="Recipe"]`, ".wp-block-recipe",
	}

	var images []recipe.Image
	for _, sel := range containers {
		doc.Find(sel).Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
			u := imageURL(img, baseURL)
			if u != "" && validRecipeImage(img, u) && !containsImage(images, u) {
				images = append(images, recipe.Image{URL: u, Alt: "Recipe image", Source: "page-content"})
			}
			return len(images) < maxImages
		})
		if len(images) >= maxImages {
			break
		}
	}
	return images
}

// sectionImages harvests images from a targeted recipe card section
func sectionImages(section *goquery.Selection, baseURL string) []recipe.Image {
	selectors := []string{
		".recipe-image img",
		".recipe-photo img",
		".wprm-recipe-image img",
		".wp-block-recipe-image img",
		".recipe-card-image img",
		`[itemprop="image"]`,
		".entry-content img",
		"img",
	}

	var images []recipe.Image
	for _, sel := range selectors {
		section.Find(sel).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			u := imageURL(img, baseURL)
			if u != "" && validRecipeImage(img, u) && !containsImage(images, u) {
				images = append(images, recipe.Image{URL: u, Alt: "Recipe image", Source: "recipe-section"})
			}
			return len(images) < maxImages
		})
		if len(images) > 0 {
			break
		}
	}
	return images
}

// imageURL reads the image source, including the lazy-load attributes
// recipe blogs favor
func imageURL(img *goquery.Selection, baseURL string) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src", "data-original"} {
		if val, ok := img.Attr(attr); ok && val != "" {
			return absoluteURL(val, baseURL)
		}
	}
	return ""
}

// absoluteURL resolves a possibly-relative URL against the page URL
func absoluteURL(raw, baseURL string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if strings.HasPrefix(raw, "//") {
		if strings.HasPrefix(baseURL, "http://") {
			return "http:" + raw
		}
		return "https:" + raw
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// validRecipeImage filters out icons, ads and author photos
func validRecipeImage(img *goquery.Selection, imgURL string) bool {
	// declared dimensions under 200x150 are thumbnails or icons
	if w, werr := strconv.Atoi(attrOr(img, "width")); werr == nil {
		if h, herr := strconv.Atoi(attrOr(img, "height")); herr == nil {
			if w < 200 || h < 150 {
				return false
			}
		}
	}

	lower := strings.ToLower(imgURL)
	for _, skip := range skipURLFragments {
		if strings.Contains(lower, skip) {
			return false
		}
	}

	if alt := strings.ToLower(attrOr(img, "alt")); alt != "" {
		for _, good := range goodAltWords {
			if strings.Contains(alt, good) {
				return true
			}
		}
		for _, bad := range badAltWords {
			if strings.Contains(alt, bad) {
				return false
			}
		}
	}
	return true
}

func attrOr(s *goquery.Selection, name string) string {
	val, _ := s.Attr(name)
	return val
}

func containsImage(images []recipe.Image, u string) bool {
	for _, img := range images {
		if img.URL == u {
			return true
		}
	}
	return false
}
