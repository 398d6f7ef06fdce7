package source

import (
	"context"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"shutdown-tracker/internal/registry"
)

// ImageReferenceAdapter handles providers that publish the schedule only as
// an image. The extraction is the resolved absolute asset URL; change
// detection then works off that reference string.
type ImageReferenceAdapter struct {
	client *http.Client
}

// imageSelectors, in priority order. Providers name the asset after the
// schedule ("grafik"/"gpv") or place it inside a schedule container.
var imageSelectors = []string{
	`img[src*="grafik"]`,
	`img[src*="gpv"]`,
	`img[src*="shutdown"]`,
	`img[src*="schedule"]`,
	`div.schedule img`,
	`a[href$=".png"] img, a[href$=".jpg"] img`,
}

func (a *ImageReferenceAdapter) Fetch(ctx context.Context, loc registry.LocationConfig) (*Extraction, error) {
	doc, _, err := fetchDocument(ctx, a.client, loc.ScheduleURL)
	if err != nil {
		return nil, err
	}

	src := findImageRef(doc)
	if src == "" {
		if hasNoOutageMarker(doc) {
			return &Extraction{Empty: true}, nil
		}
		return nil, failf(ReasonNoRecognizedFormat, "location %q: no schedule image on page", loc.ID)
	}

	abs, err := resolveRef(loc.ScheduleURL, src)
	if err != nil {
		return nil, failf(ReasonMalformedStructure, "location %q: resolve image ref %q: %w", loc.ID, src, err)
	}
	return &Extraction{ImageURL: abs}, nil
}

func findImageRef(doc *goquery.Document) string {
	for _, sel := range imageSelectors {
		if src, ok := doc.Find(sel).First().Attr("src"); ok && src != "" {
			return src
		}
	}
	return ""
}

func resolveRef(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
