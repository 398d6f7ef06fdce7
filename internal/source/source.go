// Package source fetches raw upstream schedule data and extracts a
// provisional, not-yet-normalized form of it. One adapter exists per
// provider publishing format; Fetch is tri-state: data, confirmed-empty
// (Extraction.Empty), or a typed *FetchError. "Could not parse" is always a
// failure, never an empty schedule.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/registry"
)

// Slot is one provisional schedule entry as the source published it, before
// grid alignment.
type Slot struct {
	Label  string
	Status models.Status
}

// Extraction is the provisional result of one successful fetch. Exactly one
// of the three forms is populated: Groups for timetable sources, ImageURL
// for image sources, or Empty when the source affirmatively reports no
// outages today.
type Extraction struct {
	Empty    bool
	Groups   map[string][]Slot
	ImageURL string
}

// Adapter extracts a provisional schedule from one location's upstream.
type Adapter interface {
	Fetch(ctx context.Context, loc registry.LocationConfig) (*Extraction, error)
}

// ForLocation returns the adapter matching the location's parsing strategy.
func ForLocation(loc registry.LocationConfig, client *http.Client, opts ...AddressOption) (Adapter, error) {
	switch loc.Strategy {
	case registry.StrategyTable:
		return &TableAdapter{client: client}, nil
	case registry.StrategyScript:
		return &ScriptPayloadAdapter{client: client}, nil
	case registry.StrategyImage:
		return &ImageReferenceAdapter{client: client}, nil
	case registry.StrategyAddress:
		return NewAddressLookupAdapter(client, opts...), nil
	default:
		return nil, fmt.Errorf("location %q: no adapter for strategy %q", loc.ID, loc.Strategy)
	}
}

// DefaultClient is the HTTP client used when callers don't supply one; the
// timeout here is a backstop, per-fetch deadlines come from the context.
func DefaultClient() *http.Client {
	return &http.Client{Timeout: 35 * time.Second}
}

const userAgent = "shutdown-tracker/1.0"

// fetchDocument GETs the page and returns both the parsed document and the
// raw body (the script adapter needs the raw text).
func fetchDocument(ctx context.Context, client *http.Client, url string) (*goquery.Document, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", failf(ReasonNetwork, "build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", classify(fmt.Errorf("GET %s: %w", url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", failf(ReasonHTTPStatus, "GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", classify(fmt.Errorf("read body of %s: %w", url, err))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, "", failf(ReasonMalformedStructure, "parse document %s: %w", url, err)
	}
	return doc, string(body), nil
}

// noOutageMarkers are phrases providers print when no shutdowns are planned.
// Only their presence turns "nothing parseable" into a confirmed-empty day.
var noOutageMarkers = []string{
	"відключення не заплановані",
	"відключень немає",
	"графіки відключень не застосовуються",
	"no outages",
}

func hasNoOutageMarker(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Text())
	for _, m := range noOutageMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
