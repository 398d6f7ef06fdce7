package source

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/registry"
)

// TableAdapter parses providers that publish the schedule as an HTML table:
// one row per group, one cell per time slot, status encoded in cell
// color/class/keywords.
type TableAdapter struct {
	client *http.Client
}

func (a *TableAdapter) Fetch(ctx context.Context, loc registry.LocationConfig) (*Extraction, error) {
	doc, raw, err := fetchDocument(ctx, a.client, loc.ScheduleURL)
	if err != nil {
		return nil, err
	}

	groups, err := extractTable(doc, loc)
	if err == nil {
		return &Extraction{Groups: groups}, nil
	}

	if hasNoOutageMarker(doc) {
		return &Extraction{Empty: true}, nil
	}

	// The page may render the table client-side and ship the data in an
	// embedded script payload instead; try that before giving up.
	if groups, perr := extractScriptPayload(raw); perr == nil {
		if len(groups) == 0 {
			return &Extraction{Empty: true}, nil
		}
		return &Extraction{Groups: groups}, nil
	}

	return nil, failf(ReasonNoRecognizedFormat, "location %q: %w", loc.ID, err)
}

var groupNumRe = regexp.MustCompile(`\d+`)

// extractTable pulls the provisional schedule out of the first recognizable
// table. Rows without a parseable group number in 1..loc.Groups are skipped.
func extractTable(doc *goquery.Document, loc registry.LocationConfig) (map[string][]Slot, error) {
	table := doc.Find("table.shutdowns-table").First()
	if table.Length() == 0 {
		table = doc.Find("table").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("no schedule table in document")
	}

	headers := extractHeaders(table)
	if len(headers) == 0 {
		headers = DefaultGridLabels(loc.Granularity())
	}

	groups := make(map[string][]Slot)

	rows := table.Find("tbody tr")
	if rows.Length() == 0 {
		trs := table.Find("tr")
		if trs.Length() < 2 {
			return nil, fmt.Errorf("table has no data rows")
		}
		rows = trs.Slice(1, goquery.ToEnd)
	}
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}

		groupText := strings.TrimSpace(cells.First().Text())
		digits := groupNumRe.FindString(groupText)
		if digits == "" {
			return
		}
		num, err := strconv.Atoi(digits)
		if err != nil || num < 1 || num > loc.Groups {
			return
		}

		var slots []Slot
		cells.Slice(1, goquery.ToEnd).EachWithBreak(func(i int, cell *goquery.Selection) bool {
			if i >= len(headers) {
				return false
			}
			slots = append(slots, Slot{Label: headers[i], Status: cellStatus(cell)})
			return true
		})
		groups[strconv.Itoa(num)] = slots
	})

	if len(groups) == 0 {
		return nil, fmt.Errorf("table has no parseable group rows")
	}
	return groups, nil
}

// extractHeaders collects the time-interval column labels, skipping the
// group-number column. Only cells that look like a time range count.
func extractHeaders(table *goquery.Selection) []string {
	headerRow := table.Find("thead tr").First()
	if headerRow.Length() == 0 {
		headerRow = table.Find("tr").First()
	}

	var headers []string
	headerRow.Find("th, td").Each(func(i int, cell *goquery.Selection) {
		if i == 0 {
			return
		}
		text := strings.TrimSpace(cell.Text())
		if text != "" && (strings.Contains(text, ":") || strings.Contains(text, "-")) {
			headers = append(headers, text)
		}
	})
	return headers
}

// Cell status precedence: outage marker > restoration marker > uncertain
// marker > textual keyword > power on.
var (
	offMarkers       = []string{"red", "#ff0000", "#f00", "rgb(255,0,0)", "danger", "outage", "vidkl"}
	onMarkers        = []string{"green", "#00ff00", "#0f0", "rgb(0,255,0)", "success", "power"}
	uncertainMarkers = []string{"yellow", "gray", "grey", "warning", "maybe"}
)

func cellStatus(cell *goquery.Selection) models.Status {
	style, _ := cell.Attr("style")
	class, _ := cell.Attr("class")
	bgcolor, _ := cell.Attr("bgcolor")
	attrs := strings.ToLower(style + " " + class + " " + bgcolor)
	text := strings.ToLower(strings.TrimSpace(cell.Text()))

	if containsAny(attrs, offMarkers) {
		return models.StatusOff
	}
	if containsAny(attrs, onMarkers) {
		return models.StatusOn
	}
	if containsAny(attrs, uncertainMarkers) {
		return models.StatusUncertain
	}
	if strings.Contains(text, "відключення") || strings.Contains(text, "немає") || text == "off" {
		return models.StatusOff
	}
	if strings.Contains(text, "можливо") || text == "maybe" {
		return models.StatusUncertain
	}
	return models.StatusOn
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// DefaultGridLabels generates the fallback header grid for tables that
// don't carry recognizable time labels.
func DefaultGridLabels(granularityMin int) []string {
	var labels []string
	for start := 0; start < 24*60; start += granularityMin {
		end := start + granularityMin
		labels = append(labels, fmt.Sprintf("%02d:%02d-%02d:%02d", start/60, start%60, end/60, end%60))
	}
	return labels
}
