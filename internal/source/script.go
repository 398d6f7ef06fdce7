package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/registry"
)

// ScriptPayloadAdapter parses providers that render the schedule client-side
// and embed the data as a JSON literal assigned to a script variable.
type ScriptPayloadAdapter struct {
	client *http.Client
}

func (a *ScriptPayloadAdapter) Fetch(ctx context.Context, loc registry.LocationConfig) (*Extraction, error) {
	_, raw, err := fetchDocument(ctx, a.client, loc.ScheduleURL)
	if err != nil {
		return nil, err
	}

	groups, err := extractScriptPayload(raw)
	if err != nil {
		return nil, failf(ReasonNoRecognizedFormat, "location %q: %w", loc.ID, err)
	}
	// An empty payload is the provider's way of saying "no outages today".
	if len(groups) == 0 {
		return &Extraction{Empty: true}, nil
	}
	return &Extraction{Groups: groups}, nil
}

// scriptPayloadRe matches the known variable-assignment patterns carrying
// the schedule payload.
var scriptPayloadRe = regexp.MustCompile(
	`(?is)(?:window\.|var\s+|let\s+|const\s+)(?:schedule(?:Data)?|scheduleData|groups|disconSchedule|DisconSchedule)\s*=\s*(\{.*?\}|\[.*?\])\s*[;<]`)

// extractScriptPayload finds the embedded payload and normalizes whichever
// of its two known shapes it uses: a mapping of group to slot list, or a
// list of group records.
func extractScriptPayload(raw string) (map[string][]Slot, error) {
	m := scriptPayloadRe.FindStringSubmatch(raw)
	if m == nil {
		return nil, fmt.Errorf("no embedded schedule payload in document")
	}

	var payload any
	if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
		return nil, fmt.Errorf("decode embedded payload: %w", err)
	}

	switch v := payload.(type) {
	case map[string]any:
		return groupsFromMapping(v)
	case []any:
		return groupsFromRecords(v)
	default:
		return nil, fmt.Errorf("embedded payload has unsupported shape %T", payload)
	}
}

// groupsFromMapping handles {"1": [...], "Група 2": [...]}.
func groupsFromMapping(mapping map[string]any) (map[string][]Slot, error) {
	groups := make(map[string][]Slot)
	for key, val := range mapping {
		digits := groupNumRe.FindString(key)
		if digits == "" {
			continue
		}
		items, ok := val.([]any)
		if !ok {
			continue
		}
		groups[digits] = slotsFromItems(items)
	}
	return groups, nil
}

// groupsFromRecords handles [{"group": 1, "intervals": [...]}, ...].
func groupsFromRecords(records []any) (map[string][]Slot, error) {
	groups := make(map[string][]Slot)
	for _, rec := range records {
		obj, ok := rec.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("payload record is not an object")
		}

		var key string
		switch g := obj["group"].(type) {
		case float64:
			key = strconv.Itoa(int(g))
		case string:
			key = groupNumRe.FindString(g)
		}
		if key == "" {
			if name, ok := obj["name"].(string); ok {
				key = groupNumRe.FindString(name)
			}
		}
		if key == "" {
			continue
		}

		items, _ := firstSlice(obj, "intervals", "items", "schedule")
		groups[key] = slotsFromItems(items)
	}
	return groups, nil
}

func firstSlice(obj map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if v, ok := obj[k].([]any); ok {
			return v, true
		}
	}
	return nil, false
}

func slotsFromItems(items []any) []Slot {
	var slots []Slot
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label, _ := firstString(obj, "time", "interval", "label")
		if label == "" {
			continue
		}
		status, _ := firstString(obj, "status", "state")
		slots = append(slots, Slot{Label: label, Status: payloadStatus(status)})
	}
	return slots
}

func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := obj[k].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func payloadStatus(s string) models.Status {
	switch s {
	case "off", "no", "0", "power_off":
		return models.StatusOff
	case "maybe", "uncertain", "possible":
		return models.StatusUncertain
	default:
		return models.StatusOn
	}
}
