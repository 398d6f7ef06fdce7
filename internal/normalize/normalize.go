// Package normalize converts provisional adapter extractions into canonical
// ScheduleSnapshots: a contiguous, sorted, full-day interval sequence at the
// location's granularity, plus a stable fingerprint for change detection.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/registry"
	"shutdown-tracker/internal/source"
)

const dayMinutes = 24 * 60

// Snapshot builds the canonical timetable for one (location, key, date) from
// provisional slots. Grid cells no slot covers default to power_on — that is
// deliberate policy: absent evidence of an outage, power is assumed on.
// Unparseable slot labels are skipped, not fatal.
func Snapshot(loc registry.LocationConfig, groupKey, date string, slots []source.Slot, capturedAt time.Time) models.ScheduleSnapshot {
	gran := loc.Granularity()
	cells := dayMinutes / gran

	statuses := make([]models.Status, cells)
	for i := range statuses {
		statuses[i] = models.StatusOn
	}

	for _, slot := range slots {
		start, end, ok := parseRange(slot.Label)
		if !ok {
			continue
		}
		// Clip to the day and align to grid boundaries.
		if start < 0 {
			start = 0
		}
		if end > dayMinutes {
			end = dayMinutes
		}
		for c := start / gran; c*gran < end && c < cells; c++ {
			if statusRank(slot.Status) > statusRank(statuses[c]) {
				statuses[c] = slot.Status
			}
		}
	}

	intervals := make([]models.Interval, cells)
	for i := range intervals {
		intervals[i] = models.Interval{Start: i * gran, End: (i + 1) * gran, Status: statuses[i]}
	}

	return models.ScheduleSnapshot{
		Location:    loc.ID,
		GroupKey:    groupKey,
		Date:        date,
		Kind:        models.KindTimetable,
		Intervals:   intervals,
		Fingerprint: Fingerprint(intervals),
		CapturedAt:  capturedAt,
	}
}

// ImageSnapshot builds the informational pseudo-schedule for image-only
// sources: a single all-day uncertain interval fingerprinted by the resolved
// asset URL.
func ImageSnapshot(loc registry.LocationConfig, date, imageURL string, capturedAt time.Time) models.ScheduleSnapshot {
	return models.ScheduleSnapshot{
		Location:    loc.ID,
		GroupKey:    "info",
		Date:        date,
		Kind:        models.KindImage,
		Intervals:   []models.Interval{{Start: 0, End: dayMinutes, Status: models.StatusUncertain}},
		ImageURL:    imageURL,
		Fingerprint: imageURL,
		CapturedAt:  capturedAt,
	}
}

// Fingerprint is a stable digest of the canonical interval sequence. Two
// snapshots with the same intervals always fingerprint identically.
func Fingerprint(intervals []models.Interval) string {
	var b strings.Builder
	for _, iv := range intervals {
		fmt.Fprintf(&b, "%d-%d:%s;", iv.Start, iv.End, iv.Status)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// statusRank orders statuses so a stronger claim overwrites a weaker one
// when source slots overlap a grid cell.
func statusRank(s models.Status) int {
	switch s {
	case models.StatusOff:
		return 2
	case models.StatusUncertain:
		return 1
	default:
		return 0
	}
}

var timeRe = regexp.MustCompile(`(\d{1,2})(?:[:.](\d{2}))?`)

// parseRange parses source time labels like "00:00-00:30", "14 – 16" or
// "9:00-11:00" into minutes from midnight.
func parseRange(label string) (start, end int, ok bool) {
	sep := "-"
	if strings.Contains(label, "–") {
		sep = "–"
	}
	left, right, found := strings.Cut(label, sep)
	if !found {
		return 0, 0, false
	}
	start, okLeft := parseClock(left)
	end, okRight := parseClock(right)
	if !okLeft || !okRight || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

func parseClock(s string) (int, bool) {
	m := timeRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h < 0 || h > 24 {
		return 0, false
	}
	min := 0
	if m[2] != "" {
		min, err = strconv.Atoi(m[2])
		if err != nil || min > 59 {
			return 0, false
		}
	}
	return h*60 + min, true
}
