package models

import (
	"fmt"
	"time"
)

// Status is the canonical power state of one schedule interval.
type Status string

const (
	StatusOn        Status = "power_on"
	StatusOff       Status = "power_off"
	StatusUncertain Status = "uncertain"
)

// Interval is one slot of the canonical timetable. Start and End are minutes
// from midnight, so a full day runs from 0 to 1440.
type Interval struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Status Status `json:"status"`
}

// Label renders the interval as "HH:MM-HH:MM".
func (i Interval) Label() string {
	return minuteLabel(i.Start) + "-" + minuteLabel(i.End)
}

// StartAt returns the absolute start time of the interval on the given day.
func (i Interval) StartAt(day time.Time) time.Time {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return midnight.Add(time.Duration(i.Start) * time.Minute)
}

func minuteLabel(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// SnapshotKind distinguishes real timetables from informational image
// references that carry no per-interval data.
type SnapshotKind string

const (
	KindTimetable SnapshotKind = "timetable"
	KindImage     SnapshotKind = "image"
)

// ScheduleSnapshot is the canonical schedule for one (location, key, date).
// For timetable snapshots Intervals cover exactly one day; for image
// snapshots ImageURL holds the resolved asset location and the fingerprint
// is that URL.
type ScheduleSnapshot struct {
	Location    string       `json:"location"`
	GroupKey    string       `json:"group_key"`
	Date        string       `json:"date"` // YYYY-MM-DD
	Kind        SnapshotKind `json:"kind"`
	Intervals   []Interval   `json:"intervals,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	Fingerprint string       `json:"fingerprint"`
	CapturedAt  time.Time    `json:"captured_at"`
}

// Subscriber is a Telegram user bound to a location and group-or-address key.
// Owned by the chat layer; the schedule core only reads these.
type Subscriber struct {
	ID            int64     `json:"id" db:"id"`
	TelegramID    int64     `json:"telegram_id" db:"telegram_id"`
	Username      string    `json:"username" db:"username"`
	Location      string    `json:"location" db:"location"`
	GroupKey      string    `json:"group_key" db:"group_key"`
	NotifyEnabled bool      `json:"notify_enabled" db:"notify_enabled"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ChangeResult classifies a schedule upsert against the stored fingerprint.
type ChangeResult int

const (
	ChangeNew ChangeResult = iota
	ChangeChanged
	ChangeUnchanged
)

func (c ChangeResult) String() string {
	switch c {
	case ChangeNew:
		return "new"
	case ChangeChanged:
		return "changed"
	case ChangeUnchanged:
		return "unchanged"
	}
	return "unknown"
}
