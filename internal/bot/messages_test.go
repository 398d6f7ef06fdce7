package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"shutdown-tracker/internal/models"
)

func TestFormatScheduleTimetable(t *testing.T) {
	snap := &models.ScheduleSnapshot{
		Location: "chernivtsi",
		GroupKey: "4",
		Date:     "2026-08-26",
		Kind:     models.KindTimetable,
		Intervals: []models.Interval{
			{Start: 0, End: 600, Status: models.StatusOn},
			{Start: 600, End: 720, Status: models.StatusOff},
			{Start: 720, End: 750, Status: models.StatusUncertain},
		},
	}

	msg := FormatSchedule("Чернівці", snap)

	assert.Contains(t, msg, "Чернівці")
	assert.Contains(t, msg, "2026-08-26")
	assert.Contains(t, msg, "🟢 00:00-10:00")
	assert.Contains(t, msg, "🔴 10:00-12:00")
	assert.Contains(t, msg, "⚪ 12:00-12:30")
	assert.Contains(t, msg, "±30 хвилин")
}

func TestFormatScheduleImage(t *testing.T) {
	snap := &models.ScheduleSnapshot{
		Location: "khmelnytskyi",
		GroupKey: "info",
		Date:     "2026-08-26",
		Kind:     models.KindImage,
		ImageURL: "https://example.com/grafik.png",
	}

	msg := FormatSchedule("Хмельницький", snap)

	assert.Contains(t, msg, "https://example.com/grafik.png")
	assert.NotContains(t, msg, "🔴", "image snapshots carry no interval grid")
}

func TestFormatScheduleEscapesName(t *testing.T) {
	snap := &models.ScheduleSnapshot{Date: "2026-08-26", Kind: models.KindTimetable}
	msg := FormatSchedule("<Місто>", snap)
	assert.True(t, strings.Contains(msg, "&lt;Місто&gt;"))
}

func TestClockLabel(t *testing.T) {
	assert.Equal(t, "00:00", clockLabel(0))
	assert.Equal(t, "10:00", clockLabel(600))
	assert.Equal(t, "23:30", clockLabel(1410))
}
