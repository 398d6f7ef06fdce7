package notify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/mq"
	"shutdown-tracker/internal/registry"
)

type fakeStore struct {
	snaps   []*models.ScheduleSnapshot
	subs    map[string][]*models.Subscriber
	records map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:    map[string][]*models.Subscriber{},
		records: map[string]bool{},
	}
}

func (s *fakeStore) SnapshotsForDate(_ context.Context, date string) ([]*models.ScheduleSnapshot, error) {
	var out []*models.ScheduleSnapshot
	for _, snap := range s.snaps {
		if snap.Date == date {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *fakeStore) GetSubscribersByKey(_ context.Context, location, groupKey string) ([]*models.Subscriber, error) {
	return s.subs[location+"/"+groupKey], nil
}

func (s *fakeStore) InsertNotificationRecord(_ context.Context, subscriberID int64, location, groupKey, date string, intervalStart int) (bool, error) {
	key := fmt.Sprintf("%d/%s/%s/%s/%d", subscriberID, location, groupKey, date, intervalStart)
	if s.records[key] {
		return false, nil
	}
	s.records[key] = true
	return true, nil
}

type fakePublisher struct {
	alerts []mq.OutageAlertMsg
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, msg any) error {
	if routingKey == mq.RoutingOutageAlert {
		p.alerts = append(p.alerts, msg.(mq.OutageAlertMsg))
	}
	return nil
}

func testEvaluator(t *testing.T, store Store, pub Publisher) *Evaluator {
	t.Helper()
	reg, err := registry.New([]registry.LocationConfig{{
		ID:          "chernivtsi",
		Name:        "Чернівці",
		ScheduleURL: "http://example.test/schedule",
		Strategy:    registry.StrategyTable,
		Groups:      18,
	}})
	require.NoError(t, err)

	e, err := New(reg, store, pub, 30*time.Minute, 15*time.Minute)
	require.NoError(t, err)
	return e
}

// at returns e.now pinned to the given Kyiv wall-clock time on 2026-08-26.
func at(t *testing.T, clock string) func() time.Time {
	t.Helper()
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	require.NoError(t, err)
	ts, err := time.ParseInLocation("2006-01-02 15:04", "2026-08-26 "+clock, kyiv)
	require.NoError(t, err)
	return func() time.Time { return ts }
}

func outageSnapshot(start, end int) *models.ScheduleSnapshot {
	return &models.ScheduleSnapshot{
		Location: "chernivtsi",
		GroupKey: "4",
		Date:     "2026-08-26",
		Kind:     models.KindTimetable,
		Intervals: []models.Interval{
			{Start: 0, End: start, Status: models.StatusOn},
			{Start: start, End: end, Status: models.StatusOff},
			{Start: end, End: 1440, Status: models.StatusOn},
		},
	}
}

func TestSweepFiresInsideLeadWindow(t *testing.T) {
	store := newFakeStore()
	// Outage 10:00-12:00.
	store.snaps = append(store.snaps, outageSnapshot(600, 720))
	store.subs["chernivtsi/4"] = []*models.Subscriber{
		{ID: 1, TelegramID: 111},
		{ID: 2, TelegramID: 222},
	}
	pub := &fakePublisher{}

	e := testEvaluator(t, store, pub)
	e.now = at(t, "09:31")

	require.NoError(t, e.Sweep(context.Background()))
	require.Len(t, pub.alerts, 2)

	alert := pub.alerts[0]
	assert.Equal(t, int64(111), alert.SubscriberID)
	assert.Equal(t, "Чернівці", alert.LocationName)
	assert.Equal(t, "4", alert.GroupKey)
	assert.Equal(t, 600, alert.IntervalStart)
	assert.Equal(t, 29, alert.LeadMinutes)

	// A later sweep inside the same window must not repeat the alert.
	e.now = at(t, "09:40")
	require.NoError(t, e.Sweep(context.Background()))
	assert.Len(t, pub.alerts, 2)
}

func TestSweepWindowBounds(t *testing.T) {
	tests := []struct {
		clock string
		fires bool
	}{
		{"09:00", false}, // lead 60m, too early
		{"09:15", true},  // lead 45m, upper edge
		{"09:45", true},  // lead 15m, lower edge
		{"09:50", false}, // lead 10m, too late
		{"10:05", false}, // already started
	}
	for _, tt := range tests {
		t.Run(tt.clock, func(t *testing.T) {
			store := newFakeStore()
			store.snaps = append(store.snaps, outageSnapshot(600, 720))
			store.subs["chernivtsi/4"] = []*models.Subscriber{{ID: 1, TelegramID: 111}}
			pub := &fakePublisher{}

			e := testEvaluator(t, store, pub)
			e.now = at(t, tt.clock)

			require.NoError(t, e.Sweep(context.Background()))
			if tt.fires {
				assert.Len(t, pub.alerts, 1)
			} else {
				assert.Empty(t, pub.alerts)
			}
		})
	}
}

// gridSnapshot builds a snapshot in per-cell form, the way the normalizer
// stores it: one 30-minute interval per cell, power_off inside [start, end).
func gridSnapshot(start, end int) *models.ScheduleSnapshot {
	snap := &models.ScheduleSnapshot{
		Location: "chernivtsi",
		GroupKey: "4",
		Date:     "2026-08-26",
		Kind:     models.KindTimetable,
	}
	for m := 0; m < 1440; m += 30 {
		status := models.StatusOn
		if m >= start && m < end {
			status = models.StatusOff
		}
		snap.Intervals = append(snap.Intervals, models.Interval{Start: m, End: m + 30, Status: status})
	}
	return snap
}

func TestSweepAlertsOncePerOutageRun(t *testing.T) {
	store := newFakeStore()
	// Outage 10:00-12:00 stored as four consecutive power_off cells.
	store.snaps = append(store.snaps, gridSnapshot(600, 720))
	store.subs["chernivtsi/4"] = []*models.Subscriber{{ID: 1, TelegramID: 111}}
	pub := &fakePublisher{}

	e := testEvaluator(t, store, pub)
	e.now = at(t, "09:31")

	require.NoError(t, e.Sweep(context.Background()))
	require.Len(t, pub.alerts, 1)
	assert.Equal(t, 600, pub.alerts[0].IntervalStart)

	// Mid-outage sweeps see the 10:30/11:00 cells enter the lead window,
	// but they continue the same run and must stay silent.
	for _, clock := range []string{"10:01", "10:31", "11:01"} {
		e.now = at(t, clock)
		require.NoError(t, e.Sweep(context.Background()))
		assert.Len(t, pub.alerts, 1, "sweep at %s", clock)
	}
}

func TestSweepSkipsNonOutageIntervals(t *testing.T) {
	store := newFakeStore()
	snap := outageSnapshot(600, 720)
	snap.Intervals[1].Status = models.StatusUncertain
	store.snaps = append(store.snaps, snap)
	store.subs["chernivtsi/4"] = []*models.Subscriber{{ID: 1, TelegramID: 111}}
	pub := &fakePublisher{}

	e := testEvaluator(t, store, pub)
	e.now = at(t, "09:31")

	require.NoError(t, e.Sweep(context.Background()))
	assert.Empty(t, pub.alerts, "uncertain intervals never alert")
}

func TestSweepSkipsImageSnapshots(t *testing.T) {
	store := newFakeStore()
	store.snaps = append(store.snaps, &models.ScheduleSnapshot{
		Location:  "chernivtsi",
		GroupKey:  "info",
		Date:      "2026-08-26",
		Kind:      models.KindImage,
		Intervals: []models.Interval{{Start: 0, End: 1440, Status: models.StatusOff}},
	})
	pub := &fakePublisher{}

	e := testEvaluator(t, store, pub)
	e.now = at(t, "09:31")

	require.NoError(t, e.Sweep(context.Background()))
	assert.Empty(t, pub.alerts)
}

func TestSweepIgnoresOtherDates(t *testing.T) {
	store := newFakeStore()
	snap := outageSnapshot(600, 720)
	snap.Date = "2026-08-25"
	store.snaps = append(store.snaps, snap)
	store.subs["chernivtsi/4"] = []*models.Subscriber{{ID: 1, TelegramID: 111}}
	pub := &fakePublisher{}

	e := testEvaluator(t, store, pub)
	e.now = at(t, "09:31")

	require.NoError(t, e.Sweep(context.Background()))
	assert.Empty(t, pub.alerts)
}
