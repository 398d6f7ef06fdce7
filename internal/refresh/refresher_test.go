package refresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shutdown-tracker/internal/cache"
	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/mq"
	"shutdown-tracker/internal/registry"
)

type fakeStore struct {
	snaps     []models.ScheduleSnapshot
	imageRefs map[string]string
	results   map[string]models.ChangeResult // per group key; default ChangeNew
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		imageRefs: map[string]string{},
		results:   map[string]models.ChangeResult{},
	}
}

func (s *fakeStore) UpsertSchedule(_ context.Context, snap models.ScheduleSnapshot) (models.ChangeResult, error) {
	s.snaps = append(s.snaps, snap)
	if res, ok := s.results[snap.GroupKey]; ok {
		return res, nil
	}
	return models.ChangeNew, nil
}

func (s *fakeStore) UpsertImageRef(_ context.Context, location, url string, _ time.Time) error {
	s.imageRefs[location] = url
	return nil
}

type fakeStates struct {
	states map[string]cache.FetchState
}

func (s *fakeStates) SetFetchState(_ context.Context, location string, st cache.FetchState) error {
	s.states[location] = st
	return nil
}

type fakePublisher struct {
	changed []mq.ScheduleChangedMsg
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, msg any) error {
	if routingKey == mq.RoutingScheduleChanged {
		p.changed = append(p.changed, msg.(mq.ScheduleChangedMsg))
	}
	return nil
}

func newTestRefresher(t *testing.T, locs []registry.LocationConfig, client *http.Client) (*Refresher, *fakeStore, *fakeStates, *fakePublisher) {
	t.Helper()
	reg, err := registry.New(locs)
	require.NoError(t, err)

	store := newFakeStore()
	states := &fakeStates{states: map[string]cache.FetchState{}}
	pub := &fakePublisher{}

	r, err := New(reg, store, states, pub, client, 5*time.Second)
	require.NoError(t, err)
	return r, store, states, pub
}

func TestRunAllTableLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<table>
<tr><th>Група</th><th>10:00-12:00</th></tr>
<tr><td>1</td><td bgcolor="red"></td></tr>
<tr><td>2</td><td></td></tr>
</table>`))
	}))
	defer srv.Close()

	locs := []registry.LocationConfig{{
		ID: "testville", Name: "Testville",
		ScheduleURL: srv.URL,
		Strategy:    registry.StrategyTable,
		Groups:      2,
	}}
	r, store, states, pub := newTestRefresher(t, locs, srv.Client())

	r.RunAll(context.Background())

	require.Len(t, store.snaps, 2)
	for _, snap := range store.snaps {
		assert.Equal(t, "testville", snap.Location)
		assert.Equal(t, models.KindTimetable, snap.Kind)
		assert.Len(t, snap.Intervals, 48)
	}
	assert.Equal(t, "fresh", states.states["testville"].Outcome)
	// First snapshots are New: no change events.
	assert.Empty(t, pub.changed)
}

func TestRunAllPublishesOnChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<table>
<tr><th>Група</th><th>10:00-12:00</th></tr>
<tr><td>1</td><td bgcolor="red"></td></tr>
</table>`))
	}))
	defer srv.Close()

	locs := []registry.LocationConfig{{
		ID: "testville", Name: "Testville",
		ScheduleURL: srv.URL,
		Strategy:    registry.StrategyTable,
		Groups:      1,
	}}
	r, store, _, pub := newTestRefresher(t, locs, srv.Client())
	store.results["1"] = models.ChangeChanged

	r.RunAll(context.Background())

	require.Len(t, pub.changed, 1)
	assert.Equal(t, "testville", pub.changed[0].Location)
	assert.Equal(t, "1", pub.changed[0].GroupKey)
	assert.Equal(t, "timetable", pub.changed[0].Kind)
}

func TestRunAllEmptyDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<p>Відключення не заплановані.</p>`))
	}))
	defer srv.Close()

	locs := []registry.LocationConfig{{
		ID: "testville", Name: "Testville",
		ScheduleURL: srv.URL,
		Strategy:    registry.StrategyTable,
		Groups:      3,
	}}
	r, store, states, _ := newTestRefresher(t, locs, srv.Client())

	r.RunAll(context.Background())

	// One full power-on day per group.
	require.Len(t, store.snaps, 3)
	for _, snap := range store.snaps {
		for _, iv := range snap.Intervals {
			assert.Equal(t, models.StatusOn, iv.Status)
		}
	}
	assert.Equal(t, "empty", states.states["testville"].Outcome)
}

func TestRunAllImageLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<img src="/uploads/grafik.png">`))
	}))
	defer srv.Close()

	locs := []registry.LocationConfig{{
		ID: "imgtown", Name: "Imgtown",
		ScheduleURL: srv.URL,
		Strategy:    registry.StrategyImage,
	}}
	r, store, states, _ := newTestRefresher(t, locs, srv.Client())

	r.RunAll(context.Background())

	require.Len(t, store.snaps, 1)
	snap := store.snaps[0]
	assert.Equal(t, models.KindImage, snap.Kind)
	assert.Equal(t, "info", snap.GroupKey)
	assert.Equal(t, srv.URL+"/uploads/grafik.png", snap.ImageURL)
	assert.Equal(t, snap.ImageURL, store.imageRefs["imgtown"])
	assert.Equal(t, "fresh", states.states["imgtown"].Outcome)
}

func TestRunAllRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	locs := []registry.LocationConfig{{
		ID: "testville", Name: "Testville",
		ScheduleURL: srv.URL,
		Strategy:    registry.StrategyTable,
		Groups:      1,
	}}
	r, store, states, _ := newTestRefresher(t, locs, srv.Client())

	var probed string
	r.SetProbe(func(host string) bool {
		probed = host
		return true
	})

	r.RunAll(context.Background())

	assert.Empty(t, store.snaps, "failed fetches never persist schedules")
	st := states.states["testville"]
	assert.Equal(t, "failed", st.Outcome)
	assert.Equal(t, "http_status", st.Reason)
	require.NotNil(t, st.HostReachable)
	assert.True(t, *st.HostReachable)
	assert.Equal(t, "127.0.0.1", probed)
}

func TestRunAllIsolatesLocationFailures(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<img src="grafik.png">`))
	}))
	defer good.Close()

	locs := []registry.LocationConfig{
		{ID: "broken", Name: "Broken", ScheduleURL: bad.URL, Strategy: registry.StrategyTable, Groups: 1},
		{ID: "imgtown", Name: "Imgtown", ScheduleURL: good.URL, Strategy: registry.StrategyImage},
	}
	r, store, states, _ := newTestRefresher(t, locs, http.DefaultClient)

	r.RunAll(context.Background())

	assert.Equal(t, "failed", states.states["broken"].Outcome)
	assert.Equal(t, "fresh", states.states["imgtown"].Outcome)
	require.Len(t, store.snaps, 1)
	assert.Equal(t, "imgtown", store.snaps[0].Location)
}
