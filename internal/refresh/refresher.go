// Package refresh drives the periodic fetch → normalize → store cycle for
// every configured location. Failures are isolated per location: one
// provider breaking its markup never blocks the others' refresh.
package refresh

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"shutdown-tracker/internal/cache"
	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/mq"
	"shutdown-tracker/internal/normalize"
	"shutdown-tracker/internal/registry"
	"shutdown-tracker/internal/source"
)

// Store is the schedule persistence the refresher writes to.
type Store interface {
	UpsertSchedule(ctx context.Context, snap models.ScheduleSnapshot) (models.ChangeResult, error)
	UpsertImageRef(ctx context.Context, location, url string, at time.Time) error
}

// States records per-location fetch outcomes for the status endpoint.
type States interface {
	SetFetchState(ctx context.Context, location string, st cache.FetchState) error
}

// Publisher publishes schedule-changed events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg any) error
}

// Refresher runs the refresh cycle.
type Refresher struct {
	reg       *registry.Registry
	store     Store
	states    States
	pub       Publisher
	adapters  map[string]source.Adapter
	timeout   time.Duration
	probeHost func(host string) bool
	now       func() time.Time
	kyiv      *time.Location
}

// New builds a Refresher with one adapter per configured location.
// addrOpts wires the lookup cache and subscriber-key source into
// address-strategy adapters.
func New(reg *registry.Registry, store Store, states States, pub Publisher, client *http.Client, timeout time.Duration, addrOpts ...source.AddressOption) (*Refresher, error) {
	adapters := make(map[string]source.Adapter)
	for _, loc := range reg.All() {
		a, err := source.ForLocation(loc, client, addrOpts...)
		if err != nil {
			return nil, err
		}
		adapters[loc.ID] = a
	}
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		return nil, err
	}
	return &Refresher{
		reg:       reg,
		store:     store,
		states:    states,
		pub:       pub,
		adapters:  adapters,
		timeout:   timeout,
		probeHost: nil,
		now:       time.Now,
		kyiv:      kyiv,
	}, nil
}

// SetProbe installs the host reachability check run when a fetch fails.
func (r *Refresher) SetProbe(probe func(host string) bool) {
	r.probeHost = probe
}

// Start runs RunAll on every tick. Callers wanting a synchronous first pass
// (the worker does, before declaring itself ready) call RunAll themselves
// beforehand. Blocks until ctx is cancelled.
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[refresh] driver started (interval=%s, timeout=%s)", interval, r.timeout)

	for {
		select {
		case <-ctx.Done():
			log.Println("[refresh] driver stopped")
			return
		case <-ticker.C:
			r.RunAll(ctx)
		}
	}
}

// RunAll refreshes every location once. A location's failure is logged and
// recorded, never propagated.
func (r *Refresher) RunAll(ctx context.Context) {
	for _, loc := range r.reg.All() {
		if err := r.refreshLocation(ctx, loc); err != nil {
			log.Printf("[refresh] %s: %v", loc.ID, err)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *Refresher) refreshLocation(ctx context.Context, loc registry.LocationConfig) error {
	fctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := r.now()
	date := now.In(r.kyiv).Format("2006-01-02")

	ext, err := r.adapters[loc.ID].Fetch(fctx, loc)
	if err != nil {
		r.recordFailure(ctx, loc, err, now)
		return err
	}

	switch {
	case ext.Empty:
		// Provider affirmatively reports no outages: persist a full
		// power-on day for every group so the stored schedule says so
		// explicitly.
		for g := 1; g <= loc.Groups; g++ {
			snap := normalize.Snapshot(loc, strconv.Itoa(g), date, nil, now)
			if err := r.upsertAndAnnounce(ctx, loc, snap); err != nil {
				return err
			}
		}
		r.recordState(ctx, loc.ID, cache.FetchState{Outcome: "empty", CheckedAt: now})

	case ext.ImageURL != "":
		snap := normalize.ImageSnapshot(loc, date, ext.ImageURL, now)
		if err := r.upsertAndAnnounce(ctx, loc, snap); err != nil {
			return err
		}
		if err := r.store.UpsertImageRef(ctx, loc.ID, ext.ImageURL, now); err != nil {
			return err
		}
		r.recordState(ctx, loc.ID, cache.FetchState{Outcome: "fresh", CheckedAt: now})

	default:
		for key, slots := range ext.Groups {
			snap := normalize.Snapshot(loc, key, date, slots, now)
			if err := r.upsertAndAnnounce(ctx, loc, snap); err != nil {
				return err
			}
		}
		r.recordState(ctx, loc.ID, cache.FetchState{Outcome: "fresh", CheckedAt: now})
	}
	return nil
}

// upsertAndAnnounce stores the snapshot and publishes a changed event when —
// and only when — an existing schedule materially changed. The very first
// snapshot for a key is New and stays silent.
func (r *Refresher) upsertAndAnnounce(ctx context.Context, loc registry.LocationConfig, snap models.ScheduleSnapshot) error {
	result, err := r.store.UpsertSchedule(ctx, snap)
	if err != nil {
		return err
	}
	if result != models.ChangeChanged {
		return nil
	}

	log.Printf("[refresh] %s/%s: schedule changed", snap.Location, snap.GroupKey)
	msg := mq.ScheduleChangedMsg{
		Location:     loc.ID,
		LocationName: loc.Name,
		GroupKey:     snap.GroupKey,
		Date:         snap.Date,
		Kind:         string(snap.Kind),
		ImageURL:     snap.ImageURL,
		Note:         loc.Note,
	}
	if err := r.pub.Publish(ctx, mq.RoutingScheduleChanged, msg); err != nil {
		log.Printf("[refresh] %s/%s: failed to publish change: %v", snap.Location, snap.GroupKey, err)
	}
	return nil
}

func (r *Refresher) recordFailure(ctx context.Context, loc registry.LocationConfig, err error, now time.Time) {
	st := cache.FetchState{
		Outcome:   "failed",
		Reason:    string(source.ReasonOf(err)),
		Error:     err.Error(),
		CheckedAt: now,
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if r.probeHost != nil {
		if host := probeTarget(loc); host != "" {
			reachable := r.probeHost(host)
			st.HostReachable = &reachable
		}
	}
	r.recordState(ctx, loc.ID, st)
}

func (r *Refresher) recordState(ctx context.Context, location string, st cache.FetchState) {
	if r.states == nil {
		return
	}
	if err := r.states.SetFetchState(ctx, location, st); err != nil {
		log.Printf("[refresh] %s: failed to record fetch state: %v", location, err)
	}
}

func probeTarget(loc registry.LocationConfig) string {
	raw := loc.ScheduleURL
	if raw == "" {
		raw = loc.LookupURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
