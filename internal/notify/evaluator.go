// Package notify implements the periodic sweep that warns subscribers ahead
// of an imminent outage. Records are written before publishing so an alert
// is delivered at most once per (subscriber, schedule key, interval start)
// per day, no matter how often the sweep runs while the window is open.
package notify

import (
	"context"
	"log"
	"time"

	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/mq"
	"shutdown-tracker/internal/registry"
)

// Store is the persistence the evaluator reads snapshots and subscribers
// from, and writes notification records to.
type Store interface {
	SnapshotsForDate(ctx context.Context, date string) ([]*models.ScheduleSnapshot, error)
	GetSubscribersByKey(ctx context.Context, location, groupKey string) ([]*models.Subscriber, error)
	InsertNotificationRecord(ctx context.Context, subscriberID int64, location, groupKey, date string, intervalStart int) (bool, error)
}

// Publisher hands finished alerts to the delivery collaborator.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg any) error
}

// Evaluator correlates today's stored snapshots with subscriber bindings
// and fires lead-time alerts.
type Evaluator struct {
	reg       *registry.Registry
	store     Store
	pub       Publisher
	lead      time.Duration
	tolerance time.Duration
	now       func() time.Time
	kyiv      *time.Location
}

func New(reg *registry.Registry, store Store, pub Publisher, lead, tolerance time.Duration) (*Evaluator, error) {
	kyiv, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		return nil, err
	}
	return &Evaluator{
		reg:       reg,
		store:     store,
		pub:       pub,
		lead:      lead,
		tolerance: tolerance,
		now:       time.Now,
		kyiv:      kyiv,
	}, nil
}

// Start runs the sweep on every tick. Blocks until ctx is cancelled.
func (e *Evaluator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[notify] evaluator started (interval=%s, lead=%s±%s)", interval, e.lead, e.tolerance)

	for {
		select {
		case <-ctx.Done():
			log.Println("[notify] evaluator stopped")
			return
		case <-ticker.C:
			if err := e.Sweep(ctx); err != nil {
				log.Printf("[notify] sweep failed: %v", err)
			}
		}
	}
}

// Sweep evaluates every stored snapshot for today once. An interval fires
// for a subscriber when its start lies inside the lead window ± tolerance,
// its status is power_off, and no record exists yet for the tuple. Grid
// cells that continue an already-running outage (the preceding interval is
// also power_off) never fire: subscribers are warned once per outage, at
// its onset.
func (e *Evaluator) Sweep(ctx context.Context) error {
	now := e.now().In(e.kyiv)
	date := now.Format("2006-01-02")

	snaps, err := e.store.SnapshotsForDate(ctx, date)
	if err != nil {
		return err
	}

	for _, snap := range snaps {
		if snap.Kind != models.KindTimetable {
			continue
		}

		var subs []*models.Subscriber
		loaded := false

		for i, iv := range snap.Intervals {
			if iv.Status != models.StatusOff {
				continue
			}
			if i > 0 && snap.Intervals[i-1].Status == models.StatusOff {
				continue
			}
			lead := iv.StartAt(now).Sub(now)
			if lead < e.lead-e.tolerance || lead > e.lead+e.tolerance {
				continue
			}

			if !loaded {
				subs, err = e.store.GetSubscribersByKey(ctx, snap.Location, snap.GroupKey)
				if err != nil {
					log.Printf("[notify] %s/%s: list subscribers: %v", snap.Location, snap.GroupKey, err)
					break
				}
				loaded = true
			}

			for _, sub := range subs {
				e.alert(ctx, snap, sub, iv, lead)
			}
		}
	}
	return nil
}

// alert writes the de-duplication record first, then publishes. A publish
// failure after the record is written loses that one alert rather than ever
// repeating it.
func (e *Evaluator) alert(ctx context.Context, snap *models.ScheduleSnapshot, sub *models.Subscriber, iv models.Interval, lead time.Duration) {
	inserted, err := e.store.InsertNotificationRecord(ctx, sub.ID, snap.Location, snap.GroupKey, snap.Date, iv.Start)
	if err != nil {
		log.Printf("[notify] subscriber %d: record alert: %v", sub.ID, err)
		return
	}
	if !inserted {
		return
	}

	name := snap.Location
	if loc, ok := e.reg.Get(snap.Location); ok {
		name = loc.Name
	}
	msg := mq.OutageAlertMsg{
		SubscriberID:  sub.TelegramID,
		Location:      snap.Location,
		LocationName:  name,
		GroupKey:      snap.GroupKey,
		Date:          snap.Date,
		IntervalStart: iv.Start,
		IntervalEnd:   iv.End,
		LeadMinutes:   int(lead.Minutes()),
	}
	if err := e.pub.Publish(ctx, mq.RoutingOutageAlert, msg); err != nil {
		log.Printf("[notify] subscriber %d: publish alert: %v", sub.TelegramID, err)
		return
	}
	log.Printf("[notify] subscriber %d: outage alert for %s/%s at %s", sub.TelegramID, snap.Location, snap.GroupKey, iv.Label())
}
