package main

import (
	"context"
	"encoding/json"
	"log"

	tele "gopkg.in/telebot.v3"

	"shutdown-tracker/internal/bot"
	"shutdown-tracker/internal/database"
	"shutdown-tracker/internal/models"
	"shutdown-tracker/internal/mq"
)

// listener consumes worker messages from RabbitMQ and delivers them to
// Telegram subscribers.
type listener struct {
	db       *database.DB
	consumer *mq.Consumer
	notifier *bot.Notifier
}

func newListener(b *tele.Bot, db *database.DB, consumer *mq.Consumer) *listener {
	return &listener{
		db:       db,
		consumer: consumer,
		notifier: bot.NewNotifier(b),
	}
}

func (l *listener) start(ctx context.Context) {
	alertCh, err := l.consumer.Consume(mq.QueueOutageAlert)
	if err != nil {
		log.Fatalf("[listener] failed to consume %s: %v", mq.QueueOutageAlert, err)
	}
	changedCh, err := l.consumer.Consume(mq.QueueScheduleChanged)
	if err != nil {
		log.Fatalf("[listener] failed to consume %s: %v", mq.QueueScheduleChanged, err)
	}

	log.Println("[listener] consuming from outage_alert, schedule_changed")

	for {
		select {
		case <-ctx.Done():
			log.Println("[listener] stopped")
			return
		case d, ok := <-alertCh:
			if !ok {
				return
			}
			l.handleOutageAlert(d.Body)
			d.Ack(false)
		case d, ok := <-changedCh:
			if !ok {
				return
			}
			l.handleScheduleChanged(ctx, d.Body)
			d.Ack(false)
		}
	}
}

// handleOutageAlert delivers one already-deduplicated lead-time warning.
func (l *listener) handleOutageAlert(payload []byte) {
	var msg mq.OutageAlertMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Printf("[listener] bad outage_alert message: %v", err)
		return
	}
	l.notifier.SendOutageAlert(msg)
}

// handleScheduleChanged fans one schedule-changed event out to every
// notify-enabled subscriber of the key. Image locations have no group keys,
// so those go to everyone subscribed to the location.
func (l *listener) handleScheduleChanged(ctx context.Context, payload []byte) {
	var msg mq.ScheduleChangedMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Printf("[listener] bad schedule_changed message: %v", err)
		return
	}

	var (
		subs []*models.Subscriber
		err  error
	)
	if msg.Kind == "image" {
		subs, err = l.db.GetSubscribersByLocation(ctx, msg.Location)
	} else {
		subs, err = l.db.GetSubscribersByKey(ctx, msg.Location, msg.GroupKey)
	}
	if err != nil {
		log.Printf("[listener] schedule_changed %s/%s: list subscribers: %v", msg.Location, msg.GroupKey, err)
		return
	}

	for _, sub := range subs {
		l.notifier.SendScheduleChanged(sub.TelegramID, msg)
	}
	if len(subs) > 0 {
		log.Printf("[listener] schedule_changed %s/%s: notified %d subscribers", msg.Location, msg.GroupKey, len(subs))
	}
}
