package bot

import (
	"errors"
	"fmt"
	"html"
	"log"

	tele "gopkg.in/telebot.v3"

	"shutdown-tracker/internal/mq"
)

// Notifier delivers worker-produced messages to Telegram chats.
type Notifier struct {
	bot *tele.Bot
}

func NewNotifier(b *tele.Bot) *Notifier {
	return &Notifier{bot: b}
}

// isRecipientError reports whether err means the recipient can no longer be
// reached at all (blocked the bot, deactivated, chat gone). Such sends are
// dropped; transient errors are just logged — the alert record already
// exists, so the alert is never retried either way.
func isRecipientError(err error) bool {
	return errors.Is(err, tele.ErrChatNotFound) ||
		errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrNotStartedByUser)
}

// SendOutageAlert delivers a lead-time outage warning to the subscriber.
func (n *Notifier) SendOutageAlert(msg mq.OutageAlertMsg) {
	text := fmt.Sprintf(msgOutageAlert,
		html.EscapeString(msg.LocationName),
		html.EscapeString(msg.GroupKey),
		clockLabel(msg.IntervalStart),
		msg.LeadMinutes,
	)
	n.send(msg.SubscriberID, text)
}

// SendScheduleChanged tells one subscriber their schedule changed. Image
// locations carry the new image URL instead of a grid reference.
func (n *Notifier) SendScheduleChanged(chatID int64, msg mq.ScheduleChangedMsg) {
	var text string
	if msg.Kind == "image" {
		text = fmt.Sprintf(msgImageScheduleChanged, html.EscapeString(msg.LocationName), msg.ImageURL)
	} else {
		text = fmt.Sprintf(msgScheduleChanged, html.EscapeString(msg.LocationName), html.EscapeString(msg.GroupKey))
	}
	n.send(chatID, text)
}

func (n *Notifier) send(chatID int64, text string) {
	chat := &tele.Chat{ID: chatID}
	if _, err := n.bot.Send(chat, text, htmlOpts); err != nil {
		if isRecipientError(err) {
			log.Printf("[bot] recipient %d unreachable, dropping message: %v", chatID, err)
			return
		}
		log.Printf("[bot] failed to send to %d: %v", chatID, err)
	}
}

func clockLabel(startMin int) string {
	return fmt.Sprintf("%02d:%02d", startMin/60, startMin%60)
}
