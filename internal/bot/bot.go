// Package bot implements the Telegram front end: subscription commands and
// delivery of alerts produced by the worker.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"shutdown-tracker/internal/database"
	"shutdown-tracker/internal/registry"
	"shutdown-tracker/internal/source"
)

var htmlOpts = &tele.SendOptions{ParseMode: tele.ModeHTML}

// Bot wraps the Telegram bot and subscription command logic.
type Bot struct {
	bot    *tele.Bot
	db     *database.DB
	reg    *registry.Registry
	lookup *source.AddressLookupAdapter
}

// New creates and configures the Telegram bot.
func New(token string, db *database.DB, reg *registry.Registry, lookup *source.AddressLookupAdapter) (*Bot, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}

	bot := &Bot{bot: b, db: db, reg: reg, lookup: lookup}
	bot.registerHandlers()

	if err := b.SetCommands([]tele.Command{
		{Text: "set", Description: "Обрати місто та групу або адресу"},
		{Text: "schedule", Description: "Графік відключень на сьогодні"},
		{Text: "notify", Description: "Увімкнути чи вимкнути сповіщення"},
		{Text: "locations", Description: "Список доступних міст"},
		{Text: "help", Description: "Довідка про команди"},
	}); err != nil {
		log.Printf("[bot] failed to set commands: %v", err)
	}

	return bot, nil
}

// Start begins polling for Telegram updates. Call as a goroutine.
func (b *Bot) Start() {
	log.Println("[bot] starting Telegram bot polling...")
	b.bot.Start()
}

// Stop gracefully stops the bot.
func (b *Bot) Stop() {
	b.bot.Stop()
}

// TeleBot returns the underlying telebot instance (used by the notifier).
func (b *Bot) TeleBot() *tele.Bot {
	return b.bot
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/help", b.handleHelp)
	b.bot.Handle("/set", b.handleSet)
	b.bot.Handle("/schedule", b.handleSchedule)
	b.bot.Handle("/notify", b.handleNotify)
	b.bot.Handle("/locations", b.handleLocations)
}

// ── Commands ─────────────────────────────────────────────────────────

func (b *Bot) handleStart(c tele.Context) error {
	log.Printf("[bot] /start from user %d (@%s)", c.Sender().ID, c.Sender().Username)
	ctx := context.Background()
	if _, err := b.db.UpsertSubscriber(ctx, c.Sender().ID, c.Sender().Username); err != nil {
		log.Printf("[bot] upsert subscriber %d: %v", c.Sender().ID, err)
	}
	return c.Send(msgStart, htmlOpts)
}

func (b *Bot) handleHelp(c tele.Context) error {
	return c.Send(msgHelp, htmlOpts)
}

func (b *Bot) handleLocations(c tele.Context) error {
	var bld strings.Builder
	bld.WriteString("<b>Доступні міста:</b>\n\n")
	for _, loc := range b.reg.All() {
		if loc.AddressLookup {
			fmt.Fprintf(&bld, "• <code>%s</code> — %s (пошук за адресою)\n", loc.ID, html.EscapeString(loc.Name))
		} else if loc.Strategy == registry.StrategyImage {
			fmt.Fprintf(&bld, "• <code>%s</code> — %s (графік зображенням)\n", loc.ID, html.EscapeString(loc.Name))
		} else {
			fmt.Fprintf(&bld, "• <code>%s</code> — %s (групи 1–%d)\n", loc.ID, html.EscapeString(loc.Name), loc.Groups)
		}
	}
	return c.Send(bld.String(), htmlOpts)
}

// handleSet binds the subscriber to a location and group key. For
// address-lookup locations the argument tail is a free-text address that is
// resolved through the provider's lookup API.
func (b *Bot) handleSet(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Send(msgSetUsage, htmlOpts)
	}

	loc, ok := b.reg.Get(args[0])
	if !ok {
		return c.Send(msgUnknownLocation)
	}

	ctx := context.Background()
	if _, err := b.db.UpsertSubscriber(ctx, c.Sender().ID, c.Sender().Username); err != nil {
		log.Printf("[bot] upsert subscriber %d: %v", c.Sender().ID, err)
		return c.Send(msgError)
	}

	if loc.AddressLookup {
		return b.setAddress(ctx, c, loc, strings.Join(args[1:], " "))
	}
	if loc.Strategy == registry.StrategyImage {
		// Image locations have no groups, everyone shares the info key.
		if err := b.db.SetSubscription(ctx, c.Sender().ID, loc.ID, "info"); err != nil {
			log.Printf("[bot] set subscription %d: %v", c.Sender().ID, err)
			return c.Send(msgError)
		}
		return c.Send(fmt.Sprintf(msgSubscribed, html.EscapeString(loc.Name), "info"), htmlOpts)
	}

	if len(args) < 2 {
		return c.Send(msgSetUsage, htmlOpts)
	}
	group, err := strconv.Atoi(args[1])
	if err != nil || group < 1 || group > loc.Groups {
		return c.Send(msgInvalidGroup)
	}
	key := strconv.Itoa(group)
	if err := b.db.SetSubscription(ctx, c.Sender().ID, loc.ID, key); err != nil {
		log.Printf("[bot] set subscription %d: %v", c.Sender().ID, err)
		return c.Send(msgError)
	}
	log.Printf("[bot] user %d subscribed to %s/%s", c.Sender().ID, loc.ID, key)
	return c.Send(fmt.Sprintf(msgSubscribed, html.EscapeString(loc.Name), key), htmlOpts)
}

func (b *Bot) setAddress(ctx context.Context, c tele.Context, loc registry.LocationConfig, address string) error {
	if strings.TrimSpace(address) == "" {
		return c.Send(msgSetUsage, htmlOpts)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	key, _, err := b.lookup.ScheduleForAddress(lookupCtx, loc, address)
	if err != nil {
		var fe *source.FetchError
		if errors.As(err, &fe) && fe.Reason == source.ReasonAddressNotFound {
			return c.Send(msgAddressNotOK)
		}
		log.Printf("[bot] address lookup for user %d: %v", c.Sender().ID, err)
		return c.Send(msgLookupDown)
	}

	if err := b.db.SetSubscription(ctx, c.Sender().ID, loc.ID, key); err != nil {
		log.Printf("[bot] set subscription %d: %v", c.Sender().ID, err)
		return c.Send(msgError)
	}
	log.Printf("[bot] user %d subscribed to %s/%s", c.Sender().ID, loc.ID, key)
	return c.Send(fmt.Sprintf(msgSubscribedAddress, html.EscapeString(loc.Name), html.EscapeString(address)), htmlOpts)
}

func (b *Bot) handleSchedule(c tele.Context) error {
	ctx := context.Background()
	sub, err := b.db.GetSubscriber(ctx, c.Sender().ID)
	if err != nil {
		log.Printf("[bot] get subscriber %d: %v", c.Sender().ID, err)
		return c.Send(msgError)
	}
	if sub == nil || sub.Location == "" || sub.GroupKey == "" {
		return c.Send(msgNotSubscribed)
	}

	loc, ok := b.reg.Get(sub.Location)
	if !ok {
		return c.Send(msgNotSubscribed)
	}

	kyiv, _ := time.LoadLocation("Europe/Kyiv")
	date := time.Now().In(kyiv).Format("2006-01-02")

	snap, err := b.db.GetSnapshot(ctx, sub.Location, sub.GroupKey, date)
	if err != nil {
		log.Printf("[bot] get snapshot %s/%s: %v", sub.Location, sub.GroupKey, err)
		return c.Send(msgError)
	}
	if snap == nil {
		return c.Send(msgNoSchedule)
	}
	return c.Send(FormatSchedule(loc.Name, snap), htmlOpts)
}

func (b *Bot) handleNotify(c tele.Context) error {
	ctx := context.Background()
	enabled, err := b.db.ToggleNotify(ctx, c.Sender().ID)
	if err != nil {
		log.Printf("[bot] toggle notify %d: %v", c.Sender().ID, err)
		return c.Send(msgError)
	}
	if enabled {
		return c.Send(msgNotifyOn)
	}
	return c.Send(msgNotifyOff)
}
