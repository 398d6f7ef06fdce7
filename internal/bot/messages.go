package bot

import (
	"fmt"
	"html"
	"strings"

	"shutdown-tracker/internal/models"
)

// All user-facing bot messages in one place.

// ── /start & /help ──────────────────────────────────────────────────

const msgStart = `<b>Вітаю в Shutdown Tracker!</b>

Я стежу за графіками відключень електроенергії та попереджаю вас приблизно за 30 хвилин до запланованого відключення.

/set - Обрати місто та групу (або адресу)
/schedule - Показати графік на сьогодні
/notify - Увімкнути чи вимкнути сповіщення
/locations - Список доступних міст
/help - Детальніше`

const msgHelp = `<b>Як це працює:</b>

1. Оберіть місто та групу командою /set, наприклад:
   <code>/set chernivtsi 4</code>
   Для міст з пошуком за адресою вкажіть вулицю та будинок:
   <code>/set kamyanets Соборна 15</code>
2. Я регулярно перевіряю графік вашого постачальника
3. Коли графік змінюється — надсилаю оновлення
4. За ~30 хвилин до запланованого відключення — попередження

<b>Позначення:</b>
🔴 — світла немає
🟢 — світло є
⚪ — можливе відключення

<b>Команди:</b>
/schedule — графік на сьогодні
/notify — увімкнути / вимкнути сповіщення
/locations — доступні міста
/set — змінити місто або групу`

// ── Generic / errors ────────────────────────────────────────────────

const (
	msgError           = "Щось пішло не так. Спробуйте пізніше."
	msgSetUsage        = "Вкажіть місто та групу: <code>/set chernivtsi 4</code>\nАбо адресу: <code>/set kamyanets Соборна 15</code>\n\nСписок міст: /locations"
	msgUnknownLocation = "Невідоме місто. Список доступних: /locations"
	msgInvalidGroup    = "Невірний номер групи для цього міста."
	msgAddressNotOK    = "Адресу не знайдено. Перевірте назву вулиці та номер будинку."
	msgLookupDown      = "Сервіс пошуку адрес тимчасово недоступний. Спробуйте пізніше."
	msgNotSubscribed   = "Спочатку оберіть місто та групу через /set"
	msgNoSchedule      = "Графік на сьогодні ще не завантажено. Спробуйте пізніше."
	msgNotifyOn        = "🔔 Сповіщення увімкнено."
	msgNotifyOff       = "🔕 Сповіщення вимкнено."
)

const msgSubscribed = "✅ Підписку оновлено: <b>%s</b>, група <b>%s</b>.\n\nГрафік на сьогодні: /schedule"

const msgSubscribedAddress = "✅ Підписку оновлено: <b>%s</b>, адреса <b>%s</b>.\n\nГрафік на сьогодні: /schedule"

// ── Alerts & updates ────────────────────────────────────────────────

const msgOutageAlert = `⚠️ <b>Скоро відключення!</b>

%s, група %s
Сьогодні о <b>%s</b> заплановано відключення світла (через ~%d хв).`

const msgScheduleChanged = `📋 <b>Графік оновлено</b>

%s, група %s — графік відключень на сьогодні змінився.
Перегляньте актуальний: /schedule`

const msgImageScheduleChanged = `📋 <b>Графік оновлено</b>

%s — постачальник опублікував новий графік (зображення):
%s`

// ── Schedule rendering ──────────────────────────────────────────────

const scheduleLegend = "\n🔴 — світла немає, 🟢 — світло є, ⚪ — можливе відключення\n\n⚠️ Час у графіку орієнтовний, фактичні відключення можуть відрізнятися на ±30 хвилин."

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusOff:
		return "🔴"
	case models.StatusUncertain:
		return "⚪"
	default:
		return "🟢"
	}
}

// FormatSchedule renders a stored snapshot as an HTML message. Image
// snapshots get a link instead of a grid.
func FormatSchedule(locationName string, snap *models.ScheduleSnapshot) string {
	var bld strings.Builder
	fmt.Fprintf(&bld, "<b>%s</b> — графік на %s\n\n", html.EscapeString(locationName), snap.Date)

	if snap.Kind == models.KindImage {
		bld.WriteString("Постачальник публікує графік зображенням:\n")
		bld.WriteString(snap.ImageURL)
		return bld.String()
	}

	for _, iv := range snap.Intervals {
		fmt.Fprintf(&bld, "%s %s\n", statusIcon(iv.Status), iv.Label())
	}
	bld.WriteString(scheduleLegend)
	return bld.String()
}
