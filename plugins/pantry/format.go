package pantry

import (
	"fmt"
	"time"

	"github.com/golang-sql/civil"

	"pantrybot/internal/expiry"
	"pantrybot/internal/notifier"
	core "pantrybot/internal/pantry"
	"pantrybot/internal/storage"
	"pantrybot/pkg/tgui"
)

// names longer than this are cut in lists
const listNameRunes = 48

func formatWelcome(u storage.User) string {
	name := u.DisplayName
	if name == "" {
		name = "there"
	}
	var l tgui.Lines
	l.Add("👋 ", tgui.Escf("Hi %s!", name)).
		Add("I keep track of your food and remind you before it expires.").
		Blank().
		Add("⏰ Reminders: ", tgui.B(storage.FormatClock(u.NotifyAt)), tgui.Escf(", %s before expiry", daysText(u.LeadDays))).
		Blank().
		Add("Add something with ", tgui.Code("/add 2024-06-30 milk"), ", then check /list.").
		Add("Change reminders with /settings, see everything with /help.")
	return l.String()
}

func formatSaved(verb string, res core.SaveResult, today civil.Date) string {
	it := res.Item
	var l tgui.Lines
	l.Add("✅ ", tgui.Esc(verb+" "), tgui.B(fmt.Sprintf("#%d", it.ID)), " ", tgui.Esc(it.Name))
	if it.Expiration != nil {
		l.Add("📅 ", tgui.Escf("Expires %s (%s)", it.Expiration, relDays(expiry.DaysUntil(today, *it.Expiration))))
	} else {
		l.Add("📅 No expiration date")
	}
	if res.Notified {
		l.Add("🔔 It is close to expiring, a reminder is on its way.")
	}
	return l.String()
}

func formatListing(l core.Listing) string {
	if l.Total == 0 {
		return "🧺 Nothing tracked yet. Try " + tgui.Code("/add 2024-06-30 milk").String() + "."
	}
	var out tgui.Lines
	out.Add("🧺 ", tgui.B("Your items"), tgui.Escf(" (%d)", l.Total)).
		Add(tgui.Escf("⚠️ Expiring soon: %d   ❌ Expired: %d", l.Warning, l.Expired)).
		Add("━━━━━━━━━━━━━━━━━━━━")
	for _, v := range l.Items {
		var when tgui.H
		if v.Expiration != nil {
			when = tgui.Escf("%s (%s)", v.Expiration, relDays(v.DaysLeft))
		}
		out.Add(tgui.H(statusIcon(v.Status)), " ", tgui.JoinH(" · ",
			tgui.Code(fmt.Sprintf("#%d", v.ID))+" "+tgui.Esc(tgui.TruncRunes(v.Name, listNameRunes)),
			when,
		))
	}
	return out.String()
}

func formatSettings(u storage.User, maxLead int) string {
	var l tgui.Lines
	l.Add("⚙️ ", tgui.B("Reminder settings")).
		Add("• Time: ", tgui.B(storage.FormatClock(u.NotifyAt))).
		Add("• Lead: ", tgui.B(daysText(u.LeadDays)), " before expiry").
		Blank().
		Add("Change with ", tgui.Code(fmt.Sprintf("/settings <0-%d> <HH:MM>", maxLead)))
	return l.String()
}

func formatHistory(ds []storage.Delivery, loc *time.Location) string {
	if len(ds) == 0 {
		return "📭 No reminders sent yet."
	}
	var l tgui.Lines
	l.Add("📨 ", tgui.B("Recent reminders"))
	for _, d := range ds {
		icon := tgui.H("✅")
		var reason tgui.H
		if !d.OK {
			icon = "⚠️"
			reason = tgui.Esc(d.Error)
		}
		l.Add(icon, " ", tgui.JoinH(" · ",
			tgui.Esc(d.At.In(loc).Format("2006-01-02 15:04")),
			tgui.Escf("%s (%s)", tgui.TruncRunes(d.ItemName, listNameRunes), d.Path),
			reason,
		))
	}
	return l.String()
}

func formatTick(r expiry.TickReport) string {
	var l tgui.Lines
	l.Add("🧹 ", tgui.B("Sweep"), tgui.Escf(" %s (minute %s, today %s)", r.At.Format("15:04:05"), storage.FormatClock(r.Minute), r.Today)).
		Add(tgui.Escf("Users: %d · Due: %d", r.Users, r.Due)).
		Add(tgui.Escf("Dispatched: %d · Skipped: %d · Failed: %d", r.Dispatched, r.Skipped, r.Failed)).
		Add(tgui.Escf("Took %s", r.Took.Round(time.Millisecond)))
	return l.String()
}

// recentFailures is how many failed deliveries /sweep lists.
const recentFailures = 3

func formatDeliveries(st notifier.Stats, hist []notifier.HistoryItem, loc *time.Location) string {
	var l tgui.Lines
	l.Add("📬 ", tgui.B("Notifier"), tgui.Escf(" (%s)", st.Sender)).
		Add(tgui.Escf("Queued: %d · Sent: %d · Failed: %d · Rejected: %d", st.Queued, st.Sent, st.Failed, st.Rejected))
	shown := 0
	for i := len(hist) - 1; i >= 0 && shown < recentFailures; i-- {
		h := hist[i]
		if h.OK {
			continue
		}
		shown++
		l.Add("⚠️ ", tgui.JoinH(" · ",
			tgui.Esc(h.At.In(loc).Format("01-02 15:04")),
			tgui.Escf("item #%d (%s, %d tries)", h.ItemID, h.Path, h.Attempts),
			tgui.Esc(tgui.TruncRunes(h.Error, listNameRunes)),
		))
	}
	return l.String()
}

func statusIcon(s core.Status) string {
	switch s {
	case core.StatusExpired:
		return "❌"
	case core.StatusWarning:
		return "⚠️"
	case core.StatusUndated:
		return "▫️"
	}
	return "🟢"
}

func relDays(n int) string {
	switch {
	case n == 0:
		return "today"
	case n == 1:
		return "tomorrow"
	case n == -1:
		return "yesterday"
	case n < 0:
		return fmt.Sprintf("%d days ago", -n)
	}
	return fmt.Sprintf("in %d days", n)
}

func daysText(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
