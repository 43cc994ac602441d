package notifier

import (
	"fmt"
	"strings"
	"time"

	"pantrybot/internal/expiry"
)

const defaultSenderName = "pantrybot"

// Renderer turns notices into messages. Immediate notices use the urgent
// template; sweep notices use the regular reminder.
type Renderer struct {
	SenderName string
	Location   *time.Location
}

func (r Renderer) Render(n expiry.Notice) Message {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	sender := strings.TrimSpace(r.SenderName)
	if sender == "" {
		sender = defaultSenderName
	}
	who := strings.TrimSpace(n.User.DisplayName)
	if who == "" {
		who = "there"
	}
	exp := "unknown"
	if n.Item.Expiration != nil {
		exp = n.Item.Expiration.String()
	}
	when := daysPhrase(n.DaysLeft)

	var title, lead, closing string
	if n.Path == expiry.PathImmediate {
		title = fmt.Sprintf("URGENT: %s expires %s", n.Item.Name, when)
		lead = fmt.Sprintf("The item you just saved expires %s!", when)
		closing = "Please eat it or use it right away."
	} else {
		title = fmt.Sprintf("Reminder: %s expires %s", n.Item.Name, when)
		lead = "An item you registered is getting close to its expiration date."
		closing = "Please use it up soon."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "Hello, %s.\n%s\n\n", who, lead)
	fmt.Fprintf(&b, "Item: %s\n", n.Item.Name)
	fmt.Fprintf(&b, "Expires: %s (%s)\n", exp, when)
	if !n.Item.RegisteredAt.IsZero() {
		fmt.Fprintf(&b, "Registered: %s\n", n.Item.RegisteredAt.In(loc).Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "\n%s\n\n%s", closing, sender)

	return Message{ChatID: n.User.ChatID, Title: title, Text: b.String()}
}

func daysPhrase(n int) string {
	switch {
	case n <= 0:
		return "today"
	case n == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", n)
	}
}
