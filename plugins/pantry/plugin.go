// Package pantry exposes the pantry workflow as chat commands.
package pantry

import (
	"context"
	"errors"
	"strings"
	"time"

	"pantrybot/internal/expiry"
	"pantrybot/internal/notifier"
	core "pantrybot/internal/pantry"
	"pantrybot/internal/storage"
	"pantrybot/internal/transport/telegram/router"
)

// Sweeper runs one sweep tick on demand. *expiry.Service implements it.
type Sweeper interface {
	RunTick(ctx context.Context, now time.Time) (expiry.TickReport, error)
}

// Deliveries exposes the notifier's counters and recent outcomes.
// *notifier.Service implements it.
type Deliveries interface {
	Stats() notifier.Stats
	History() []notifier.HistoryItem
}

type Plugin struct {
	svc        *core.Service
	sweeper    Sweeper
	deliveries Deliveries
	clock      expiry.Clock
	loc        *time.Location
}

type Option func(*Plugin)

// WithClock sets the clock /sweep reads. Defaults to the system clock.
func WithClock(c expiry.Clock) Option { return func(p *Plugin) { p.clock = c } }

// WithDeliveries adds notifier counters to the /sweep report.
func WithDeliveries(d Deliveries) Option { return func(p *Plugin) { p.deliveries = d } }

// New builds the command set. loc renders delivery timestamps.
func New(svc *core.Service, sweeper Sweeper, loc *time.Location, opts ...Option) *Plugin {
	if loc == nil {
		loc = time.Local
	}
	p := &Plugin{svc: svc, sweeper: sweeper, clock: expiry.SystemClock, loc: loc}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "register and show your settings", Usage: "/start", Handle: p.handleStart},
		{Name: "add", Description: "track an item", Usage: "/add <YYYY-MM-DD|-> <name...>", Handle: p.handleAdd},
		{Name: "edit", Description: "change an item's date and/or name", Usage: "/edit <id> <YYYY-MM-DD|-> [name...]", Handle: p.handleEdit},
		{Name: "del", Aliases: []string{"delete", "rm"}, Description: "stop tracking an item", Usage: "/del <id>", Handle: p.handleDelete},
		{Name: "list", Aliases: []string{"ls"}, Description: "show your items", Usage: "/list", Handle: p.handleList},
		{Name: "settings", Description: "show or change reminder lead days and time", Usage: "/settings [lead_days] [HH:MM]", Handle: p.handleSettings},
		{Name: "name", Description: "set the name used in reminders", Usage: "/name <display name>", Handle: p.handleName},
		{Name: "history", Description: "recent reminders", Usage: "/history [count]", Handle: p.handleHistory},
		{Name: "forget", Description: "delete your account and items", Usage: "/forget confirm", Handle: p.handleForget},
		{Name: "sweep", Admin: true, Description: "run the reminder sweep now", Usage: "/sweep", Timeout: 2 * time.Minute, Handle: p.handleSweep},
	}
}

// user resolves, and on first contact creates, the sender's profile.
func (p *Plugin) user(ctx context.Context, req *router.Request) (storage.User, error) {
	name := req.Message.FromName
	if name == "" {
		name = req.Message.FromUsername
	}
	u, _, err := p.svc.Register(ctx, req.Chat.ChatID, name)
	return u, err
}

// userErr maps pantry validation errors to replies.
func userErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrPastExpiration):
		return &router.UserError{Msg: "That date is already in the past.", Err: err}
	case errors.Is(err, core.ErrTooManyItems):
		return &router.UserError{Msg: "You have reached the item limit. Delete something first.", Err: err}
	case errors.Is(err, core.ErrNotFound):
		return &router.UserError{Msg: "No such item. See /list for ids.", Err: err}
	case errors.Is(err, core.ErrInvalidInput):
		msg := strings.TrimPrefix(err.Error(), core.ErrInvalidInput.Error()+": ")
		return &router.UserError{Msg: upperFirst(msg) + ".", Err: err}
	}
	return err
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
