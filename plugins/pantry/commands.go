package pantry

import (
	"context"
	"strconv"
	"strings"

	"github.com/golang-sql/civil"

	core "pantrybot/internal/pantry"
	"pantrybot/internal/storage"
	"pantrybot/internal/transport/telegram/router"
)

func (p *Plugin) handleStart(ctx context.Context, req *router.Request) error {
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	return req.ReplyHTML(ctx, formatWelcome(u))
}

func (p *Plugin) handleAdd(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return router.Userf("Usage: /add <YYYY-MM-DD|-> <name...>")
	}
	exp, err := parseDateArg(req.Args[0])
	if err != nil {
		return userErr(err)
	}
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	res, err := p.svc.AddItem(ctx, u, strings.Join(req.Args[1:], " "), exp)
	if err != nil {
		return userErr(err)
	}
	return req.ReplyHTML(ctx, formatSaved("Added", res, p.svc.Today()))
}

func (p *Plugin) handleEdit(ctx context.Context, req *router.Request) error {
	if len(req.Args) < 2 {
		return router.Userf("Usage: /edit <id> <YYYY-MM-DD|-> [name...]")
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		return err
	}
	var e core.Edit
	if e.Expiration, err = parseDateArg(req.Args[1]); err != nil {
		return userErr(err)
	}
	if len(req.Args) > 2 {
		name := strings.Join(req.Args[2:], " ")
		e.Name = &name
	}
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	res, err := p.svc.EditItem(ctx, u, id, e)
	if err != nil {
		return userErr(err)
	}
	return req.ReplyHTML(ctx, formatSaved("Updated", res, p.svc.Today()))
}

func (p *Plugin) handleDelete(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return router.Userf("Usage: /del <id>")
	}
	id, err := parseID(req.Args[0])
	if err != nil {
		return err
	}
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	if err := p.svc.DeleteItem(ctx, u, id); err != nil {
		return userErr(err)
	}
	return req.Reply(ctx, "Deleted item #"+strconv.FormatInt(id, 10)+".")
}

func (p *Plugin) handleList(ctx context.Context, req *router.Request) error {
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	l, err := p.svc.List(ctx, u)
	if err != nil {
		return err
	}
	return req.ReplyHTML(ctx, formatListing(l))
}

// handleSettings accepts the two values in either order: an integer is the
// lead days, HH:MM the reminder time.
func (p *Plugin) handleSettings(ctx context.Context, req *router.Request) error {
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	if len(req.Args) == 0 {
		return req.ReplyHTML(ctx, formatSettings(u, p.svc.Config().MaxLeadDays))
	}
	if len(req.Args) > 2 {
		return router.Userf("Usage: /settings [lead_days] [HH:MM]")
	}
	var in core.Settings
	for _, a := range req.Args {
		if strings.Contains(a, ":") {
			t, err := storage.ParseClock(a)
			if err != nil {
				return router.Userf("Time must look like 08:30.")
			}
			in.NotifyAt = &t
			continue
		}
		n, err := strconv.Atoi(a)
		if err != nil {
			return router.Userf("Lead days must be a whole number.")
		}
		in.LeadDays = &n
	}
	u, err = p.svc.UpdateSettings(ctx, u, in)
	if err != nil {
		return userErr(err)
	}
	return req.ReplyHTML(ctx, formatSettings(u, p.svc.Config().MaxLeadDays))
}

func (p *Plugin) handleName(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return router.Userf("Usage: /name <display name>")
	}
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	u, err = p.svc.Rename(ctx, u, strings.Join(req.Args, " "))
	if err != nil {
		return userErr(err)
	}
	return req.Reply(ctx, "I will call you "+u.DisplayName+".")
}

func (p *Plugin) handleHistory(ctx context.Context, req *router.Request) error {
	limit := 10
	if len(req.Args) > 0 {
		n, err := strconv.Atoi(req.Args[0])
		if err != nil || n <= 0 || n > 50 {
			return router.Userf("Count must be between 1 and 50.")
		}
		limit = n
	}
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	ds, err := p.svc.History(ctx, u, limit)
	if err != nil {
		return err
	}
	return req.ReplyHTML(ctx, formatHistory(ds, p.loc))
}

func (p *Plugin) handleForget(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 || req.Args[0] != "confirm" {
		return req.Reply(ctx, "This deletes your profile and every item. Send /forget confirm to go ahead.")
	}
	u, err := p.user(ctx, req)
	if err != nil {
		return err
	}
	if err := p.svc.Forget(ctx, u); err != nil {
		return err
	}
	return req.Reply(ctx, "Done. Send /start if you want to come back.")
}

func (p *Plugin) handleSweep(ctx context.Context, req *router.Request) error {
	rep, err := p.sweeper.RunTick(ctx, p.clock.Now())
	if err != nil {
		return err
	}
	out := formatTick(rep)
	if p.deliveries != nil {
		out += "\n\n" + formatDeliveries(p.deliveries.Stats(), p.deliveries.History(), p.loc)
	}
	return req.ReplyHTML(ctx, out)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, router.Userf("Item id must be a positive number, see /list.")
	}
	return id, nil
}

// parseDateArg reads a date argument; "-" means none.
func parseDateArg(s string) (*civil.Date, error) {
	if s == "-" {
		return nil, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
