package pantry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-sql/civil"

	"pantrybot/internal/expiry"
	"pantrybot/internal/storage"
	"pantrybot/internal/task/scheduler"
)

type countingGateway struct {
	mu      sync.Mutex
	notices []expiry.Notice
}

func (g *countingGateway) Notify(_ context.Context, n expiry.Notice, done func(error)) error {
	g.mu.Lock()
	g.notices = append(g.notices, n)
	g.mu.Unlock()
	done(nil)
	return nil
}

func (g *countingGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.notices)
}

type env struct {
	store *storage.Memory
	gw    *countingGateway
	svc   *Service
	user  storage.User
}

// today is 2024-06-01 in UTC.
func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	now := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	clock := expiry.ClockFunc(func() time.Time { return now })
	cal := expiry.NewCalendar(time.UTC)

	e := &env{store: storage.NewMemory(), gw: &countingGateway{}}
	core := expiry.New(e.store, e.gw, cal, expiry.WithClock(clock))
	e.svc = New(cfg, e.store, core, cal, WithClock(clock))

	u, created, err := e.svc.Register(context.Background(), 42, "  Ann  ")
	if err != nil || !created {
		t.Fatalf("Register: created=%v err=%v", created, err)
	}
	e.user = u
	return e
}

func date(t *testing.T, s string) *civil.Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return &d
}

func TestRegisterAppliesDefaults(t *testing.T) {
	t.Parallel()

	e := newEnv(t, Config{DefaultLeadDays: 2, DefaultNotifyAt: civil.Time{Hour: 8, Minute: 30}})
	if e.user.LeadDays != 2 || storage.FormatClock(e.user.NotifyAt) != "08:30" || e.user.DisplayName != "Ann" {
		t.Fatalf("user=%+v", e.user)
	}
	again, created, err := e.svc.Register(context.Background(), 42, "Other")
	if err != nil || created || again.ID != e.user.ID {
		t.Fatalf("second Register: %+v created=%v err=%v", again, created, err)
	}
}

func TestAddItem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		item     string
		exp      string
		wantErr  error
		notified bool
	}{
		{name: "inside lead window", item: "milk", exp: "2024-06-03", notified: true},
		{name: "today", item: "fish", exp: "2024-06-01", notified: true},
		{name: "outside window", item: "rice", exp: "2024-07-01"},
		{name: "past date", item: "bread", exp: "2024-05-31", wantErr: ErrPastExpiration},
		{name: "blank name", item: "   ", exp: "2024-06-03", wantErr: ErrInvalidInput},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newEnv(t, Config{DefaultLeadDays: 3})
			res, err := e.svc.AddItem(context.Background(), e.user, tc.item, date(t, tc.exp))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err=%v, want %v", err, tc.wantErr)
				}
				items, _ := e.store.ListItems(context.Background(), e.user.ID)
				if len(items) != 0 {
					t.Fatalf("rejected item was stored")
				}
				return
			}
			if err != nil {
				t.Fatalf("AddItem: %v", err)
			}
			if res.Notified != tc.notified || e.gw.count() != boolInt(tc.notified) {
				t.Fatalf("notified=%v sends=%d, want %v", res.Notified, e.gw.count(), tc.notified)
			}
		})
	}
}

func TestAddUndatedItem(t *testing.T) {
	t.Parallel()

	e := newEnv(t, Config{DefaultLeadDays: 3})
	res, err := e.svc.AddItem(context.Background(), e.user, "salt", nil)
	if err != nil || res.Notified {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestItemLimit(t *testing.T) {
	t.Parallel()

	e := newEnv(t, Config{MaxItems: 1})
	if _, err := e.svc.AddItem(context.Background(), e.user, "a", nil); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := e.svc.AddItem(context.Background(), e.user, "b", nil); !errors.Is(err, ErrTooManyItems) {
		t.Fatalf("err=%v, want ErrTooManyItems", err)
	}
}

func TestEditItemIntoWindowNotifiesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t, Config{DefaultLeadDays: 3})
	res, err := e.svc.AddItem(ctx, e.user, "yogurt", date(t, "2024-06-20"))
	if err != nil || res.Notified {
		t.Fatalf("add: %+v %v", res, err)
	}

	res, err = e.svc.EditItem(ctx, e.user, res.Item.ID, Edit{Expiration: date(t, "2024-06-02")})
	if err != nil || !res.Notified {
		t.Fatalf("edit into window: %+v %v", res, err)
	}
	name := "greek yogurt"
	res, err = e.svc.EditItem(ctx, e.user, res.Item.ID, Edit{Name: &name})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if res.Notified || !res.Item.NotificationSent || e.gw.count() != 1 {
		t.Fatalf("rename re-notified: %+v sends=%d", res, e.gw.count())
	}

	if _, err := e.svc.EditItem(ctx, e.user, res.Item.ID, Edit{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty edit err=%v", err)
	}
	if _, err := e.svc.EditItem(ctx, e.user, res.Item.ID, Edit{Expiration: date(t, "2024-01-01")}); !errors.Is(err, ErrPastExpiration) {
		t.Fatalf("past edit err=%v", err)
	}
}

func TestOwnerScoping(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t, Config{})
	res, err := e.svc.AddItem(ctx, e.user, "jam", nil)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	other, _, err := e.svc.Register(ctx, 99, "Bob")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.svc.DeleteItem(ctx, other, res.Item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete err=%v", err)
	}
	name := "x"
	if _, err := e.svc.EditItem(ctx, other, res.Item.ID, Edit{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign edit err=%v", err)
	}
	if err := e.svc.DeleteItem(ctx, e.user, res.Item.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestListCounts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t, Config{DefaultLeadDays: 0, WarningDays: 3})
	for name, exp := range map[string]string{"a": "2024-06-01", "b": "2024-06-04", "c": "2024-06-05", "d": "2024-08-01"} {
		if _, err := e.svc.AddItem(ctx, e.user, name, date(t, exp)); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	// Past items can only exist from earlier days; write one directly.
	if _, err := e.store.CreateItem(ctx, storage.Item{UserID: e.user.ID, Name: "old", Expiration: date(t, "2024-05-20")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.AddItem(ctx, e.user, "undated", nil); err != nil {
		t.Fatalf("add undated: %v", err)
	}

	l, err := e.svc.List(ctx, e.user)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if l.Total != 6 || l.Warning != 2 || l.Expired != 1 {
		t.Fatalf("total=%d warning=%d expired=%d", l.Total, l.Warning, l.Expired)
	}
	if l.Items[0].Name != "old" || l.Items[0].Status != StatusExpired || l.Items[0].DaysLeft != -12 {
		t.Fatalf("first=%+v", l.Items[0])
	}
	if last := l.Items[len(l.Items)-1]; last.Status != StatusUndated {
		t.Fatalf("last=%+v", last)
	}
}

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t, Config{MaxLeadDays: 7})
	lead := 5
	at := civil.Time{Hour: 18, Minute: 45, Second: 30}
	u, err := e.svc.UpdateSettings(ctx, e.user, Settings{LeadDays: &lead, NotifyAt: &at})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if u.LeadDays != 5 || storage.FormatClock(u.NotifyAt) != "18:45" || u.NotifyAt.Second != 0 {
		t.Fatalf("user=%+v", u)
	}
	tooFar := 8
	if _, err := e.svc.UpdateSettings(ctx, e.user, Settings{LeadDays: &tooFar}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err=%v, want ErrInvalidInput", err)
	}
	u, err = e.svc.Rename(ctx, u, " Chef  Ann ")
	if err != nil || u.DisplayName != "Chef Ann" {
		t.Fatalf("rename: %+v %v", u, err)
	}
}

func TestUpdateSettingsStaysOnSweepGrid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	grid, err := scheduler.ParseMinuteGrid("0 */30 * * * *")
	if err != nil {
		t.Fatalf("ParseMinuteGrid: %v", err)
	}
	e := newEnv(t, Config{DefaultLeadDays: 3, DefaultNotifyAt: civil.Time{Hour: 9}, NotifySlots: grid})

	off := civil.Time{Hour: 8, Minute: 15}
	_, err = e.svc.UpdateSettings(ctx, e.user, Settings{NotifyAt: &off})
	if !errors.Is(err, ErrInvalidInput) || !strings.Contains(err.Error(), "08:30") {
		t.Fatalf("off-grid time: err=%v", err)
	}
	if u, _ := e.store.GetUser(ctx, e.user.ID); storage.FormatClock(u.NotifyAt) != "09:00" {
		t.Fatalf("rejected time was stored: %s", storage.FormatClock(u.NotifyAt))
	}

	on := civil.Time{Hour: 8, Minute: 30}
	u, err := e.svc.UpdateSettings(ctx, e.user, Settings{NotifyAt: &on})
	if err != nil || storage.FormatClock(u.NotifyAt) != "08:30" {
		t.Fatalf("on-grid time: %+v err=%v", u, err)
	}

	// Every tick of the default schedule; exactly one selects the user.
	hits := 0
	for m := 0; m < 24*60; m += 30 {
		users, err := e.store.FindUsersWithNotifyTime(ctx, civil.Time{Hour: m / 60, Minute: m % 60})
		if err != nil {
			t.Fatalf("FindUsersWithNotifyTime: %v", err)
		}
		hits += len(users)
	}
	if hits != 1 {
		t.Fatalf("ticks selecting the user=%d want 1", hits)
	}
}

func TestHistoryAndForget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e := newEnv(t, Config{DefaultLeadDays: 3})
	if _, err := e.svc.AddItem(ctx, e.user, "milk", date(t, "2024-06-02")); err != nil {
		t.Fatalf("add: %v", err)
	}
	h, err := e.svc.History(ctx, e.user, 5)
	if err != nil || len(h) != 1 || !h[0].OK || h[0].Path != string(expiry.PathImmediate) {
		t.Fatalf("history=%+v err=%v", h, err)
	}
	if err := e.svc.Forget(ctx, e.user); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, err := e.store.GetUser(ctx, e.user.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("user still present: %v", err)
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "2024-13-01", "01/06/2024", "2024-02-30"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ParseDate(%q) err=%v", bad, err)
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
