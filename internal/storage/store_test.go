package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-sql/civil"

	"pantrybot/pkg/logx"
)

func date(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func datePtr(s string) *civil.Date {
	d := date(s)
	return &d
}

var nineAM = civil.Time{Hour: 9}

func openStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := Open(context.Background(), Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "pantry.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{Driver: "mysql"}, logx.Nop()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("driver none: got %v want ErrDisabled", err)
	}
}

func TestStoreUsers(t *testing.T) {
	t.Parallel()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			u, created, err := st.EnsureUser(ctx, 1001, "alice", UserDefaults{LeadDays: 3, NotifyAt: nineAM})
			if err != nil || !created {
				t.Fatalf("EnsureUser: created=%v err=%v", created, err)
			}
			again, created, err := st.EnsureUser(ctx, 1001, "ignored", UserDefaults{LeadDays: 7})
			if err != nil || created || again.ID != u.ID || again.LeadDays != 3 {
				t.Fatalf("EnsureUser second call: %+v created=%v err=%v", again, created, err)
			}

			lead := 0
			at := civil.Time{Hour: 18, Minute: 30}
			upd, err := st.UpdateUserSettings(ctx, u.ID, UserSettings{LeadDays: &lead, NotifyAt: &at})
			if err != nil {
				t.Fatalf("UpdateUserSettings: %v", err)
			}
			if upd.LeadDays != 0 || FormatClock(upd.NotifyAt) != "18:30" || upd.DisplayName != "alice" {
				t.Fatalf("unexpected settings: %+v", upd)
			}

			if _, _, err := st.EnsureUser(ctx, 1002, "bob", UserDefaults{LeadDays: 3, NotifyAt: nineAM}); err != nil {
				t.Fatalf("EnsureUser bob: %v", err)
			}
			got, err := st.FindUsersWithNotifyTime(ctx, civil.Time{Hour: 18, Minute: 30})
			if err != nil || len(got) != 1 || got[0].ID != u.ID {
				t.Fatalf("FindUsersWithNotifyTime 18:30: %+v err=%v", got, err)
			}
			got, err = st.FindUsersWithNotifyTime(ctx, civil.Time{Hour: 18})
			if err != nil || len(got) != 0 {
				t.Fatalf("FindUsersWithNotifyTime 18:00: %+v err=%v", got, err)
			}

			if _, err := st.GetUserByChat(ctx, 424242); !errors.Is(err, ErrNotFound) {
				t.Fatalf("GetUserByChat missing: %v", err)
			}
		})
	}
}

func TestStoreItemsAndFlag(t *testing.T) {
	t.Parallel()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner, _, _ := st.EnsureUser(ctx, 1, "owner", UserDefaults{LeadDays: 3, NotifyAt: nineAM})
			other, _, _ := st.EnsureUser(ctx, 2, "other", UserDefaults{LeadDays: 3, NotifyAt: nineAM})

			milk, err := st.CreateItem(ctx, Item{UserID: owner.ID, Name: "milk", Expiration: datePtr("2024-06-04")})
			if err != nil {
				t.Fatalf("CreateItem: %v", err)
			}
			if milk.ID == 0 || milk.NotificationSent || milk.RegisteredAt.IsZero() {
				t.Fatalf("unexpected new item: %+v", milk)
			}
			if _, err := st.CreateItem(ctx, Item{UserID: owner.ID, Name: "eggs", Expiration: datePtr("2024-06-05")}); err != nil {
				t.Fatalf("CreateItem eggs: %v", err)
			}
			if _, err := st.CreateItem(ctx, Item{UserID: owner.ID, Name: "salt"}); err != nil {
				t.Fatalf("CreateItem without date: %v", err)
			}

			due, err := st.FindItemsDueOn(ctx, owner.ID, date("2024-06-04"))
			if err != nil || len(due) != 1 || due[0].ID != milk.ID {
				t.Fatalf("FindItemsDueOn: %+v err=%v", due, err)
			}

			ok, err := st.ClaimNotification(ctx, milk.ID, date("2024-06-04"), "c1")
			if err != nil || !ok {
				t.Fatalf("first claim: ok=%v err=%v", ok, err)
			}
			ok, err = st.ClaimNotification(ctx, milk.ID, date("2024-06-04"), "c1b")
			if err != nil || ok {
				t.Fatalf("second claim should lose: ok=%v err=%v", ok, err)
			}

			// Renaming keeps the flag.
			name := "whole milk"
			it, err := st.UpdateItem(ctx, owner.ID, ItemUpdate{ID: milk.ID, Name: &name})
			if err != nil || !it.NotificationSent || it.Name != name {
				t.Fatalf("rename: %+v err=%v", it, err)
			}
			// Same date keeps the flag.
			it, err = st.UpdateItem(ctx, owner.ID, ItemUpdate{ID: milk.ID, Expiration: datePtr("2024-06-04")})
			if err != nil || !it.NotificationSent {
				t.Fatalf("same-date edit: %+v err=%v", it, err)
			}
			// Date change clears it.
			it, err = st.UpdateItem(ctx, owner.ID, ItemUpdate{ID: milk.ID, Expiration: datePtr("2024-06-10")})
			if err != nil || it.NotificationSent || it.Expiration.String() != "2024-06-10" {
				t.Fatalf("date edit: %+v err=%v", it, err)
			}

			// A stale release for the old date must not touch the new one.
			if ok, _ := st.ClaimNotification(ctx, milk.ID, date("2024-06-10"), "c2"); !ok {
				t.Fatalf("claim after edit should win")
			}
			if err := st.ReleaseNotification(ctx, milk.ID, "c1"); err != nil {
				t.Fatalf("ReleaseNotification: %v", err)
			}
			if it, _ := st.GetItem(ctx, owner.ID, milk.ID); !it.NotificationSent {
				t.Fatalf("stale release cleared the flag")
			}
			if err := st.ReleaseNotification(ctx, milk.ID, "c2"); err != nil {
				t.Fatalf("ReleaseNotification: %v", err)
			}
			if it, _ := st.GetItem(ctx, owner.ID, milk.ID); it.NotificationSent {
				t.Fatalf("release did not clear the flag")
			}

			if _, err := st.GetItem(ctx, other.ID, milk.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("foreign GetItem: %v", err)
			}
			if err := st.DeleteItem(ctx, other.ID, milk.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("foreign DeleteItem: %v", err)
			}

			list, err := st.ListItems(ctx, owner.ID)
			if err != nil || len(list) != 3 {
				t.Fatalf("ListItems: %+v err=%v", list, err)
			}
			if list[0].Name != "eggs" || list[2].Expiration != nil {
				t.Fatalf("ListItems order: %v, %v, %v", list[0].Name, list[1].Name, list[2].Name)
			}

			if err := st.DeleteItem(ctx, owner.ID, milk.ID); err != nil {
				t.Fatalf("DeleteItem: %v", err)
			}
			if ok, _ := st.ClaimNotification(ctx, milk.ID, date("2024-06-10"), "c3"); ok {
				t.Fatalf("claim on deleted item should lose")
			}
		})
	}
}

func TestStoreClaimIsExclusive(t *testing.T) {
	t.Parallel()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, _, _ := st.EnsureUser(ctx, 7, "u", UserDefaults{LeadDays: 1, NotifyAt: nineAM})
			it, err := st.CreateItem(ctx, Item{UserID: u.ID, Name: "yogurt", Expiration: datePtr("2024-06-02")})
			if err != nil {
				t.Fatalf("CreateItem: %v", err)
			}

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if ok, err := st.ClaimNotification(ctx, it.ID, date("2024-06-02"), "worker"); err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()
			if wins.Load() != 1 {
				t.Fatalf("claims won=%d want 1", wins.Load())
			}
		})
	}
}

func TestStoreDeliveriesAndDeleteUser(t *testing.T) {
	t.Parallel()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, _, _ := st.EnsureUser(ctx, 9, "u", UserDefaults{LeadDays: 3, NotifyAt: nineAM})
			it, _ := st.CreateItem(ctx, Item{UserID: u.ID, Name: "bread", Expiration: datePtr("2024-06-04")})

			for i, ok := range []bool{true, false} {
				d := Delivery{
					NoticeID: string(rune('a' + i)), ItemID: it.ID, UserID: u.ID, ItemName: it.Name,
					Path: "sweep", DecisionDay: date("2024-06-01"), OK: ok,
				}
				if !ok {
					d.Error = "boom"
				}
				if err := st.RecordDelivery(ctx, d); err != nil {
					t.Fatalf("RecordDelivery: %v", err)
				}
			}
			got, err := st.ListDeliveries(ctx, u.ID, 10)
			if err != nil || len(got) != 2 {
				t.Fatalf("ListDeliveries: %+v err=%v", got, err)
			}
			if got[0].NoticeID != "b" || got[0].OK || got[0].Error != "boom" || got[1].DecisionDay != date("2024-06-01") {
				t.Fatalf("unexpected deliveries: %+v", got)
			}

			if err := st.DeleteUser(ctx, u.ID); err != nil {
				t.Fatalf("DeleteUser: %v", err)
			}
			if items, _ := st.ListItems(ctx, u.ID); len(items) != 0 {
				t.Fatalf("items survived user deletion: %+v", items)
			}
			if err := st.DeleteUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("second DeleteUser: %v", err)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:00", want: "09:00"},
		{in: "9:05", want: "09:05"},
		{in: "23:59", want: "23:59"},
		{in: "24:00", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || FormatClock(got) != tt.want {
			t.Fatalf("ParseClock(%q)=%v err=%v want %s", tt.in, got, err, tt.want)
		}
	}
}

func TestStoreReleaseNeedsCurrentClaim(t *testing.T) {
	t.Parallel()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			u, _, _ := st.EnsureUser(ctx, 9, "u", UserDefaults{LeadDays: 1, NotifyAt: nineAM})
			it, err := st.CreateItem(ctx, Item{UserID: u.ID, Name: "cream", Expiration: datePtr("2024-06-05")})
			if err != nil {
				t.Fatalf("CreateItem: %v", err)
			}
			if ok, _ := st.ClaimNotification(ctx, it.ID, date("2024-06-05"), "old"); !ok {
				t.Fatalf("first claim should win")
			}

			// Move the date away and back; the old claim is gone with it.
			if _, err := st.UpdateItem(ctx, u.ID, ItemUpdate{ID: it.ID, Expiration: datePtr("2024-06-09")}); err != nil {
				t.Fatalf("UpdateItem: %v", err)
			}
			if _, err := st.UpdateItem(ctx, u.ID, ItemUpdate{ID: it.ID, Expiration: datePtr("2024-06-05")}); err != nil {
				t.Fatalf("UpdateItem: %v", err)
			}
			if ok, _ := st.ClaimNotification(ctx, it.ID, date("2024-06-05"), "new"); !ok {
				t.Fatalf("claim after date round trip should win")
			}

			// A late failure of the old claim leaves the new one alone.
			if err := st.ReleaseNotification(ctx, it.ID, "old"); err != nil {
				t.Fatalf("ReleaseNotification: %v", err)
			}
			if got, _ := st.GetItem(ctx, u.ID, it.ID); !got.NotificationSent {
				t.Fatalf("release by a superseded claim cleared the flag")
			}
			if ok, _ := st.ClaimNotification(ctx, it.ID, date("2024-06-05"), "third"); ok {
				t.Fatalf("flag should still be held")
			}

			if err := st.ReleaseNotification(ctx, it.ID, "new"); err != nil {
				t.Fatalf("ReleaseNotification: %v", err)
			}
			if got, _ := st.GetItem(ctx, u.ID, it.ID); got.NotificationSent {
				t.Fatalf("release by the holder did not clear the flag")
			}
		})
	}
}
