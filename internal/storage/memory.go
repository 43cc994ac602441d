package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/golang-sql/civil"
)

// Memory is a process-local Store. It honours the same flag semantics as
// the SQL store, with one mutex standing in for row-level atomicity.
type Memory struct {
	mu sync.Mutex

	nextUser int64
	nextItem int64

	users      map[int64]User
	items      map[int64]Item
	claims     map[int64]string
	deliveries []Delivery
}

func NewMemory() *Memory {
	return &Memory{
		users:  make(map[int64]User),
		items:  make(map[int64]Item),
		claims: make(map[int64]string),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) EnsureUser(_ context.Context, chatID int64, displayName string, def UserDefaults) (User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.ChatID == chatID {
			return u, false, nil
		}
	}
	m.nextUser++
	u := User{
		ID:          m.nextUser,
		ChatID:      chatID,
		DisplayName: displayName,
		LeadDays:    def.LeadDays,
		NotifyAt:    civil.Time{Hour: def.NotifyAt.Hour, Minute: def.NotifyAt.Minute},
		CreatedAt:   time.Now(),
	}
	m.users[u.ID] = u
	return u, true, nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetUserByChat(_ context.Context, chatID int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ChatID == chatID {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *Memory) UpdateUserSettings(_ context.Context, id int64, in UserSettings) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if in.LeadDays != nil {
		u.LeadDays = *in.LeadDays
	}
	if in.NotifyAt != nil {
		u.NotifyAt = civil.Time{Hour: in.NotifyAt.Hour, Minute: in.NotifyAt.Minute}
	}
	if in.DisplayName != nil {
		u.DisplayName = *in.DisplayName
	}
	m.users[id] = u
	return u, nil
}

func (m *Memory) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	for iid, it := range m.items {
		if it.UserID == id {
			delete(m.items, iid)
			delete(m.claims, iid)
		}
	}
	kept := m.deliveries[:0]
	for _, d := range m.deliveries {
		if d.UserID != id {
			kept = append(kept, d)
		}
	}
	m.deliveries = kept
	return nil
}

func (m *Memory) FindUsersWithNotifyTime(_ context.Context, t civil.Time) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if u.NotifyAt.Hour == t.Hour && u.NotifyAt.Minute == t.Minute {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateItem(_ context.Context, it Item) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[it.UserID]; !ok {
		return Item{}, ErrNotFound
	}
	m.nextItem++
	it.ID = m.nextItem
	if it.RegisteredAt.IsZero() {
		it.RegisteredAt = time.Now()
	}
	it.Expiration = copyDate(it.Expiration)
	m.items[it.ID] = it
	return cloneItem(it), nil
}

func (m *Memory) GetItem(_ context.Context, userID, itemID int64) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.UserID != userID {
		return Item{}, ErrNotFound
	}
	return cloneItem(it), nil
}

func (m *Memory) UpdateItem(_ context.Context, userID int64, u ItemUpdate) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[u.ID]
	if !ok || it.UserID != userID {
		return Item{}, ErrNotFound
	}
	if u.Name != nil {
		it.Name = *u.Name
	}
	if u.Expiration != nil {
		if it.Expiration == nil || *it.Expiration != *u.Expiration {
			it.NotificationSent = false
			delete(m.claims, it.ID)
		}
		it.Expiration = copyDate(u.Expiration)
	}
	m.items[it.ID] = it
	return cloneItem(it), nil
}

func (m *Memory) DeleteItem(_ context.Context, userID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.UserID != userID {
		return ErrNotFound
	}
	delete(m.items, itemID)
	delete(m.claims, itemID)
	return nil
}

func (m *Memory) ListItems(_ context.Context, userID int64) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, it := range m.items {
		if it.UserID == userID {
			out = append(out, cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Expiration, out[j].Expiration
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return a.Before(*b)
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out, nil
}

func (m *Memory) FindItemsDueOn(_ context.Context, userID int64, date civil.Date) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	for _, it := range m.items {
		if it.UserID == userID && it.Expiration != nil && *it.Expiration == date {
			out = append(out, cloneItem(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ClaimNotification(_ context.Context, itemID int64, exp civil.Date, claim string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || it.NotificationSent || it.Expiration == nil || *it.Expiration != exp {
		return false, nil
	}
	it.NotificationSent = true
	m.items[itemID] = it
	m.claims[itemID] = claim
	return true, nil
}

func (m *Memory) ReleaseNotification(_ context.Context, itemID int64, claim string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[itemID]
	if !ok || m.claims[itemID] != claim {
		return nil
	}
	it.NotificationSent = false
	m.items[itemID] = it
	delete(m.claims, itemID)
	return nil
}

func (m *Memory) RecordDelivery(_ context.Context, d Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.At.IsZero() {
		d.At = time.Now()
	}
	m.deliveries = append(m.deliveries, d)
	return nil
}

func (m *Memory) ListDeliveries(_ context.Context, userID int64, limit int) ([]Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []Delivery
	for i := len(m.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.deliveries[i].UserID == userID {
			out = append(out, m.deliveries[i])
		}
	}
	return out, nil
}

func copyDate(d *civil.Date) *civil.Date {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}

func cloneItem(it Item) Item {
	it.Expiration = copyDate(it.Expiration)
	return it
}
