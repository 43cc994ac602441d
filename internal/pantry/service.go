package pantry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/golang-sql/civil"

	"pantrybot/internal/expiry"
	"pantrybot/internal/storage"
	logx "pantrybot/pkg/logx"
)

// Notifier is the save-time hook. *expiry.Service implements it.
type Notifier interface {
	OnItemSaved(ctx context.Context, it storage.Item, u storage.User) bool
}

type Service struct {
	store  storage.Store
	notify Notifier
	cal    expiry.Calendar
	clock  expiry.Clock
	log    logx.Logger

	mu  sync.RWMutex
	cfg Config
}

type Option func(*Service)

func WithClock(c expiry.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l logx.Logger) Option { return func(s *Service) { s.log = l } }

func New(cfg Config, store storage.Store, notify Notifier, cal expiry.Calendar, opts ...Option) *Service {
	s := &Service{
		store:  store,
		notify: notify,
		cal:    cal,
		clock:  expiry.SystemClock,
		log:    logx.Nop(),
		cfg:    cfg.withDefaults(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(logx.String("comp", "pantry"))
	return s
}

// Apply swaps limits and defaults. Existing users keep their settings.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) Today() civil.Date { return s.cal.Today(s.clock.Now()) }

// Register returns the user for chatID, creating it with the configured
// defaults on first contact.
func (s *Service) Register(ctx context.Context, chatID int64, displayName string) (storage.User, bool, error) {
	cfg := s.Config()
	u, created, err := s.store.EnsureUser(ctx, chatID, strings.TrimSpace(displayName), storage.UserDefaults{
		LeadDays: cfg.DefaultLeadDays,
		NotifyAt: cfg.DefaultNotifyAt,
	})
	if err != nil {
		return storage.User{}, false, err
	}
	if created {
		s.log.Info("user registered", logx.Int64("user_id", u.ID), logx.Int64("chat_id", chatID))
	}
	return u, created, nil
}

func (s *Service) AddItem(ctx context.Context, u storage.User, name string, exp *civil.Date) (SaveResult, error) {
	cfg := s.Config()
	name, err := cleanName(name, cfg.MaxNameLength)
	if err != nil {
		return SaveResult{}, err
	}
	if err := s.checkDate(exp); err != nil {
		return SaveResult{}, err
	}
	if cfg.MaxItems > 0 {
		items, err := s.store.ListItems(ctx, u.ID)
		if err != nil {
			return SaveResult{}, err
		}
		if len(items) >= cfg.MaxItems {
			return SaveResult{}, fmt.Errorf("%w (%d)", ErrTooManyItems, cfg.MaxItems)
		}
	}

	it, err := s.store.CreateItem(ctx, storage.Item{
		UserID:       u.ID,
		Name:         name,
		Expiration:   exp,
		RegisteredAt: s.clock.Now(),
	})
	if err != nil {
		return SaveResult{}, err
	}
	s.log.Debug("item added", logx.Int64("user_id", u.ID), logx.Int64("item_id", it.ID))
	return SaveResult{Item: it, Notified: s.notify.OnItemSaved(ctx, it, u)}, nil
}

func (s *Service) EditItem(ctx context.Context, u storage.User, id int64, e Edit) (SaveResult, error) {
	if e.Name == nil && e.Expiration == nil {
		return SaveResult{}, invalid("nothing to change")
	}
	upd := storage.ItemUpdate{ID: id, Expiration: e.Expiration}
	if e.Name != nil {
		name, err := cleanName(*e.Name, s.Config().MaxNameLength)
		if err != nil {
			return SaveResult{}, err
		}
		upd.Name = &name
	}
	if err := s.checkDate(e.Expiration); err != nil {
		return SaveResult{}, err
	}

	it, err := s.store.UpdateItem(ctx, u.ID, upd)
	if err != nil {
		return SaveResult{}, err
	}
	s.log.Debug("item edited", logx.Int64("user_id", u.ID), logx.Int64("item_id", it.ID), logx.Bool("sent", it.NotificationSent))
	return SaveResult{Item: it, Notified: s.notify.OnItemSaved(ctx, it, u)}, nil
}

func (s *Service) DeleteItem(ctx context.Context, u storage.User, id int64) error {
	return s.store.DeleteItem(ctx, u.ID, id)
}

// List returns the user's items ordered by expiration, undated last.
func (s *Service) List(ctx context.Context, u storage.User) (Listing, error) {
	items, err := s.store.ListItems(ctx, u.ID)
	if err != nil {
		return Listing{}, err
	}
	today := s.Today()
	warnDays := s.Config().WarningDays

	out := Listing{Today: today, Items: make([]ItemView, 0, len(items)), Total: len(items)}
	for _, it := range items {
		v := ItemView{Item: it, Status: StatusUndated}
		if it.Expiration != nil {
			v.DaysLeft = expiry.DaysUntil(today, *it.Expiration)
			switch {
			case v.DaysLeft < 0:
				v.Status = StatusExpired
				out.Expired++
			case v.DaysLeft <= warnDays:
				v.Status = StatusWarning
				out.Warning++
			default:
				v.Status = StatusOK
			}
		}
		out.Items = append(out.Items, v)
	}
	sort.SliceStable(out.Items, func(i, j int) bool {
		a, b := out.Items[i].Expiration, out.Items[j].Expiration
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out, nil
}

func (s *Service) UpdateSettings(ctx context.Context, u storage.User, in Settings) (storage.User, error) {
	if in.LeadDays == nil && in.NotifyAt == nil {
		return u, nil
	}
	if in.LeadDays != nil {
		maxLead := s.Config().MaxLeadDays
		if *in.LeadDays < 0 || *in.LeadDays > maxLead {
			return storage.User{}, invalid("lead days must be between 0 and %d", maxLead)
		}
	}
	if in.NotifyAt != nil {
		t := civil.Time{Hour: in.NotifyAt.Hour, Minute: in.NotifyAt.Minute}
		if !t.IsValid() {
			return storage.User{}, invalid("notify time out of range")
		}
		if err := checkSlot(s.Config().NotifySlots, t); err != nil {
			return storage.User{}, err
		}
		in.NotifyAt = &t
	}
	nu, err := s.store.UpdateUserSettings(ctx, u.ID, storage.UserSettings{LeadDays: in.LeadDays, NotifyAt: in.NotifyAt})
	if err != nil {
		return storage.User{}, err
	}
	s.log.Info("settings updated",
		logx.Int64("user_id", u.ID),
		logx.Int("lead_days", nu.LeadDays),
		logx.String("notify_at", storage.FormatClock(nu.NotifyAt)),
	)
	return nu, nil
}

func (s *Service) Rename(ctx context.Context, u storage.User, displayName string) (storage.User, error) {
	name, err := cleanName(displayName, 64)
	if err != nil {
		return storage.User{}, err
	}
	return s.store.UpdateUserSettings(ctx, u.ID, storage.UserSettings{DisplayName: &name})
}

// History returns the latest deliveries for u, newest first.
func (s *Service) History(ctx context.Context, u storage.User, limit int) ([]storage.Delivery, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.store.ListDeliveries(ctx, u.ID, limit)
}

// Forget removes the user and everything they own.
func (s *Service) Forget(ctx context.Context, u storage.User) error {
	if err := s.store.DeleteUser(ctx, u.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	s.log.Info("user forgotten", logx.Int64("user_id", u.ID))
	return nil
}

func (s *Service) checkDate(exp *civil.Date) error {
	if exp == nil {
		return nil
	}
	if !exp.IsValid() {
		return invalid("invalid date")
	}
	if exp.Before(s.Today()) {
		return ErrPastExpiration
	}
	return nil
}

// checkSlot rejects a notify time no sweep will ever reach.
func checkSlot(slots Slots, t civil.Time) error {
	if slots == nil || slots.Fires(t.Hour, t.Minute) {
		return nil
	}
	if h, m, ok := slots.NextSlot(t.Hour, t.Minute); ok {
		return invalid("reminders are not checked at %s, try %02d:%02d", storage.FormatClock(t), h, m)
	}
	return invalid("reminders are not checked at %s", storage.FormatClock(t))
}

func cleanName(raw string, maxLen int) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", invalid("name is required")
	}
	if utf8.RuneCountInString(name) > maxLen {
		return "", invalid("name longer than %d characters", maxLen)
	}
	return name, nil
}

// ParseDate reads YYYY-MM-DD.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, invalid("date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}
