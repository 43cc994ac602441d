package expiry

import (
	"context"
	"time"

	"github.com/golang-sql/civil"
	"github.com/google/uuid"

	"pantrybot/internal/eventbus"
	"pantrybot/internal/storage"
	"pantrybot/pkg/logx"
)

const releaseTimeout = 5 * time.Second

// Service is the notification core shared by the save path and the sweep.
type Service struct {
	store Store
	gw    Gateway
	cal   Calendar
	clock Clock
	log   logx.Logger
	bus   eventbus.Bus
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l logx.Logger) Option {
	return func(s *Service) {
		if !l.IsZero() {
			s.log = l
		}
	}
}

func WithBus(b eventbus.Bus) Option {
	return func(s *Service) {
		if b != nil {
			s.bus = b
		}
	}
}

func New(store Store, gw Gateway, cal Calendar, opts ...Option) *Service {
	s := &Service{
		store: store,
		gw:    gw,
		cal:   cal,
		clock: SystemClock,
		log:   logx.Nop(),
		bus:   eventbus.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(logx.String("comp", "expiry"))
	return s
}

func (s *Service) Calendar() Calendar { return s.cal }

// Today is the current date in the operating zone.
func (s *Service) Today() civil.Date { return s.cal.Today(s.clock.Now()) }

// outcome of a single dispatch attempt.
type outcome int

const (
	outcomeDispatched outcome = iota
	outcomeSkipped
	outcomeFailed
)

// dispatch claims the item's flag and hands a notice to the gateway. The
// caller never waits for delivery.
func (s *Service) dispatch(ctx context.Context, path Path, today civil.Date, it storage.Item, u storage.User) outcome {
	exp := *it.Expiration
	log := s.log.With(
		logx.String("path", string(path)),
		logx.Int64("item_id", it.ID),
		logx.Int64("user_id", u.ID),
	)

	// the notice id doubles as the claim token
	id := uuid.NewString()
	won, err := s.store.ClaimNotification(ctx, it.ID, exp, id)
	if err != nil {
		log.Error("claim notification failed", logx.Err(err))
		return outcomeFailed
	}
	if !won {
		log.Debug("notification already claimed")
		return outcomeSkipped
	}

	it.NotificationSent = true
	n := Notice{
		ID:          id,
		Path:        path,
		Item:        it,
		User:        u,
		DecisionDay: today,
		DaysLeft:    DaysUntil(today, exp),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.gw.Notify(ctx, n, func(err error) { s.finish(n, err) }); err != nil {
		s.finish(n, err)
		return outcomeFailed
	}
	log.Info("notification dispatched", logx.String("notice_id", n.ID), logx.Int("days_left", n.DaysLeft))
	return outcomeDispatched
}

// finish records the delivery outcome and releases the claim on failure.
// It runs on the gateway's goroutine, detached from any request context.
func (s *Service) finish(n Notice, sendErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	log := s.log.With(
		logx.String("notice_id", n.ID),
		logx.String("path", string(n.Path)),
		logx.Int64("item_id", n.Item.ID),
		logx.Int64("user_id", n.User.ID),
	)

	d := storage.Delivery{
		NoticeID:    n.ID,
		ItemID:      n.Item.ID,
		UserID:      n.User.ID,
		ItemName:    n.Item.Name,
		Path:        string(n.Path),
		DecisionDay: n.DecisionDay,
		OK:          sendErr == nil,
		At:          s.clock.Now(),
	}

	if sendErr != nil {
		d.Error = sendErr.Error()
		if err := s.store.ReleaseNotification(ctx, n.Item.ID, n.ID); err != nil {
			log.Error("release notification failed", logx.Err(err))
		}
		log.Warn("notification failed", logx.Err(sendErr))
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifyFailed, Data: d})
	} else {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifySent, Data: d})
	}

	if err := s.store.RecordDelivery(ctx, d); err != nil {
		log.Warn("record delivery failed", logx.Err(err))
	}
}
