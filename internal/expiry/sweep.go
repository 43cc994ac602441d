package expiry

import (
	"context"
	"time"

	"github.com/golang-sql/civil"

	"pantrybot/internal/eventbus"
	"pantrybot/internal/storage"
	"pantrybot/pkg/logx"
)

// TickReport summarizes one sweep.
type TickReport struct {
	At         time.Time
	Minute     civil.Time
	Today      civil.Date
	Users      int
	Due        int
	Dispatched int
	Skipped    int
	Failed     int
	Took       time.Duration
}

// RunTick is one sweep pass at now. It runs to completion: lookup errors
// for one user do not stop the others, and it never waits on a delivery.
func (s *Service) RunTick(ctx context.Context, now time.Time) (TickReport, error) {
	start := time.Now()
	rep := TickReport{
		At:     now,
		Minute: s.cal.Minute(now),
		Today:  s.cal.Today(now),
	}
	log := s.log.With(
		logx.String("tick", storage.FormatClock(rep.Minute)),
		logx.String("today", rep.Today.String()),
	)

	users, err := s.store.FindUsersWithNotifyTime(ctx, rep.Minute)
	if err != nil {
		log.Error("sweep: find users failed", logx.Err(err))
		return rep, err
	}
	rep.Users = len(users)

	for _, u := range users {
		s.sweepUser(ctx, log, &rep, u)
	}

	rep.Took = time.Since(start)
	if rep.Users > 0 {
		log.Info("sweep done",
			logx.Int("users", rep.Users),
			logx.Int("due", rep.Due),
			logx.Int("dispatched", rep.Dispatched),
			logx.Int("skipped", rep.Skipped),
			logx.Int("failed", rep.Failed),
			logx.Duration("took", rep.Took),
		)
	} else {
		log.Debug("sweep: no users at this minute")
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSweepDone, Data: rep})
	return rep, nil
}

func (s *Service) sweepUser(ctx context.Context, log logx.Logger, rep *TickReport, u storage.User) {
	target := TargetDate(rep.Today, u.LeadDays)
	items, err := s.store.FindItemsDueOn(ctx, u.ID, target)
	if err != nil {
		rep.Failed++
		log.Error("sweep: find items failed", logx.Int64("user_id", u.ID), logx.Err(err))
		return
	}
	for _, it := range items {
		if it.Expiration == nil || !DueOn(rep.Today, *it.Expiration, u.LeadDays) {
			continue
		}
		rep.Due++
		if !ShouldSend(it) {
			rep.Skipped++
			continue
		}
		switch s.dispatch(ctx, PathSweep, rep.Today, it, u) {
		case outcomeDispatched:
			rep.Dispatched++
		case outcomeSkipped:
			rep.Skipped++
		default:
			rep.Failed++
		}
	}
}
