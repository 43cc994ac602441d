package notifier

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pantrybot/internal/eventbus"
	"pantrybot/internal/expiry"
	rtsup "pantrybot/internal/runtime/supervisor"
	"pantrybot/pkg/logx"
)

type job struct {
	n      expiry.Notice
	done   func(error)
	queued time.Time
}

// Service is the async delivery pipeline. It implements expiry.Gateway and
// is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	bus    eventbus.Bus
	sender Sender
	render Renderer

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	enqWG     sync.WaitGroup
	queue     chan job
	sup       *rtsup.Supervisor
	stopDone  chan struct{}

	sent     atomic.Uint64
	failed   atomic.Uint64
	rejected atomic.Uint64

	hmu     sync.Mutex
	history []HistoryItem
}

var _ expiry.Gateway = (*Service)(nil)

func New(cfg Config, sender Sender, loc *time.Location, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		log:    log.With(logx.String("comp", "notifier")),
		bus:    bus,
		sender: sender,
		render: Renderer{Location: loc},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSec))
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	s.cfg = cfg
	s.render.SenderName = cfg.SenderName
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
	} else {
		s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
		s.limiter.SetBurst(cfg.Burst)
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start launches the worker pool. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil || !s.cfg.Enabled || s.sender == nil {
		s.mu.Unlock()
		return
	}

	q := make(chan job, s.cfg.QueueSize)
	s.queue = q
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup := s.sup
	workers := s.cfg.Workers
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("notifier.worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		}, rtsup.WithPublishFirstError(true))
	}
	s.log.Info("notifier started", logx.String("sender", s.sender.Name()), logx.Int("workers", workers))
}

// Stop stops intake and drains the queue until ctx expires. Notices still
// queued after that complete with ErrStopped.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.enqWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())
		for j := range q {
			s.complete(j, 0, ErrStopped)
		}
		s.mu.Lock()
		s.queue, s.sup, s.stopDone = nil, nil, nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
		<-done
	}
}

// Notify queues n for delivery. done runs exactly once after a nil return.
func (s *Service) Notify(ctx context.Context, n expiry.Notice, done func(error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		s.rejected.Add(1)
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		s.rejected.Add(1)
		return ErrStopped
	}
	q := s.queue
	s.enqWG.Add(1)
	s.mu.Unlock()
	defer s.enqWG.Done()

	select {
	case q <- job{n: n, done: done, queued: time.Now()}:
		return nil
	default:
		s.rejected.Add(1)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotifyDropped, Data: n.ID})
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			attempts, err := s.sendWithRetry(ctx, j)
			s.complete(j, attempts, err)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) (int, error) {
	s.mu.Lock()
	cfg, lim, sender, render := s.cfg, s.limiter, s.sender, s.render
	s.mu.Unlock()

	msg := render.Render(j.n)
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return attempt - 1, err
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := sender.Send(callCtx, msg)
		cancel()
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		s.log.Debug("send failed",
			logx.String("notice_id", j.n.ID),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
			logx.Err(err),
		)
		if IsNoRetry(err) || attempt >= maxAttempts {
			return attempt, err
		}

		t := time.NewTimer(retryDelay(cfg, attempt, err))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return attempt, ctx.Err()
		}
	}
	return maxAttempts, lastErr
}

func (s *Service) complete(j job, attempts int, err error) {
	h := HistoryItem{
		At:       time.Now(),
		NoticeID: j.n.ID,
		ItemID:   j.n.Item.ID,
		UserID:   j.n.User.ID,
		Path:     string(j.n.Path),
		Attempts: attempts,
		OK:       err == nil,
	}
	if err != nil {
		h.Error = err.Error()
		s.failed.Add(1)
	} else {
		s.sent.Add(1)
	}
	s.appendHistory(h)
	if j.done != nil {
		j.done(err)
	}
}

func (s *Service) appendHistory(h HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.history = append(s.history, h)
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	st := Stats{Sender: ""}
	if s.sender != nil {
		st.Sender = s.sender.Name()
	}
	if s.queue != nil {
		st.Queued = len(s.queue)
	}
	s.mu.Unlock()
	st.Sent = s.sent.Load()
	st.Failed = s.failed.Load()
	st.Rejected = s.rejected.Load()
	return st
}

// retryDelay is base*2^(attempt-1) with 0.7..1.3 jitter, capped at
// RetryMaxDelay. A transport hint wins when present.
func retryDelay(cfg Config, attempt int, err error) time.Duration {
	if after, ok := retryAfterHint(err); ok {
		return min(after, cfg.RetryMaxDelay)
	}
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	return min(max(d, 0), cfg.RetryMaxDelay)
}
