package notifier

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
	"pantrybot/pkg/logx"
)

type scriptedSender struct {
	mu    sync.Mutex
	errs  []error
	sent  []Message
	calls int
	gate  chan struct{}
	began chan struct{}
}

func (s *scriptedSender) Name() string { return "scripted" }

func (s *scriptedSender) Send(ctx context.Context, m Message) error {
	if s.began != nil {
		s.began <- struct{}{}
	}
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.sent = append(s.sent, m)
	return nil
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     4,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		SenderName:    "Pantry Team",
	}
}

func notice(id string) expiry.Notice {
	exp := civil.Date{Year: 2024, Month: time.June, Day: 4}
	return expiry.Notice{
		ID:          id,
		Path:        expiry.PathSweep,
		Item:        storage.Item{ID: 1, Name: "milk", Expiration: &exp},
		User:        storage.User{ID: 2, ChatID: 99, DisplayName: "Ana"},
		DecisionDay: civil.Date{Year: 2024, Month: time.June, Day: 1},
		DaysLeft:    3,
	}
}

func waitDone(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("completion callback not called")
		return nil
	}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	snd := &scriptedSender{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	svc := New(testConfig(), snd, time.UTC, logx.Nop(), nil)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	done := make(chan error, 1)
	if err := svc.Notify(context.Background(), notice("n1"), func(err error) { done <- err }); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := waitDone(t, done); err != nil {
		t.Fatalf("delivery err=%v", err)
	}
	if snd.calls != 3 || len(snd.sent) != 1 || snd.sent[0].ChatID != 99 {
		t.Fatalf("calls=%d sent=%+v", snd.calls, snd.sent)
	}
	h := svc.History()
	if len(h) != 1 || !h[0].OK || h[0].Attempts != 3 || h[0].NoticeID != "n1" {
		t.Fatalf("history=%+v", h)
	}
}

func TestNotifyNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()

	snd := &scriptedSender{errs: []error{NoRetry(errors.New("blocked"))}}
	svc := New(testConfig(), snd, time.UTC, logx.Nop(), nil)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	done := make(chan error, 1)
	_ = svc.Notify(context.Background(), notice("n1"), func(err error) { done <- err })
	err := waitDone(t, done)
	if !IsNoRetry(err) {
		t.Fatalf("err=%v want no-retry", err)
	}
	if snd.calls != 1 {
		t.Fatalf("calls=%d want 1", snd.calls)
	}
	if st := svc.Stats(); st.Failed != 1 || st.Sent != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestNotifyRejectsWhenDisabledOrStopped(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Enabled = false
	svc := New(cfg, &scriptedSender{}, time.UTC, logx.Nop(), nil)
	svc.Start(context.Background())
	if err := svc.Notify(context.Background(), notice("x"), nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled: err=%v", err)
	}

	svc2 := New(testConfig(), &scriptedSender{}, time.UTC, logx.Nop(), nil)
	if err := svc2.Notify(context.Background(), notice("x"), nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started: err=%v", err)
	}
}

func TestNotifyQueueFull(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.QueueSize = 1
	snd := &scriptedSender{gate: make(chan struct{}), began: make(chan struct{}, 4)}
	svc := New(cfg, snd, time.UTC, logx.Nop(), nil)
	svc.Start(context.Background())

	results := make(chan error, 2)
	cb := func(err error) { results <- err }
	if err := svc.Notify(context.Background(), notice("a"), cb); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	<-snd.began // worker holds "a"
	if err := svc.Notify(context.Background(), notice("b"), cb); err != nil {
		t.Fatalf("second Notify: %v", err)
	}
	if err := svc.Notify(context.Background(), notice("c"), cb); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third Notify err=%v want ErrQueueFull", err)
	}

	close(snd.gate)
	for i := 0; i < 2; i++ {
		if err := waitDone(t, results); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	svc.Stop(context.Background())
	if st := svc.Stats(); st.Sent != 2 || st.Rejected != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestStopCompletesQueuedNotices(t *testing.T) {
	t.Parallel()

	snd := &scriptedSender{gate: make(chan struct{}), began: make(chan struct{}, 8)}
	svc := New(testConfig(), snd, time.UTC, logx.Nop(), nil)
	svc.Start(context.Background())

	results := make(chan error, 3)
	for _, id := range []string{"a", "b", "c"} {
		if err := svc.Notify(context.Background(), notice(id), func(err error) { results <- err }); err != nil {
			t.Fatalf("Notify %s: %v", id, err)
		}
	}
	<-snd.began

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	svc.Stop(ctx)

	for i := 0; i < 3; i++ {
		if err := waitDone(t, results); err == nil {
			t.Fatalf("notice %d completed without error after forced stop", i)
		}
	}
	if err := svc.Notify(context.Background(), notice("late"), nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify after Stop: %v", err)
	}
}

func TestRetryDelayHonoursHint(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RetryMaxDelay = time.Second
	if d := retryDelay(cfg, 1, RetryAfter(errors.New("flood"), 300*time.Millisecond)); d != 300*time.Millisecond {
		t.Fatalf("hint delay=%v", d)
	}
	if d := retryDelay(cfg, 1, RetryAfter(errors.New("flood"), time.Hour)); d != time.Second {
		t.Fatalf("capped hint delay=%v", d)
	}
	for attempt := 1; attempt < 20; attempt++ {
		if d := retryDelay(cfg, attempt, errors.New("x")); d <= 0 || d > time.Second {
			t.Fatalf("attempt %d delay=%v out of range", attempt, d)
		}
	}
}

func TestRenderTemplates(t *testing.T) {
	t.Parallel()

	r := Renderer{SenderName: "Pantry Team", Location: time.UTC}
	n := notice("n")
	n.Item.RegisteredAt = time.Date(2024, 5, 20, 14, 3, 0, 0, time.UTC)

	m := r.Render(n)
	if m.ChatID != 99 || !strings.HasPrefix(m.Title, "Reminder: milk expires in 3 days") {
		t.Fatalf("sweep message: %+v", m)
	}
	for _, want := range []string{"Hello, Ana.", "Expires: 2024-06-04 (in 3 days)", "Registered: 2024-05-20 14:03", "Pantry Team"} {
		if !strings.Contains(m.Text, want) {
			t.Fatalf("sweep text missing %q:\n%s", want, m.Text)
		}
	}

	n.Path = expiry.PathImmediate
	n.DaysLeft = 1
	n.User.DisplayName = ""
	m = Renderer{}.Render(n)
	if !strings.HasPrefix(m.Title, "URGENT: milk expires tomorrow") {
		t.Fatalf("urgent title: %q", m.Title)
	}
	if !strings.Contains(m.Text, "Hello, there.") || !strings.HasSuffix(m.Text, defaultSenderName) {
		t.Fatalf("urgent text:\n%s", m.Text)
	}
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	s, err := NewSender("", nil, logx.Nop())
	if err != nil || s.Name() != ChannelLog {
		t.Fatalf("default sender: %v %v", s, err)
	}
	if _, err := NewSender("telegram", nil, logx.Nop()); err == nil {
		t.Fatalf("telegram without adapter should fail")
	}
	if _, err := NewSender("smtp", nil, logx.Nop()); err == nil {
		t.Fatalf("unknown channel should fail")
	}
	if err := NewLogSender(logx.Nop()).Send(context.Background(), Message{ChatID: 1, Text: "hi"}); err != nil {
		t.Fatalf("log sender: %v", err)
	}
}
