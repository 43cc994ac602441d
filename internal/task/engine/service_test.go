package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"pantrybot/internal/eventbus"
	logx "pantrybot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	cfg.Enabled = true
	s := New(cfg, logx.Nop(), eventbus.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2, QueueSize: 4})
	done := make(chan struct{})
	if err := s.Enqueue(Task{Name: "sweep", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("task did not run")
	}
	waitFor(t, func() bool { return s.Snapshot().Completed == 1 })
	h := s.Snapshot().History
	if len(h) != 1 || h[0].Name != "sweep" || h[0].Error != "" {
		t.Fatalf("history=%+v", h)
	}
}

func TestOverlapSkip(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 2, QueueSize: 4})
	release := make(chan struct{})
	started := make(chan struct{})
	task := Task{Name: "sweep", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second enqueue err=%v, want ErrOverlapSkip", err)
	}
	close(release)
	waitFor(t, func() bool { return s.Snapshot().Completed == 1 })

	ran := make(chan struct{})
	if err := s.Enqueue(Task{Name: "sweep", Run: func(context.Context) error { close(ran); return nil }}); err != nil {
		t.Fatalf("enqueue after release: %v", err)
	}
	<-ran
}

func TestRetryAndNoRetry(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, QueueSize: 4, RetryMax: 2})
	opt := TaskOptions{RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}

	var calls int32
	_ = s.Enqueue(Task{Name: "flaky", Opt: opt, Run: func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}})
	waitFor(t, func() bool { return s.Snapshot().Completed == 1 })
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d, want 3", got)
	}

	var permanent int32
	_ = s.Enqueue(Task{Name: "broken", Opt: opt, Run: func(context.Context) error {
		atomic.AddInt32(&permanent, 1)
		return NoRetry(errors.New("bad"))
	}})
	waitFor(t, func() bool { return s.Snapshot().Failed == 1 })
	if got := atomic.LoadInt32(&permanent); got != 1 {
		t.Fatalf("no-retry task ran %d times", got)
	}
}

func TestPanicBecomesFailure(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1, QueueSize: 4})
	_ = s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("oops") }})
	waitFor(t, func() bool { return s.Snapshot().Failed == 1 })

	ok := make(chan struct{})
	_ = s.Enqueue(Task{Name: "after", Run: func(context.Context) error { close(ok); return nil }})
	select {
	case <-ok:
	case <-time.After(3 * time.Second):
		t.Fatalf("worker did not survive panic")
	}
}

func TestEnqueueWhenNotRunning(t *testing.T) {
	t.Parallel()

	disabled := New(Config{}, logx.Nop(), nil)
	if err := disabled.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err=%v, want ErrDisabled", err)
	}
	idle := New(Config{Enabled: true}, logx.Nop(), nil)
	if err := idle.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v, want ErrStopped", err)
	}
	if err := idle.Enqueue(Task{Name: "x"}); err == nil {
		t.Fatalf("expected error for nil Run")
	}
}

func TestBackoffDelayBounded(t *testing.T) {
	t.Parallel()

	opt := TaskOptions{}.withDefaults(Config{})
	rng := rand.New(rand.NewSource(1))
	for retry := 1; retry < 20; retry++ {
		d := backoffDelay(opt, retry, rng)
		if d < 0 || d > opt.RetryMaxDelay {
			t.Fatalf("retry %d: delay %s out of bounds", retry, d)
		}
	}
}
