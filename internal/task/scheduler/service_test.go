package scheduler

import (
	"context"
	"testing"
	"time"

	"pantrybot/internal/task/engine"
	logx "pantrybot/pkg/logx"
)

func newEngine(t *testing.T) *engine.Service {
	t.Helper()
	eng := engine.New(engine.Config{Enabled: true, Workers: 1, QueueSize: 4}, logx.Nop(), nil)
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		eng.Stop(ctx)
	})
	return eng
}

func TestAddScheduleRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Timezone: "UTC"}, nil, logx.Nop(), nil)
	job := func(context.Context, time.Time) error { return nil }
	if err := s.AddSchedule("sweep", "61 * * * *", 0, job); err == nil {
		t.Fatalf("expected error for minute 61")
	}
	if err := s.AddSchedule("", "0 */30 * * * *", 0, job); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := s.AddSchedule("sweep", "0 */30 * * * *", 0, nil); err == nil {
		t.Fatalf("expected error for nil job")
	}
}

func TestAddScheduleUpsertsByName(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Timezone: "UTC"}, nil, logx.Nop(), nil)
	job := func(context.Context, time.Time) error { return nil }
	if err := s.AddSchedule("sweep", "0 */30 * * * *", time.Minute, job); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddSchedule("sweep", "0 0 * * * *", time.Minute, job); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	got := s.Schedules()
	if len(got) != 1 || got[0].Spec != "0 0 * * * *" {
		t.Fatalf("schedules=%+v", got)
	}
	if !s.Remove("sweep") || len(s.Schedules()) != 0 {
		t.Fatalf("remove failed")
	}
}

func TestStartComputesNextRun(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, Timezone: "UTC"}, nil, logx.Nop(), nil)
	if err := s.AddSchedule("sweep", "0 */30 * * * *", 0, func(context.Context, time.Time) error { return nil }); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	info := s.Schedules()[0]
	if info.Next.IsZero() {
		t.Fatalf("next run not computed")
	}
	if m := info.Next.Minute(); (m != 0 && m != 30) || info.Next.Second() != 0 {
		t.Fatalf("next=%s, want :00 or :30", info.Next)
	}
	if info.Next.Location() != time.UTC {
		t.Fatalf("location=%s", info.Next.Location())
	}
}

func TestTriggerEnqueuesJob(t *testing.T) {
	t.Parallel()

	eng := newEngine(t)
	s := New(Config{Enabled: true, Timezone: "UTC"}, eng, logx.Nop(), nil)
	fired := make(chan time.Time, 1)
	if err := s.AddSchedule("sweep", "@daily", 0, func(_ context.Context, at time.Time) error {
		fired <- at
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Trigger("sweep"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	select {
	case at := <-fired:
		if at.Location() != time.UTC {
			t.Fatalf("fired in %s", at.Location())
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("job did not run")
	}
	if err := s.Trigger("missing"); err == nil {
		t.Fatalf("expected error for unknown schedule")
	}
}
