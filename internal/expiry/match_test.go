package expiry

import (
	"testing"
	"time"

	"github.com/golang-sql/civil"
)

func mustDate(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestUrgentlyDue(t *testing.T) {
	t.Parallel()

	today := mustDate("2024-06-01")
	tests := []struct {
		exp  string
		lead int
		want bool
	}{
		{"2024-06-04", 3, true},
		{"2024-06-05", 3, false},
		{"2024-06-01", 3, true},
		{"2024-06-01", 0, true},
		{"2024-06-02", 0, false},
		{"2024-05-31", 3, false},
	}
	for _, tt := range tests {
		if got := UrgentlyDue(today, mustDate(tt.exp), tt.lead); got != tt.want {
			t.Fatalf("UrgentlyDue(%s, lead=%d)=%v want %v", tt.exp, tt.lead, got, tt.want)
		}
	}
}

func TestDueOn(t *testing.T) {
	t.Parallel()

	today := mustDate("2024-06-01")
	tests := []struct {
		exp  string
		lead int
		want bool
	}{
		{"2024-06-04", 3, true},
		{"2024-06-03", 3, false},
		{"2024-06-05", 3, false},
		{"2024-06-01", 0, true},
		{"2024-07-01", 30, true},
	}
	for _, tt := range tests {
		if got := DueOn(today, mustDate(tt.exp), tt.lead); got != tt.want {
			t.Fatalf("DueOn(%s, lead=%d)=%v want %v", tt.exp, tt.lead, got, tt.want)
		}
	}
}

func TestDaysUntilAcrossMonths(t *testing.T) {
	t.Parallel()

	if got := DaysUntil(mustDate("2024-02-27"), mustDate("2024-03-01")); got != 3 {
		t.Fatalf("leap-year DaysUntil=%d want 3", got)
	}
	if got := DaysUntil(mustDate("2024-06-01"), mustDate("2024-05-30")); got != -2 {
		t.Fatalf("past DaysUntil=%d want -2", got)
	}
	if got := TargetDate(mustDate("2024-12-30"), 3); got != mustDate("2025-01-02") {
		t.Fatalf("TargetDate=%s", got)
	}
}

func TestCalendarUsesOperatingZone(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*3600)
	cal := NewCalendar(tokyo)
	// 2024-06-01 23:30 UTC is 2024-06-02 08:30 in Tokyo.
	now := time.Date(2024, 6, 1, 23, 30, 45, 0, time.UTC)
	if got := cal.Today(now); got != mustDate("2024-06-02") {
		t.Fatalf("Today=%s want 2024-06-02", got)
	}
	if got := cal.Minute(now); got.Hour != 8 || got.Minute != 30 || got.Second != 0 {
		t.Fatalf("Minute=%v want 08:30:00", got)
	}
	if NewCalendar(nil).Location() != time.UTC {
		t.Fatalf("nil location should default to UTC")
	}
}
