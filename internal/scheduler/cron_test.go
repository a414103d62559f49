package scheduler

import (
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// --- Cron Tests ---

func TestCalculateNextDue_Cron(t *testing.T) {
	sched := &domain.Schedule{
		CronExpr: "0 * * * *", // каждый час
		Timezone: "UTC",
	}

	from := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_CronDaily(t *testing.T) {
	sched := &domain.Schedule{
		CronExpr: "30 9 * * *", // каждый день в 09:30
		Timezone: "UTC",
	}

	// После 09:30 — следующий день
	from := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_CronWithTimezone(t *testing.T) {
	sched := &domain.Schedule{
		CronExpr: "0 12 * * *", // полдень по Белграду
		Timezone: "Europe/Belgrade",
	}

	// 2026-08-25: CEST, UTC+2 — полдень по Белграду = 10:00 UTC
	from := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if next.Location() != time.UTC {
		t.Error("next due must be returned in UTC")
	}
}

func TestCalculateNextDue_Interval(t *testing.T) {
	sched := &domain.Schedule{
		IntervalSec: 90,
	}

	from := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := from.Add(90 * time.Second)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	sched := &domain.Schedule{
		CronExpr: "0 * * * *",
		Timezone: "Not/AZone",
	}

	from := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	next, err := CalculateNextDue(sched, from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestCalculateNextDue_NeitherCronNorInterval(t *testing.T) {
	sched := &domain.Schedule{}

	if _, err := CalculateNextDue(sched, time.Now()); err == nil {
		t.Fatal("expected error for schedule without cron or interval")
	}
}

func TestValidateCronExpr(t *testing.T) {
	valid := []string{"0 * * * *", "*/5 * * * *", "30 9 * * 1-5", "0 0 1 1 *"}
	for _, expr := range valid {
		if err := ValidateCronExpr(expr); err != nil {
			t.Errorf("expected %q to be valid: %v", expr, err)
		}
	}

	invalid := []string{"", "not a cron", "61 * * * *", "* * * *"}
	for _, expr := range invalid {
		if err := ValidateCronExpr(expr); err == nil {
			t.Errorf("expected %q to be invalid", expr)
		}
	}
}
