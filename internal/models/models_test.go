// ABOUTME: Tests for core model behavior.
// ABOUTME: Age calculation, day truncation, stage sums, and backfill progress.
package models

import (
	"testing"
	"time"
)

func TestAgeAt(t *testing.T) {
	a := NewAthlete("Test")
	a.WithDateOfBirth(time.Date(1990, 7, 15, 0, 0, 0, 0, time.UTC))

	cases := []struct {
		name string
		on   time.Time
		want int
	}{
		{"day before birthday", time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC), 34},
		{"on birthday", time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), 35},
		{"end of year", time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 35},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := a.AgeAt(tc.on)
			if got == nil || *got != tc.want {
				t.Errorf("AgeAt(%s): got %v, want %d", tc.on.Format(DateKey), got, tc.want)
			}
		})
	}

	noDOB := NewAthlete("Unknown")
	if noDOB.AgeAt(time.Now()) != nil {
		t.Error("age without date of birth should be nil")
	}
}

func TestDayTruncatesToMidnightUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	in := time.Date(2025, 6, 10, 2, 30, 0, 0, loc) // 2025-06-09 21:30 UTC
	got := Day(in)
	want := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day: got %v, want %v", got, want)
	}
}

func TestAsleepSeconds(t *testing.T) {
	deep, rem, light := 5400, 7200, 14400

	full := &StageMetrics{DeepSeconds: &deep, RemSeconds: &rem, LightSeconds: &light}
	if got := full.AsleepSeconds(); got == nil || *got != 27000 {
		t.Errorf("full stages: got %v, want 27000", got)
	}

	partial := &StageMetrics{DeepSeconds: &deep}
	if partial.AsleepSeconds() != nil {
		t.Error("missing stage fields should yield nil")
	}

	var absent *StageMetrics
	if absent.AsleepSeconds() != nil {
		t.Error("nil receiver should yield nil")
	}
}

func TestCategoryProgressDone(t *testing.T) {
	p := CategoryProgress{}
	if p.Done() {
		t.Error("unannounced category should not be done")
	}

	zero := 0
	p.Expected = &zero
	if !p.Done() {
		t.Error("zero expected chunks should be done immediately")
	}

	three := 3
	p.Expected = &three
	p.Received = 2
	if p.Done() {
		t.Error("2/3 chunks should not be done")
	}
	p.Received = 3
	if !p.Done() {
		t.Error("3/3 chunks should be done")
	}
}

func TestHistoricalSyncSessionAllDone(t *testing.T) {
	s := NewHistoricalSyncSession(NewAthlete("Test").ID, time.Now(), time.Now())
	if s.AllDone() {
		t.Error("fresh session should not be done")
	}
	zero := 0
	for _, c := range Categories {
		s.Progress[c].Expected = &zero
	}
	if !s.AllDone() {
		t.Error("all categories at 0/0 should be done")
	}
}

func TestSyncSessionIDsSortByCreation(t *testing.T) {
	a := NewAthlete("Test")
	first := NewHistoricalSyncSession(a.ID, time.Now(), time.Now())
	time.Sleep(2 * time.Millisecond)
	second := NewHistoricalSyncSession(a.ID, time.Now(), time.Now())
	if !(first.ID < second.ID) {
		t.Errorf("ULIDs out of order: %s >= %s", first.ID, second.ID)
	}
}
