// ABOUTME: Tests for the sleep regularity index.
// ABOUTME: Exercises identical schedules, disjoint schedules, and sparse windows.
package analytics

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
)

// recordWithSleep builds a daily record for the given date with one
// sleep session spanning [start, end).
func recordWithSleep(date, start, end time.Time) *models.DailyRecord {
	return &models.DailyRecord{
		ID:        uuid.New(),
		AthleteID: uuid.New(),
		Date:      models.Day(date),
		SleepSessions: []*models.SleepSession{
			{ID: uuid.New(), StartTime: start, EndTime: end},
		},
	}
}

func day(offset int) time.Time {
	base := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

func TestRegularityIndexIdenticalSchedule(t *testing.T) {
	// Five nights of 23:00 to 07:00, ending on each day in the window.
	var records []*models.DailyRecord
	for offset := -4; offset <= 0; offset++ {
		d := day(offset)
		records = append(records, recordWithSleep(d,
			d.Add(-1*time.Hour), // 23:00 the previous evening
			d.Add(7*time.Hour),
		))
	}

	got := RegularityIndex(records, day(0), DefaultLookback)
	if got != 100 {
		t.Errorf("identical schedule: got %v, want 100", got)
	}
}

func TestRegularityIndexDisjointScheduleClampsToZero(t *testing.T) {
	// Alternate between a night schedule and a mid-day block. The raw
	// index is negative and must clamp to zero.
	var records []*models.DailyRecord
	for offset := -4; offset <= 0; offset++ {
		d := day(offset)
		if offset%2 == 0 {
			records = append(records, recordWithSleep(d, d.Add(-1*time.Hour), d.Add(7*time.Hour)))
		} else {
			records = append(records, recordWithSleep(d, d.Add(11*time.Hour), d.Add(19*time.Hour)))
		}
	}

	got := RegularityIndex(records, day(0), DefaultLookback)
	if got != 0 {
		t.Errorf("disjoint schedule: got %v, want 0", got)
	}
}

func TestRegularityIndexInsufficientData(t *testing.T) {
	// Only three days with sessions in the window.
	var records []*models.DailyRecord
	for offset := -2; offset <= 0; offset++ {
		d := day(offset)
		records = append(records, recordWithSleep(d, d.Add(-1*time.Hour), d.Add(7*time.Hour)))
	}

	got := RegularityIndex(records, day(0), DefaultLookback)
	if got != 0 {
		t.Errorf("three days of data: got %v, want 0", got)
	}
}

func TestRegularityIndexMissingTargetDay(t *testing.T) {
	// The target day itself has no record, but the four prior days
	// still satisfy the minimum and pair up identically.
	var records []*models.DailyRecord
	for offset := -4; offset <= -1; offset++ {
		d := day(offset)
		records = append(records, recordWithSleep(d, d.Add(-1*time.Hour), d.Add(7*time.Hour)))
	}

	got := RegularityIndex(records, day(0), DefaultLookback)
	if got != 100 {
		t.Errorf("missing target day: got %v, want 100", got)
	}
}

func TestRegularityIndexLookbackCapped(t *testing.T) {
	// A huge lookback is capped at the window maximum rather than
	// scanning arbitrary history.
	var records []*models.DailyRecord
	for offset := -(MaxWindowDays + 5); offset <= 0; offset++ {
		d := day(offset)
		records = append(records, recordWithSleep(d, d.Add(-1*time.Hour), d.Add(7*time.Hour)))
	}

	got := RegularityIndex(records, day(0), 30)
	if got != 100 {
		t.Errorf("capped lookback: got %v, want 100", got)
	}
}
