// ABOUTME: DailyRecord aggregate and its optional 1:1 facets.
// ABOUTME: One record per (athlete, calendar date); facets are nil when the provider omits them.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DateKey is the canonical string form of a record's calendar date,
// used as the natural key when matching incoming records against
// persisted ones.
const DateKey = "2006-01-02"

// DailyRecord is the per-athlete-per-date aggregate of all wearable
// data for one day. Natural key: (AthleteID, Date).
type DailyRecord struct {
	ID        uuid.UUID
	AthleteID uuid.UUID
	Date      time.Time // midnight UTC of the calendar date

	Metrics  *DailyMetrics
	Activity *DailyActivity
	Stress   *StressData

	SleepSessions    []*SleepSession
	ActivitySessions []*ActivitySession

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DateKey returns the record's natural-key date string.
func (r *DailyRecord) DateKey() string {
	return r.Date.UTC().Format(DateKey)
}

// DailyMetrics holds whole-day physiological summary values.
type DailyMetrics struct {
	ID               uuid.UUID
	RestingHeartRate *int
	AvgHeartRate     *int
	MaxHeartRate     *int
	HRV              *float64
	SpO2             *float64
}

// DailyActivity holds whole-day movement totals.
type DailyActivity struct {
	ID             uuid.UUID
	Steps          *int
	DistanceMeters *float64
	ActiveCalories *int
}

// StressData holds whole-day stress summary values.
type StressData struct {
	ID          uuid.UUID
	AvgLevel    *int
	MaxLevel    *int
	RestMinutes *int
}

// Day truncates a timestamp to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
