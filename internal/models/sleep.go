// ABOUTME: SleepSession model with nested per-session metric facets.
// ABOUTME: Consistency and Performance are written later by the analytics recompute.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SleepSession is one contiguous reported sleep interval (nap or main
// sleep). Natural key within a record set: start timestamp.
type SleepSession struct {
	ID            uuid.UUID
	DailyRecordID uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	Nap           bool

	Perf        *PerfMetrics
	Hr          *HrMetrics
	Stages      *StageMetrics
	Respiration *RespirationData

	// Derived fields, intentionally left unset by the transform step
	// and filled in after persistence by the analytics recompute.
	Consistency *float64
	Performance *float64
}

// PerfMetrics holds provider-reported sleep performance values.
type PerfMetrics struct {
	ID             uuid.UUID
	Efficiency     *float64 // percent of time in bed spent asleep
	LatencySeconds *int
}

// HrMetrics holds heart-rate values measured during the session.
type HrMetrics struct {
	ID           uuid.UUID
	AvgHeartRate *int
	MinHeartRate *int
	AvgHRV       *float64
}

// StageMetrics holds seconds spent in each sleep stage.
type StageMetrics struct {
	ID           uuid.UUID
	DeepSeconds  *int
	RemSeconds   *int
	LightSeconds *int
	AwakeSeconds *int
}

// AsleepSeconds returns total seconds asleep (deep + rem + light),
// or nil when any stage value is missing.
func (s *StageMetrics) AsleepSeconds() *int {
	if s == nil || s.DeepSeconds == nil || s.RemSeconds == nil || s.LightSeconds == nil {
		return nil
	}
	total := *s.DeepSeconds + *s.RemSeconds + *s.LightSeconds
	return &total
}

// RespirationData holds breaths-per-minute values for the session.
type RespirationData struct {
	ID      uuid.UUID
	AvgRate *float64
	MinRate *float64
	MaxRate *float64
}
