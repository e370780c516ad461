// ABOUTME: ActivitySession model with its nested metrics chain.
// ABOUTME: ActivitySession -> ActivityMetrics -> ActivityMovementData (1:1 each).
package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivitySession is one recorded workout or activity interval.
// Natural key within a record set: start timestamp.
type ActivitySession struct {
	ID            uuid.UUID
	DailyRecordID uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	ActivityType  string

	Metrics *ActivityMetrics
}

// ActivityMetrics holds per-session effort values.
type ActivityMetrics struct {
	ID           uuid.UUID
	Calories     *int
	AvgHeartRate *int

	Movement *ActivityMovementData
}

// ActivityMovementData holds per-session movement values.
type ActivityMovementData struct {
	ID             uuid.UUID
	DistanceMeters *float64
	Steps          *int
	AvgSpeedMps    *float64
}
