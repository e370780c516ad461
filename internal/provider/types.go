// ABOUTME: Raw item DTOs returned by the wearable aggregation API.
// ABOUTME: One item type per data category plus the three-outcome fetch result.
package provider

import "time"

// DailyItem is one day's summary as reported by the provider.
type DailyItem struct {
	CalendarDate     string   `json:"calendar_date"`
	RestingHeartRate *int     `json:"resting_heart_rate,omitempty"`
	AvgHeartRate     *int     `json:"avg_heart_rate,omitempty"`
	MaxHeartRate     *int     `json:"max_heart_rate,omitempty"`
	HRV              *float64 `json:"hrv_ms,omitempty"`
	SpO2             *float64 `json:"spo2_percentage,omitempty"`
	Steps            *int     `json:"steps,omitempty"`
	DistanceMeters   *float64 `json:"distance_meters,omitempty"`
	ActiveCalories   *int     `json:"active_calories,omitempty"`
	StressAvg        *int     `json:"stress_avg,omitempty"`
	StressMax        *int     `json:"stress_max,omitempty"`
	RestMinutes      *int     `json:"rest_minutes,omitempty"`
}

// SleepItem is one reported sleep interval.
type SleepItem struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Nap            bool      `json:"nap"`
	Efficiency     *float64  `json:"efficiency_percentage,omitempty"`
	LatencySeconds *int      `json:"latency_seconds,omitempty"`
	AvgHeartRate   *int      `json:"avg_heart_rate,omitempty"`
	MinHeartRate   *int      `json:"min_heart_rate,omitempty"`
	AvgHRV         *float64  `json:"avg_hrv_ms,omitempty"`
	DeepSeconds    *int      `json:"deep_sleep_seconds,omitempty"`
	RemSeconds     *int      `json:"rem_sleep_seconds,omitempty"`
	LightSeconds   *int      `json:"light_sleep_seconds,omitempty"`
	AwakeSeconds   *int      `json:"awake_seconds,omitempty"`
	AvgRespiration *float64  `json:"avg_respiration_rate,omitempty"`
	MinRespiration *float64  `json:"min_respiration_rate,omitempty"`
	MaxRespiration *float64  `json:"max_respiration_rate,omitempty"`
}

// ActivityItem is one reported workout or activity interval.
type ActivityItem struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ActivityType   string    `json:"activity_type"`
	Calories       *int      `json:"calories,omitempty"`
	AvgHeartRate   *int      `json:"avg_heart_rate,omitempty"`
	DistanceMeters *float64  `json:"distance_meters,omitempty"`
	Steps          *int      `json:"steps,omitempty"`
	AvgSpeedMps    *float64  `json:"avg_speed_mps,omitempty"`
}

// Deferral is the provider's acknowledgement that a request was too
// large to answer inline; data will arrive asynchronously via webhook
// chunks tagged with the reference token.
type Deferral struct {
	Reference string `json:"reference"`
}

// Result is the outcome of one category fetch: inline items or a
// deferral. Transport and API failures surface as errors instead.
type Result[T any] struct {
	Items    []T
	Deferred *Deferral
}
