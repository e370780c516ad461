// ABOUTME: Transforms raw provider items into the daily record entity graph.
// ABOUTME: Buckets sessions onto calendar days, including the late-night activity heuristic.
package pipeline

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
	"github.com/teamfit/wearsync/internal/provider"
)

// lateActivityCutoff and preSleepWindow drive the bucketing heuristic:
// an activity ending between midnight and the cutoff, with a sleep
// session starting within the window after it, belongs to the previous
// day's wakeful activity.
const (
	lateActivityCutoff = 6 * time.Hour
	preSleepWindow     = 8 * time.Hour
)

// BuildRecords transforms one athlete's raw category items into daily
// records keyed by calendar date, with fresh identifiers on every
// entity. Duplicate daily items for the same date resolve
// last-seen-wins. The result is sorted by date.
func BuildRecords(athleteID uuid.UUID, daily []provider.DailyItem, sleep []provider.SleepItem, activity []provider.ActivityItem) []*models.DailyRecord {
	byDate := make(map[string]*models.DailyRecord)

	getRecord := func(day time.Time) *models.DailyRecord {
		key := day.Format(models.DateKey)
		if r, ok := byDate[key]; ok {
			return r
		}
		r := &models.DailyRecord{
			ID:        uuid.New(),
			AthleteID: athleteID,
			Date:      day,
		}
		byDate[key] = r
		return r
	}

	for _, item := range daily {
		day, err := time.ParseInLocation(models.DateKey, item.CalendarDate, time.UTC)
		if err != nil {
			continue
		}
		r := getRecord(day)
		// last-seen-wins for duplicate dates
		r.Metrics = &models.DailyMetrics{
			ID:               uuid.New(),
			RestingHeartRate: item.RestingHeartRate,
			AvgHeartRate:     item.AvgHeartRate,
			MaxHeartRate:     item.MaxHeartRate,
			HRV:              item.HRV,
			SpO2:             item.SpO2,
		}
		if item.Steps != nil || item.DistanceMeters != nil || item.ActiveCalories != nil {
			r.Activity = &models.DailyActivity{
				ID:             uuid.New(),
				Steps:          item.Steps,
				DistanceMeters: item.DistanceMeters,
				ActiveCalories: item.ActiveCalories,
			}
		}
		if item.StressAvg != nil || item.StressMax != nil || item.RestMinutes != nil {
			r.Stress = &models.StressData{
				ID:          uuid.New(),
				AvgLevel:    item.StressAvg,
				MaxLevel:    item.StressMax,
				RestMinutes: item.RestMinutes,
			}
		}
	}

	for _, item := range sleep {
		r := getRecord(models.Day(item.EndTime))
		r.SleepSessions = append(r.SleepSessions, transformSleep(item))
	}

	for _, item := range activity {
		r := getRecord(activityDay(item, sleep))
		r.ActivitySessions = append(r.ActivitySessions, transformActivity(item))
	}

	records := make([]*models.DailyRecord, 0, len(byDate))
	for _, r := range byDate {
		sortSessions(r)
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date)
	})
	return records
}

// activityDay buckets an activity session onto a calendar date. The
// end-time's date wins unless the session ends between 00:00 and 06:00
// and a later sleep session starts within 8 hours of that end, in
// which case the activity is the tail of the previous day.
func activityDay(item provider.ActivityItem, sleep []provider.SleepItem) time.Time {
	end := item.EndTime.UTC()
	day := models.Day(end)
	if end.Sub(day) >= lateActivityCutoff {
		return day
	}
	for _, s := range sleep {
		start := s.StartTime.UTC()
		if start.Before(end) {
			continue
		}
		if start.Sub(end) <= preSleepWindow {
			return day.AddDate(0, 0, -1)
		}
	}
	return day
}

func transformSleep(item provider.SleepItem) *models.SleepSession {
	s := &models.SleepSession{
		ID:        uuid.New(),
		StartTime: item.StartTime.UTC(),
		EndTime:   item.EndTime.UTC(),
		Nap:       item.Nap,
	}
	if item.Efficiency != nil || item.LatencySeconds != nil {
		s.Perf = &models.PerfMetrics{
			ID:             uuid.New(),
			Efficiency:     item.Efficiency,
			LatencySeconds: item.LatencySeconds,
		}
	}
	if item.AvgHeartRate != nil || item.MinHeartRate != nil || item.AvgHRV != nil {
		s.Hr = &models.HrMetrics{
			ID:           uuid.New(),
			AvgHeartRate: item.AvgHeartRate,
			MinHeartRate: item.MinHeartRate,
			AvgHRV:       item.AvgHRV,
		}
	}
	if item.DeepSeconds != nil || item.RemSeconds != nil || item.LightSeconds != nil || item.AwakeSeconds != nil {
		s.Stages = &models.StageMetrics{
			ID:           uuid.New(),
			DeepSeconds:  item.DeepSeconds,
			RemSeconds:   item.RemSeconds,
			LightSeconds: item.LightSeconds,
			AwakeSeconds: item.AwakeSeconds,
		}
	}
	if item.AvgRespiration != nil || item.MinRespiration != nil || item.MaxRespiration != nil {
		s.Respiration = &models.RespirationData{
			ID:      uuid.New(),
			AvgRate: item.AvgRespiration,
			MinRate: item.MinRespiration,
			MaxRate: item.MaxRespiration,
		}
	}
	return s
}

func transformActivity(item provider.ActivityItem) *models.ActivitySession {
	a := &models.ActivitySession{
		ID:           uuid.New(),
		StartTime:    item.StartTime.UTC(),
		EndTime:      item.EndTime.UTC(),
		ActivityType: item.ActivityType,
	}
	metrics := &models.ActivityMetrics{
		ID:           uuid.New(),
		Calories:     item.Calories,
		AvgHeartRate: item.AvgHeartRate,
	}
	if item.DistanceMeters != nil || item.Steps != nil || item.AvgSpeedMps != nil {
		metrics.Movement = &models.ActivityMovementData{
			ID:             uuid.New(),
			DistanceMeters: item.DistanceMeters,
			Steps:          item.Steps,
			AvgSpeedMps:    item.AvgSpeedMps,
		}
	}
	if metrics.Calories != nil || metrics.AvgHeartRate != nil || metrics.Movement != nil {
		a.Metrics = metrics
	}
	return a
}

func sortSessions(r *models.DailyRecord) {
	sort.Slice(r.SleepSessions, func(i, j int) bool {
		return r.SleepSessions[i].StartTime.Before(r.SleepSessions[j].StartTime)
	})
	sort.Slice(r.ActivitySessions, func(i, j int) bool {
		return r.ActivitySessions[i].StartTime.Before(r.ActivitySessions[j].StartTime)
	})
}
