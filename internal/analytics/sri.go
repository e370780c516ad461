// ABOUTME: Sleep Regularity Index over a trailing window of daily records.
// ABOUTME: Compares same-clock-minute sleep state across consecutive days.
package analytics

import (
	"time"

	"github.com/teamfit/wearsync/internal/models"
)

const (
	// DefaultLookback is the number of days before the target date
	// included in the comparison window.
	DefaultLookback = 4

	// MaxWindowDays caps the window size.
	MaxWindowDays = 7

	// MinDaysWithData is the number of days with a resolvable sleep
	// session required before an index is computed.
	MinDaysWithData = 4

	minutesPerDay = 24 * 60
)

type minuteState uint8

const (
	stateUnknown minuteState = iota
	stateAwake
	stateAsleep
)

// RegularityIndex computes the Sleep Regularity Index (0-100) for the
// target date using a trailing window of up to MaxWindowDays days.
// Days without a resolvable primary sleep session contribute nothing;
// with fewer than MinDaysWithData resolvable days the result is 0.
func RegularityIndex(records []*models.DailyRecord, target time.Time, lookback int) float64 {
	if lookback < 0 {
		lookback = DefaultLookback
	}
	if lookback > MaxWindowDays-1 {
		lookback = MaxWindowDays - 1
	}
	target = models.Day(target)

	byDate := make(map[string]*models.DailyRecord, len(records))
	for _, r := range records {
		byDate[r.DateKey()] = r
	}

	days := make([][minutesPerDay]minuteState, 0, lookback+1)
	resolvable := 0
	for offset := -lookback; offset <= 0; offset++ {
		day := target.AddDate(0, 0, offset)
		states := minuteStates(byDate[day.Format(models.DateKey)], day)
		if states[0] != stateUnknown {
			resolvable++
		}
		days = append(days, states)
	}
	if resolvable < MinDaysWithData {
		return 0
	}

	var matches, validPairs int
	for i := 0; i+1 < len(days); i++ {
		a, b := days[i], days[i+1]
		for m := 0; m < minutesPerDay; m++ {
			if a[m] == stateUnknown || b[m] == stateUnknown {
				continue
			}
			validPairs++
			if a[m] == b[m] {
				matches++
			}
		}
	}
	if validPairs == 0 {
		return 0
	}

	sri := -100 + 200*float64(matches)/float64(validPairs)
	return clamp(sri, 0, 100)
}

// minuteStates builds the 1440-entry asleep/awake array for one
// calendar day. Every minute is unknown when the day has no resolvable
// primary session.
func minuteStates(r *models.DailyRecord, day time.Time) [minutesPerDay]minuteState {
	var states [minutesPerDay]minuteState
	primary := PrimarySleepSession(r)
	if primary == nil {
		return states
	}
	for m := 0; m < minutesPerDay; m++ {
		at := day.Add(time.Duration(m) * time.Minute)
		if !at.Before(primary.StartTime) && at.Before(primary.EndTime) {
			states[m] = stateAsleep
		} else {
			states[m] = stateAwake
		}
	}
	return states
}

// PrimarySleepSession returns the day's scored sleep session: the
// first non-nap session, or the first session when all are naps.
func PrimarySleepSession(r *models.DailyRecord) *models.SleepSession {
	if r == nil || len(r.SleepSessions) == 0 {
		return nil
	}
	for _, s := range r.SleepSessions {
		if !s.Nap {
			return s
		}
	}
	return r.SleepSessions[0]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
