// ABOUTME: Age-adaptive sleep quality score (0-100) for one sleep session.
// ABOUTME: Four components: duration 35, efficiency 25, consistency 20, restorative 20.
package analytics

import (
	"math"

	"github.com/teamfit/wearsync/internal/models"
)

// QualityInputs are the four values required to score one night.
// A nil field makes the score undefined.
type QualityInputs struct {
	DurationMinutes *float64 // minutes asleep
	Efficiency      *float64 // percent
	Consistency     *float64 // percent, the regularity index
	Restorative     *float64 // percent, (deep+rem)/asleep
}

// InputsForSession derives quality inputs from a sleep session's
// persisted facets plus the consistency value just computed. Any
// missing facet yields a nil input.
func InputsForSession(s *models.SleepSession, consistency *float64) QualityInputs {
	in := QualityInputs{Consistency: consistency}
	if asleep := s.Stages.AsleepSeconds(); asleep != nil {
		minutes := float64(*asleep) / 60
		in.DurationMinutes = &minutes
		if *asleep > 0 {
			restorative := float64(*s.Stages.DeepSeconds+*s.Stages.RemSeconds) / float64(*asleep) * 100
			in.Restorative = &restorative
		}
	}
	if s.Perf != nil {
		in.Efficiency = s.Perf.Efficiency
	}
	return in
}

// QualityScore computes the 0-100 sleep quality score. The result is
// nil (undefined) when any input is absent; callers must not persist a
// score for that night. Age adapts the restorative component; a nil
// age falls back to fixed thresholds.
func QualityScore(in QualityInputs, age *int) *float64 {
	if in.DurationMinutes == nil || in.Efficiency == nil || in.Consistency == nil || in.Restorative == nil {
		return nil
	}

	duration := ramp(*in.DurationMinutes, 240, 480) * 35
	efficiency := ramp(*in.Efficiency, 75, 90) * 25

	// Steep power curve: near-zero credit below ~90% consistency,
	// punishing irregularity disproportionately.
	consistency := math.Round(clamp(math.Pow(*in.Consistency/100, 10), 0, 1) * 20)

	restorative := restorativePoints(*in.Restorative, age)

	total := math.Round(duration + efficiency + consistency + restorative)
	total = clamp(total, 0, 100)
	return &total
}

// restorativePoints scores the restorative percentage out of 20
// points. The optimal target declines 0.2 percentage points per year
// of age above 25, floored at 30%; the zero point is half the target
// but never below 15%.
func restorativePoints(pct float64, age *int) float64 {
	if age == nil {
		return ramp(pct, 20, 40) * 20
	}
	optimal := 45.0
	if *age > 25 {
		optimal = math.Max(30, 45-0.2*float64(*age-25))
	}
	zero := math.Max(15, 0.5*optimal)
	return ramp(pct, zero, optimal) * 20
}

// ramp maps v linearly from [lo, hi] onto [0, 1], clamped.
func ramp(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	return clamp((v-lo)/(hi-lo), 0, 1)
}
