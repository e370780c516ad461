// ABOUTME: Tests for the sleep quality score.
// ABOUTME: Covers undefined inputs, the consistency power curve, and age adaptation.
package analytics

import (
	"testing"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
)

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func TestQualityScorePerfectNight(t *testing.T) {
	in := QualityInputs{
		DurationMinutes: fptr(480),
		Efficiency:      fptr(95),
		Consistency:     fptr(100),
		Restorative:     fptr(45),
	}
	got := QualityScore(in, nil)
	if got == nil {
		t.Fatal("perfect night: got nil score")
	}
	if *got != 100 {
		t.Errorf("perfect night: got %v, want 100", *got)
	}
}

func TestQualityScoreUndefinedOnMissingInput(t *testing.T) {
	complete := QualityInputs{
		DurationMinutes: fptr(480),
		Efficiency:      fptr(95),
		Consistency:     fptr(100),
		Restorative:     fptr(45),
	}

	cases := []struct {
		name   string
		mutate func(*QualityInputs)
	}{
		{"no duration", func(in *QualityInputs) { in.DurationMinutes = nil }},
		{"no efficiency", func(in *QualityInputs) { in.Efficiency = nil }},
		{"no consistency", func(in *QualityInputs) { in.Consistency = nil }},
		{"no restorative", func(in *QualityInputs) { in.Restorative = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := complete
			tc.mutate(&in)
			if got := QualityScore(in, nil); got != nil {
				t.Errorf("got %v, want nil", *got)
			}
		})
	}
}

func TestQualityScoreConsistencyPowerCurve(t *testing.T) {
	// 80% consistency earns almost none of the 20 points: 0.8^10 is
	// about 0.107, rounding to 2 points.
	in := QualityInputs{
		DurationMinutes: fptr(480),
		Efficiency:      fptr(95),
		Consistency:     fptr(80),
		Restorative:     fptr(45),
	}
	got := QualityScore(in, nil)
	if got == nil {
		t.Fatal("got nil score")
	}
	if *got != 82 {
		t.Errorf("consistency 80: got %v, want 82", *got)
	}
}

func TestQualityScoreAgeAdaptsRestorative(t *testing.T) {
	in := QualityInputs{
		DurationMinutes: fptr(480),
		Efficiency:      fptr(95),
		Consistency:     fptr(100),
		Restorative:     fptr(30),
	}

	// Fallback thresholds give 30% exactly half the restorative points.
	noAge := QualityScore(in, nil)
	if noAge == nil {
		t.Fatal("got nil score without age")
	}
	if *noAge != 90 {
		t.Errorf("no age: got %v, want 90", *noAge)
	}

	// At 65 the optimal target drops to 37% with the zero point at
	// 18.5%, so 30% earns more credit than the fallback gives.
	age := 65
	older := QualityScore(in, &age)
	if older == nil {
		t.Fatal("got nil score with age")
	}
	if *older <= *noAge {
		t.Errorf("age 65 should score higher: got %v vs %v", *older, *noAge)
	}

	// At 100 the optimal floor of 30% kicks in and 30% restorative is
	// a full-credit night.
	veryOld := 100
	floored := QualityScore(in, &veryOld)
	if floored == nil {
		t.Fatal("got nil score with age 100")
	}
	if *floored != 100 {
		t.Errorf("age 100 at floor: got %v, want 100", *floored)
	}
}

func TestInputsForSessionDerivesFromFacets(t *testing.T) {
	s := &models.SleepSession{
		ID: uuid.New(),
		Perf: &models.PerfMetrics{
			ID:         uuid.New(),
			Efficiency: fptr(92),
		},
		Stages: &models.StageMetrics{
			ID:           uuid.New(),
			DeepSeconds:  iptr(5400),  // 90m
			RemSeconds:   iptr(7200),  // 120m
			LightSeconds: iptr(14400), // 240m
			AwakeSeconds: iptr(1800),
		},
	}
	in := InputsForSession(s, fptr(95))

	if in.DurationMinutes == nil || *in.DurationMinutes != 450 {
		t.Errorf("duration: got %v, want 450", in.DurationMinutes)
	}
	if in.Efficiency == nil || *in.Efficiency != 92 {
		t.Errorf("efficiency: got %v, want 92", in.Efficiency)
	}
	if in.Consistency == nil || *in.Consistency != 95 {
		t.Errorf("consistency: got %v, want 95", in.Consistency)
	}
	// (5400+7200)/27000 = 46.66...%
	if in.Restorative == nil || *in.Restorative < 46.6 || *in.Restorative > 46.7 {
		t.Errorf("restorative: got %v, want ~46.67", in.Restorative)
	}
}

func TestInputsForSessionMissingStages(t *testing.T) {
	s := &models.SleepSession{
		ID:   uuid.New(),
		Perf: &models.PerfMetrics{ID: uuid.New(), Efficiency: fptr(92)},
	}
	in := InputsForSession(s, fptr(95))
	if in.DurationMinutes != nil || in.Restorative != nil {
		t.Errorf("missing stages should leave duration and restorative nil: %+v", in)
	}
	if QualityScore(in, nil) != nil {
		t.Error("score should be undefined without stage data")
	}
}
