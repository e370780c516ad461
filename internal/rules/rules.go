// ABOUTME: Post-sync rule evaluation over freshly reconciled daily records.
// ABOUTME: Findings go to a notifier; evaluation failures never fail a sync.
package rules

import (
	"log/slog"

	"github.com/teamfit/wearsync/internal/models"
)

// Finding is one rule match worth surfacing to a human.
type Finding struct {
	Rule      string
	AthleteID string
	Date      string
	Message   string
}

// Evaluator inspects an athlete's reconciled records and returns any
// findings. Evaluators must not mutate the records.
type Evaluator interface {
	Evaluate(athlete *models.Athlete, records []*models.DailyRecord) []Finding
}

// Notifier delivers findings somewhere a coach will see them.
type Notifier interface {
	Notify(findings []Finding) error
}

// LogNotifier writes findings to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(findings []Finding) error {
	for _, f := range findings {
		n.Logger.Warn("rule finding",
			"rule", f.Rule,
			"athlete_id", f.AthleteID,
			"date", f.Date,
			"message", f.Message,
		)
	}
	return nil
}

// thresholds for the built-in recovery rules
const (
	lowSleepPerformance = 60.0
	lowSleepMinutes     = 360
)

// RecoveryEvaluator flags nights that suggest an athlete is
// under-recovering: short sleep or a weak performance score.
type RecoveryEvaluator struct{}

func (RecoveryEvaluator) Evaluate(athlete *models.Athlete, records []*models.DailyRecord) []Finding {
	var findings []Finding
	for _, r := range records {
		for _, s := range r.SleepSessions {
			if s.Nap {
				continue
			}
			if s.Performance != nil && *s.Performance < lowSleepPerformance {
				findings = append(findings, Finding{
					Rule:      "low_sleep_performance",
					AthleteID: athlete.ID.String(),
					Date:      r.DateKey(),
					Message:   "sleep performance below threshold",
				})
			}
			if asleep := s.Stages.AsleepSeconds(); asleep != nil && *asleep < lowSleepMinutes*60 {
				findings = append(findings, Finding{
					Rule:      "short_sleep",
					AthleteID: athlete.ID.String(),
					Date:      r.DateKey(),
					Message:   "less than six hours asleep",
				})
			}
		}
	}
	return findings
}
