// ABOUTME: Graph reconciler: idempotent batch upsert of daily record graphs.
// ABOUTME: Pure natural-key diff builds an explicit plan; the apply step persists it atomically.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
	"github.com/teamfit/wearsync/internal/storage"
)

// Reconciler merges incoming daily record graphs against persisted
// state, preserving primary-key identity across repeated syncs of
// overlapping date ranges.
type Reconciler struct {
	repo storage.Repository
	now  func() time.Time
}

// NewReconciler creates a reconciler backed by the given repository.
func NewReconciler(repo storage.Repository) *Reconciler {
	return &Reconciler{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// Plan is the explicit outcome of diffing incoming records against
// persisted ones: the final merged record set plus operation counts.
type Plan struct {
	Records  []*models.DailyRecord
	Inserted int
	Updated  int
}

// BatchUpsert reconciles the incoming records for one athlete against
// storage and persists the merged set in a single transaction.
// Re-submitting the same or overlapping range never creates duplicate
// records or sessions for the same natural key, and never changes the
// identifier of a previously persisted entity.
func (r *Reconciler) BatchUpsert(athleteID uuid.UUID, incoming []*models.DailyRecord) (*Plan, error) {
	if len(incoming) == 0 {
		return &Plan{}, nil
	}

	dates := make([]time.Time, 0, len(incoming))
	for _, rec := range incoming {
		dates = append(dates, rec.Date)
	}
	existing, err := r.repo.LoadDailyRecords(athleteID, dates)
	if err != nil {
		return nil, fmt.Errorf("load existing records: %w", err)
	}
	byDate := make(map[string]*models.DailyRecord, len(existing))
	for _, rec := range existing {
		byDate[rec.DateKey()] = rec
	}

	plan := buildPlan(athleteID, byDate, incoming, r.now())
	if err := r.repo.SaveDailyRecords(plan.Records); err != nil {
		return nil, fmt.Errorf("save records: %w", err)
	}
	return plan, nil
}

// buildPlan is a pure function over immutable inputs: it deep-copies
// the incoming records, resolves identifiers against the existing set
// by natural key, and returns the merged set ready to persist. Neither
// argument is mutated.
func buildPlan(athleteID uuid.UUID, existing map[string]*models.DailyRecord, incoming []*models.DailyRecord, now time.Time) *Plan {
	plan := &Plan{}
	seen := make(map[string]int) // date key -> index in plan.Records

	for _, in := range incoming {
		merged := cloneRecord(in)
		merged.AthleteID = athleteID
		merged.Date = models.Day(merged.Date)
		ensureRecordIDs(merged)

		if prev := existing[merged.DateKey()]; prev != nil {
			mergeRecord(merged, prev, now)
			plan.Updated++
		} else {
			merged.CreatedAt = now
			merged.UpdatedAt = now
			plan.Inserted++
		}

		// last-seen-wins for duplicate dates within one batch
		if idx, dup := seen[merged.DateKey()]; dup {
			if prev := existing[merged.DateKey()]; prev != nil {
				plan.Updated--
			} else {
				plan.Inserted--
			}
			plan.Records[idx] = merged
			continue
		}
		seen[merged.DateKey()] = len(plan.Records)
		plan.Records = append(plan.Records, merged)
	}
	return plan
}

// mergeRecord resolves the merged record's identifiers against the
// previously persisted record.
func mergeRecord(merged, prev *models.DailyRecord, now time.Time) {
	merged.ID = prev.ID
	merged.CreatedAt = prev.CreatedAt
	merged.UpdatedAt = now

	// Optional 1:1 facets: reuse the existing child's identity when
	// both sides have a value; keep the existing child untouched when
	// the new sync is silently missing that facet.
	if merged.Metrics != nil && prev.Metrics != nil {
		merged.Metrics.ID = prev.Metrics.ID
	} else if merged.Metrics == nil && prev.Metrics != nil {
		merged.Metrics = prev.Metrics
	}
	if merged.Activity != nil && prev.Activity != nil {
		merged.Activity.ID = prev.Activity.ID
	} else if merged.Activity == nil && prev.Activity != nil {
		merged.Activity = prev.Activity
	}
	if merged.Stress != nil && prev.Stress != nil {
		merged.Stress.ID = prev.Stress.ID
	} else if merged.Stress == nil && prev.Stress != nil {
		merged.Stress = prev.Stress
	}

	mergeSleepSessions(merged, prev)
	mergeActivitySessions(merged, prev)
}

func mergeSleepSessions(merged, prev *models.DailyRecord) {
	// An empty incoming list keeps the existing sessions entirely
	// rather than deleting them.
	if len(merged.SleepSessions) == 0 {
		merged.SleepSessions = prev.SleepSessions
		return
	}
	byStart := make(map[int64]*models.SleepSession, len(prev.SleepSessions))
	for _, s := range prev.SleepSessions {
		byStart[s.StartTime.UTC().Unix()] = s
	}
	for _, s := range merged.SleepSessions {
		match := byStart[s.StartTime.UTC().Unix()]
		if match == nil {
			continue
		}
		s.ID = match.ID
		if s.Perf != nil && match.Perf != nil {
			s.Perf.ID = match.Perf.ID
		} else if s.Perf == nil && match.Perf != nil {
			s.Perf = match.Perf
		}
		if s.Hr != nil && match.Hr != nil {
			s.Hr.ID = match.Hr.ID
		} else if s.Hr == nil && match.Hr != nil {
			s.Hr = match.Hr
		}
		if s.Stages != nil && match.Stages != nil {
			s.Stages.ID = match.Stages.ID
		} else if s.Stages == nil && match.Stages != nil {
			s.Stages = match.Stages
		}
		if s.Respiration != nil && match.Respiration != nil {
			s.Respiration.ID = match.Respiration.ID
		} else if s.Respiration == nil && match.Respiration != nil {
			s.Respiration = match.Respiration
		}
	}
}

func mergeActivitySessions(merged, prev *models.DailyRecord) {
	if len(merged.ActivitySessions) == 0 {
		merged.ActivitySessions = prev.ActivitySessions
		return
	}
	byStart := make(map[int64]*models.ActivitySession, len(prev.ActivitySessions))
	for _, s := range prev.ActivitySessions {
		byStart[s.StartTime.UTC().Unix()] = s
	}
	for _, s := range merged.ActivitySessions {
		match := byStart[s.StartTime.UTC().Unix()]
		if match == nil {
			continue
		}
		s.ID = match.ID
		if s.Metrics != nil && match.Metrics != nil {
			s.Metrics.ID = match.Metrics.ID
			if s.Metrics.Movement != nil && match.Metrics.Movement != nil {
				s.Metrics.Movement.ID = match.Metrics.Movement.ID
			} else if s.Metrics.Movement == nil && match.Metrics.Movement != nil {
				s.Metrics.Movement = match.Metrics.Movement
			}
		} else if s.Metrics == nil && match.Metrics != nil {
			s.Metrics = match.Metrics
		}
	}
}

// ensureRecordIDs synthesizes identifiers for any entity the caller
// left without one.
func ensureRecordIDs(r *models.DailyRecord) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Metrics != nil && r.Metrics.ID == uuid.Nil {
		r.Metrics.ID = uuid.New()
	}
	if r.Activity != nil && r.Activity.ID == uuid.Nil {
		r.Activity.ID = uuid.New()
	}
	if r.Stress != nil && r.Stress.ID == uuid.Nil {
		r.Stress.ID = uuid.New()
	}
	for _, s := range r.SleepSessions {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.Perf != nil && s.Perf.ID == uuid.Nil {
			s.Perf.ID = uuid.New()
		}
		if s.Hr != nil && s.Hr.ID == uuid.Nil {
			s.Hr.ID = uuid.New()
		}
		if s.Stages != nil && s.Stages.ID == uuid.Nil {
			s.Stages.ID = uuid.New()
		}
		if s.Respiration != nil && s.Respiration.ID == uuid.Nil {
			s.Respiration.ID = uuid.New()
		}
	}
	for _, s := range r.ActivitySessions {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.Metrics != nil {
			if s.Metrics.ID == uuid.Nil {
				s.Metrics.ID = uuid.New()
			}
			if s.Metrics.Movement != nil && s.Metrics.Movement.ID == uuid.Nil {
				s.Metrics.Movement.ID = uuid.New()
			}
		}
	}
}

// cloneRecord deep-copies a record graph so the diff never aliases the
// caller's objects.
func cloneRecord(r *models.DailyRecord) *models.DailyRecord {
	out := *r
	if r.Metrics != nil {
		m := *r.Metrics
		out.Metrics = &m
	}
	if r.Activity != nil {
		a := *r.Activity
		out.Activity = &a
	}
	if r.Stress != nil {
		s := *r.Stress
		out.Stress = &s
	}
	out.SleepSessions = make([]*models.SleepSession, len(r.SleepSessions))
	for i, s := range r.SleepSessions {
		c := *s
		if s.Perf != nil {
			p := *s.Perf
			c.Perf = &p
		}
		if s.Hr != nil {
			h := *s.Hr
			c.Hr = &h
		}
		if s.Stages != nil {
			st := *s.Stages
			c.Stages = &st
		}
		if s.Respiration != nil {
			rsp := *s.Respiration
			c.Respiration = &rsp
		}
		out.SleepSessions[i] = &c
	}
	out.ActivitySessions = make([]*models.ActivitySession, len(r.ActivitySessions))
	for i, s := range r.ActivitySessions {
		c := *s
		if s.Metrics != nil {
			m := *s.Metrics
			if s.Metrics.Movement != nil {
				mv := *s.Metrics.Movement
				m.Movement = &mv
			}
			c.Metrics = &m
		}
		out.ActivitySessions[i] = &c
	}
	return &out
}
