// ABOUTME: Sync orchestrator: routine syncs, historical backfills, and score recomputes.
// ABOUTME: Fans the three category fetches out concurrently; any failure aborts the whole sync.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teamfit/wearsync/internal/analytics"
	"github.com/teamfit/wearsync/internal/models"
	"github.com/teamfit/wearsync/internal/provider"
	"github.com/teamfit/wearsync/internal/rules"
	"github.com/teamfit/wearsync/internal/storage"
)

// DefaultSyncLookbackDays is the date range a routine sync covers.
const DefaultSyncLookbackDays = 7

// ProviderAPI is the slice of the provider client the orchestrator
// depends on.
type ProviderAPI interface {
	Daily(ctx context.Context, userID string, from, to time.Time) (*provider.Result[provider.DailyItem], error)
	Sleep(ctx context.Context, userID string, from, to time.Time) (*provider.Result[provider.SleepItem], error)
	Activity(ctx context.Context, userID string, from, to time.Time) (*provider.Result[provider.ActivityItem], error)
}

// Orchestrator drives the fetch, transform, reconcile and recompute
// stages for routine syncs and historical backfills.
type Orchestrator struct {
	repo       storage.Repository
	api        ProviderAPI
	reconciler *Reconciler
	evaluator  rules.Evaluator
	notifier   rules.Notifier
	sink       EventSink
	logger     *slog.Logger
	lookback   int
	now        func() time.Time
}

// NewOrchestrator wires the pipeline stages together. evaluator and
// notifier may be nil to disable post-sync rule evaluation.
func NewOrchestrator(repo storage.Repository, api ProviderAPI, sink EventSink, logger *slog.Logger, evaluator rules.Evaluator, notifier rules.Notifier) *Orchestrator {
	return &Orchestrator{
		repo:       repo,
		api:        api,
		reconciler: NewReconciler(repo),
		evaluator:  evaluator,
		notifier:   notifier,
		sink:       sink,
		logger:     logger,
		lookback:   DefaultSyncLookbackDays,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetLookback overrides the routine sync date range length in days.
func (o *Orchestrator) SetLookback(days int) {
	if days > 0 {
		o.lookback = days
	}
}

// SyncAthlete runs one routine sync for the athlete: the trailing
// lookback window is fetched, transformed, reconciled, and rescored.
// The sync is all-or-nothing: any fetch failure, or a deferral on the
// routine path, aborts it before anything is written.
func (o *Orchestrator) SyncAthlete(ctx context.Context, athleteID uuid.UUID) error {
	o.sink.SyncStarted(athleteID)
	err := o.syncAthlete(ctx, athleteID)
	o.sink.SyncCompleted(athleteID, err)
	return err
}

func (o *Orchestrator) syncAthlete(ctx context.Context, athleteID uuid.UUID) error {
	athlete, err := o.repo.GetAthlete(athleteID)
	if err != nil {
		return fmt.Errorf("resolve athlete: %w", err)
	}
	if athlete.ProviderUserID == nil {
		return fmt.Errorf("athlete %s has no provider user mapping", athleteID)
	}

	to := models.Day(o.now())
	from := to.AddDate(0, 0, -(o.lookback - 1))

	daily, sleep, activity, err := o.fetchAll(ctx, *athlete.ProviderUserID, from, to)
	if err != nil {
		return err
	}

	records := BuildRecords(athleteID, daily, sleep, activity)
	o.sink.TransformCompleted(athleteID, len(records))

	plan, err := o.reconciler.BatchUpsert(athleteID, records)
	if err != nil {
		o.sink.SaveFailed(athleteID, err)
		return err
	}
	o.sink.SaveCompleted(athleteID, len(plan.Records))

	if err := o.RecomputeScores(athlete, from, to); err != nil {
		return fmt.Errorf("recompute scores: %w", err)
	}
	o.evaluateRange(athlete, from, to)
	return nil
}

// fetchAll fans the three category fetches out concurrently. A
// deferral here is a misuse of the routine path (the lookback window
// is small) and is treated as an error.
func (o *Orchestrator) fetchAll(ctx context.Context, userID string, from, to time.Time) ([]provider.DailyItem, []provider.SleepItem, []provider.ActivityItem, error) {
	var (
		daily    []provider.DailyItem
		sleep    []provider.SleepItem
		activity []provider.ActivityItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := o.api.Daily(gctx, userID, from, to)
		if err != nil {
			return fmt.Errorf("fetch daily: %w", err)
		}
		if res.Deferred != nil {
			return fmt.Errorf("provider deferred daily fetch (reference %s); use a backfill for wide ranges", res.Deferred.Reference)
		}
		daily = res.Items
		return nil
	})
	g.Go(func() error {
		res, err := o.api.Sleep(gctx, userID, from, to)
		if err != nil {
			return fmt.Errorf("fetch sleep: %w", err)
		}
		if res.Deferred != nil {
			return fmt.Errorf("provider deferred sleep fetch (reference %s); use a backfill for wide ranges", res.Deferred.Reference)
		}
		sleep = res.Items
		return nil
	})
	g.Go(func() error {
		res, err := o.api.Activity(gctx, userID, from, to)
		if err != nil {
			return fmt.Errorf("fetch activity: %w", err)
		}
		if res.Deferred != nil {
			return fmt.Errorf("provider deferred activity fetch (reference %s); use a backfill for wide ranges", res.Deferred.Reference)
		}
		activity = res.Items
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return daily, sleep, activity, nil
}

// SyncAll runs a routine sync for every athlete sequentially. One
// athlete's failure is logged and does not stop the batch.
func (o *Orchestrator) SyncAll(ctx context.Context) error {
	athletes, err := o.repo.ListAthletes()
	if err != nil {
		return fmt.Errorf("list athletes: %w", err)
	}
	failures := 0
	for _, a := range athletes {
		if a.ProviderUserID == nil {
			o.logger.Info("skipping athlete without provider mapping", "athlete_id", a.ID)
			continue
		}
		if err := o.SyncAthlete(ctx, a.ID); err != nil {
			failures++
			o.logger.Error("athlete sync failed", "athlete_id", a.ID, "error", err)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d athlete syncs failed", failures, len(athletes))
	}
	return nil
}

// StartBackfill opens a historical sync session for the date range and
// issues the three category fetches. Categories the provider answers
// inline reconcile immediately and are marked delivered; deferred
// categories record their reference tokens and wait for webhook
// chunks. An athlete can have at most one open backfill at a time.
func (o *Orchestrator) StartBackfill(ctx context.Context, athleteID uuid.UUID, from, to time.Time) (*models.HistoricalSyncSession, error) {
	athlete, err := o.repo.GetAthlete(athleteID)
	if err != nil {
		return nil, fmt.Errorf("resolve athlete: %w", err)
	}
	if athlete.ProviderUserID == nil {
		return nil, fmt.Errorf("athlete %s has no provider user mapping", athleteID)
	}

	if existing, err := o.repo.ActiveSyncSession(athleteID); err == nil {
		return nil, fmt.Errorf("athlete already has an open backfill session %s", existing.ID)
	} else if !errors.Is(err, storage.ErrSyncSessionNotFound) {
		return nil, fmt.Errorf("check active session: %w", err)
	}

	session := models.NewHistoricalSyncSession(athleteID, from, to)
	if err := o.repo.CreateSyncSession(session); err != nil {
		return nil, fmt.Errorf("create backfill session: %w", err)
	}

	userID := *athlete.ProviderUserID
	var daily []provider.DailyItem
	var sleep []provider.SleepItem
	var activity []provider.ActivityItem

	settle := func(category models.Category, deferred *provider.Deferral) error {
		if deferred != nil {
			session.Progress[category].Reference = &deferred.Reference
			return o.repo.SetSyncReference(session.ID, category, deferred.Reference)
		}
		zero := 0
		session.Progress[category].Expected = &zero
		return o.repo.UpdateSyncProgress(session.ID, category, 0, &zero)
	}

	dailyRes, err := o.api.Daily(ctx, userID, session.StartDate, session.EndDate)
	if err != nil {
		return nil, fmt.Errorf("fetch daily: %w", err)
	}
	daily = dailyRes.Items
	if err := settle(models.CategoryDaily, dailyRes.Deferred); err != nil {
		return nil, err
	}

	sleepRes, err := o.api.Sleep(ctx, userID, session.StartDate, session.EndDate)
	if err != nil {
		return nil, fmt.Errorf("fetch sleep: %w", err)
	}
	sleep = sleepRes.Items
	if err := settle(models.CategorySleep, sleepRes.Deferred); err != nil {
		return nil, err
	}

	activityRes, err := o.api.Activity(ctx, userID, session.StartDate, session.EndDate)
	if err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}
	activity = activityRes.Items
	if err := settle(models.CategoryActivity, activityRes.Deferred); err != nil {
		return nil, err
	}

	if len(daily) > 0 || len(sleep) > 0 || len(activity) > 0 {
		records := BuildRecords(athleteID, daily, sleep, activity)
		o.sink.TransformCompleted(athleteID, len(records))
		plan, err := o.reconciler.BatchUpsert(athleteID, records)
		if err != nil {
			o.sink.SaveFailed(athleteID, err)
			return nil, err
		}
		o.sink.SaveCompleted(athleteID, len(plan.Records))
		if err := o.RecomputeScores(athlete, session.StartDate, session.EndDate); err != nil {
			return nil, fmt.Errorf("recompute scores: %w", err)
		}
	}

	if session.AllDone() {
		if err := o.repo.CompleteSyncSession(session.ID); err != nil {
			return nil, fmt.Errorf("complete backfill session: %w", err)
		}
		session.Completed = true
		o.logger.Info("backfill answered inline", "session_id", session.ID, "athlete_id", athleteID)
	}
	return session, nil
}

// CompleteBackfill consumes the merged chunk payloads of a finished
// aggregation: decode, transform, reconcile, rescore, and mark the
// session complete. It is the aggregator's completion handler.
func (o *Orchestrator) CompleteBackfill(ctx context.Context, session *models.HistoricalSyncSession, merged *MergedPayloads, partial bool) error {
	athlete, err := o.repo.GetAthlete(session.AthleteID)
	if err != nil {
		return fmt.Errorf("resolve athlete: %w", err)
	}

	daily, err := decodeItems[provider.DailyItem](merged.Daily)
	if err != nil {
		return fmt.Errorf("decode daily chunks: %w", err)
	}
	sleep, err := decodeItems[provider.SleepItem](merged.Sleep)
	if err != nil {
		return fmt.Errorf("decode sleep chunks: %w", err)
	}
	activity, err := decodeItems[provider.ActivityItem](merged.Activity)
	if err != nil {
		return fmt.Errorf("decode activity chunks: %w", err)
	}

	records := BuildRecords(session.AthleteID, daily, sleep, activity)
	o.sink.TransformCompleted(session.AthleteID, len(records))

	plan, err := o.reconciler.BatchUpsert(session.AthleteID, records)
	if err != nil {
		o.sink.SaveFailed(session.AthleteID, err)
		return err
	}
	o.sink.SaveCompleted(session.AthleteID, len(plan.Records))

	if err := o.RecomputeScores(athlete, session.StartDate, session.EndDate); err != nil {
		return fmt.Errorf("recompute scores: %w", err)
	}

	if err := o.repo.CompleteSyncSession(session.ID); err != nil {
		return fmt.Errorf("complete backfill session: %w", err)
	}
	if partial {
		o.logger.Warn("backfill completed with partial data",
			"session_id", session.ID, "athlete_id", session.AthleteID)
	}
	o.evaluateRange(athlete, session.StartDate, session.EndDate)
	return nil
}

func decodeItems[T any](raw []json.RawMessage) ([]T, error) {
	items := make([]T, 0, len(raw))
	for _, msg := range raw {
		var item T
		if err := json.Unmarshal(msg, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// RecomputeScores recalculates the two derived sleep scores for every
// date in [from, to]. The loaded range is widened backwards so the
// regularity window has its trailing days.
func (o *Orchestrator) RecomputeScores(athlete *models.Athlete, from, to time.Time) error {
	from = models.Day(from)
	to = models.Day(to)
	loadFrom := from.AddDate(0, 0, -(analytics.MaxWindowDays - 1))

	records, err := o.repo.LoadDailyRecordRange(athlete.ID, loadFrom, to)
	if err != nil {
		return fmt.Errorf("load record range: %w", err)
	}
	byDate := make(map[string]*models.DailyRecord, len(records))
	for _, r := range records {
		byDate[r.DateKey()] = r
	}

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		record := byDate[day.Format(models.DateKey)]
		primary := analytics.PrimarySleepSession(record)
		if primary == nil {
			continue
		}

		sri := analytics.RegularityIndex(records, day, analytics.DefaultLookback)
		inputs := analytics.InputsForSession(primary, &sri)
		age := athlete.AgeAt(day)
		score := analytics.QualityScore(inputs, age)

		// a nil score stores NULL: the night is unscored, not zero
		if err := o.repo.UpdateSleepScores(primary.ID, &sri, score); err != nil {
			return fmt.Errorf("update scores for %s: %w", day.Format(models.DateKey), err)
		}
		primary.Consistency = &sri
		primary.Performance = score
	}
	return nil
}

// evaluateRange runs the post-sync rules over the freshly scored
// records. Rule failures never fail the sync.
func (o *Orchestrator) evaluateRange(athlete *models.Athlete, from, to time.Time) {
	if o.evaluator == nil || o.notifier == nil {
		return
	}
	records, err := o.repo.LoadDailyRecordRange(athlete.ID, from, to)
	if err != nil {
		o.logger.Error("load records for rule evaluation", "error", err)
		return
	}
	findings := o.evaluator.Evaluate(athlete, records)
	if len(findings) == 0 {
		return
	}
	if err := o.notifier.Notify(findings); err != nil {
		o.logger.Error("notify findings", "error", err)
	}
}
