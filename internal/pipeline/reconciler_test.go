// ABOUTME: Tests for the graph reconciler against a real SQLite store.
// ABOUTME: Verifies idempotency, identity stability, and preservation of missing data.
package pipeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
)

func TestBatchUpsertInsertThenUpdateKeepsIdentity(t *testing.T) {
	repo := newTestRepo(t)
	athlete := createTestAthlete(t, repo)
	rec := NewReconciler(repo)
	date := testDay(0)

	plan, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{fullNight(athlete.ID, date)})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if plan.Inserted != 1 || plan.Updated != 0 {
		t.Errorf("first upsert counts: inserted=%d updated=%d", plan.Inserted, plan.Updated)
	}

	saved, err := repo.LoadDailyRecords(athlete.ID, []time.Time{date})
	if err != nil {
		t.Fatalf("load after insert: %v", err)
	}
	if len(saved) != 1 || len(saved[0].SleepSessions) != 1 {
		t.Fatalf("unexpected graph after insert: %+v", saved)
	}
	recordID := saved[0].ID
	sessionID := saved[0].SleepSessions[0].ID
	perfID := saved[0].SleepSessions[0].Perf.ID

	// A fresh transform of the same provider data carries brand-new
	// UUIDs but the same natural keys.
	plan, err = rec.BatchUpsert(athlete.ID, []*models.DailyRecord{fullNight(athlete.ID, date)})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if plan.Inserted != 0 || plan.Updated != 1 {
		t.Errorf("second upsert counts: inserted=%d updated=%d", plan.Inserted, plan.Updated)
	}

	saved, err = repo.LoadDailyRecords(athlete.ID, []time.Time{date})
	if err != nil {
		t.Fatalf("load after update: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("got %d records, want 1 (no duplicate)", len(saved))
	}
	if saved[0].ID != recordID {
		t.Errorf("record ID changed: %s -> %s", recordID, saved[0].ID)
	}
	if len(saved[0].SleepSessions) != 1 {
		t.Fatalf("got %d sleep sessions, want 1 (no duplicate)", len(saved[0].SleepSessions))
	}
	if saved[0].SleepSessions[0].ID != sessionID {
		t.Errorf("session ID changed: %s -> %s", sessionID, saved[0].SleepSessions[0].ID)
	}
	if saved[0].SleepSessions[0].Perf.ID != perfID {
		t.Errorf("perf facet ID changed: %s -> %s", perfID, saved[0].SleepSessions[0].Perf.ID)
	}
}

func TestBatchUpsertEmptySleepListKeepsExistingSessions(t *testing.T) {
	repo := newTestRepo(t)
	athlete := createTestAthlete(t, repo)
	rec := NewReconciler(repo)
	date := testDay(0)

	if _, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{fullNight(athlete.ID, date)}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	// A later sync delivers only daily metrics for the same date.
	rhr := 50
	incoming := &models.DailyRecord{
		ID:        uuid.New(),
		AthleteID: athlete.ID,
		Date:      date,
		Metrics:   &models.DailyMetrics{ID: uuid.New(), RestingHeartRate: &rhr},
	}
	if _, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{incoming}); err != nil {
		t.Fatalf("metrics-only upsert: %v", err)
	}

	saved, err := repo.LoadDailyRecords(athlete.ID, []time.Time{date})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(saved[0].SleepSessions) != 1 {
		t.Errorf("sleep sessions lost: got %d, want 1", len(saved[0].SleepSessions))
	}
	if saved[0].Metrics == nil || *saved[0].Metrics.RestingHeartRate != rhr {
		t.Error("new metrics facet missing after merge")
	}
}

func TestBatchUpsertMissingFacetKeepsExisting(t *testing.T) {
	repo := newTestRepo(t)
	athlete := createTestAthlete(t, repo)
	rec := NewReconciler(repo)
	date := testDay(0)

	rhr := 52
	seed := fullNight(athlete.ID, date)
	seed.Metrics = &models.DailyMetrics{ID: uuid.New(), RestingHeartRate: &rhr}
	if _, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{seed}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	// Incoming record for the date has no metrics facet at all.
	incoming := fullNight(athlete.ID, date)
	if _, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{incoming}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	saved, err := repo.LoadDailyRecords(athlete.ID, []time.Time{date})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if saved[0].Metrics == nil {
		t.Fatal("metrics facet lost when incoming record omitted it")
	}
	if *saved[0].Metrics.RestingHeartRate != rhr {
		t.Errorf("metrics value changed: got %d, want %d", *saved[0].Metrics.RestingHeartRate, rhr)
	}
}

func TestBatchUpsertDoesNotClobberScores(t *testing.T) {
	repo := newTestRepo(t)
	athlete := createTestAthlete(t, repo)
	rec := NewReconciler(repo)
	date := testDay(0)

	if _, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{fullNight(athlete.ID, date)}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
	saved, _ := repo.LoadDailyRecords(athlete.ID, []time.Time{date})
	sessionID := saved[0].SleepSessions[0].ID

	consistency, performance := 88.0, 76.0
	if err := repo.UpdateSleepScores(sessionID, &consistency, &performance); err != nil {
		t.Fatalf("update scores: %v", err)
	}

	// Re-syncing the same night must not wipe the derived columns.
	if _, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{fullNight(athlete.ID, date)}); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	saved, err := repo.LoadDailyRecords(athlete.ID, []time.Time{date})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	s := saved[0].SleepSessions[0]
	if s.Consistency == nil || *s.Consistency != consistency {
		t.Errorf("consistency clobbered: got %v", s.Consistency)
	}
	if s.Performance == nil || *s.Performance != performance {
		t.Errorf("performance clobbered: got %v", s.Performance)
	}
}

func TestBatchUpsertNewSessionJoinsExistingDay(t *testing.T) {
	repo := newTestRepo(t)
	athlete := createTestAthlete(t, repo)
	rec := NewReconciler(repo)
	date := testDay(0)

	if _, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{fullNight(athlete.ID, date)}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	// The next sync sees the night plus an afternoon nap.
	incoming := fullNight(athlete.ID, date)
	incoming.SleepSessions = append(incoming.SleepSessions, &models.SleepSession{
		ID:        uuid.New(),
		StartTime: date.Add(14 * time.Hour),
		EndTime:   date.Add(15 * time.Hour),
		Nap:       true,
	})
	if _, err := rec.BatchUpsert(athlete.ID, []*models.DailyRecord{incoming}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	saved, err := repo.LoadDailyRecords(athlete.ID, []time.Time{date})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(saved[0].SleepSessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(saved[0].SleepSessions))
	}
}
