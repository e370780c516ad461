// ABOUTME: Tests for the chunk aggregator with real SQLite and Badger stores.
// ABOUTME: Covers completion ordering, out-of-order announcements, sweeps, and recovery.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/teamfit/wearsync/internal/models"
	"github.com/teamfit/wearsync/internal/storage"
)

type capturedCompletion struct {
	session *models.HistoricalSyncSession
	merged  *MergedPayloads
	partial bool
}

type completionRecorder struct {
	mu    sync.Mutex
	calls []capturedCompletion
}

func (c *completionRecorder) handle(ctx context.Context, session *models.HistoricalSyncSession, merged *MergedPayloads, partial bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, capturedCompletion{session: session, merged: merged, partial: partial})
	return nil
}

func (c *completionRecorder) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newTestAggregator(t *testing.T, repo *storage.DB) (*Aggregator, *ChunkStore, *completionRecorder) {
	t.Helper()
	chunks := newTestChunkStore(t)
	rec := &completionRecorder{}
	agg := NewAggregator(chunks, repo, testSink(), testLogger(), rec.handle)
	return agg, chunks, rec
}

func createTestSession(t *testing.T, repo *storage.DB) *models.HistoricalSyncSession {
	t.Helper()
	athlete := createTestAthlete(t, repo)
	session := models.NewHistoricalSyncSession(athlete.ID, testDay(-180), testDay(0))
	if err := repo.CreateSyncSession(session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func rawItems(n int) []json.RawMessage {
	items := make([]json.RawMessage, n)
	for i := range items {
		items[i] = json.RawMessage(`{"calendar_date":"2025-06-01"}`)
	}
	return items
}

func TestAggregatorCompletesWhenLastChunkArrives(t *testing.T) {
	repo := newTestRepo(t)
	agg, _, rec := newTestAggregator(t, repo)
	session := createTestSession(t, repo)
	ctx := context.Background()

	if err := agg.InitializeAggregation(ctx, session.ID, models.CategoryDaily, 2); err != nil {
		t.Fatalf("init daily: %v", err)
	}
	if err := agg.InitializeAggregation(ctx, session.ID, models.CategorySleep, 1); err != nil {
		t.Fatalf("init sleep: %v", err)
	}
	if err := agg.InitializeAggregation(ctx, session.ID, models.CategoryActivity, 1); err != nil {
		t.Fatalf("init activity: %v", err)
	}

	if err := agg.ProcessChunk(ctx, session.ID, models.CategoryDaily, 1, rawItems(3)); err != nil {
		t.Fatalf("daily chunk 1: %v", err)
	}
	if err := agg.ProcessChunk(ctx, session.ID, models.CategorySleep, 1, rawItems(2)); err != nil {
		t.Fatalf("sleep chunk: %v", err)
	}
	if err := agg.ProcessChunk(ctx, session.ID, models.CategoryActivity, 1, rawItems(1)); err != nil {
		t.Fatalf("activity chunk: %v", err)
	}
	if rec.count() != 0 {
		t.Fatal("completed before the final chunk arrived")
	}

	state := agg.State(session.ID)
	if state == nil {
		t.Fatal("session not tracked")
	}
	if p := state.Progress[models.CategoryDaily]; p.Received != 1 || p.Expected == nil || *p.Expected != 2 {
		t.Errorf("daily progress snapshot: %+v", p)
	}

	if err := agg.ProcessChunk(ctx, session.ID, models.CategoryDaily, 2, rawItems(3)); err != nil {
		t.Fatalf("daily chunk 2: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("got %d completions, want 1", rec.count())
	}

	call := rec.calls[0]
	if call.partial {
		t.Error("completion marked partial")
	}
	if len(call.merged.Daily) != 6 {
		t.Errorf("merged daily: got %d items, want 6", len(call.merged.Daily))
	}
	if len(call.merged.Sleep) != 2 {
		t.Errorf("merged sleep: got %d items, want 2", len(call.merged.Sleep))
	}
	if len(call.merged.Activity) != 1 {
		t.Errorf("merged activity: got %d items, want 1", len(call.merged.Activity))
	}
	if len(agg.TrackedSessions()) != 0 {
		t.Error("session still tracked after completion")
	}
}

func TestAggregatorChunksBeforeAnnouncementStillCount(t *testing.T) {
	repo := newTestRepo(t)
	agg, _, rec := newTestAggregator(t, repo)
	session := createTestSession(t, repo)
	ctx := context.Background()

	// Data chunks race ahead of the "sending" announcement.
	if err := agg.ProcessChunk(ctx, session.ID, models.CategoryDaily, 1, rawItems(1)); err != nil {
		t.Fatalf("early chunk: %v", err)
	}
	if err := agg.InitializeAggregation(ctx, session.ID, models.CategorySleep, 0); err != nil {
		t.Fatalf("init sleep: %v", err)
	}
	if err := agg.InitializeAggregation(ctx, session.ID, models.CategoryActivity, 0); err != nil {
		t.Fatalf("init activity: %v", err)
	}
	if rec.count() != 0 {
		t.Fatal("completed before daily announcement")
	}

	// The late announcement must not reset the received counter; with
	// one chunk already delivered the session is now complete.
	if err := agg.InitializeAggregation(ctx, session.ID, models.CategoryDaily, 1); err != nil {
		t.Fatalf("init daily: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("got %d completions, want 1", rec.count())
	}
	if len(rec.calls[0].merged.Daily) != 1 {
		t.Errorf("merged daily: got %d items, want 1", len(rec.calls[0].merged.Daily))
	}
}

func TestAggregatorDropsUnknownSession(t *testing.T) {
	repo := newTestRepo(t)
	agg, chunks, rec := newTestAggregator(t, repo)
	ctx := context.Background()

	if err := agg.ProcessChunk(ctx, "01XXUNKNOWN", models.CategoryDaily, 1, rawItems(1)); err != nil {
		t.Fatalf("unknown session should drop, not error: %v", err)
	}
	if rec.count() != 0 {
		t.Error("unknown session produced a completion")
	}
	count, err := chunks.CountChunks("01XXUNKNOWN", models.CategoryDaily)
	if err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	if count != 0 {
		t.Error("chunk stored for unknown session")
	}
}

func TestAggregatorSweepFinalizesPartial(t *testing.T) {
	repo := newTestRepo(t)
	agg, _, rec := newTestAggregator(t, repo)
	session := createTestSession(t, repo)
	ctx := context.Background()

	if err := agg.InitializeAggregation(ctx, session.ID, models.CategoryDaily, 2); err != nil {
		t.Fatalf("init daily: %v", err)
	}
	if err := agg.ProcessChunk(ctx, session.ID, models.CategoryDaily, 1, rawItems(4)); err != nil {
		t.Fatalf("daily chunk: %v", err)
	}

	agg.SetTimeout(0)
	time.Sleep(time.Millisecond)
	agg.SweepOnce(ctx)

	if rec.count() != 1 {
		t.Fatalf("got %d completions, want 1", rec.count())
	}
	if !rec.calls[0].partial {
		t.Error("sweep completion not marked partial")
	}
	if len(rec.calls[0].merged.Daily) != 4 {
		t.Errorf("merged daily: got %d items, want 4", len(rec.calls[0].merged.Daily))
	}
}

func TestAggregatorSweepDiscardsEmptySession(t *testing.T) {
	repo := newTestRepo(t)
	agg, _, rec := newTestAggregator(t, repo)
	session := createTestSession(t, repo)
	ctx := context.Background()

	if err := agg.InitializeAggregation(ctx, session.ID, models.CategoryDaily, 3); err != nil {
		t.Fatalf("init daily: %v", err)
	}

	agg.SetTimeout(0)
	time.Sleep(time.Millisecond)
	agg.SweepOnce(ctx)

	if rec.count() != 0 {
		t.Error("zero-chunk session produced a completion")
	}
	if len(agg.TrackedSessions()) != 0 {
		t.Error("zero-chunk session still tracked after sweep")
	}
	if agg.State(session.ID) != nil {
		t.Error("state snapshot should be nil after discard")
	}
}

func TestAggregatorClearState(t *testing.T) {
	repo := newTestRepo(t)
	agg, _, _ := newTestAggregator(t, repo)
	session := createTestSession(t, repo)
	ctx := context.Background()

	if err := agg.InitializeAggregation(ctx, session.ID, models.CategoryDaily, 2); err != nil {
		t.Fatalf("init daily: %v", err)
	}
	agg.ClearState(session.ID)
	if agg.State(session.ID) != nil {
		t.Error("state should be gone after ClearState")
	}
}

func TestAggregatorRecoverResumesFromStorage(t *testing.T) {
	repo := newTestRepo(t)
	chunks := newTestChunkStore(t)
	session := createTestSession(t, repo)
	ctx := context.Background()

	// First process lifetime: one of two daily chunks arrives.
	rec1 := &completionRecorder{}
	agg1 := NewAggregator(chunks, repo, testSink(), testLogger(), rec1.handle)
	if err := agg1.InitializeAggregation(ctx, session.ID, models.CategoryDaily, 2); err != nil {
		t.Fatalf("init daily: %v", err)
	}
	if err := agg1.InitializeAggregation(ctx, session.ID, models.CategorySleep, 0); err != nil {
		t.Fatalf("init sleep: %v", err)
	}
	if err := agg1.InitializeAggregation(ctx, session.ID, models.CategoryActivity, 0); err != nil {
		t.Fatalf("init activity: %v", err)
	}
	if err := agg1.ProcessChunk(ctx, session.ID, models.CategoryDaily, 1, rawItems(2)); err != nil {
		t.Fatalf("daily chunk 1: %v", err)
	}

	// Second lifetime over the same stores.
	rec2 := &completionRecorder{}
	agg2 := NewAggregator(chunks, repo, testSink(), testLogger(), rec2.handle)
	if err := agg2.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(agg2.TrackedSessions()) != 1 {
		t.Fatalf("recovered %d sessions, want 1", len(agg2.TrackedSessions()))
	}

	if err := agg2.ProcessChunk(ctx, session.ID, models.CategoryDaily, 2, rawItems(2)); err != nil {
		t.Fatalf("daily chunk 2 after restart: %v", err)
	}
	if rec2.count() != 1 {
		t.Fatalf("got %d completions after restart, want 1", rec2.count())
	}
	if len(rec2.calls[0].merged.Daily) != 4 {
		t.Errorf("merged daily after restart: got %d items, want 4", len(rec2.calls[0].merged.Daily))
	}
}
