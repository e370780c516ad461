// ABOUTME: Chunk aggregator for asynchronous backfill deliveries.
// ABOUTME: Tracks per-category progress, persists every chunk, and fires completion exactly once.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teamfit/wearsync/internal/models"
	"github.com/teamfit/wearsync/internal/storage"
)

// DefaultAggregationTimeout is how long a backfill session may sit
// without receiving a chunk before the sweeper finalizes it with
// whatever arrived.
const DefaultAggregationTimeout = 5 * time.Minute

// SessionStore is the slice of the repository the aggregator needs.
type SessionStore interface {
	GetSyncSession(id string) (*models.HistoricalSyncSession, error)
	ListOpenSyncSessions() ([]*models.HistoricalSyncSession, error)
	UpdateSyncProgress(id string, category models.Category, received int, expected *int) error
}

// MergedPayloads is the union of every chunk delivered for a backfill
// session, grouped by category. A category that delivered nothing is
// nil.
type MergedPayloads struct {
	Daily    []json.RawMessage
	Sleep    []json.RawMessage
	Activity []json.RawMessage
}

// CompletionHandler consumes a finished aggregation. partial marks
// sessions finalized by timeout before every announced chunk arrived.
type CompletionHandler func(ctx context.Context, session *models.HistoricalSyncSession, merged *MergedPayloads, partial bool) error

type aggState struct {
	session      *models.HistoricalSyncSession
	lastActivity time.Time
}

// Aggregator accumulates webhook chunks across the three data
// categories of a backfill session and invokes the completion handler
// once the last announced chunk lands (or the timeout sweeper gives
// up waiting).
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*aggState

	chunks     *ChunkStore
	sessions   SessionStore
	sink       EventSink
	logger     *slog.Logger
	timeout    time.Duration
	onComplete CompletionHandler
	now        func() time.Time
}

// NewAggregator creates an aggregator with the default timeout.
func NewAggregator(chunks *ChunkStore, sessions SessionStore, sink EventSink, logger *slog.Logger, onComplete CompletionHandler) *Aggregator {
	return &Aggregator{
		states:     make(map[string]*aggState),
		chunks:     chunks,
		sessions:   sessions,
		sink:       sink,
		logger:     logger,
		timeout:    DefaultAggregationTimeout,
		onComplete: onComplete,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetTimeout overrides the inactivity timeout.
func (a *Aggregator) SetTimeout(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timeout = d
}

// InitializeAggregation records the expected chunk count for one
// category of a session. Calling it again for the same category is
// idempotent: the expected count updates but received counters are
// never reset, so chunks that raced ahead of the announcement still
// count.
func (a *Aggregator) InitializeAggregation(ctx context.Context, sessionID string, category models.Category, expected int) error {
	a.mu.Lock()
	st, err := a.stateLocked(sessionID)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	p := st.session.Progress[category]
	p.Expected = &expected
	received := p.Received
	st.lastActivity = a.now()
	done := st.session.AllDone()
	a.mu.Unlock()

	if err := a.sessions.UpdateSyncProgress(sessionID, category, received, &expected); err != nil {
		return fmt.Errorf("persist expected count: %w", err)
	}

	// A zero-chunk announcement can be the last outstanding category.
	if done {
		return a.finalize(ctx, sessionID, false)
	}
	return nil
}

// ProcessChunk stores one delivered chunk and advances the category's
// received counter. Chunks for unknown or completed sessions are
// logged and dropped.
func (a *Aggregator) ProcessChunk(ctx context.Context, sessionID string, category models.Category, seq int, items []json.RawMessage) error {
	a.mu.Lock()
	st, err := a.stateLocked(sessionID)
	if err != nil {
		a.mu.Unlock()
		if errors.Is(err, storage.ErrSyncSessionNotFound) {
			a.logger.Warn("dropping chunk for unknown session",
				"session_id", sessionID, "category", category, "seq", seq)
			return nil
		}
		return err
	}

	if err := a.chunks.Append(sessionID, category, seq, items); err != nil {
		a.mu.Unlock()
		return err
	}

	p := st.session.Progress[category]
	p.Received++
	received := p.Received
	expected := p.Expected
	st.lastActivity = a.now()
	done := st.session.AllDone()
	a.mu.Unlock()

	if err := a.sessions.UpdateSyncProgress(sessionID, category, received, nil); err != nil {
		return fmt.Errorf("persist chunk progress: %w", err)
	}
	a.sink.ChunkReceived(sessionID, category, received, expected)

	if done {
		return a.finalize(ctx, sessionID, false)
	}
	return nil
}

// stateLocked returns the tracked state for a session, loading it from
// storage on first contact. Caller holds a.mu.
func (a *Aggregator) stateLocked(sessionID string) (*aggState, error) {
	if st, ok := a.states[sessionID]; ok {
		return st, nil
	}
	session, err := a.sessions.GetSyncSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Completed {
		return nil, fmt.Errorf("%w: %s already completed", storage.ErrSyncSessionNotFound, sessionID)
	}
	st := &aggState{session: session, lastActivity: a.now()}
	a.states[sessionID] = st
	return st, nil
}

// finalize merges the session's chunks, invokes the completion
// handler, and clears state. Exactly one caller wins: the state entry
// is removed under the lock before the handler runs.
func (a *Aggregator) finalize(ctx context.Context, sessionID string, partial bool) error {
	a.mu.Lock()
	st, ok := a.states[sessionID]
	if !ok {
		a.mu.Unlock()
		return nil
	}
	delete(a.states, sessionID)
	session := st.session
	a.mu.Unlock()

	merged := &MergedPayloads{}
	load := func(category models.Category, dst *[]json.RawMessage) error {
		count, err := a.chunks.CountChunks(sessionID, category)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		items, err := a.chunks.Items(sessionID, category)
		if err != nil {
			return err
		}
		*dst = items
		return nil
	}
	if err := load(models.CategoryDaily, &merged.Daily); err != nil {
		return fmt.Errorf("merge daily chunks: %w", err)
	}
	if err := load(models.CategorySleep, &merged.Sleep); err != nil {
		return fmt.Errorf("merge sleep chunks: %w", err)
	}
	if err := load(models.CategoryActivity, &merged.Activity); err != nil {
		return fmt.Errorf("merge activity chunks: %w", err)
	}

	a.sink.ChunksComplete(sessionID, partial)
	if err := a.onComplete(ctx, session, merged, partial); err != nil {
		return fmt.Errorf("completion handler for session %s: %w", sessionID, err)
	}
	if err := a.chunks.Delete(sessionID); err != nil {
		a.logger.Warn("failed to clear chunks after completion",
			"session_id", sessionID, "error", err)
	}
	return nil
}

// SweepOnce finalizes every tracked session whose last chunk arrived
// longer than the timeout ago. Sessions that never received a single
// chunk are discarded with a warning instead of producing an empty
// reconciliation.
func (a *Aggregator) SweepOnce(ctx context.Context) {
	a.mu.Lock()
	cutoff := a.now().Add(-a.timeout)
	var stale, empty []string
	for id, st := range a.states {
		if st.lastActivity.After(cutoff) {
			continue
		}
		anyChunks := false
		for _, p := range st.session.Progress {
			if p.Received > 0 {
				anyChunks = true
				break
			}
		}
		if anyChunks {
			stale = append(stale, id)
		} else {
			empty = append(empty, id)
		}
	}
	for _, id := range empty {
		delete(a.states, id)
	}
	a.mu.Unlock()

	for _, id := range empty {
		a.logger.Warn("discarding timed-out session with no delivered chunks", "session_id", id)
	}
	for _, id := range stale {
		if err := a.finalize(ctx, id, true); err != nil {
			a.logger.Error("failed to finalize timed-out session", "session_id", id, "error", err)
		}
	}
}

// RunSweeper runs the timeout sweep on the given interval until the
// context is cancelled.
func (a *Aggregator) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.SweepOnce(ctx)
		}
	}
}

// Recover rebuilds tracking state for every open backfill session
// after a restart. Persisted counters and stored chunks carry the
// progress; sessions that were already complete on disk finalize
// immediately.
func (a *Aggregator) Recover(ctx context.Context) error {
	sessions, err := a.sessions.ListOpenSyncSessions()
	if err != nil {
		return fmt.Errorf("list open sessions: %w", err)
	}

	var ready []string
	a.mu.Lock()
	now := a.now()
	for _, s := range sessions {
		a.states[s.ID] = &aggState{session: s, lastActivity: now}
		if s.AllDone() {
			ready = append(ready, s.ID)
		}
	}
	a.mu.Unlock()

	for _, id := range ready {
		if err := a.finalize(ctx, id, false); err != nil {
			a.logger.Error("failed to finalize recovered session", "session_id", id, "error", err)
		}
	}
	a.logger.Info("recovered open backfill sessions", "count", len(sessions))
	return nil
}

// TrackedSessions returns the IDs of sessions currently awaiting
// chunks. Intended for status surfaces.
func (a *Aggregator) TrackedSessions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.states))
	for id := range a.states {
		ids = append(ids, id)
	}
	return ids
}

// State returns a snapshot of a tracked session's progress, or nil
// when the session is not being tracked.
func (a *Aggregator) State(sessionID string) *models.HistoricalSyncSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[sessionID]
	if !ok {
		return nil
	}
	snapshot := *st.session
	snapshot.Progress = make(map[models.Category]*models.CategoryProgress, len(st.session.Progress))
	for c, p := range st.session.Progress {
		copied := *p
		snapshot.Progress[c] = &copied
	}
	return &snapshot
}

// ClearState drops tracking for a session without finalizing it. Any
// stored chunks remain until the session completes or is deleted.
func (a *Aggregator) ClearState(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, sessionID)
}
