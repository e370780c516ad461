// ABOUTME: Typed observability events emitted by the sync pipeline.
// ABOUTME: Explicit sink interface instead of pub/sub; the pipeline itself is sequential calls.
package pipeline

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
)

// EventSink receives pipeline lifecycle events. Implementations must
// be safe for concurrent use; the pipeline never depends on a sink
// for control flow.
type EventSink interface {
	SyncStarted(athleteID uuid.UUID)
	SyncCompleted(athleteID uuid.UUID, err error)
	ChunkReceived(sessionID string, category models.Category, received int, expected *int)
	ChunksComplete(sessionID string, partial bool)
	TransformCompleted(athleteID uuid.UUID, records int)
	TransformFailed(athleteID uuid.UUID, err error)
	SaveCompleted(athleteID uuid.UUID, records int)
	SaveFailed(athleteID uuid.UUID, err error)
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) SyncStarted(athleteID uuid.UUID) {
	s.Logger.Info("sync started", "athlete_id", athleteID)
}

func (s *LogSink) SyncCompleted(athleteID uuid.UUID, err error) {
	if err != nil {
		s.Logger.Error("sync completed with failure", "athlete_id", athleteID, "error", err)
		return
	}
	s.Logger.Info("sync completed", "athlete_id", athleteID)
}

func (s *LogSink) ChunkReceived(sessionID string, category models.Category, received int, expected *int) {
	args := []any{"session_id", sessionID, "category", category, "received", received}
	if expected != nil {
		args = append(args, "expected", *expected)
	}
	s.Logger.Info("chunk received", args...)
}

func (s *LogSink) ChunksComplete(sessionID string, partial bool) {
	if partial {
		s.Logger.Warn("chunks complete with partial data", "session_id", sessionID)
		return
	}
	s.Logger.Info("chunks complete", "session_id", sessionID)
}

func (s *LogSink) TransformCompleted(athleteID uuid.UUID, records int) {
	s.Logger.Info("transform completed", "athlete_id", athleteID, "records", records)
}

func (s *LogSink) TransformFailed(athleteID uuid.UUID, err error) {
	s.Logger.Error("transform failed", "athlete_id", athleteID, "error", err)
}

func (s *LogSink) SaveCompleted(athleteID uuid.UUID, records int) {
	s.Logger.Info("save completed", "athlete_id", athleteID, "records", records)
}

func (s *LogSink) SaveFailed(athleteID uuid.UUID, err error) {
	s.Logger.Error("save failed", "athlete_id", athleteID, "error", err)
}
