// ABOUTME: Repository interface for wearable data storage.
// ABOUTME: Defines the contract used by the sync pipeline and its collaborators.
package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
)

// Repository defines the storage interface for the sync pipeline.
// This interface allows swapping implementations (e.g., for testing).
type Repository interface {
	// Athlete operations
	CreateAthlete(a *models.Athlete) error
	GetAthlete(id uuid.UUID) (*models.Athlete, error)
	ListAthletes() ([]*models.Athlete, error)

	// Daily record graph operations. Loads are eager: every nested
	// relation of a returned record is populated.
	LoadDailyRecords(athleteID uuid.UUID, dates []time.Time) ([]*models.DailyRecord, error)
	LoadDailyRecordRange(athleteID uuid.UUID, from, to time.Time) ([]*models.DailyRecord, error)
	// SaveDailyRecords persists the record set in one transaction,
	// cascading through every nested entity.
	SaveDailyRecords(records []*models.DailyRecord) error
	// UpdateSleepScores fills the two derived fields on a persisted
	// sleep session (the second phase of the two-phase write).
	UpdateSleepScores(sessionID uuid.UUID, consistency, performance *float64) error

	// Historical backfill session operations
	CreateSyncSession(s *models.HistoricalSyncSession) error
	GetSyncSession(id string) (*models.HistoricalSyncSession, error)
	FindSyncSessionByReference(ref string) (*models.HistoricalSyncSession, error)
	ActiveSyncSession(athleteID uuid.UUID) (*models.HistoricalSyncSession, error)
	ListOpenSyncSessions() ([]*models.HistoricalSyncSession, error)
	SetSyncReference(id string, category models.Category, ref string) error
	UpdateSyncProgress(id string, category models.Category, received int, expected *int) error
	CompleteSyncSession(id string) error

	// Lifecycle
	Close() error
}
