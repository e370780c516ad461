// ABOUTME: HistoricalSyncSession CRUD for SQLite storage.
// ABOUTME: Persists backfill progress counters so they survive inspection and restarts.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
)

// ErrSyncSessionNotFound is returned when no session matches a lookup.
var ErrSyncSessionNotFound = errors.New("sync session not found")

// CreateSyncSession stores a new backfill session with its per-category
// progress rows.
func (d *DB) CreateSyncSession(s *models.HistoricalSyncSession) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("create sync session: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sync_sessions (id, athlete_id, start_date, end_date, completed, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.AthleteID.String(),
		s.StartDate.Format(models.DateKey),
		s.EndDate.Format(models.DateKey),
		boolInt(s.Completed),
		s.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create sync session: %w", err)
	}

	for _, c := range models.Categories {
		p := s.Progress[c]
		if p == nil {
			p = &models.CategoryProgress{}
		}
		_, err = tx.Exec(`
			INSERT INTO sync_progress (session_id, category, reference, expected, received)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID, string(c), p.Reference, p.Expected, p.Received,
		)
		if err != nil {
			return fmt.Errorf("create sync progress: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create sync session: %w", err)
	}
	return nil
}

// GetSyncSession retrieves a backfill session by ID.
func (d *DB) GetSyncSession(id string) (*models.HistoricalSyncSession, error) {
	row := d.db.QueryRow(`
		SELECT id, athlete_id, start_date, end_date, completed, created_at
		FROM sync_sessions WHERE id = ?`, id)
	return d.scanSyncSession(row)
}

// FindSyncSessionByReference resolves a provider reference token to the
// owning backfill session.
func (d *DB) FindSyncSessionByReference(ref string) (*models.HistoricalSyncSession, error) {
	row := d.db.QueryRow(`
		SELECT s.id, s.athlete_id, s.start_date, s.end_date, s.completed, s.created_at
		FROM sync_sessions s
		JOIN sync_progress p ON p.session_id = s.id
		WHERE p.reference = ?
		LIMIT 1`, ref)
	return d.scanSyncSession(row)
}

// ActiveSyncSession returns the athlete's incomplete backfill session,
// or ErrSyncSessionNotFound when there is none.
func (d *DB) ActiveSyncSession(athleteID uuid.UUID) (*models.HistoricalSyncSession, error) {
	row := d.db.QueryRow(`
		SELECT id, athlete_id, start_date, end_date, completed, created_at
		FROM sync_sessions
		WHERE athlete_id = ? AND completed = 0
		ORDER BY id DESC
		LIMIT 1`, athleteID.String())
	return d.scanSyncSession(row)
}

// ListOpenSyncSessions returns every incomplete backfill session.
func (d *DB) ListOpenSyncSessions() ([]*models.HistoricalSyncSession, error) {
	rows, err := d.db.Query(`
		SELECT id, athlete_id, start_date, end_date, completed, created_at
		FROM sync_sessions
		WHERE completed = 0
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list open sync sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.HistoricalSyncSession
	for rows.Next() {
		s, err := scanSyncSessionRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if err := d.loadSyncProgress(s); err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// SetSyncReference stores the provider reference token for one category.
func (d *DB) SetSyncReference(id string, category models.Category, ref string) error {
	result, err := d.db.Exec(`
		UPDATE sync_progress SET reference = ? WHERE session_id = ? AND category = ?`,
		ref, id, string(category))
	if err != nil {
		return fmt.Errorf("set sync reference: %w", err)
	}
	return checkSessionAffected(result, id)
}

// UpdateSyncProgress persists a category's received counter and, when
// non-nil, its expected count.
func (d *DB) UpdateSyncProgress(id string, category models.Category, received int, expected *int) error {
	var result sql.Result
	var err error
	if expected != nil {
		result, err = d.db.Exec(`
			UPDATE sync_progress SET received = ?, expected = ? WHERE session_id = ? AND category = ?`,
			received, *expected, id, string(category))
	} else {
		result, err = d.db.Exec(`
			UPDATE sync_progress SET received = ? WHERE session_id = ? AND category = ?`,
			received, id, string(category))
	}
	if err != nil {
		return fmt.Errorf("update sync progress: %w", err)
	}
	return checkSessionAffected(result, id)
}

// CompleteSyncSession marks a backfill session finished.
func (d *DB) CompleteSyncSession(id string) error {
	result, err := d.db.Exec(`UPDATE sync_sessions SET completed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("complete sync session: %w", err)
	}
	return checkSessionAffected(result, id)
}

func checkSessionAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrSyncSessionNotFound, id)
	}
	return nil
}

func (d *DB) scanSyncSession(row *sql.Row) (*models.HistoricalSyncSession, error) {
	var s models.HistoricalSyncSession
	var athleteStr, startStr, endStr, createdAt string
	var completed int

	err := row.Scan(&s.ID, &athleteStr, &startStr, &endStr, &completed, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSyncSessionNotFound
		}
		return nil, fmt.Errorf("scan sync session: %w", err)
	}
	s.AthleteID, _ = uuid.Parse(athleteStr)
	s.StartDate, _ = time.ParseInLocation(models.DateKey, startStr, time.UTC)
	s.EndDate, _ = time.ParseInLocation(models.DateKey, endStr, time.UTC)
	s.Completed = completed != 0
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if err := d.loadSyncProgress(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSyncSessionRow(rows *sql.Rows) (*models.HistoricalSyncSession, error) {
	var s models.HistoricalSyncSession
	var athleteStr, startStr, endStr, createdAt string
	var completed int

	if err := rows.Scan(&s.ID, &athleteStr, &startStr, &endStr, &completed, &createdAt); err != nil {
		return nil, fmt.Errorf("scan sync session: %w", err)
	}
	s.AthleteID, _ = uuid.Parse(athleteStr)
	s.StartDate, _ = time.ParseInLocation(models.DateKey, startStr, time.UTC)
	s.EndDate, _ = time.ParseInLocation(models.DateKey, endStr, time.UTC)
	s.Completed = completed != 0
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &s, nil
}

func (d *DB) loadSyncProgress(s *models.HistoricalSyncSession) error {
	rows, err := d.db.Query(`
		SELECT category, reference, expected, received
		FROM sync_progress WHERE session_id = ?`, s.ID)
	if err != nil {
		return fmt.Errorf("load sync progress: %w", err)
	}
	defer rows.Close()

	s.Progress = make(map[models.Category]*models.CategoryProgress, len(models.Categories))
	for _, c := range models.Categories {
		s.Progress[c] = &models.CategoryProgress{}
	}
	for rows.Next() {
		var category string
		var reference sql.NullString
		var expected sql.NullInt64
		var received int
		if err := rows.Scan(&category, &reference, &expected, &received); err != nil {
			return fmt.Errorf("scan sync progress: %w", err)
		}
		p := &models.CategoryProgress{Received: received}
		if reference.Valid {
			p.Reference = &reference.String
		}
		p.Expected = intPtr(expected)
		s.Progress[models.Category(category)] = p
	}
	return rows.Err()
}
