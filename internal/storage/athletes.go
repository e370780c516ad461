// ABOUTME: Athlete CRUD operations for SQLite storage.
// ABOUTME: Implements Repository interface methods for athletes.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
)

// CreateAthlete stores a new athlete in the database.
func (d *DB) CreateAthlete(a *models.Athlete) error {
	query := `
		INSERT INTO athletes (id, name, date_of_birth, provider_user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := d.db.Exec(query,
		a.ID.String(),
		a.Name,
		nullTime(a.DateOfBirth),
		a.ProviderUserID,
		a.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create athlete: %w", err)
	}
	return nil
}

// GetAthlete retrieves an athlete by ID.
func (d *DB) GetAthlete(id uuid.UUID) (*models.Athlete, error) {
	query := `
		SELECT id, name, date_of_birth, provider_user_id, created_at
		FROM athletes
		WHERE id = ?
	`
	return scanAthlete(d.db.QueryRow(query, id.String()))
}

// ListAthletes retrieves all athletes ordered by name.
func (d *DB) ListAthletes() ([]*models.Athlete, error) {
	query := `
		SELECT id, name, date_of_birth, provider_user_id, created_at
		FROM athletes
		ORDER BY name
	`
	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list athletes: %w", err)
	}
	defer rows.Close()

	var athletes []*models.Athlete
	for rows.Next() {
		a, err := scanAthleteRow(rows)
		if err != nil {
			return nil, err
		}
		athletes = append(athletes, a)
	}
	return athletes, rows.Err()
}

func scanAthlete(row *sql.Row) (*models.Athlete, error) {
	var a models.Athlete
	var idStr, createdAt string
	var dob, providerID sql.NullString

	err := row.Scan(&idStr, &a.Name, &dob, &providerID, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("athlete not found")
		}
		return nil, fmt.Errorf("scan athlete: %w", err)
	}

	a.ID, _ = uuid.Parse(idStr)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if dob.Valid {
		t, _ := time.Parse(time.RFC3339, dob.String)
		a.DateOfBirth = &t
	}
	if providerID.Valid {
		a.ProviderUserID = &providerID.String
	}
	return &a, nil
}

func scanAthleteRow(rows *sql.Rows) (*models.Athlete, error) {
	var a models.Athlete
	var idStr, createdAt string
	var dob, providerID sql.NullString

	if err := rows.Scan(&idStr, &a.Name, &dob, &providerID, &createdAt); err != nil {
		return nil, fmt.Errorf("scan athlete: %w", err)
	}

	a.ID, _ = uuid.Parse(idStr)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if dob.Valid {
		t, _ := time.Parse(time.RFC3339, dob.String)
		a.DateOfBirth = &t
	}
	if providerID.Valid {
		a.ProviderUserID = &providerID.String
	}
	return &a, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
