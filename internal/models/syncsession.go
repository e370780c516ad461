// ABOUTME: HistoricalSyncSession model tracking one long-running backfill per athlete.
// ABOUTME: Holds per-category reference tokens and expected/received chunk counters.
package models

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Category identifies one of the three wearable data categories a
// backfill delivers independently.
type Category string

const (
	CategoryDaily    Category = "daily"
	CategorySleep    Category = "sleep"
	CategoryActivity Category = "activity"
)

// Categories lists all data categories in canonical order.
var Categories = []Category{CategoryDaily, CategorySleep, CategoryActivity}

// IsValidCategory checks if a string names a known data category.
func IsValidCategory(s string) bool {
	for _, c := range Categories {
		if string(c) == s {
			return true
		}
	}
	return false
}

// CategoryProgress tracks chunk delivery for one category of a
// backfill. Expected is nil until the provider's "sending"
// announcement arrives.
type CategoryProgress struct {
	Reference *string
	Expected  *int
	Received  int
}

// Done reports whether every announced chunk for this category has
// arrived. A category with no announcement yet is never done.
func (p CategoryProgress) Done() bool {
	return p.Expected != nil && p.Received >= *p.Expected
}

// HistoricalSyncSession tracks one long-running historical backfill
// request for an athlete. At most one incomplete session exists per
// athlete at a time. IDs are ULIDs so sessions sort by creation time.
type HistoricalSyncSession struct {
	ID        string
	AthleteID uuid.UUID
	StartDate time.Time
	EndDate   time.Time

	Progress map[Category]*CategoryProgress

	Completed bool
	CreatedAt time.Time
}

// NewHistoricalSyncSession creates a session covering the given date
// range with zeroed progress for every category.
func NewHistoricalSyncSession(athleteID uuid.UUID, start, end time.Time) *HistoricalSyncSession {
	progress := make(map[Category]*CategoryProgress, len(Categories))
	for _, c := range Categories {
		progress[c] = &CategoryProgress{}
	}
	return &HistoricalSyncSession{
		ID:        ulid.MustNew(ulid.Now(), rand.Reader).String(),
		AthleteID: athleteID,
		StartDate: Day(start),
		EndDate:   Day(end),
		Progress:  progress,
		CreatedAt: time.Now().UTC(),
	}
}

// AllDone reports whether every category has announced an expected
// count and received that many chunks.
func (s *HistoricalSyncSession) AllDone() bool {
	for _, c := range Categories {
		p := s.Progress[c]
		if p == nil || !p.Done() {
			return false
		}
	}
	return true
}
