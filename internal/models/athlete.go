// ABOUTME: Athlete model with provider identity and date of birth.
// ABOUTME: Date of birth drives age-adaptive sleep scoring.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Athlete represents one tracked athlete.
type Athlete struct {
	ID             uuid.UUID
	Name           string
	DateOfBirth    *time.Time
	ProviderUserID *string
	CreatedAt      time.Time
}

// NewAthlete creates a new Athlete with a generated UUID.
func NewAthlete(name string) *Athlete {
	return &Athlete{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
}

// WithDateOfBirth sets the athlete's date of birth.
func (a *Athlete) WithDateOfBirth(t time.Time) *Athlete {
	a.DateOfBirth = &t
	return a
}

// WithProviderUserID sets the wearable provider's user identifier.
func (a *Athlete) WithProviderUserID(id string) *Athlete {
	a.ProviderUserID = &id
	return a
}

// AgeAt returns the athlete's age in whole years at the given date,
// or nil when the date of birth is unknown. The not-yet-had-birthday
// case within the year is handled.
func (a *Athlete) AgeAt(on time.Time) *int {
	if a.DateOfBirth == nil {
		return nil
	}
	dob := a.DateOfBirth.UTC()
	on = on.UTC()
	age := on.Year() - dob.Year()
	anniversary := time.Date(on.Year(), dob.Month(), dob.Day(), 0, 0, 0, 0, time.UTC)
	if on.Before(anniversary) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return &age
}
