// ABOUTME: Shared test fixtures for the pipeline package.
// ABOUTME: Real SQLite and Badger stores in temp dirs; no mocks for storage.
package pipeline

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/teamfit/wearsync/internal/models"
	"github.com/teamfit/wearsync/internal/storage"
)

func newTestRepo(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestChunkStore(t *testing.T) *ChunkStore {
	t.Helper()
	cs, err := OpenChunkStore(filepath.Join(t.TempDir(), "chunks"))
	if err != nil {
		t.Fatalf("open chunk store: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSink() *LogSink {
	return &LogSink{Logger: testLogger()}
}

func createTestAthlete(t *testing.T, repo storage.Repository) *models.Athlete {
	t.Helper()
	a := models.NewAthlete("Test Athlete")
	a.WithDateOfBirth(time.Date(1995, 3, 14, 0, 0, 0, 0, time.UTC))
	a.WithProviderUserID("u_test")
	if err := repo.CreateAthlete(a); err != nil {
		t.Fatalf("create athlete: %v", err)
	}
	return a
}

func testDay(offset int) time.Time {
	base := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, offset)
}

// fullNight builds a record for the date with one complete sleep
// session starting at 23:00 the previous evening.
func fullNight(athleteID uuid.UUID, date time.Time) *models.DailyRecord {
	date = models.Day(date)
	eff := 92.0
	deep, rem, light, awake := 5400, 7200, 14400, 1800
	return &models.DailyRecord{
		ID:        uuid.New(),
		AthleteID: athleteID,
		Date:      date,
		SleepSessions: []*models.SleepSession{
			{
				ID:        uuid.New(),
				StartTime: date.Add(-1 * time.Hour),
				EndTime:   date.Add(7 * time.Hour),
				Perf:      &models.PerfMetrics{ID: uuid.New(), Efficiency: &eff},
				Stages: &models.StageMetrics{
					ID:           uuid.New(),
					DeepSeconds:  &deep,
					RemSeconds:   &rem,
					LightSeconds: &light,
					AwakeSeconds: &awake,
				},
			},
		},
	}
}
