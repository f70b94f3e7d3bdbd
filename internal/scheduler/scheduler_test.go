package scheduler

import (
	"os"
	"testing"
	"time"

	"github.com/mrwolf/journal-server/internal/db"
)

func setupTestDB(t *testing.T) (*db.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "scheduler-test-*.db")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	tmpFile.Close()

	database, err := db.Open(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("opening database: %v", err)
	}

	cleanup := func() {
		database.Close()
		os.Remove(tmpFile.Name())
	}

	return database, cleanup
}

func TestRollupNow(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	feeling := 7.0
	err := database.CreateEntry(db.EntryRecord{
		EntryID: "ent_1", Actor: "mira", Type: "quick", Feeling: &feeling,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}, nil, []db.TagRecord{{Tag: "calm", Kind: db.TagEmotion}})
	if err != nil {
		t.Fatalf("seeding entry: %v", err)
	}

	s, err := New(database, Config{Timezone: "UTC", Actors: []string{"mira"}})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}

	if err := s.RollupNow("mira"); err != nil {
		t.Fatalf("rollup: %v", err)
	}

	stats, err := database.GetMoodStats("mira", "2000-01-01")
	if err != nil {
		t.Fatalf("reading stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 materialized day, got %d", len(stats))
	}
	if stats[0].AvgFeeling == nil || *stats[0].AvgFeeling != 7 {
		t.Errorf("expected avg feeling 7, got %v", stats[0].AvgFeeling)
	}

	run, err := database.GetLastSchedulerRun("mira", "mood-rollup")
	if err != nil {
		t.Fatalf("reading run: %v", err)
	}
	if run == nil || run.Status != "completed" {
		t.Errorf("expected a completed run record, got %+v", run)
	}
}

func TestStartAndStop(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	s, err := New(database, Config{Timezone: "UTC", Actors: nil})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("starting scheduler: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("stopping scheduler: %v", err)
	}
}

func TestBadTimezoneFallsBackToUTC(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	s, err := New(database, Config{Timezone: "Not/AZone"})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}
	if s.timezone != time.UTC {
		t.Errorf("expected UTC fallback, got %v", s.timezone)
	}
}
