package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/mrwolf/journal-server/internal/db"
	"github.com/mrwolf/journal-server/internal/insights"
)

// Trailing window the nightly rollup recomputes. Wide enough that
// late-arriving entries for recent days are picked up.
const rollupWindow = 30 * 24 * time.Hour

const jobMoodRollup = "mood-rollup"

// Scheduler manages scheduled jobs
type Scheduler struct {
	scheduler gocron.Scheduler
	db        *db.DB
	timezone  *time.Location
	actors    []string
}

// Config holds scheduler configuration
type Config struct {
	Timezone string
	Actors   []string
}

// New creates a new scheduler
func New(database *db.DB, cfg Config) (*Scheduler, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(tz))
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		scheduler: s,
		db:        database,
		timezone:  tz,
		actors:    cfg.Actors,
	}, nil
}

// Start starts the scheduler and registers all jobs
func (s *Scheduler) Start() error {
	// Nightly mood rollup at 02:30, after the day's entries settle
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(2, 30, 0))),
		gocron.NewTask(s.rollupMoodStats),
		gocron.WithName(jobMoodRollup),
	)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	log.Println("Scheduler started")

	// Rebuild the window once at startup so the insights endpoint is
	// warm even after downtime.
	go s.rollupMoodStats()

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) rollupMoodStats() {
	log.Println("Running mood stats rollup...")
	for _, actor := range s.actors {
		if err := s.RollupNow(actor); err != nil {
			log.Printf("Error rolling up mood stats for %s: %v", actor, err)
		}
	}
}

// RollupNow recomputes the trailing mood-stats window for one actor and
// records the run.
func (s *Scheduler) RollupNow(actor string) error {
	runID, err := s.db.StartSchedulerRun(actor, jobMoodRollup)
	if err != nil {
		return err
	}

	now := time.Now().In(s.timezone)
	days, err := insights.MaterializeMoodStats(s.db, actor, now.Add(-rollupWindow), now)

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if completeErr := s.db.CompleteSchedulerRun(runID, errMsg); completeErr != nil {
		log.Printf("Error completing scheduler run %d: %v", runID, completeErr)
	}
	if err != nil {
		return err
	}

	log.Printf("Rolled up mood stats for %s: %d days", actor, days)
	return nil
}
