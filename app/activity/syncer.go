package activity

import (
	"context"
	"log/slog"
	"stravachallenge/app/storage/models"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSyncSchedule = "@every 6h"
	DefaultSyncWindow   = 7 * 24 * time.Hour
)

type Importer interface {
	Import(ctx context.Context, athleteId int64, after, before *time.Time) (int, error)
}

type AthleteLister interface {
	GetAllAthletes(ctx context.Context) ([]*models.Athlete, error)
}

// Syncer re-imports the trailing window of activities for every connected
// athlete on a cron schedule, catching anything a missed webhook skipped.
type Syncer struct {
	engine   *cron.Cron
	athletes AthleteLister
	importer Importer
	window   time.Duration
	timeout  time.Duration
	now      func() time.Time
}

func NewSyncer(athletes AthleteLister, importer Importer, window time.Duration) *Syncer {
	if window <= 0 {
		window = DefaultSyncWindow
	}
	return &Syncer{
		engine:   cron.New(),
		athletes: athletes,
		importer: importer,
		window:   window,
		timeout:  30 * time.Minute,
		now:      time.Now,
	}
}

// Schedule registers the sync job under a cron spec such as "@every 6h" or
// "0 */6 * * *".
func (s *Syncer) Schedule(spec string) error {
	if spec == "" {
		spec = DefaultSyncSchedule
	}
	if _, err := s.engine.AddJob(spec, s); err != nil {
		return errors.Wrapf(err, "schedule activity sync %q", spec)
	}
	return nil
}

func (s *Syncer) Start() {
	slog.Info("activity sync scheduler started")
	s.engine.Start()
}

// Stop halts the scheduler and waits for a running sync to finish.
func (s *Syncer) Stop() {
	<-s.engine.Stop().Done()
	slog.Info("activity sync scheduler stopped")
}

// Run implements cron.Job.
func (s *Syncer) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.SyncAll(ctx)
}

// SyncAll imports the trailing window for every connected athlete. A
// failure for one athlete is logged and does not stop the others.
func (s *Syncer) SyncAll(ctx context.Context) int {
	athletes, err := s.athletes.GetAllAthletes(ctx)
	if err != nil {
		slog.Error("failed to list athletes for sync", "err", err)
		return 0
	}

	before := s.now().UTC()
	after := before.Add(-s.window)
	total := 0
	for _, a := range athletes {
		if ctx.Err() != nil {
			break
		}
		if !a.Connected() {
			continue
		}
		n, err := s.importer.Import(ctx, a.ID, &after, &before)
		total += n
		if err != nil {
			slog.Error("activity sync failed", "athleteId", a.ID, "imported", n, "err", err)
		}
	}
	slog.Info("activity sync finished", "athletes", len(athletes), "imported", total)
	return total
}
