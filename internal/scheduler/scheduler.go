// Package scheduler runs the periodic cleanup jobs: the expired-hold
// sweep and the overdue-reservation sweep.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// SweepFunc is a cleanup pass evaluated against a single point in
// time. It reports how many rows it touched.
type SweepFunc func(ctx context.Context, now time.Time) (int64, error)

// Scheduler wraps a cron runner. Jobs are chained with
// SkipIfStillRunning so a slow sweep never stacks up behind itself;
// the sweeps are idempotent, so a skipped tick is just caught up by
// the next one.
type Scheduler struct {
	cron  *cron.Cron
	clock clockwork.Clock
}

// New builds a Scheduler with no jobs registered.
func New(clock clockwork.Clock) *Scheduler {
	logger := cron.VerbosePrintfLogger(log.Default())
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(logger),
			cron.Recover(logger),
		)),
		clock: clock,
	}
}

// AddSweep registers a sweep on a cron spec ("@every 1m" style or a
// standard five-field spec). Each run gets a fresh 30s timeout context
// and the clock's current UTC time as its cutoff.
func (s *Scheduler) AddSweep(name, spec string, sweep SweepFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := sweep(ctx, s.clock.Now().UTC()); err != nil {
			log.Printf("scheduler: %s sweep failed: %v", name, err)
		}
	})
	return err
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling new runs and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
