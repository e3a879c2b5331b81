// Package scheduler provides cron-based background jobs for WispFlow.
//
// Its main job is the idle-session sweep, which expires authenticated
// sessions that have gone quiet instead of waiting for the user's next
// message to notice.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Conecta2Tel/WispFlow/internal/models"
	"github.com/Conecta2Tel/WispFlow/internal/store"
)

// DefaultSweepSpec runs the idle-session sweep once an hour.
const DefaultSweepSpec = "0 * * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// SessionSweep expires authenticated sessions idle past the 24-hour window.
type SessionSweep struct {
	store store.Store
	now   func() time.Time
}

// NewSessionSweep creates the sweep job.
func NewSessionSweep(st store.Store) *SessionSweep {
	return &SessionSweep{store: st, now: time.Now}
}

// Run clears the authentication of every idle conversation. The store applies
// the expiry as one atomic statement; the sweep never rewrites whole
// conversation documents, so it cannot clobber a message being processed
// concurrently.
func (s *SessionSweep) Run() {
	cutoff := s.now().Add(-models.SessionMaxIdle)
	expired, err := s.store.ExpireIdleSessions(cutoff)
	if err != nil {
		slog.Error("session sweep failed", "error", err)
		return
	}
	if expired > 0 {
		slog.Info("session sweep expired idle sessions", "count", expired, "cutoff", cutoff)
	}
}
