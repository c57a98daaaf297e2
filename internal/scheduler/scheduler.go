// Package scheduler periodically enqueues a sync: a Start/Stop wrapper
// around a callback driven by a cron expression via robfig/cron/v3,
// since a catalog sync runs on an operator-chosen schedule rather than a
// fixed interval.
package scheduler

import (
	"log"

	"github.com/robfig/cron/v3"
)

// OnSyncDue is called each time the cron expression fires.
type OnSyncDue func()

// Scheduler wraps a cron.Cron running a single entry.
type Scheduler struct {
	cronExpr string
	callback OnSyncDue
	cr       *cron.Cron
	entryID  cron.EntryID
}

// New creates a scheduler that will call cb on cronExpr's schedule once
// Start is called. cronExpr is a standard 5-field expression.
func New(cronExpr string, cb OnSyncDue) *Scheduler {
	return &Scheduler{cronExpr: cronExpr, callback: cb, cr: cron.New()}
}

// Start registers the cron entry and begins the scheduler's goroutine. A
// malformed cronExpr is a startup configuration error, not a runtime one,
// so Start returns it rather than silently no-op-ing.
func (s *Scheduler) Start() error {
	id, err := s.cr.AddFunc(s.cronExpr, func() {
		log.Printf("[scheduler] cron %q fired, enqueuing sync", s.cronExpr)
		s.callback()
	})
	if err != nil {
		return err
	}
	s.entryID = id
	s.cr.Start()
	log.Printf("[scheduler] started with schedule %q", s.cronExpr)
	return nil
}

// Stop halts the scheduler, waiting for any in-flight callback to return.
func (s *Scheduler) Stop() {
	ctx := s.cr.Stop()
	<-ctx.Done()
	log.Println("[scheduler] stopped")
}
