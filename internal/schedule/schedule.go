// Package schedule requests full-refresh transitions on cron schedules.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	appLog "wristdisp/internal/log"
	"wristdisp/internal/model"
)

// Requester takes full-refresh requests; the display adapter implements it.
type Requester interface {
	SetFullRefresh(d model.Direction) bool
}

// Entry is one scheduled transition.
type Entry struct {
	Spec      string
	Direction model.Direction
}

// Scheduler owns a cron instance whose jobs call a Requester.
type Scheduler struct {
	c   *cron.Cron
	req Requester

	accepted atomic.Uint64
	ignored  atomic.Uint64
}

// New validates every entry and registers it. A bad spec or a missing
// direction fails the whole set so misconfiguration shows at startup.
func New(req Requester, entries []Entry) (*Scheduler, error) {
	if req == nil {
		return nil, errors.New("schedule: requester is nil")
	}
	l := cronLogger{}
	s := &Scheduler{
		c:   cron.New(cron.WithLogger(l), cron.WithChain(cron.Recover(l))),
		req: req,
	}
	for i, e := range entries {
		e := e
		if e.Direction == model.None {
			return nil, fmt.Errorf("schedule: entry %d (%q): direction is required", i, e.Spec)
		}
		if _, err := s.c.AddFunc(e.Spec, func() { s.request(e) }); err != nil {
			return nil, fmt.Errorf("schedule: entry %d: %w", i, err)
		}
	}
	return s, nil
}

func (s *Scheduler) request(e Entry) {
	if s.req.SetFullRefresh(e.Direction) {
		s.accepted.Add(1)
		appLog.Info("scheduled transition", "spec", e.Spec, "direction", e.Direction)
		return
	}
	s.ignored.Add(1)
	appLog.Debug("scheduled transition skipped, another is running", "spec", e.Spec, "direction", e.Direction)
}

// Len is the number of registered entries.
func (s *Scheduler) Len() int { return len(s.c.Entries()) }

// Next returns the earliest upcoming run, or the zero time when nothing is
// scheduled or the scheduler is not running.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.c.Entries() {
		if e.Next.IsZero() {
			continue
		}
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// State is a snapshot for the debug API.
type State struct {
	Entries  int       `json:"entries"`
	Next     time.Time `json:"next,omitzero"`
	Accepted uint64    `json:"accepted"`
	Ignored  uint64    `json:"ignored"`
}

// State reports the schedule size, the next run and how many scheduled
// requests were taken and ignored so far.
func (s *Scheduler) State() State {
	return State{
		Entries:  s.Len(),
		Next:     s.Next(),
		Accepted: s.accepted.Load(),
		Ignored:  s.ignored.Load(),
	}
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	if s.Len() == 0 {
		return
	}
	s.c.Start()
	appLog.Info("schedule started", "entries", s.Len(), "next", s.Next())
	<-ctx.Done()
	<-s.c.Stop().Done()
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}
