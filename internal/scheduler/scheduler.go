// Package scheduler runs the periodic TAT deadline sweep described in
// §4.6: on a fixed tick, scan gaps with a deadline set and a
// non-terminal status, and emit a breach-approaching event the first
// time a gap enters the warn or breach window.
//
// Grounded on the teacher's plugin scheduler: a single shared cron.Cron
// instance, jobs wrapped with panic recovery so one bad tick never
// kills the scheduler.
package scheduler

import (
	"context"
	"time"

	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/events"
	"github.com/gapopshub/api/internal/logger"
	"github.com/gapopshub/api/internal/models"
	"github.com/robfig/cron/v3"
)

const (
	windowWarn   = "warn"
	windowBreach = "breach"
	tatJobName   = "tat-deadline-sweep"
)

// Scheduler wraps a cron instance running the TAT sweep on a
// configurable tick.
type Scheduler struct {
	cron       *cron.Cron
	gaps       *db.GapStore
	bus        *events.Bus
	warnWindow time.Duration
	entryID    cron.EntryID
}

// New builds a Scheduler. tickExpr is a standard 5-field cron
// expression or shortcut ("@every 60s"); warnWindow is how far ahead of
// a deadline a gap is classified "warn" rather than "on-track".
func New(gaps *db.GapStore, bus *events.Bus, warnWindow time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		gaps:       gaps,
		bus:        bus,
		warnWindow: warnWindow,
	}
}

// Start registers the sweep job at tickExpr and starts the cron
// goroutine. Returns an error if tickExpr fails to parse.
func (s *Scheduler) Start(tickExpr string) error {
	entryID, err := s.cron.AddFunc(tickExpr, s.wrappedSweep)
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.cron.Start()
	return nil
}

// Stop halts the cron goroutine, waiting for any in-flight run to
// finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) wrappedSweep() {
	defer func() {
		if r := recover(); r != nil {
			logger.Scheduler().Error().Interface("panic", r).Str("job", tatJobName).Msg("scheduled job panicked")
		}
	}()
	s.sweep(context.Background())
}

// sweep classifies every TAT-tracked gap and emits tat.breach.approaching
// for each gap newly entering the warn or breach window. Idempotent
// across ticks: a gap already notified for its current window is
// skipped (§4.6).
func (s *Scheduler) sweep(ctx context.Context) {
	gaps, err := s.gaps.ListTatTracked(ctx)
	if err != nil {
		logger.Scheduler().Error().Err(err).Msg("failed to list tat-tracked gaps")
		return
	}

	now := time.Now()
	for _, gap := range gaps {
		window := s.classify(gap, now)
		if window == "" {
			continue
		}
		if gap.LastTatWindowNotified != nil && *gap.LastTatWindowNotified == window {
			continue
		}
		if err := s.gaps.SetTatNotified(ctx, gap.ID, window); err != nil {
			logger.Scheduler().Error().Err(err).Int64("gapId", gap.ID).Msg("failed to record tat notification window")
			continue
		}
		if s.bus != nil {
			s.bus.Publish(ctx, events.Event{Type: events.TatBreachApproaching, GapID: gap.ID, Payload: gap})
		}
	}
}

func (s *Scheduler) classify(gap *models.Gap, now time.Time) string {
	if gap.TatDeadline == nil {
		return ""
	}
	if now.After(*gap.TatDeadline) {
		return windowBreach
	}
	if gap.TatDeadline.Sub(now) < s.warnWindow {
		return windowWarn
	}
	return ""
}
