// Package settler runs the keeper loop: on a cron schedule it rolls an
// expired auction into the next cycle so the house never depends on an
// external caller to keep the clock moving.
package settler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/kmaox/auctionhouse/internal/engine"
)

// Settler drives the engine's rollover on a schedule.
type Settler struct {
	cron   *cron.Cron
	engine *engine.Engine
	ctx    context.Context
}

// New creates a settler around the engine. The context bounds each tick.
func New(ctx context.Context, eng *engine.Engine) *Settler {
	return &Settler{
		cron:   cron.New(cron.WithSeconds()),
		engine: eng,
		ctx:    ctx,
	}
}

// Register installs the tick on the given six-field cron spec.
func (s *Settler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register settler tick: %w", err)
	}
	return nil
}

// Start starts the cron loop.
func (s *Settler) Start() {
	s.cron.Start()
	slog.Info("settler started")
}

// Stop stops the cron loop gracefully.
func (s *Settler) Stop() {
	s.cron.Stop()
	slog.Info("settler stopped")
}

// RunNow executes one tick immediately (manual trigger).
func (s *Settler) RunNow() {
	s.tick()
}

// tick rolls the auction over when it has expired. Quiet-path errors
// (nothing live, not yet expired, paused, or a concurrent operation holding
// the guard) are normal operating conditions, not faults.
func (s *Settler) tick() {
	a, err := s.engine.CurrentAuction()
	if err != nil || a.Settled {
		return
	}

	err = s.engine.SettleCurrentAndCreateNew(s.ctx)
	switch {
	case err == nil:
		slog.Info("settler rolled auction", "unit", a.UnitID)
	case errors.Is(err, engine.ErrPaused),
		errors.Is(err, engine.ErrNotExpired),
		errors.Is(err, engine.ErrAlreadySettled),
		errors.Is(err, engine.ErrReentrantCall):
		// retried on the next tick
	default:
		slog.Error("settler rollover failed", "unit", a.UnitID, "err", err)
	}
}
