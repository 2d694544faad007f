package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/service"
)

// SweepWorker drives the periodic evaluation of every running timer. The
// cron chain skips a cycle if the previous one is still running, so slow
// sweeps never pile up.
type SweepWorker struct {
	cron   *cron.Cron
	engine *service.TimerEngine
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSweepWorker builds the worker with the given sweep interval.
func NewSweepWorker(engine *service.TimerEngine, interval time.Duration, logger *zap.Logger) (*SweepWorker, error) {
	ctx, cancel := context.WithCancel(context.Background())
	worker := &SweepWorker{
		engine: engine,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		),
	)
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := scheduler.AddFunc(spec, worker.run); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	worker.cron = scheduler
	return worker, nil
}

// Start begins the periodic sweep.
func (w *SweepWorker) Start() {
	w.cron.Start()
	w.logger.Info("sla sweep started")
}

// Stop cancels future sweep cycles and waits for an in-flight one to finish.
func (w *SweepWorker) Stop() {
	w.cancel()
	stopped := w.cron.Stop()

	select {
	case <-stopped.Done():
		w.logger.Info("sla sweep stopped")
	case <-time.After(30 * time.Second):
		w.logger.Warn("timeout waiting for sweep to finish")
	}
}

func (w *SweepWorker) run() {
	if w.ctx.Err() != nil {
		return
	}
	w.engine.Sweep(w.ctx)
}
