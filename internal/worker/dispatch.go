// Package worker runs the periodic publishing jobs of the handler service.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher publishes every scheduled item whose time has arrived.
type Dispatcher interface {
	DispatchDue(ctx context.Context, now time.Time) (int, error)
}

// Sweeper forgets finished pipeline sessions.
type Sweeper interface {
	Sweep(cutoff time.Time) int
}

// DispatchWorker periodically dispatches due content items and prunes finished sessions.
type DispatchWorker struct {
	dispatcher Dispatcher
	sweeper    Sweeper
	interval   time.Duration
	retention  time.Duration
	logger     *zap.Logger
	now        func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatchWorker creates a worker ticking every interval. Finished sessions are kept
// for retention before being swept.
func NewDispatchWorker(dispatcher Dispatcher, sweeper Sweeper, interval, retention time.Duration, logger *zap.Logger) *DispatchWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &DispatchWorker{
		dispatcher: dispatcher,
		sweeper:    sweeper,
		interval:   interval,
		retention:  retention,
		logger:     logger,
		now:        time.Now,
	}
}

// Start launches the loop in the background.
func (w *DispatchWorker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.Run(ctx)
	}()
}

// Stop cancels the loop and waits for the current pass, or until ctx expires.
func (w *DispatchWorker) Stop(ctx context.Context) error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run ticks until ctx is canceled.
func (w *DispatchWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Dispatch worker started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Dispatch worker stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one pass. A panic is logged and the next tick proceeds.
func (w *DispatchWorker) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Dispatch pass panicked", zap.Any("panic", r))
		}
	}()

	now := w.now()
	attempted, err := w.dispatcher.DispatchDue(ctx, now)
	if err != nil {
		w.logger.Error("Failed to dispatch due items", zap.Error(err))
	}
	if attempted > 0 {
		w.logger.Info("Dispatched due items", zap.Int("count", attempted))
	}

	if w.sweeper != nil {
		if removed := w.sweeper.Sweep(now.Add(-w.retention)); removed > 0 {
			w.logger.Debug("Swept finished pipeline sessions", zap.Int("count", removed))
		}
	}
}
