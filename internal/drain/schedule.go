package drain

import (
	"context"
	"errors"
	"time"

	"metaprop/internal/logging"
)

// Status reports scheduler and drain state.
type Status struct {
	Running   bool
	Draining  bool
	Interval  time.Duration
	LastRun   *Summary
	LastError string
	Pending   int
}

// Start runs RunOnce immediately and then on every interval until Stop is
// called or ctx ends.
func (w *Worker) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return errors.New("drain interval must be positive")
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("drain schedule already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.loop(runCtx)
	return nil
}

// Stop cancels the schedule and waits for an in-flight run to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		_, err := w.RunOnce(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, ErrAlreadyDraining):
			w.logger.Debug("skipping scheduled drain; another run holds the drain lock")
		default:
			logging.ErrorWithContext(w.logger, "scheduled drain failed", "drain_run_failed",
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// Status returns the latest scheduler information.
func (w *Worker) Status(ctx context.Context) Status {
	w.mu.RLock()
	status := Status{
		Running:  w.running,
		Draining: w.draining.Load(),
		Interval: w.interval,
	}
	if w.lastSummary != nil {
		last := *w.lastSummary
		status.LastRun = &last
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	w.mu.RUnlock()

	if counter, ok := w.queue.(interface {
		Len(context.Context) (int, error)
	}); ok {
		n, err := counter.Len(ctx)
		if err != nil {
			w.logger.Warn("failed to read queue length", logging.Error(err))
		} else {
			status.Pending = n
		}
	}
	return status
}
