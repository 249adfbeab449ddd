package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"metaprop/internal/config"
	"metaprop/internal/drain"
	"metaprop/internal/logging"
	"metaprop/internal/metrics"
)

// Daemon coordinates the drain schedule and metrics endpoint and enforces
// single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	worker  *drain.Worker
	metrics *metrics.Prometheus
	server  *metricsServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Drain        drain.Status
	MetricsAddr  string
	LockFilePath string
}

// New constructs a daemon. prom may be nil when metrics are disabled.
func New(cfg *config.Config, worker *drain.Worker, logger *slog.Logger, prom *metrics.Prometheus) (*Daemon, error) {
	if cfg == nil || worker == nil {
		return nil, errors.New("daemon requires config and drain worker")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		worker:   worker,
		metrics:  prom,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	if prom != nil && cfg.Metrics.Enabled {
		d.server = newMetricsServer(cfg.Metrics.Bind, prom, d, d.logger)
	}
	return d, nil
}

// Start acquires the daemon lock, starts the drain schedule and the metrics
// endpoint.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another metaprop daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}
	if err := d.worker.Start(runCtx); err != nil {
		d.server.stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start drain schedule: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("metaprop daemon started",
		logging.String("lock", d.lockPath),
		logging.Duration("drain_interval", d.worker.Status(ctx).Interval),
		logging.String("metrics_addr", d.server.addr()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.worker.Stop()
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("metaprop daemon stopped")
}

// Status returns daemon and drain state.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Drain:        d.worker.Status(ctx),
		MetricsAddr:  d.server.addr(),
		LockFilePath: d.lockPath,
	}
}
