package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"metaprop/internal/config"
	"metaprop/internal/dispatch"
	"metaprop/internal/drain"
	"metaprop/internal/enhancer"
	"metaprop/internal/logging"
	"metaprop/internal/metrics"
	"metaprop/internal/queue"
	"metaprop/internal/queue/pgqueue"
	"metaprop/internal/recordstore"
)

// queueBackend is the operator surface shared by the sqlite and postgres
// queues.
type queueBackend interface {
	queue.Queue
	Contains(ctx context.Context, id uuid.UUID) (bool, error)
	Len(ctx context.Context) (int, error)
	List(ctx context.Context, limit int) ([]queue.Entry, error)
	Stats(ctx context.Context) (queue.Stats, error)
	Purge(ctx context.Context) (int64, error)
	Close() error
}

type healthChecker interface {
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

type engineOptions struct {
	// metrics builds a Prometheus observer and queue depth gauge.
	metrics bool
}

type engine struct {
	cfg        *config.Config
	logger     *slog.Logger
	queue      queueBackend
	records    *recordstore.Store
	registry   *enhancer.Registry
	dispatcher *dispatch.Dispatcher
	prom       *metrics.Prometheus
	observer   metrics.Observer
}

func openQueue(ctx context.Context, cfg *config.Config) (queueBackend, error) {
	switch cfg.Queue.Backend {
	case config.QueueBackendPostgres:
		return pgqueue.Open(ctx, cfg.Queue.PostgresDSN)
	case config.QueueBackendSQLite, "":
		return queue.Open(cfg)
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
}

func openEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts engineOptions) (*engine, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	records, err := recordstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	q, err := openQueue(ctx, cfg)
	if err != nil {
		_ = records.Close()
		return nil, fmt.Errorf("open queue: %w", err)
	}
	registry, err := enhancer.FromConfig(cfg.Enhancers, records)
	if err != nil {
		_ = q.Close()
		_ = records.Close()
		return nil, fmt.Errorf("build enhancers: %w", err)
	}

	eng := &engine{
		cfg:      cfg,
		logger:   logger,
		queue:    q,
		records:  records,
		registry: registry,
		observer: metrics.Nop{},
	}
	if opts.metrics {
		eng.prom = metrics.NewPrometheus()
		eng.prom.WatchQueueDepth(func() float64 {
			n, err := q.Len(context.Background())
			if err != nil {
				return 0
			}
			return float64(n)
		})
		eng.observer = eng.prom
	}
	eng.dispatcher = dispatch.New(registry, records, records, q,
		dispatch.WithLogger(logger),
		dispatch.WithObserver(eng.observer),
	)
	return eng, nil
}

func (e *engine) worker() *drain.Worker {
	opts := drain.OptionsFromConfig(e.cfg)
	opts.Logger = e.logger
	opts.Observer = e.observer
	return drain.New(e.queue, e.records, e.dispatcher, opts)
}

func (e *engine) Close() error {
	if e == nil {
		return nil
	}
	return errors.Join(e.queue.Close(), e.records.Close())
}
