// Package dispatcher turns queued trigger events into independent pipeline runs.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/logging"
	"github.com/JakeFAU/catalog-enricher/internal/pipeline"
)

// DefaultRunBudget bounds a single run end to end.
const DefaultRunBudget = 9 * time.Minute

// Runner executes one enrichment run.
type Runner interface {
	Run(ctx context.Context, ev enrich.Event) (pipeline.Outcome, error)
}

// Config controls per-run limits.
type Config struct {
	RunBudget time.Duration
}

// Dispatcher starts one goroutine per dequeued event. There is no fixed pool;
// concurrency follows event arrival.
type Dispatcher struct {
	queue  enrich.Queue
	runner Runner
	ids    enrich.IDGenerator
	cfg    Config
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New creates a Dispatcher.
func New(queue enrich.Queue, runner Runner, ids enrich.IDGenerator, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.RunBudget <= 0 {
		cfg.RunBudget = DefaultRunBudget
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  queue,
		runner: runner,
		ids:    ids,
		cfg:    cfg,
		logger: logger.Named("dispatcher"),
	}
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, ev enrich.Event) error {
	if err := d.queue.Enqueue(ctx, ev); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Run dequeues events until ctx ends or the queue fails. Runs already started
// keep going under their own budget; call Wait to drain them.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		ev, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Warn("dequeue stopped", zap.Error(err))
			}
			return
		}
		d.Dispatch(ctx, ev)
	}
}

// Drain dispatches every event still buffered in the queue and returns how
// many it started. Call it after the queue has been closed to new events,
// otherwise it blocks until ctx ends.
func (d *Dispatcher) Drain(ctx context.Context) int {
	n := 0
	for {
		ev, err := d.queue.Dequeue(ctx)
		if err != nil {
			if n > 0 {
				d.logger.Info("drained buffered events", zap.Int("count", n))
			}
			return n
		}
		d.Dispatch(ctx, ev)
		n++
	}
}

// Dispatch starts a run for ev in its own goroutine. The run outlives ctx
// cancellation and is bounded only by the run budget.
func (d *Dispatcher) Dispatch(ctx context.Context, ev enrich.Event) {
	runID := d.newRunID()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.RunBudget)
		defer cancel()
		runCtx = logging.WithRunID(runCtx, runID)

		log := d.logger.With(zap.String("run_id", runID), zap.String("record_id", ev.RecordID))
		log.Debug("run started")
		out, err := d.runner.Run(runCtx, ev)
		if err != nil {
			log.Warn("run ended with error", zap.String("status", string(out.Status)), zap.Error(err))
			return
		}
		log.Debug("run finished", zap.String("status", string(out.Status)))
	}()
}

// Wait blocks until every started run has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) newRunID() string {
	if d.ids == nil {
		return ""
	}
	id, err := d.ids.NewID()
	if err != nil {
		d.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}
