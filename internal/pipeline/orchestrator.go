// Package pipeline drives a single enrichment run for one catalog record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-enricher/internal/enrich"
	"github.com/JakeFAU/catalog-enricher/internal/logging"
	"github.com/JakeFAU/catalog-enricher/internal/metrics"
	"github.com/JakeFAU/catalog-enricher/internal/updater"
)

// Strategy outcome labels.
const (
	outcomeSuccess  = "success"
	outcomeDegraded = "degraded"
	outcomeError    = "error"
	outcomeSkipped  = "skipped"
)

// Run status labels beyond the terminal record statuses.
const (
	runAborted  = "aborted"
	runNotFound = "not_found"
)

// ErrNoStrategy is captured when no configured strategy applies to a URL.
var ErrNoStrategy = errors.New("no extraction strategy applies")

// Outcome summarizes a finished run.
type Outcome struct {
	RecordID string
	// Status is the terminal status written, empty when no terminal write landed.
	Status enrich.Status
	// Strategy names the strategy whose result was applied.
	Strategy string
	// Cause is the captured extraction failure, if any.
	Cause error
}

// Orchestrator runs guard, processing write, ordered strategies and the terminal write.
type Orchestrator struct {
	store      enrich.RecordStore
	strategies []enrich.Strategy
	updater    *updater.Updater
	clock      enrich.Clock
	logger     *zap.Logger
}

// New constructs an Orchestrator. Strategies are tried in the order given.
func New(
	store enrich.RecordStore,
	strategies []enrich.Strategy,
	upd *updater.Updater,
	clock enrich.Clock,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if upd == nil {
		upd = updater.New(updater.Config{})
	}
	return &Orchestrator{
		store:      store,
		strategies: append([]enrich.Strategy(nil), strategies...),
		updater:    upd,
		clock:      clock,
		logger:     logger.Named("pipeline"),
	}
}

// Run enriches the record named by ev. The returned error reports faults that
// kept the run from landing its intended terminal write: missing input,
// a missing record, an exceeded budget or a failed terminal write.
func (o *Orchestrator) Run(ctx context.Context, ev enrich.Event) (Outcome, error) {
	start := time.Now()
	log := logging.ForRun(ctx, o.logger).With(
		zap.String("record_id", ev.RecordID),
		zap.String("url", ev.SourceURL),
	)
	metrics.IncInflightRuns()
	defer metrics.DecInflightRuns()

	out, err := o.run(ctx, ev, log)

	label := string(out.Status)
	switch {
	case errors.Is(err, enrich.ErrNotFound):
		label = runNotFound
	case label == "":
		label = runAborted
	}
	metrics.ObserveRun(label, time.Since(start))
	return out, err
}

func (o *Orchestrator) run(ctx context.Context, ev enrich.Event, log *zap.Logger) (Outcome, error) {
	out := Outcome{RecordID: ev.RecordID}

	if strings.TrimSpace(ev.SourceURL) == "" {
		missing := &enrich.MissingInputError{RecordID: ev.RecordID}
		out.Cause = missing
		log.Warn("record has no source url")
		status, err := o.terminal(ctx, ev.RecordID, enrich.FailureUpdate(missing.Error()), log)
		out.Status = status
		if err != nil {
			return out, err
		}
		return out, missing
	}

	rec, err := o.store.Get(ctx, ev.RecordID)
	if err != nil {
		if errors.Is(err, enrich.ErrNotFound) {
			log.Warn("record vanished before enrichment")
			return out, fmt.Errorf("read record %s: %w", ev.RecordID, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, fmt.Errorf("run aborted: %w", ctxErr)
		}
		return o.fail(ctx, out, fmt.Errorf("read record %s: %w", ev.RecordID, err), log)
	}
	if rec.SourceURL == "" {
		rec.SourceURL = ev.SourceURL
	}

	if err := o.store.Update(ctx, ev.RecordID, enrich.StatusUpdate(enrich.StatusProcessing)); err != nil {
		log.Warn("processing write failed; continuing",
			zap.Error(&enrich.RecordWriteError{RecordID: ev.RecordID, Op: "processing", Err: err}))
	}

	res, strategy, cause := o.extract(ctx, ev.SourceURL, log)
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Error("run budget exhausted; leaving record in processing", zap.Error(ctxErr))
		out.Cause = cause
		return out, fmt.Errorf("run aborted: %w", ctxErr)
	}
	if strategy == "" {
		return o.fail(ctx, out, cause, log)
	}

	out.Strategy = strategy
	update := o.updater.Build(rec, res, o.clock.Now())
	status, err := o.terminal(ctx, ev.RecordID, update, log)
	out.Status = status
	if err != nil {
		return out, err
	}
	if res.EnrichmentFailed {
		out.Cause = errors.New(res.ErrorMessage)
	}
	log.Info("record enriched",
		zap.String("status", string(out.Status)),
		zap.String("strategy", strategy),
	)
	return out, nil
}

// extract tries each applicable strategy in order and returns the first result.
// An empty strategy name means every attempt failed and cause holds the last error.
func (o *Orchestrator) extract(ctx context.Context, sourceURL string, log *zap.Logger) (enrich.Result, string, error) {
	var cause error
	for _, s := range o.strategies {
		name := s.Name()
		if ctx.Err() != nil {
			return enrich.Result{}, "", cause
		}
		if !s.Applies(sourceURL) {
			metrics.ObserveStrategy(name, outcomeSkipped)
			continue
		}
		res, err := s.Extract(ctx, sourceURL)
		if err != nil {
			metrics.ObserveStrategy(name, outcomeError)
			log.Warn("strategy failed", zap.String("strategy", name), zap.Error(err))
			cause = err
			continue
		}
		if res.EnrichmentFailed {
			metrics.ObserveStrategy(name, outcomeDegraded)
		} else {
			metrics.ObserveStrategy(name, outcomeSuccess)
		}
		return res, name, nil
	}
	if cause == nil {
		cause = fmt.Errorf("%w: %s", ErrNoStrategy, sourceURL)
	}
	return enrich.Result{}, "", cause
}

func (o *Orchestrator) fail(ctx context.Context, out Outcome, cause error, log *zap.Logger) (Outcome, error) {
	out.Cause = cause
	status, err := o.terminal(ctx, out.RecordID, enrich.FailureUpdate(cause.Error()), log)
	out.Status = status
	if err != nil {
		return out, err
	}
	log.Warn("record enrichment failed", zap.String("status", string(out.Status)), zap.Error(cause))
	return out, nil
}

// terminal writes update and returns the status that actually landed. On
// failure it logs, attempts one failure write and logs again if that also
// fails, in which case the record may be left inconsistent.
func (o *Orchestrator) terminal(
	ctx context.Context,
	id string,
	update enrich.RecordUpdate,
	log *zap.Logger,
) (enrich.Status, error) {
	err := o.store.Update(ctx, id, update)
	if err == nil {
		return *update.MetadataStatus, nil
	}
	writeErr := &enrich.RecordWriteError{RecordID: id, Op: "terminal", Err: err}
	log.Error("terminal write failed", zap.Error(writeErr))

	if retryErr := o.store.Update(ctx, id, enrich.FailureUpdate(writeErr.Error())); retryErr != nil {
		log.Error("best-effort failure write failed; record may be inconsistent",
			zap.Error(&enrich.RecordWriteError{RecordID: id, Op: "failure", Err: retryErr}))
		return "", writeErr
	}
	return enrich.StatusFailed, writeErr
}
