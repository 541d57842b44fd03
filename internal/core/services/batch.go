package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"spatialization-module/internal/core/domain"
	"spatialization-module/internal/core/ports/output"
)

// ProcessFunc handles one top-level unit and returns its item outcomes.
type ProcessFunc func(ctx context.Context, unitID string) ([]domain.MaskOutcome, error)

// BatchDriver runs a ProcessFunc over units, sequentially or on a bounded
// worker pool. A failing or panicking unit never stops the others.
type BatchDriver struct {
	mode    domain.ConcurrencyMode
	workers int
	metrics ports.MetricsRecorder
	tracer  trace.Tracer
}

func NewBatchDriver(opts domain.RunOptions, metrics ports.MetricsRecorder) (*BatchDriver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &BatchDriver{
		mode:    opts.ConcurrencyMode,
		workers: opts.WorkerCount,
		metrics: metrics,
		tracer:  otel.Tracer("spatialization-module/batch"),
	}, nil
}

// Run returns one outcome per unit, in input order regardless of mode.
func (d *BatchDriver) Run(ctx context.Context, units []string, fn ProcessFunc) []domain.UnitOutcome {
	results := make([]domain.UnitOutcome, len(units))

	if d.mode == domain.ConcurrencySequential {
		for i, unit := range units {
			results[i] = d.runUnit(ctx, unit, fn)
		}
		return results
	}

	// plain Group: one unit's failure must not cancel the rest
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, unit := range units {
		g.Go(func() error {
			results[i] = d.runUnit(ctx, unit, fn)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (d *BatchDriver) runUnit(ctx context.Context, unit string, fn ProcessFunc) domain.UnitOutcome {
	ctx, span := d.tracer.Start(ctx, "batch.unit", trace.WithAttributes(attribute.String("unit", unit)))
	defer span.End()

	start := time.Now()
	items, err := safeProcess(ctx, unit, fn)
	out := domain.Summarize(unit, items, err)
	out.Duration = time.Since(start)

	logger := log.WithFields(log.Fields{
		"unit":     unit,
		"status":   out.Status,
		"items":    len(out.Items),
		"duration": out.Duration,
	})
	span.SetAttributes(
		attribute.String("status", string(out.Status)),
		attribute.Int("items", len(out.Items)),
	)
	if out.Status == domain.OutcomeFailed {
		span.SetStatus(codes.Error, out.Reason)
		logger.WithField("reason", out.Reason).Error("Unit failed")
	} else {
		logger.Info("Unit processed")
	}

	if d.metrics != nil {
		d.metrics.ObserveUnit(out.Status)
	}
	return out
}

func safeProcess(ctx context.Context, unit string, fn ProcessFunc) (items []domain.MaskOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("unit", unit).Errorf("panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, unit)
}
