// Package pipeline orchestrates the three preparation stages. Stages run
// strictly sequentially; each consumes its predecessor's metadata record
// from the artifact store, so any stage can also be re-run on its own
// against an existing run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evolonics/modelprep/internal/artifact"
	"github.com/evolonics/modelprep/internal/config"
	"github.com/evolonics/modelprep/internal/ingestion"
	"github.com/evolonics/modelprep/internal/layout"
	"github.com/evolonics/modelprep/internal/logging"
	"github.com/evolonics/modelprep/internal/metrics"
	"github.com/evolonics/modelprep/internal/schema"
	"github.com/evolonics/modelprep/internal/source"
	"github.com/evolonics/modelprep/internal/storage"
	"github.com/evolonics/modelprep/internal/transform"
	"github.com/evolonics/modelprep/internal/validation"
)

// Runner executes pipeline stages for one run.
type Runner struct {
	cfg      config.Config
	store    storage.Store
	run      layout.Run
	spec     *schema.Spec
	manifest *ManifestManager
	log      *slog.Logger
}

// NewRunner wires a runner for one run.
func NewRunner(cfg config.Config, store storage.Store, run layout.Run, spec *schema.Spec) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    store,
		run:      run,
		spec:     spec,
		manifest: NewManifestManager(store, run),
		log:      logging.RunLogger(logging.GenerateCorrelationID(), run.ID),
	}
}

// RunAll executes ingestion, validation and transformation in order,
// stopping at the first failure.
func (r *Runner) RunAll(ctx context.Context) error {
	ing, err := r.RunIngestion(ctx)
	if err != nil {
		return err
	}
	val, err := r.RunValidation(ctx, ing)
	if err != nil {
		return err
	}
	if _, err := r.RunTransformation(ctx, val); err != nil {
		return err
	}
	r.log.Info("run complete", "run_id", r.run.ID)
	return nil
}

// RunIngestion opens the configured record source, runs the ingestion
// stage, and persists its metadata record.
func (r *Runner) RunIngestion(ctx context.Context) (*artifact.Ingestion, error) {
	var ing *artifact.Ingestion
	err := r.runStage(ctx, layout.StageIngestion, func(ctx context.Context) error {
		src, err := source.New(ctx, source.Config{
			Mode:      r.cfg.Source.Mode,
			BucketURL: r.cfg.Source.BucketURL,
			Prefix:    r.cfg.Source.Prefix,
		})
		if err != nil {
			return fmt.Errorf("open source: %w", err)
		}
		defer src.Close()

		engine := ingestion.NewEngine(ingestion.Config{
			BatchSize:    r.cfg.Source.BatchSize,
			BatchTimeout: r.cfg.Source.BatchTimeout,
			TestFraction: r.cfg.Split.TestFraction,
			Seed:         r.cfg.Split.Seed,
			Compression:  r.cfg.Artifacts.Compression,
			SourceType:   r.cfg.Source.Mode,
		}, src, r.store, r.run)

		ing, err = engine.Ingest(ctx, r.spec)
		if err != nil {
			return err
		}
		return artifact.Save(ctx, r.store, r.run.StageMetadata(layout.StageIngestion), ing)
	})
	return ing, err
}

// RunValidation runs the validation stage against an ingestion record. A
// nil record is loaded from the run's stored metadata, which supports
// re-running the stage on its own.
func (r *Runner) RunValidation(ctx context.Context, ing *artifact.Ingestion) (*artifact.Validation, error) {
	var val *artifact.Validation
	err := r.runStage(ctx, layout.StageValidation, func(ctx context.Context) error {
		var err error
		if ing == nil {
			ing, err = artifact.Load[artifact.Ingestion](ctx, r.store, r.run.StageMetadata(layout.StageIngestion))
			if err != nil {
				return err
			}
		}
		engine := validation.NewEngine(validation.Config{
			Alpha: r.cfg.Drift.Alpha,
		}, r.store, r.run)
		val, err = engine.Validate(ctx, ing, r.spec)
		if err != nil {
			return err
		}
		return artifact.Save(ctx, r.store, r.run.StageMetadata(layout.StageValidation), val)
	})
	return val, err
}

// RunTransformation runs the transformation stage against a validation
// record, loading it from stored metadata when nil.
func (r *Runner) RunTransformation(ctx context.Context, val *artifact.Validation) (*artifact.Transformation, error) {
	var tr *artifact.Transformation
	err := r.runStage(ctx, layout.StageTransformation, func(ctx context.Context) error {
		var err error
		if val == nil {
			val, err = artifact.Load[artifact.Validation](ctx, r.store, r.run.StageMetadata(layout.StageValidation))
			if err != nil {
				return err
			}
		}
		engine := transform.NewEngine(transform.Config{
			Strategy:    r.cfg.Imputer.Strategy,
			Neighbors:   r.cfg.Imputer.Neighbors,
			Compression: r.cfg.Artifacts.Compression,
		}, r.store, r.run)
		tr, err = engine.Transform(ctx, val, r.spec)
		if err != nil {
			return err
		}
		return artifact.Save(ctx, r.store, r.run.StageMetadata(layout.StageTransformation), tr)
	})
	return tr, err
}

// runStage brackets a stage with manifest transitions, metrics and timing.
func (r *Runner) runStage(ctx context.Context, stage string, fn func(context.Context) error) error {
	if err := r.manifest.StageStarted(ctx, stage); err != nil {
		return fmt.Errorf("record stage start: %w", err)
	}
	r.log.Info("stage started", "stage", stage)
	start := time.Now()

	err := fn(ctx)
	elapsed := time.Since(start)

	if m := metrics.Get(); m != nil {
		m.ObserveStageDuration(stage, elapsed.Seconds())
	}

	if err != nil {
		if m := metrics.Get(); m != nil {
			m.IncStagesFailed(stage)
		}
		r.log.Error("stage failed", "stage", stage, "duration", elapsed, "error", err)
		if merr := r.manifest.StageFailed(ctx, stage, err); merr != nil {
			r.log.Error("manifest update failed", "stage", stage, "error", merr)
		}
		return fmt.Errorf("%s: %w", stage, err)
	}

	if m := metrics.Get(); m != nil {
		m.IncStagesCompleted(stage)
	}
	if merr := r.manifest.StageCompleted(ctx, stage); merr != nil {
		return fmt.Errorf("record stage completion: %w", merr)
	}
	r.log.Info("stage completed", "stage", stage, "duration", elapsed)
	return nil
}
