// Package validation checks ingested partitions against the declared
// schema and reports distributional drift between train and test.
package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evolonics/modelprep/internal/artifact"
	"github.com/evolonics/modelprep/internal/layout"
	"github.com/evolonics/modelprep/internal/logging"
	"github.com/evolonics/modelprep/internal/metrics"
	"github.com/evolonics/modelprep/internal/schema"
	"github.com/evolonics/modelprep/internal/storage"
	"github.com/evolonics/modelprep/internal/table"
)

// SchemaError is the fatal schema-check failure: required columns missing
// from one or both partitions. No validated copies are written when it is
// raised.
type SchemaError struct {
	// Missing maps partition name ("train", "test") to its missing columns.
	Missing map[string][]string
}

func (e *SchemaError) Error() string {
	var parts []string
	for _, part := range []string{"train", "test"} {
		if cols := e.Missing[part]; len(cols) > 0 {
			parts = append(parts, fmt.Sprintf("%s missing %v", part, cols))
		}
	}
	return "schema validation failed: " + strings.Join(parts, "; ")
}

// Config parameterizes one validation run.
type Config struct {
	Alpha float64 // drift significance threshold
}

// Engine is the validation stage.
type Engine struct {
	cfg   Config
	store storage.Store
	run   layout.Run
	log   *slog.Logger
}

// NewEngine wires a validation engine for one run.
func NewEngine(cfg Config, store storage.Store, run layout.Run) *Engine {
	return &Engine{
		cfg:   cfg,
		store: store,
		run:   run,
		log:   logging.StageLogger(run.ID, layout.StageValidation),
	}
}

// Validate loads the ingested partitions named by the predecessor's
// metadata, checks their column sets against the schema, computes the
// drift report, and on success writes byte-identical validated copies.
func (e *Engine) Validate(ctx context.Context, ing *artifact.Ingestion, spec *schema.Spec) (*artifact.Validation, error) {
	e.log.Info("starting validation", "train", ing.TrainPath, "test", ing.TestPath, "alpha", e.cfg.Alpha)

	rawTrain, train, err := e.loadPartition(ctx, ing.TrainPath)
	if err != nil {
		return nil, fmt.Errorf("load train partition: %w", err)
	}
	rawTest, test, err := e.loadPartition(ctx, ing.TestPath)
	if err != nil {
		return nil, fmt.Errorf("load test partition: %w", err)
	}

	missing := map[string][]string{
		"train": spec.Missing(train.Columns()),
		"test":  spec.Missing(test.Columns()),
	}
	if len(missing["train"]) > 0 || len(missing["test"]) > 0 {
		for _, part := range []string{"train", "test"} {
			if len(missing[part]) > 0 {
				if m := metrics.Get(); m != nil {
					m.IncSchemaFailures(part)
				}
				e.log.Error("required columns missing", "partition", part, "columns", missing[part])
			}
		}
		return nil, &SchemaError{Missing: missing}
	}

	entries, drifted := computeDrift(train, test, e.cfg.Alpha)
	report := &DriftReport{
		RunID:        e.run.ID,
		Alpha:        e.cfg.Alpha,
		GeneratedAt:  time.Now().UTC(),
		DriftedCount: drifted,
		Columns:      entries,
	}
	if err := e.writeReport(ctx, report); err != nil {
		return nil, err
	}
	if m := metrics.Get(); m != nil {
		m.SetDriftedColumns(e.run.ID, float64(drifted))
	}
	e.log.Info("drift report written", "columns", len(entries), "drifted", drifted)

	// Validated copies are the raw partition bytes, so downstream stages
	// read from a stable location independent of the ingestion layout.
	if err := e.store.Write(ctx, e.run.ValidatedTrain(), rawTrain); err != nil {
		return nil, fmt.Errorf("write validated train: %w", err)
	}
	if err := e.store.Write(ctx, e.run.ValidatedTest(), rawTest); err != nil {
		return nil, fmt.Errorf("write validated test: %w", err)
	}

	e.log.Info("validation complete", "status", true)

	return &artifact.Validation{
		RunID:              e.run.ID,
		ValidatedTrainPath: e.run.ValidatedTrain(),
		ValidatedTestPath:  e.run.ValidatedTest(),
		DriftReportPath:    e.run.DriftReport(),
		Status:             true,
		Producer:           artifact.NewProducer(logging.GenerateCorrelationID()),
	}, nil
}

func (e *Engine) loadPartition(ctx context.Context, key string) ([]byte, *table.Table, error) {
	raw, err := e.store.Read(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	t, err := table.UnmarshalParquet(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return raw, t, nil
}

func (e *Engine) writeReport(ctx context.Context, report *DriftReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal drift report: %w", err)
	}
	if err := e.store.Write(ctx, e.run.DriftReport(), data); err != nil {
		return fmt.Errorf("write drift report: %w", err)
	}
	return nil
}
