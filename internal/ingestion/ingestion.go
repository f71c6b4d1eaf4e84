// Package ingestion streams records from the source, materializes the
// feature table, and writes the feature store plus the stratified
// train/test partitions.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/evolonics/modelprep/internal/artifact"
	"github.com/evolonics/modelprep/internal/layout"
	"github.com/evolonics/modelprep/internal/logging"
	"github.com/evolonics/modelprep/internal/metrics"
	"github.com/evolonics/modelprep/internal/schema"
	"github.com/evolonics/modelprep/internal/source"
	"github.com/evolonics/modelprep/internal/storage"
	"github.com/evolonics/modelprep/internal/table"
)

var (
	// ErrEmptySource marks a source that yielded no records.
	ErrEmptySource = errors.New("source returned no records")

	// ErrMissingTarget marks a produced table without the target column.
	ErrMissingTarget = errors.New("target column missing from ingested table")
)

// Error is the fatal ingestion failure. Rows carries how many records were
// read before the failure, for diagnosis without a re-run.
type Error struct {
	Rows int64
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ingestion failed after %d rows: %v", e.Rows, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config parameterizes one ingestion run.
type Config struct {
	BatchSize    int
	BatchTimeout time.Duration
	TestFraction float64
	Seed         int64
	Compression  string
	SourceType   string // metrics label, e.g. "blob"
}

// Engine is the ingestion stage.
type Engine struct {
	cfg   Config
	src   source.RecordSource
	store storage.Store
	run   layout.Run
	log   *slog.Logger
}

// NewEngine wires an ingestion engine for one run.
func NewEngine(cfg Config, src source.RecordSource, store storage.Store, run layout.Run) *Engine {
	return &Engine{
		cfg:   cfg,
		src:   src,
		store: store,
		run:   run,
		log:   logging.StageLogger(run.ID, layout.StageIngestion),
	}
}

// Ingest streams the source in bounded batches, writes the feature store,
// splits stratified on the schema's target column, and writes both
// partitions. The full table is held in memory for the split step, which
// bounds supported sources to workstation memory.
func (e *Engine) Ingest(ctx context.Context, spec *schema.Spec) (*artifact.Ingestion, error) {
	e.log.Info("starting ingestion", "batch_size", e.cfg.BatchSize, "test_fraction", e.cfg.TestFraction)

	if err := e.pingSource(ctx); err != nil {
		return nil, &Error{Err: fmt.Errorf("source unreachable: %w", err)}
	}

	builder := table.NewBuilder()
	if err := e.readAll(ctx, builder); err != nil {
		return nil, &Error{Rows: int64(builder.Rows()), Err: err}
	}
	rows := int64(builder.Rows())
	if rows == 0 {
		return nil, &Error{Err: ErrEmptySource}
	}
	e.log.Info("source drained", "rows", rows)

	tbl, err := builder.Build()
	if err != nil {
		return nil, &Error{Rows: rows, Err: err}
	}
	if !tbl.HasColumn(spec.TargetColumn) {
		return nil, &Error{Rows: rows, Err: fmt.Errorf("%w: %q", ErrMissingTarget, spec.TargetColumn)}
	}

	if err := e.writePartition(ctx, e.run.FeatureStore(), "feature_store", tbl); err != nil {
		return nil, &Error{Rows: rows, Err: err}
	}

	train, test, err := table.StratifiedSplit(tbl, spec.TargetColumn, e.cfg.TestFraction, e.cfg.Seed)
	if err != nil {
		return nil, &Error{Rows: rows, Err: fmt.Errorf("stratified split: %w", err)}
	}
	if err := e.writePartition(ctx, e.run.IngestedTrain(), "train", train); err != nil {
		return nil, &Error{Rows: rows, Err: err}
	}
	if err := e.writePartition(ctx, e.run.IngestedTest(), "test", test); err != nil {
		return nil, &Error{Rows: rows, Err: err}
	}

	e.log.Info("ingestion complete",
		"rows", rows,
		"train_rows", train.NumRows(),
		"test_rows", test.NumRows(),
	)

	return &artifact.Ingestion{
		RunID:            e.run.ID,
		FeatureStorePath: e.run.FeatureStore(),
		TrainPath:        e.run.IngestedTrain(),
		TestPath:         e.run.IngestedTest(),
		Rows:             rows,
		TrainRows:        int64(train.NumRows()),
		TestRows:         int64(test.NumRows()),
		Producer:         artifact.NewProducer(logging.GenerateCorrelationID()),
	}, nil
}

// pingSource fails fast on bad hosts or credentials before streaming.
func (e *Engine) pingSource(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, e.batchTimeout())
	defer cancel()
	return e.src.Ping(pctx)
}

// readAll drains the source as a sequence of blocking batch fetches, each
// bounded by count and a finite timeout so no long-lived cursor is held.
func (e *Engine) readAll(ctx context.Context, builder *table.Builder) error {
	for {
		batch, err := e.fetchBatch(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("fetch batch: %w", err)
		}

		for _, rec := range batch {
			builder.Append(map[string]any(rec))
		}

		if m := metrics.Get(); m != nil {
			m.IncBatchesFetched(e.cfg.SourceType)
			m.AddRowsIngested(e.cfg.SourceType, float64(len(batch)))
		}
	}
}

func (e *Engine) fetchBatch(ctx context.Context) ([]source.Record, error) {
	bctx, cancel := context.WithTimeout(ctx, e.batchTimeout())
	defer cancel()
	return e.src.Next(bctx, e.cfg.BatchSize)
}

func (e *Engine) batchTimeout() time.Duration {
	if e.cfg.BatchTimeout > 0 {
		return e.cfg.BatchTimeout
	}
	return 30 * time.Second
}

func (e *Engine) writePartition(ctx context.Context, key, name string, t *table.Table) error {
	data, err := t.MarshalParquet(e.cfg.Compression)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := e.store.Write(ctx, key, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if m := metrics.Get(); m != nil {
		m.ObservePartitionRows(name, float64(t.NumRows()))
		m.ObservePartitionBytes(name, float64(len(data)))
	}
	e.log.Debug("partition written", "partition", name, "key", key, "rows", t.NumRows(), "bytes", len(data))
	return nil
}
