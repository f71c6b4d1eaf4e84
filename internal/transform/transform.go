// Package transform fits the preprocessing pipeline on the validated train
// partition and applies it to both partitions, producing the transformed
// arrays and the serialized preprocessor.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/evolonics/modelprep/internal/artifact"
	"github.com/evolonics/modelprep/internal/layout"
	"github.com/evolonics/modelprep/internal/logging"
	"github.com/evolonics/modelprep/internal/metrics"
	"github.com/evolonics/modelprep/internal/schema"
	"github.com/evolonics/modelprep/internal/storage"
	"github.com/evolonics/modelprep/internal/table"
)

// TargetColumn names the encoded target inside transformed arrays. Parquet
// orders columns by name, so the contract is name-based rather than
// positional.
const TargetColumn = "__target__"

// Error is the fatal transformation failure. Column names the offending
// column when the failure is column-scoped.
type Error struct {
	Column string
	Err    error
}

func (e *Error) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("transformation failed on column %q: %v", e.Column, e.Err)
	}
	return fmt.Sprintf("transformation failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config parameterizes one transformation run.
type Config struct {
	Strategy    string // imputation strategy, "knn" or "mean"
	Neighbors   int
	Compression string
}

// Engine is the transformation stage.
type Engine struct {
	cfg   Config
	store storage.Store
	run   layout.Run
	log   *slog.Logger
}

// NewEngine wires a transformation engine for one run.
func NewEngine(cfg Config, store storage.Store, run layout.Run) *Engine {
	return &Engine{
		cfg:   cfg,
		store: store,
		run:   run,
		log:   logging.StageLogger(run.ID, layout.StageTransformation),
	}
}

// Transform loads the validated partitions, fits the preprocessing
// pipeline on the train features only, applies it to both partitions, and
// writes the transformed arrays plus the serialized preprocessor.
func (e *Engine) Transform(ctx context.Context, val *artifact.Validation, spec *schema.Spec) (*artifact.Transformation, error) {
	if !val.Status {
		return nil, &Error{Err: fmt.Errorf("validation status is false for run %s", val.RunID)}
	}
	e.log.Info("starting transformation",
		"strategy", e.cfg.Strategy,
		"neighbors", e.cfg.Neighbors,
		"target", spec.TargetColumn,
	)

	train, err := e.loadPartition(ctx, val.ValidatedTrainPath)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("load validated train: %w", err)}
	}
	test, err := e.loadPartition(ctx, val.ValidatedTestPath)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("load validated test: %w", err)}
	}

	target := spec.TargetColumn
	if !train.HasColumn(target) || !test.HasColumn(target) {
		return nil, &Error{Column: target, Err: fmt.Errorf("target column not present in validated partitions")}
	}

	var features []string
	for _, c := range train.Columns() {
		if c == target {
			continue
		}
		if !test.HasColumn(c) {
			return nil, &Error{Column: c, Err: fmt.Errorf("feature column missing from test partition")}
		}
		features = append(features, c)
	}
	if len(features) == 0 {
		return nil, &Error{Err: fmt.Errorf("no feature columns besides target %q", target)}
	}

	xTrain, err := featureMatrix(train, features)
	if err != nil {
		return nil, err
	}
	xTest, err := featureMatrix(test, features)
	if err != nil {
		return nil, err
	}

	yTrain, yTest, labels, err := encodeTarget(train, test, target)
	if err != nil {
		return nil, err
	}

	fitted, err := NewPipeline(PipelineConfig{Strategy: e.cfg.Strategy, Neighbors: e.cfg.Neighbors}).Fit(features, xTrain)
	if err != nil {
		return nil, err
	}
	fitted.TargetLabels = labels

	trainOut, trainImputed, err := fitted.Transform(xTrain)
	if err != nil {
		return nil, err
	}
	testOut, testImputed, err := fitted.Transform(xTest)
	if err != nil {
		return nil, err
	}
	if m := metrics.Get(); m != nil {
		m.AddCellsImputed("train", float64(trainImputed))
		m.AddCellsImputed("test", float64(testImputed))
	}
	e.log.Info("pipeline fitted and applied",
		"features", len(features),
		"train_cells_imputed", trainImputed,
		"test_cells_imputed", testImputed,
	)

	if err := e.writeArray(ctx, e.run.TransformedTrain(), "transformed_train", features, trainOut, yTrain); err != nil {
		return nil, err
	}
	if err := e.writeArray(ctx, e.run.TransformedTest(), "transformed_test", features, testOut, yTest); err != nil {
		return nil, err
	}

	blob, err := fitted.Marshal()
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("serialize preprocessor: %w", err)}
	}
	if err := e.store.Write(ctx, e.run.Preprocessor(), blob); err != nil {
		return nil, &Error{Err: fmt.Errorf("write preprocessor: %w", err)}
	}

	e.log.Info("transformation complete",
		"train_rows", len(trainOut),
		"test_rows", len(testOut),
	)

	return &artifact.Transformation{
		RunID:            e.run.ID,
		TrainArrayPath:   e.run.TransformedTrain(),
		TestArrayPath:    e.run.TransformedTest(),
		PreprocessorPath: e.run.Preprocessor(),
		Producer:         artifact.NewProducer(logging.GenerateCorrelationID()),
	}, nil
}

func (e *Engine) loadPartition(ctx context.Context, key string) (*table.Table, error) {
	raw, err := e.store.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	t, err := table.UnmarshalParquet(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return t, nil
}

// writeArray persists one transformed partition: the scaled feature matrix
// with the encoded target appended as its own column.
func (e *Engine) writeArray(ctx context.Context, key, name string, features []string, x [][]float64, y []float64) error {
	if len(x) != len(y) {
		return &Error{Err: fmt.Errorf("%s: %d feature rows but %d target values", name, len(x), len(y))}
	}
	names := append(append([]string(nil), features...), TargetColumn)
	rows := make([][]float64, len(x))
	for i := range x {
		rows[i] = append(append([]float64(nil), x[i]...), y[i])
	}
	t, err := table.FromMatrix(names, rows)
	if err != nil {
		return &Error{Err: fmt.Errorf("assemble %s: %w", name, err)}
	}
	data, err := t.MarshalParquet(e.cfg.Compression)
	if err != nil {
		return &Error{Err: fmt.Errorf("encode %s: %w", name, err)}
	}
	if err := e.store.Write(ctx, key, data); err != nil {
		return &Error{Err: fmt.Errorf("write %s: %w", name, err)}
	}
	if m := metrics.Get(); m != nil {
		m.ObservePartitionRows(name, float64(t.NumRows()))
		m.ObservePartitionBytes(name, float64(len(data)))
	}
	e.log.Debug("array written", "partition", name, "key", key, "rows", t.NumRows(), "bytes", len(data))
	return nil
}

// featureMatrix coerces the named feature columns into a dense matrix and
// attributes coercion failures to the offending column.
func featureMatrix(t *table.Table, names []string) ([][]float64, error) {
	m, err := t.NumericMatrix(names)
	if err == nil {
		return m, nil
	}
	for _, name := range names {
		if _, cerr := t.NumericMatrix([]string{name}); cerr != nil {
			return nil, &Error{Column: name, Err: fmt.Errorf("feature column is not coercible to numeric")}
		}
	}
	return nil, &Error{Err: err}
}

// encodeTarget produces the numeric target vectors. Numeric targets pass
// through with -1 remapped to 0; categorical targets are label-encoded
// against the vocabulary of the training partition, in which case the
// sorted labels are returned for the preprocessor record.
func encodeTarget(train, test *table.Table, target string) (yTrain, yTest []float64, labels []string, err error) {
	trainKind, _ := train.ColumnKind(target)
	testKind, _ := test.ColumnKind(target)

	if trainKind == table.KindNumeric && testKind == table.KindNumeric {
		yTrain, err = numericTarget(train, target)
		if err != nil {
			return nil, nil, nil, err
		}
		yTest, err = numericTarget(test, target)
		if err != nil {
			return nil, nil, nil, err
		}
		return yTrain, yTest, nil, nil
	}

	seen := make(map[string]bool)
	for i := 0; i < train.NumRows(); i++ {
		key, kerr := targetKey(train, i, target)
		if kerr != nil {
			return nil, nil, nil, kerr
		}
		seen[key] = true
	}
	labels = make([]string, 0, len(seen))
	for k := range seen {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	codes := make(map[string]float64, len(labels))
	for i, l := range labels {
		codes[l] = float64(i)
	}

	encode := func(t *table.Table) ([]float64, error) {
		y := make([]float64, t.NumRows())
		for i := 0; i < t.NumRows(); i++ {
			key, kerr := targetKey(t, i, target)
			if kerr != nil {
				return nil, kerr
			}
			code, ok := codes[key]
			if !ok {
				return nil, &Error{Column: target, Err: fmt.Errorf("label %q not seen in training partition", key)}
			}
			y[i] = code
		}
		return y, nil
	}

	yTrain, err = encode(train)
	if err != nil {
		return nil, nil, nil, err
	}
	yTest, err = encode(test)
	if err != nil {
		return nil, nil, nil, err
	}
	return yTrain, yTest, labels, nil
}

func numericTarget(t *table.Table, target string) ([]float64, error) {
	y := make([]float64, t.NumRows())
	for i := 0; i < t.NumRows(); i++ {
		c, _ := t.Cell(i, target)
		if c.Null {
			return nil, &Error{Column: target, Err: fmt.Errorf("target has a missing value at row %d", i)}
		}
		v := c.Num
		// Sources that mark the negative class as -1 are normalized to 0/1.
		if v == -1 {
			v = 0
		}
		y[i] = v
	}
	return y, nil
}

func targetKey(t *table.Table, i int, target string) (string, error) {
	c, _ := t.Cell(i, target)
	if c.Null {
		return "", &Error{Column: target, Err: fmt.Errorf("target has a missing value at row %d", i)}
	}
	return t.StratumKey(i, target), nil
}
