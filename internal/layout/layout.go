// Package layout computes the run-scoped artifact directory tree.
//
// Every stage output lives under a timestamp-keyed run root:
//
//	<run-id>/data_ingestion/feature_store/features.parquet
//	<run-id>/data_ingestion/ingested/{train,test}.parquet
//	<run-id>/data_validation/validated/{train,test}.parquet
//	<run-id>/data_validation/drift_report/report.json
//	<run-id>/data_transformation/transformed/{train,test}.parquet
//	<run-id>/data_transformation/transformed_object/preprocessor.json
//	<run-id>/metadata/<stage>.json
//	<run-id>/run.json
//
// A Run is a pure value; it never touches the filesystem. Keys are
// slash-separated and relative to the artifact store root, so concurrent
// runs own disjoint subtrees.
package layout

import (
	"path"
	"time"
)

// RunIDFormat is the timestamp layout used for run identifiers.
const RunIDFormat = "20060102_150405"

// Stage names, used for metadata keys and the run manifest.
const (
	StageIngestion      = "data_ingestion"
	StageValidation     = "data_validation"
	StageTransformation = "data_transformation"
)

// Run identifies one pipeline execution's artifact subtree.
type Run struct {
	ID string
}

// NewRun derives a run from a timestamp.
func NewRun(ts time.Time) Run {
	return Run{ID: ts.UTC().Format(RunIDFormat)}
}

// FromID wraps an existing run identifier, for stages resuming a run
// started by an earlier stage invocation.
func FromID(id string) Run {
	return Run{ID: id}
}

func (r Run) key(parts ...string) string {
	return path.Join(append([]string{r.ID}, parts...)...)
}

// FeatureStore is the unsplit ingested table, kept for audit.
func (r Run) FeatureStore() string {
	return r.key(StageIngestion, "feature_store", "features.parquet")
}

func (r Run) IngestedTrain() string {
	return r.key(StageIngestion, "ingested", "train.parquet")
}

func (r Run) IngestedTest() string {
	return r.key(StageIngestion, "ingested", "test.parquet")
}

func (r Run) ValidatedTrain() string {
	return r.key(StageValidation, "validated", "train.parquet")
}

func (r Run) ValidatedTest() string {
	return r.key(StageValidation, "validated", "test.parquet")
}

func (r Run) DriftReport() string {
	return r.key(StageValidation, "drift_report", "report.json")
}

func (r Run) TransformedTrain() string {
	return r.key(StageTransformation, "transformed", "train.parquet")
}

func (r Run) TransformedTest() string {
	return r.key(StageTransformation, "transformed", "test.parquet")
}

func (r Run) Preprocessor() string {
	return r.key(StageTransformation, "transformed_object", "preprocessor.json")
}

// StageMetadata is the JSON record a stage hands to its successor.
func (r Run) StageMetadata(stage string) string {
	return r.key("metadata", stage+".json")
}

// Manifest is the per-run status record.
func (r Run) Manifest() string {
	return r.key("run.json")
}
