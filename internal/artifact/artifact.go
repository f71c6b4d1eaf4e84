// Package artifact defines the stage metadata records threaded between
// pipeline stages. Metadata is the sole inter-stage channel: small JSON
// mappings of paths, booleans and short status strings, never data.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evolonics/modelprep/internal/storage"
)

// ProducerName identifies this pipeline in artifact metadata.
const ProducerName = "modelprep"

// Version and GitSHA are set at build time via -ldflags.
var (
	Version = "dev"
	GitSHA  = ""
)

// Producer records what produced an artifact.
type Producer struct {
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	GitSHA    string    `json:"git_sha,omitempty"`
	BuildID   string    `json:"build_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProducer stamps a producer record with the given build ID.
func NewProducer(buildID string) Producer {
	return Producer{
		Name:      ProducerName,
		Version:   Version,
		GitSHA:    GitSHA,
		BuildID:   buildID,
		CreatedAt: time.Now().UTC(),
	}
}

// Ingestion is the metadata emitted by the ingestion stage.
type Ingestion struct {
	RunID            string   `json:"run_id"`
	FeatureStorePath string   `json:"feature_store_path"`
	TrainPath        string   `json:"train_path"`
	TestPath         string   `json:"test_path"`
	Rows             int64    `json:"rows"`
	TrainRows        int64    `json:"train_rows"`
	TestRows         int64    `json:"test_rows"`
	Producer         Producer `json:"producer"`
}

// Validation is the metadata emitted by the validation stage. Status is
// true iff every required column is present in both partitions; drift is
// reported separately and never gates.
type Validation struct {
	RunID              string   `json:"run_id"`
	ValidatedTrainPath string   `json:"validated_train_path"`
	ValidatedTestPath  string   `json:"validated_test_path"`
	DriftReportPath    string   `json:"drift_report_path"`
	Status             bool     `json:"validation_status"`
	Producer           Producer `json:"producer"`
}

// Transformation is the metadata emitted by the transformation stage.
type Transformation struct {
	RunID            string   `json:"run_id"`
	TrainArrayPath   string   `json:"transformed_train_path"`
	TestArrayPath    string   `json:"transformed_test_path"`
	PreprocessorPath string   `json:"preprocessor_path"`
	Producer         Producer `json:"producer"`
}

// Save writes a metadata record as indented JSON at key.
func Save(ctx context.Context, st storage.Store, key string, m any) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := st.Write(ctx, key, data); err != nil {
		return fmt.Errorf("write metadata %s: %w", key, err)
	}
	return nil
}

// Load reads a metadata record from key.
func Load[T any](ctx context.Context, st storage.Store, key string) (*T, error) {
	data, err := st.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", key, err)
	}
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", key, err)
	}
	return &m, nil
}
