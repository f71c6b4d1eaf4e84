package artifact

import (
	"context"
	"testing"

	"github.com/evolonics/modelprep/internal/storage"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	in := &Ingestion{
		RunID:            "20240309_143005",
		FeatureStorePath: "20240309_143005/data_ingestion/feature_store/features.parquet",
		TrainPath:        "20240309_143005/data_ingestion/ingested/train.parquet",
		TestPath:         "20240309_143005/data_ingestion/ingested/test.parquet",
		Rows:             100,
		TrainRows:        80,
		TestRows:         20,
		Producer:         NewProducer("build-1"),
	}
	if err := Save(ctx, store, "20240309_143005/metadata/data_ingestion.json", in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load[Ingestion](ctx, store, "20240309_143005/metadata/data_ingestion.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.RunID != in.RunID || out.Rows != 100 || out.TrainPath != in.TrainPath {
		t.Errorf("loaded = %+v", out)
	}
	if out.Producer.Name != ProducerName || out.Producer.BuildID != "build-1" {
		t.Errorf("producer = %+v", out.Producer)
	}
}

func TestLoadMissingKey(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Load[Validation](context.Background(), store, "nope/run.json"); err == nil {
		t.Fatal("expected error for missing metadata")
	}
}
