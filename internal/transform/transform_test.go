package transform

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/evolonics/modelprep/internal/artifact"
	"github.com/evolonics/modelprep/internal/layout"
	"github.com/evolonics/modelprep/internal/schema"
	"github.com/evolonics/modelprep/internal/storage"
	"github.com/evolonics/modelprep/internal/table"
)

type fixture struct {
	store storage.Store
	run   layout.Run
	val   *artifact.Validation
}

func writeValidated(t *testing.T, train, test *table.Table) *fixture {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	run := layout.NewRun(time.Now())
	ctx := context.Background()

	for _, p := range []struct {
		key string
		tbl *table.Table
	}{
		{run.ValidatedTrain(), train},
		{run.ValidatedTest(), test},
	} {
		data, err := p.tbl.MarshalParquet("")
		if err != nil {
			t.Fatal(err)
		}
		if err := store.Write(ctx, p.key, data); err != nil {
			t.Fatal(err)
		}
	}

	return &fixture{
		store: store,
		run:   run,
		val: &artifact.Validation{
			RunID:              run.ID,
			ValidatedTrainPath: run.ValidatedTrain(),
			ValidatedTestPath:  run.ValidatedTest(),
			Status:             true,
		},
	}
}

func buildTable(t *testing.T, rows []map[string]any) *table.Table {
	t.Helper()
	b := table.NewBuilder()
	for _, r := range rows {
		b.Append(r)
	}
	tbl, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return tbl
}

func mustSpec(t *testing.T, doc string) *schema.Spec {
	t.Helper()
	spec, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func signedRows(n int, sign float64) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		v := any(float64(i))
		if i%4 == 3 {
			v = "na"
		}
		rows[i] = map[string]any{"f1": v, "f2": float64(i % 3), "result": sign}
	}
	return rows
}

func TestTransformProducesArraysAndPreprocessor(t *testing.T) {
	fx := writeValidated(t,
		buildTable(t, signedRows(20, 1)),
		buildTable(t, signedRows(8, -1)),
	)
	spec := mustSpec(t, "columns: [f1, f2, result]\ntarget_column: result\n")

	engine := NewEngine(Config{Strategy: "knn", Neighbors: 3}, fx.store, fx.run)
	tr, err := engine.Transform(context.Background(), fx.val, spec)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	ctx := context.Background()
	for _, key := range []string{tr.TrainArrayPath, tr.TestArrayPath, tr.PreprocessorPath} {
		ok, err := fx.store.Exists(ctx, key)
		if err != nil || !ok {
			t.Errorf("artifact %s missing (%v)", key, err)
		}
	}

	data, err := fx.store.Read(ctx, tr.TrainArrayPath)
	if err != nil {
		t.Fatal(err)
	}
	arr, err := table.UnmarshalParquet(data)
	if err != nil {
		t.Fatalf("decode train array: %v", err)
	}
	if arr.NumRows() != 20 {
		t.Errorf("train array rows = %d, want 20", arr.NumRows())
	}
	if !arr.HasColumn(TargetColumn) {
		t.Fatalf("train array lacks %s column", TargetColumn)
	}
	if arr.MissingCount() != 0 {
		t.Errorf("train array has %d missing cells after imputation", arr.MissingCount())
	}
	// positive class passes through unchanged
	if c, _ := arr.Cell(0, TargetColumn); c.Num != 1 {
		t.Errorf("train target = %v, want 1", c.Num)
	}

	// the -1 class is normalized to 0
	data, err = fx.store.Read(ctx, tr.TestArrayPath)
	if err != nil {
		t.Fatal(err)
	}
	testArr, err := table.UnmarshalParquet(data)
	if err != nil {
		t.Fatal(err)
	}
	if c, _ := testArr.Cell(0, TargetColumn); c.Num != 0 {
		t.Errorf("test target = %v, want 0 after -1 normalization", c.Num)
	}

	// the preprocessor reloads and reproduces the transform
	blob, err := fx.store.Read(ctx, tr.PreprocessorPath)
	if err != nil {
		t.Fatal(err)
	}
	fitted, err := LoadFitted(blob)
	if err != nil {
		t.Fatalf("LoadFitted: %v", err)
	}
	out, _, err := fitted.Transform([][]float64{{1, math.NaN()}})
	if err != nil {
		t.Fatalf("reloaded Transform: %v", err)
	}
	if math.IsNaN(out[0][0]) || math.IsNaN(out[0][1]) {
		t.Errorf("reloaded pipeline left missing cells: %v", out[0])
	}
}

func TestTransformLabelEncodesStringTarget(t *testing.T) {
	rows := func(labels ...string) []map[string]any {
		out := make([]map[string]any, len(labels))
		for i, l := range labels {
			out[i] = map[string]any{"f1": float64(i), "result": l}
		}
		return out
	}
	fx := writeValidated(t,
		buildTable(t, rows("spam", "ham", "spam", "ham")),
		buildTable(t, rows("ham", "spam")),
	)
	spec := mustSpec(t, "columns: [f1, result]\ntarget_column: result\n")

	engine := NewEngine(Config{Strategy: "mean"}, fx.store, fx.run)
	tr, err := engine.Transform(context.Background(), fx.val, spec)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	ctx := context.Background()
	blob, _ := fx.store.Read(ctx, tr.PreprocessorPath)
	fitted, err := LoadFitted(blob)
	if err != nil {
		t.Fatal(err)
	}
	// vocabulary is sorted: ham=0, spam=1
	if len(fitted.TargetLabels) != 2 || fitted.TargetLabels[0] != "ham" || fitted.TargetLabels[1] != "spam" {
		t.Fatalf("TargetLabels = %v", fitted.TargetLabels)
	}

	data, _ := fx.store.Read(ctx, tr.TestArrayPath)
	arr, err := table.UnmarshalParquet(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 1} // ham, spam
	for i, w := range want {
		if c, _ := arr.Cell(i, TargetColumn); c.Num != w {
			t.Errorf("test target row %d = %v, want %v", i, c.Num, w)
		}
	}
}

func TestTransformRejectsUnseenLabel(t *testing.T) {
	rows := func(labels ...string) []map[string]any {
		out := make([]map[string]any, len(labels))
		for i, l := range labels {
			out[i] = map[string]any{"f1": float64(i), "result": l}
		}
		return out
	}
	fx := writeValidated(t,
		buildTable(t, rows("spam", "ham")),
		buildTable(t, rows("eggs")),
	)
	spec := mustSpec(t, "columns: [f1, result]\ntarget_column: result\n")

	engine := NewEngine(Config{Strategy: "mean"}, fx.store, fx.run)
	_, err := engine.Transform(context.Background(), fx.val, spec)

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if terr.Column != "result" {
		t.Errorf("Column = %q, want result", terr.Column)
	}
}

func TestTransformRejectsNonCoercibleFeature(t *testing.T) {
	rows := []map[string]any{
		{"city": "tokyo", "result": 1.0},
		{"city": "osaka", "result": -1.0},
	}
	fx := writeValidated(t, buildTable(t, rows), buildTable(t, rows))
	spec := mustSpec(t, "columns: [city, result]\ntarget_column: result\n")

	engine := NewEngine(Config{Strategy: "mean"}, fx.store, fx.run)
	_, err := engine.Transform(context.Background(), fx.val, spec)

	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if terr.Column != "city" {
		t.Errorf("Column = %q, want city", terr.Column)
	}
}

func TestTransformRequiresPassingValidation(t *testing.T) {
	fx := writeValidated(t,
		buildTable(t, signedRows(8, 1)),
		buildTable(t, signedRows(4, -1)),
	)
	fx.val.Status = false
	spec := mustSpec(t, "columns: [f1, f2, result]\ntarget_column: result\n")

	engine := NewEngine(Config{Strategy: "mean"}, fx.store, fx.run)
	if _, err := engine.Transform(context.Background(), fx.val, spec); err == nil {
		t.Fatal("expected error when validation status is false")
	}
}
