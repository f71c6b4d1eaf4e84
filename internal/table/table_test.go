package table

import (
	"math"
	"reflect"
	"testing"
)

func TestBuilderResolvesKinds(t *testing.T) {
	b := NewBuilder()
	b.Append(map[string]any{"amount": 1.5, "name": "alice", "flag": true, "code": "12"})
	b.Append(map[string]any{"amount": "2.5", "name": "bob", "flag": false, "code": "34"})

	tbl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := map[string]Kind{
		"amount": KindNumeric, // numbers and numeric strings
		"code":   KindNumeric, // all values parse as numbers
		"flag":   KindNumeric, // bools coerce to 0/1
		"name":   KindString,
	}
	for name, kind := range want {
		got, ok := tbl.ColumnKind(name)
		if !ok {
			t.Fatalf("column %q missing", name)
		}
		if got != kind {
			t.Errorf("column %q: kind = %v, want %v", name, got, kind)
		}
	}

	if got := tbl.Columns(); !reflect.DeepEqual(got, []string{"amount", "code", "flag", "name"}) {
		t.Errorf("Columns() = %v, not sorted", got)
	}
}

func TestBuilderTreatsNaAsMissing(t *testing.T) {
	b := NewBuilder()
	b.Append(map[string]any{"x": "na", "y": "na"})
	b.Append(map[string]any{"x": 2.0, "y": nil})
	b.Append(map[string]any{"x": 3.0})

	tbl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if kind, _ := tbl.ColumnKind("x"); kind != KindNumeric {
		t.Errorf("x resolved %v, want numeric despite na marker", kind)
	}
	// y never saw a real value and defaults to numeric
	if kind, _ := tbl.ColumnKind("y"); kind != KindNumeric {
		t.Errorf("y resolved %v, want numeric", kind)
	}

	if c, _ := tbl.Cell(0, "x"); !c.Null {
		t.Error("na cell should be missing")
	}
	if got := tbl.MissingCount(); got != 4 {
		t.Errorf("MissingCount() = %d, want 4", got)
	}
	vals, ok := tbl.NumericValues("x")
	if !ok || !reflect.DeepEqual(vals, []float64{2, 3}) {
		t.Errorf("NumericValues(x) = %v, %v", vals, ok)
	}
}

func TestBuilderEmpty(t *testing.T) {
	if _, err := NewBuilder().Build(); err == nil {
		t.Fatal("expected error building from zero records")
	}
}

func TestNumericMatrix(t *testing.T) {
	b := NewBuilder()
	b.Append(map[string]any{"a": 1.0, "b": "na", "label": "yes"})
	b.Append(map[string]any{"a": 2.0, "b": 5.0, "label": "no"})
	tbl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m, err := tbl.NumericMatrix([]string{"a", "b"})
	if err != nil {
		t.Fatalf("NumericMatrix: %v", err)
	}
	if len(m) != 2 || m[0][0] != 1 || !math.IsNaN(m[0][1]) || m[1][1] != 5 {
		t.Errorf("NumericMatrix = %v", m)
	}

	if _, err := tbl.NumericMatrix([]string{"label"}); err == nil {
		t.Error("expected coercion error for string column")
	}
	if _, err := tbl.NumericMatrix([]string{"nope"}); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestFromMatrix(t *testing.T) {
	m := [][]float64{
		{1, 10, math.NaN()},
		{2, 20, 0.5},
	}
	tbl, err := FromMatrix([]string{"z", "a", "m"}, m)
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}

	if got := tbl.Columns(); !reflect.DeepEqual(got, []string{"a", "m", "z"}) {
		t.Fatalf("Columns() = %v", got)
	}
	// values must follow their names through the sort
	if c, _ := tbl.Cell(0, "a"); c.Num != 10 {
		t.Errorf("cell (0, a) = %v, want 10", c.Num)
	}
	if c, _ := tbl.Cell(0, "z"); c.Num != 1 {
		t.Errorf("cell (0, z) = %v, want 1", c.Num)
	}
	if c, _ := tbl.Cell(0, "m"); !c.Null {
		t.Error("NaN should round-trip to a missing cell")
	}

	if _, err := FromMatrix([]string{"a", "a"}, m); err == nil {
		t.Error("expected duplicate column error")
	}
	if _, err := FromMatrix([]string{"a", "b", "c"}, [][]float64{{1}}); err == nil {
		t.Error("expected row width error")
	}
}

func TestSubsetSharesNoStorage(t *testing.T) {
	b := NewBuilder()
	b.Append(map[string]any{"x": 1.0})
	b.Append(map[string]any{"x": 2.0})
	tbl, _ := b.Build()

	sub := tbl.Subset([]int{1})
	if sub.NumRows() != 1 {
		t.Fatalf("NumRows() = %d", sub.NumRows())
	}
	if c, _ := sub.Cell(0, "x"); c.Num != 2 {
		t.Errorf("subset cell = %v, want 2", c.Num)
	}
}
