package schema

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "valid",
			doc:  "columns: [a, b, result]\ntarget_column: result\n",
		},
		{
			name:    "no columns",
			doc:     "target_column: result\n",
			wantErr: true,
		},
		{
			name:    "no target",
			doc:     "columns: [a, b]\n",
			wantErr: true,
		},
		{
			name:    "duplicate column",
			doc:     "columns: [a, a, result]\ntarget_column: result\n",
			wantErr: true,
		},
		{
			name:    "target not declared",
			doc:     "columns: [a, b]\ntarget_column: result\n",
			wantErr: true,
		},
		{
			name:    "empty column name",
			doc:     "columns: [a, \"\", result]\ntarget_column: result\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			doc:     "columns: [a, b\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Parse([]byte(tt.doc))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if spec.TargetColumn != "result" {
				t.Errorf("TargetColumn = %q", spec.TargetColumn)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	doc := "columns:\n  - having_ip\n  - url_length\n  - result\ntarget_column: result\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	spec, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(spec.Columns) != 3 || spec.TargetColumn != "result" {
		t.Errorf("spec = %+v", spec)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMissing(t *testing.T) {
	spec := &Spec{Columns: []string{"c", "a", "b"}, TargetColumn: "a"}

	tests := []struct {
		name   string
		actual []string
		want   []string
	}{
		{name: "all present", actual: []string{"a", "b", "c"}, want: nil},
		{name: "extras tolerated", actual: []string{"a", "b", "c", "d"}, want: nil},
		{name: "some missing sorted", actual: []string{"a"}, want: []string{"b", "c"}},
		{name: "all missing", actual: nil, want: []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := spec.Missing(tt.actual); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Missing(%v) = %v, want %v", tt.actual, got, tt.want)
			}
		})
	}
}
