// Package table implements the column-typed feature table that moves
// through the pipeline: built from raw records at ingestion, persisted as
// parquet, split into train/test partitions, and re-read by later stages.
package table

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the resolved type of a column. Typing is decided once, at the
// ingestion boundary, not at every downstream access.
type Kind int

const (
	KindNumeric Kind = iota
	KindString
)

func (k Kind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "string"
}

// Column is a named, typed column.
type Column struct {
	Name string
	Kind Kind
}

// Cell holds one value. Null marks a missing value.
type Cell struct {
	Null bool
	Num  float64
	Str  string
}

// Table is an ordered sequence of rows over a fixed, sorted column set.
type Table struct {
	cols  []Column
	index map[string]int
	rows  [][]Cell
}

// Builder accumulates raw records batch by batch before the column set is
// frozen. The whole table is materialized in memory; this bounds the
// supported source size to workstation memory, a known limitation.
type Builder struct {
	raw []map[string]any
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Append adds one raw record.
func (b *Builder) Append(rec map[string]any) {
	b.raw = append(b.raw, rec)
}

// Rows reports how many records have been appended so far.
func (b *Builder) Rows() int {
	return len(b.raw)
}

// Build freezes the column set (the union of all record keys, sorted) and
// resolves each column's kind: numeric if every non-missing value is a
// number or parses as one, string otherwise. The literal "na" is treated as
// a missing value regardless of column kind.
func (b *Builder) Build() (*Table, error) {
	if len(b.raw) == 0 {
		return nil, fmt.Errorf("no records to build table from")
	}

	nameSet := make(map[string]bool)
	for _, rec := range b.raw {
		for k := range rec {
			nameSet[k] = true
		}
	}
	names := make([]string, 0, len(nameSet))
	for k := range nameSet {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Kind: resolveKind(b.raw, name)}
	}

	t := newTable(cols)
	for _, rec := range b.raw {
		cells := make([]Cell, len(cols))
		for i, col := range cols {
			cells[i] = toCell(rec[col.Name], col.Kind)
		}
		t.rows = append(t.rows, cells)
	}
	return t, nil
}

func newTable(cols []Column) *Table {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c.Name] = i
	}
	return &Table{cols: cols, index: idx}
}

// resolveKind scans a column's raw values across all records.
func resolveKind(raw []map[string]any, name string) Kind {
	sawValue := false
	for _, rec := range raw {
		v, ok := rec[name]
		if !ok || isMissing(v) {
			continue
		}
		sawValue = true
		switch x := v.(type) {
		case float64, float32, int, int32, int64, bool:
			// numeric
		case string:
			if _, err := strconv.ParseFloat(x, 64); err != nil {
				return KindString
			}
		default:
			return KindString
		}
	}
	if !sawValue {
		// All-missing columns default to numeric so imputation can run.
		return KindNumeric
	}
	return KindNumeric
}

// isMissing reports whether a raw value represents a missing cell. The
// literal "na" matches the source convention for null markers.
func isMissing(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "na" {
		return true
	}
	if f, ok := v.(float64); ok && math.IsNaN(f) {
		return true
	}
	return false
}

func toCell(v any, kind Kind) Cell {
	if isMissing(v) {
		return Cell{Null: true}
	}
	if kind == KindNumeric {
		switch x := v.(type) {
		case float64:
			return Cell{Num: x}
		case float32:
			return Cell{Num: float64(x)}
		case int:
			return Cell{Num: float64(x)}
		case int32:
			return Cell{Num: float64(x)}
		case int64:
			return Cell{Num: float64(x)}
		case bool:
			if x {
				return Cell{Num: 1}
			}
			return Cell{Num: 0}
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err == nil {
				return Cell{Num: f}
			}
		}
		return Cell{Null: true}
	}
	switch x := v.(type) {
	case string:
		return Cell{Str: x}
	case float64:
		return Cell{Str: strconv.FormatFloat(x, 'g', -1, 64)}
	case bool:
		return Cell{Str: strconv.FormatBool(x)}
	default:
		return Cell{Str: fmt.Sprint(x)}
	}
}

// Columns returns the column names in table order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnKind returns the resolved kind of the named column.
func (t *Table) ColumnKind(name string) (Kind, bool) {
	i, ok := t.index[name]
	if !ok {
		return 0, false
	}
	return t.cols[i].Kind, true
}

// Cell returns the cell at row i of the named column.
func (t *Table) Cell(i int, name string) (Cell, bool) {
	ci, ok := t.index[name]
	if !ok || i < 0 || i >= len(t.rows) {
		return Cell{}, false
	}
	return t.rows[i][ci], true
}

// NumericValues returns the non-missing values of a numeric column, in row
// order. ok is false for unknown or non-numeric columns.
func (t *Table) NumericValues(name string) (vals []float64, ok bool) {
	ci, exists := t.index[name]
	if !exists || t.cols[ci].Kind != KindNumeric {
		return nil, false
	}
	for _, row := range t.rows {
		if !row[ci].Null {
			vals = append(vals, row[ci].Num)
		}
	}
	return vals, true
}

// StratumKey returns the canonical stratification key of row i's cell in the
// named column. Missing values form their own stratum.
func (t *Table) StratumKey(i int, name string) string {
	c, ok := t.Cell(i, name)
	if !ok || c.Null {
		return ""
	}
	ci := t.index[name]
	if t.cols[ci].Kind == KindNumeric {
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	}
	return c.Str
}

// Subset returns a new table holding the given rows, sharing no storage
// with the receiver.
func (t *Table) Subset(rows []int) *Table {
	out := newTable(append([]Column(nil), t.cols...))
	out.rows = make([][]Cell, 0, len(rows))
	for _, i := range rows {
		out.rows = append(out.rows, append([]Cell(nil), t.rows[i]...))
	}
	return out
}

// NumericMatrix coerces the named columns into a dense row-major matrix,
// with NaN marking missing cells. A string column whose values do not all
// parse as numbers fails with the offending column named.
func (t *Table) NumericMatrix(names []string) ([][]float64, error) {
	cis := make([]int, len(names))
	for j, name := range names {
		ci, ok := t.index[name]
		if !ok {
			return nil, fmt.Errorf("column %q not present", name)
		}
		cis[j] = ci
	}
	m := make([][]float64, len(t.rows))
	for i, row := range t.rows {
		m[i] = make([]float64, len(cis))
		for j, ci := range cis {
			cell := row[ci]
			switch {
			case cell.Null:
				m[i][j] = math.NaN()
			case t.cols[ci].Kind == KindNumeric:
				m[i][j] = cell.Num
			default:
				f, err := strconv.ParseFloat(cell.Str, 64)
				if err != nil {
					return nil, fmt.Errorf("column %q: value %q is not numeric", names[j], cell.Str)
				}
				m[i][j] = f
			}
		}
	}
	return m, nil
}

// FromMatrix builds an all-numeric table from named columns and row-major
// values. Used for the transformed output arrays.
func FromMatrix(names []string, m [][]float64) (*Table, error) {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	pos := make(map[string]int, len(names))
	for j, name := range names {
		if _, dup := pos[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		pos[name] = j
	}

	cols := make([]Column, len(sorted))
	for i, name := range sorted {
		cols[i] = Column{Name: name, Kind: KindNumeric}
	}
	t := newTable(cols)
	for _, row := range m {
		if len(row) != len(names) {
			return nil, fmt.Errorf("row has %d values, want %d", len(row), len(names))
		}
		cells := make([]Cell, len(cols))
		for i, name := range sorted {
			v := row[pos[name]]
			if math.IsNaN(v) {
				cells[i] = Cell{Null: true}
			} else {
				cells[i] = Cell{Num: v}
			}
		}
		t.rows = append(t.rows, cells)
	}
	return t, nil
}

// MissingCount returns the number of missing cells across the whole table.
func (t *Table) MissingCount() int {
	n := 0
	for _, row := range t.rows {
		for _, c := range row {
			if c.Null {
				n++
			}
		}
	}
	return n
}
