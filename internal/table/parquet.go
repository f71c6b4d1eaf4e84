package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// parquetSchema maps the table's columns onto a flat parquet group. All
// leaves are optional so missing cells round-trip as nulls. parquet groups
// order fields alphabetically, which matches the table's sorted column set,
// so leaf column index i always corresponds to t.cols[i].
func (t *Table) parquetSchema() *parquet.Schema {
	group := parquet.Group{}
	for _, c := range t.cols {
		if c.Kind == KindNumeric {
			group[c.Name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		} else {
			group[c.Name] = parquet.Optional(parquet.String())
		}
	}
	return parquet.NewSchema("feature_table", group)
}

func codecFor(compression string) (compress.Codec, error) {
	switch compression {
	case "", "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "none":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
}

// MarshalParquet encodes the table as a single parquet file.
func (t *Table) MarshalParquet(compression string) ([]byte, error) {
	codec, err := codecFor(compression)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	w := parquet.NewWriter(buf, t.parquetSchema(), parquet.Compression(codec))

	rows := make([]parquet.Row, len(t.rows))
	for i, cells := range t.rows {
		rows[i] = t.parquetRow(cells)
	}
	if len(rows) > 0 {
		if _, err := w.WriteRows(rows); err != nil {
			return nil, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Table) parquetRow(cells []Cell) parquet.Row {
	row := make(parquet.Row, 0, len(cells))
	for ci, c := range t.cols {
		cell := cells[ci]
		switch {
		case cell.Null:
			row = append(row, parquet.Value{}.Level(0, 0, ci))
		case c.Kind == KindNumeric:
			row = append(row, parquet.ValueOf(cell.Num).Level(0, 1, ci))
		default:
			row = append(row, parquet.ValueOf(cell.Str).Level(0, 1, ci))
		}
	}
	return row
}

// UnmarshalParquet decodes a parquet file produced by MarshalParquet.
func UnmarshalParquet(data []byte) (*Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	fields := f.Schema().Fields()
	cols := make([]Column, len(fields))
	for i, fld := range fields {
		kind := KindString
		if fld.Type().Kind() == parquet.Double {
			kind = KindNumeric
		}
		cols[i] = Column{Name: fld.Name(), Kind: kind}
	}
	t := newTable(cols)

	for _, rg := range f.RowGroups() {
		if err := t.readRowGroup(rg); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) readRowGroup(rg parquet.RowGroup) error {
	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, 256)
	for {
		n, err := rows.ReadRows(buf)
		for _, r := range buf[:n] {
			cells := make([]Cell, len(t.cols))
			for i := range cells {
				cells[i] = Cell{Null: true}
			}
			for _, v := range r {
				ci := v.Column()
				if v.IsNull() || ci < 0 || ci >= len(t.cols) {
					continue
				}
				if t.cols[ci].Kind == KindNumeric {
					cells[ci] = Cell{Num: v.Double()}
				} else {
					cells[ci] = Cell{Str: string(v.ByteArray())}
				}
			}
			t.rows = append(t.rows, cells)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read parquet rows: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}
