package validate

import (
	"context"
	"sort"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"golang.org/x/sync/errgroup"
)

// ColumnReport counts invalid cells in one column.
type ColumnReport struct {
	Name    string
	Kind    Kind
	Checked int64
	Invalid int64
}

// InvalidPct returns the share of invalid cells in percent.
func (c ColumnReport) InvalidPct() float64 {
	if c.Checked == 0 {
		return 0
	}
	return float64(c.Invalid) / float64(c.Checked) * 100
}

// Report summarises a table against its schema.
type Report struct {
	Table   string
	Rows    int64
	Columns []ColumnReport
	// Missing lists schema columns absent from the table.
	Missing []string
}

// Valid reports whether no invalid cell was found.
func (r Report) Valid() bool {
	for _, c := range r.Columns {
		if c.Invalid > 0 {
			return false
		}
	}
	return true
}

// InvalidCells returns the total number of invalid cells.
func (r Report) InvalidCells() int64 {
	var n int64
	for _, c := range r.Columns {
		n += c.Invalid
	}
	return n
}

// Validate checks every schema column present in tbl. The table is only read.
func Validate(name string, tbl arrow.Table, schema TableSchema) Report {
	r := Report{Table: name, Rows: tbl.NumRows()}

	present := make(map[string]int, tbl.NumCols())
	for i, f := range tbl.Schema().Fields() {
		present[f.Name] = i
	}

	for _, col := range schema.Columns() {
		idx, ok := present[col]
		if !ok {
			r.Missing = append(r.Missing, col)
			continue
		}
		kind := schema[col]
		fn := kind.Func()
		if fn == nil {
			continue
		}

		cr := ColumnReport{Name: col, Kind: kind}
		for _, chunk := range tbl.Column(idx).Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				cr.Checked++
				if !fn(ScalarAt(chunk, i)) {
					cr.Invalid++
				}
			}
		}
		r.Columns = append(r.Columns, cr)
	}
	return r
}

// ValidateAll validates every table that has a schema, concurrently.
// Reports come back sorted by table name.
func ValidateAll(ctx context.Context, tables map[string]arrow.Table, schema Schema) ([]Report, error) {
	names := make([]string, 0, len(tables))
	for name := range tables {
		if _, ok := schema[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	reports := make([]Report, len(names))
	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = Validate(name, tables[name], schema[name])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// ScalarAt returns row i of arr as a Go scalar, or nil when the slot is null.
func ScalarAt(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return a.Value(i)
	case *array.Int64:
		return a.Value(i)
	case *array.Int32:
		return a.Value(i)
	case *array.Int16:
		return a.Value(i)
	case *array.Int8:
		return a.Value(i)
	case *array.Uint64:
		return a.Value(i)
	case *array.Uint32:
		return a.Value(i)
	case *array.Uint8:
		return a.Value(i)
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit)
	default:
		return arr.ValueStr(i)
	}
}
