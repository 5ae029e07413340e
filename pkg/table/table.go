// Package table reads raw dataset files into Arrow tables and compares tables.
package table

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	bserrors "github.com/botscope/botscope/pkg/errors"
)

// CSVOptions configures raw CSV decoding.
type CSVOptions struct {
	Delimiter rune
	// BatchSize is the number of rows per record batch.
	BatchSize int
	Alloc     memory.Allocator
}

// DefaultCSVOptions returns comma-separated, 8192-row batches.
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter: ',',
		BatchSize: 8192,
		Alloc:     memory.DefaultAllocator,
	}
}

// ReadCSVFile decodes the CSV file at path. See ReadCSV.
func ReadCSVFile(ctx context.Context, path string, opts CSVOptions) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bserrors.FileSystem(err, "open", path)
	}
	defer f.Close()

	tbl, err := ReadCSV(ctx, f, opts)
	if err != nil {
		return nil, bserrors.ParseError("csv", path, err)
	}
	return tbl, nil
}

// ReadCSV decodes CSV with a header row into a table of nullable utf8 columns.
// Raw fields stay text so validators see exactly what the file holds; empty
// fields become nulls. Rows with a different field count than the header fail.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (arrow.Table, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 8192
	}
	if opts.Alloc == nil {
		opts.Alloc = memory.DefaultAllocator
	}

	cr := csv.NewReader(r)
	cr.Comma = opts.Delimiter
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty input: no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	fields := make([]arrow.Field, len(header))
	for i, name := range header {
		fields[i] = arrow.Field{Name: name, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	b := array.NewRecordBuilder(opts.Alloc, schema)
	defer b.Release()

	var records []arrow.Record
	release := func() {
		for _, rec := range records {
			rec.Release()
		}
	}

	rows := 0
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			release()
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				release()
				return nil, err
			}
		}

		for i, value := range rec {
			sb := b.Field(i).(*array.StringBuilder)
			if value == "" {
				sb.AppendNull()
			} else {
				sb.Append(value)
			}
		}

		rows++
		if rows == opts.BatchSize {
			records = append(records, b.NewRecord())
			rows = 0
		}
	}
	if rows > 0 || len(records) == 0 {
		records = append(records, b.NewRecord())
	}

	tbl := array.NewTableFromRecords(schema, records)
	release()
	return tbl, nil
}

// Equal reports whether a and b hold the same columns (name and type, in
// order) with equal values. Schema and field metadata are ignored.
func Equal(a, b arrow.Table) bool {
	if a.NumCols() != b.NumCols() || a.NumRows() != b.NumRows() {
		return false
	}
	for i := 0; i < int(a.NumCols()); i++ {
		fa, fb := a.Schema().Field(i), b.Schema().Field(i)
		if fa.Name != fb.Name || !arrow.TypeEqual(fa.Type, fb.Type) {
			return false
		}
		if !array.ChunkedEqual(a.Column(i).Data(), b.Column(i).Data()) {
			return false
		}
	}
	return true
}
