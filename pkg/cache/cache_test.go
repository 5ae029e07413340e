package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bserrors "github.com/botscope/botscope/pkg/errors"
	"github.com/botscope/botscope/pkg/table"
)

// typedTable builds a table covering the column types preprocessing emits.
func typedTable(t *testing.T, mem memory.Allocator, ids []int64) arrow.Table {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "bot", Type: arrow.PrimitiveTypes.Uint8, Nullable: true},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "verified", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "created_at", Type: &arrow.TimestampType{Unit: arrow.Millisecond}, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	base := time.Date(2012, 3, 4, 5, 6, 7, 0, time.UTC)
	for i, id := range ids {
		b.Field(0).(*array.Int64Builder).Append(id)
		if i%3 == 2 {
			b.Field(1).AppendNull()
			b.Field(2).AppendNull()
			b.Field(3).AppendNull()
			b.Field(4).AppendNull()
			b.Field(5).AppendNull()
			continue
		}
		b.Field(1).(*array.Uint8Builder).Append(uint8(i % 2))
		b.Field(2).(*array.Float64Builder).Append(float64(id) / 3)
		b.Field(3).(*array.StringBuilder).Append(fmt.Sprintf("user-%d", id))
		b.Field(4).(*array.BooleanBuilder).Append(i%2 == 0)
		b.Field(5).(*array.TimestampBuilder).Append(arrow.Timestamp(base.Add(time.Duration(i) * time.Hour).UnixMilli()))
	}

	rec := b.NewRecord()
	defer rec.Release()
	return array.NewTableFromRecords(schema, []arrow.Record{rec})
}

func TestCache_RoundTripPreservesValuesAndTypes(t *testing.T) {
	c := New(t.TempDir())
	in := typedTable(t, memory.DefaultAllocator, []int64{1, 2, 3, 4, 5, 6, 7})
	defer in.Release()

	require.NoError(t, c.Store(context.Background(), "dedup", "users", in))

	got, err := c.FetchAll(context.Background(), "dedup")
	require.NoError(t, err)
	require.Len(t, got, 1)

	out, ok := got["users.parquet"]
	require.True(t, ok, "artifacts are keyed by file name with extension")
	defer out.Release()

	require.Equal(t, in.NumCols(), out.NumCols())
	for i := 0; i < int(in.NumCols()); i++ {
		assert.True(t, arrow.TypeEqual(in.Schema().Field(i).Type, out.Schema().Field(i).Type),
			"column %s: stored %s, fetched %s", in.Schema().Field(i).Name, in.Schema().Field(i).Type, out.Schema().Field(i).Type)
	}
	assert.True(t, table.Equal(in, out))
}

func TestCache_RoundTripTemporalTypes(t *testing.T) {
	day := time.Date(2012, 3, 4, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		typ  arrow.DataType
		val  int64
	}{
		{"ts_s", &arrow.TimestampType{Unit: arrow.Second}, day.Unix() + 7},
		{"ts_ms", &arrow.TimestampType{Unit: arrow.Millisecond}, day.UnixMilli() + 7},
		{"ts_us", &arrow.TimestampType{Unit: arrow.Microsecond}, day.UnixMicro() + 7},
		{"ts_ns", &arrow.TimestampType{Unit: arrow.Nanosecond}, day.UnixNano() + 7},
		{"ts_s_utc", &arrow.TimestampType{Unit: arrow.Second, TimeZone: "UTC"}, day.Unix()},
		{"date32", arrow.FixedWidthTypes.Date32, int64(day.Unix() / 86400)},
		{"date64", arrow.FixedWidthTypes.Date64, day.UnixMilli()},
	}

	c := New(t.TempDir())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schema := arrow.NewSchema([]arrow.Field{{Name: tc.name, Type: tc.typ, Nullable: true}}, nil)
			b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
			defer b.Release()
			switch fb := b.Field(0).(type) {
			case *array.TimestampBuilder:
				fb.AppendValues([]arrow.Timestamp{arrow.Timestamp(tc.val), arrow.Timestamp(tc.val + 1)}, nil)
			case *array.Date32Builder:
				fb.AppendValues([]arrow.Date32{arrow.Date32(tc.val), arrow.Date32(tc.val + 1)}, nil)
			case *array.Date64Builder:
				fb.AppendValues([]arrow.Date64{arrow.Date64(tc.val), arrow.Date64(tc.val + 86400000)}, nil)
			default:
				t.Fatalf("unexpected builder %T", fb)
			}
			b.Field(0).AppendNull()
			rec := b.NewRecord()
			defer rec.Release()
			in := array.NewTableFromRecords(schema, []arrow.Record{rec})
			defer in.Release()

			require.NoError(t, c.Store(context.Background(), tc.name, "t", in))
			got, err := c.FetchAll(context.Background(), tc.name)
			require.NoError(t, err)
			out := got["t.parquet"]
			require.NotNil(t, out)
			defer out.Release()

			assert.True(t, arrow.TypeEqual(tc.typ, out.Schema().Field(0).Type),
				"stored %s, fetched %s", tc.typ, out.Schema().Field(0).Type)
			assert.True(t, table.Equal(in, out))
		})
	}
}

func TestCache_RoundTripRawStrings(t *testing.T) {
	raw, err := table.ReadCSVFile(context.Background(), writeCSV(t, "id,bot\n1,0\n2,\n3,1.0\n"), table.DefaultCSVOptions())
	require.NoError(t, err)
	defer raw.Release()

	c := New(t.TempDir())
	require.NoError(t, c.Store(context.Background(), "raw", "users.parquet", raw))

	got, err := c.FetchAll(context.Background(), "raw")
	require.NoError(t, err)
	defer got["users.parquet"].Release()
	assert.True(t, table.Equal(raw, got["users.parquet"]))
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCache_StoreOverwrites(t *testing.T) {
	c := New(t.TempDir())
	first := typedTable(t, memory.DefaultAllocator, []int64{1, 2, 3})
	defer first.Release()
	second := typedTable(t, memory.DefaultAllocator, []int64{9})
	defer second.Release()

	require.NoError(t, c.Store(context.Background(), "step", "a", first))
	require.NoError(t, c.Store(context.Background(), "step", "a", second))

	got, err := c.FetchAll(context.Background(), "step")
	require.NoError(t, err)
	require.Len(t, got, 1)
	defer got["a.parquet"].Release()
	assert.True(t, table.Equal(second, got["a.parquet"]))

	entries, err := os.ReadDir(c.StepDir("step"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCache_FetchAllManyArtifactsFiltersExtension(t *testing.T) {
	c := New(t.TempDir())
	tbl := typedTable(t, memory.DefaultAllocator, []int64{1, 2})
	defer tbl.Release()

	require.NoError(t, c.Store(context.Background(), "clean", "tweets", tbl))
	require.NoError(t, c.Store(context.Background(), "clean", "users", tbl))
	require.NoError(t, c.Store(context.Background(), "other", "users", tbl))
	require.NoError(t, os.WriteFile(filepath.Join(c.StepDir("clean"), "notes.txt"), []byte("x"), 0o644))

	got, err := c.FetchAll(context.Background(), "clean")
	require.NoError(t, err)
	defer func() {
		for _, tb := range got {
			tb.Release()
		}
	}()
	assert.Len(t, got, 2)
	assert.Contains(t, got, "tweets.parquet")
	assert.Contains(t, got, "users.parquet")

	steps, err := c.Steps()
	require.NoError(t, err)
	assert.Equal(t, []string{"clean", "other"}, steps)
}

func TestCache_FetchUnknownStep(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "never-created"))

	got, err := c.FetchAll(context.Background(), "missing")
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bserrors.ErrStepNotFound), "got %v", err)
	assert.True(t, bserrors.IsCode(err, bserrors.CodeStepNotFound))

	steps, err := c.Steps()
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestCache_EmptyStepDirectory(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, os.MkdirAll(c.StepDir("empty"), 0o755))

	got, err := c.FetchAll(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCache_CorruptArtifactFailsWholeFetch(t *testing.T) {
	c := New(t.TempDir(), WithAllocator(memory.NewGoAllocator()))
	tbl := typedTable(t, memory.DefaultAllocator, []int64{1, 2})
	defer tbl.Release()

	require.NoError(t, c.Store(context.Background(), "step", "a", tbl))
	require.NoError(t, os.WriteFile(filepath.Join(c.StepDir("step"), "b.parquet"), []byte("not parquet"), 0o644))

	got, err := c.FetchAll(context.Background(), "step")
	assert.Nil(t, got)
	assert.True(t, bserrors.IsCode(err, bserrors.CodeParseFailed), "got %v", err)
}

func TestCache_RejectsPathNames(t *testing.T) {
	c := New(t.TempDir())
	tbl := typedTable(t, memory.DefaultAllocator, []int64{1})
	defer tbl.Release()

	for _, bad := range []string{"", "..", "a/b", `a\b`} {
		assert.Error(t, c.Store(context.Background(), bad, "x", tbl), "step %q", bad)
		assert.Error(t, c.Store(context.Background(), "ok", bad, tbl), "artifact %q", bad)
	}
}

func TestCache_Compression(t *testing.T) {
	for _, codec := range []string{"none", "gzip", "zstd", "snappy"} {
		c := New(t.TempDir(), WithCompression(codec))
		tbl := typedTable(t, memory.DefaultAllocator, []int64{1, 2, 3})
		require.NoError(t, c.Store(context.Background(), "s", "a", tbl), codec)

		got, err := c.FetchAll(context.Background(), "s")
		require.NoError(t, err, codec)
		assert.True(t, table.Equal(tbl, got["a.parquet"]), codec)
		got["a.parquet"].Release()
		tbl.Release()
	}
}
