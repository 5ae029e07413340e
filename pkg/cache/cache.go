// Package cache persists intermediate tables produced by preprocessing steps.
//
// Each step owns a directory under the cache root; every table stored for the
// step is one Parquet file in it. Parquet is written with the Arrow schema
// embedded, so a fetched table has exactly the column types it was stored with.
package cache

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/compute"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/metadata"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/rs/zerolog"

	bserrors "github.com/botscope/botscope/pkg/errors"
)

// Ext is the artifact file extension.
const Ext = ".parquet"

// Cache stores step artifacts under a root directory.
type Cache struct {
	root         string
	alloc        memory.Allocator
	compression  compress.Compression
	rowGroupSize int64
	log          zerolog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithAllocator sets the allocator used for fetched tables.
func WithAllocator(a memory.Allocator) Option { return func(c *Cache) { c.alloc = a } }

// WithCompression sets the Parquet codec by name (snappy, zstd, gzip, none).
func WithCompression(name string) Option {
	return func(c *Cache) { c.compression = parseCompression(name) }
}

// WithLogger sets the cache logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Cache) { c.log = l } }

// New creates a cache rooted at root. Nothing is created on disk until Store.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:         root,
		alloc:        memory.DefaultAllocator,
		compression:  compress.Codecs.Snappy,
		rowGroupSize: 64 * 1024,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the cache root.
func (c *Cache) Root() string { return c.root }

// StepDir returns the directory holding a step's artifacts.
func (c *Cache) StepDir(stepID string) string { return filepath.Join(c.root, stepID) }

// ArtifactFile returns the file name an artifact is stored under.
func ArtifactFile(name string) string {
	if strings.HasSuffix(name, Ext) {
		return name
	}
	return name + Ext
}

// Store writes tbl as artifact name of step stepID, replacing any previous
// artifact of that name. The file is written to a temp path and renamed, so
// readers never see a partial artifact.
func (c *Cache) Store(ctx context.Context, stepID, name string, tbl arrow.Table) error {
	if err := validName(stepID); err != nil {
		return fmt.Errorf("step id: %w", err)
	}
	if err := validName(name); err != nil {
		return fmt.Errorf("artifact name: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	props := c.writerProperties(tbl.Schema())
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	if err := checkRestorable(tbl.Schema(), props, arrowProps); err != nil {
		return bserrors.Wrap(err, bserrors.CodeWriteFailed, "unsupported column type").
			WithContext("step", stepID).WithContext("artifact", name)
	}

	dir := c.StepDir(stepID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bserrors.FileSystem(err, "mkdir", dir)
	}

	path := filepath.Join(dir, ArtifactFile(name))
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())

	f, err := os.Create(tmp)
	if err != nil {
		return bserrors.FileSystem(err, "create", tmp)
	}

	// WriteTable closes f on success.
	if err := pqarrow.WriteTable(tbl, f, c.rowGroupSize, props, arrowProps); err != nil {
		f.Close()
		os.Remove(tmp)
		return bserrors.Wrap(err, bserrors.CodeWriteFailed, "write parquet").WithContext("path", path)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return bserrors.FileSystem(err, "rename", path)
	}

	c.log.Debug().
		Str("step", stepID).
		Str("artifact", ArtifactFile(name)).
		Int64("rows", tbl.NumRows()).
		Msg("artifact stored")
	return nil
}

// FetchAll loads every artifact of stepID, keyed by file name with extension.
// A step that was never stored returns an error matching ErrStepNotFound.
// The caller owns the returned tables.
func (c *Cache) FetchAll(ctx context.Context, stepID string) (map[string]arrow.Table, error) {
	files, err := c.Artifacts(stepID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]arrow.Table, len(files))
	release := func() {
		for _, t := range out {
			t.Release()
		}
	}
	for _, name := range files {
		tbl, err := c.read(ctx, filepath.Join(c.StepDir(stepID), name))
		if err != nil {
			release()
			return nil, err
		}
		out[name] = tbl
	}

	c.log.Debug().Str("step", stepID).Int("artifacts", len(out)).Msg("step fetched")
	return out, nil
}

// Artifacts lists the artifact file names of a step in sorted order.
func (c *Cache) Artifacts(stepID string) ([]string, error) {
	if err := validName(stepID); err != nil {
		return nil, fmt.Errorf("step id: %w", err)
	}
	dir := c.StepDir(stepID)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bserrors.StepNotFound(stepID)
		}
		return nil, bserrors.FileSystem(err, "stat", dir)
	}
	if !info.IsDir() {
		return nil, bserrors.StepNotFound(stepID)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, bserrors.FileSystem(err, "readdir", dir)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) == Ext {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Steps lists the step directories that hold at least one artifact.
func (c *Cache) Steps() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, bserrors.FileSystem(err, "readdir", c.root)
	}

	var steps []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := c.Artifacts(e.Name())
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			steps = append(steps, e.Name())
		}
	}
	return steps, nil
}

func (c *Cache) read(ctx context.Context, path string) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, bserrors.FileSystem(err, "open", path)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f, file.WithReadProps(parquet.NewReaderProperties(c.alloc)))
	if err != nil {
		return nil, bserrors.ParseError("parquet", path, err)
	}
	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, c.alloc)
	if err != nil {
		return nil, bserrors.ParseError("parquet", path, err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, bserrors.ParseError("parquet", path, err)
	}

	stored, err := storedSchema(pf.MetaData().KeyValueMetadata(), c.alloc)
	if err != nil {
		tbl.Release()
		return nil, bserrors.ParseError("parquet", path, err)
	}
	out, err := conform(ctx, tbl, stored)
	if err != nil {
		tbl.Release()
		return nil, bserrors.ParseError("parquet", path, err)
	}
	return out, nil
}

// writerProperties builds the Parquet writer properties for schema.
// Statistics are off for 8 and 16 bit unsigned columns: they are written as
// INT32 min/max values that DuckDB fails to cast back to the narrow type.
func (c *Cache) writerProperties(schema *arrow.Schema) *parquet.WriterProperties {
	opts := []parquet.WriterProperty{
		parquet.WithCompression(c.compression),
		parquet.WithCreatedBy("botscope"),
		parquet.WithVersion(parquet.V2_LATEST),
	}
	for _, f := range schema.Fields() {
		switch f.Type.ID() {
		case arrow.UINT8, arrow.UINT16:
			opts = append(opts, parquet.WithStatsFor(f.Name, false))
		}
	}
	return parquet.NewWriterProperties(opts...)
}

// checkRestorable rejects schemas with a column Parquet reads back as a type
// that cannot be cast to the stored one.
func checkRestorable(schema *arrow.Schema, props *parquet.WriterProperties, arrowProps pqarrow.ArrowWriterProperties) error {
	pqSchema, err := pqarrow.ToParquet(schema, props, arrowProps)
	if err != nil {
		return err
	}
	readBack, err := pqarrow.FromParquet(pqSchema, &pqarrow.ArrowReadProperties{}, nil)
	if err != nil {
		return err
	}
	if readBack.NumFields() != schema.NumFields() {
		return fmt.Errorf("schema has %d columns, parquet reads back %d", schema.NumFields(), readBack.NumFields())
	}
	for i, f := range schema.Fields() {
		got := readBack.Field(i).Type
		if arrow.TypeEqual(got, f.Type) || compute.CanCast(got, f.Type) {
			continue
		}
		return fmt.Errorf("column %s: %s is read back as %s", f.Name, f.Type, got)
	}
	return nil
}

// storedSchema decodes the Arrow schema embedded by WithStoreSchema. Files
// without one return a nil schema.
func storedSchema(kv metadata.KeyValueMetadata, mem memory.Allocator) (*arrow.Schema, error) {
	serialized := kv.FindValue("ARROW:schema")
	if serialized == nil {
		return nil, nil
	}
	enc := base64.StdEncoding
	if len(*serialized)%4 != 0 {
		enc = base64.RawStdEncoding
	}
	raw, err := enc.DecodeString(*serialized)
	if err != nil {
		return nil, fmt.Errorf("decode stored schema: %w", err)
	}
	r, err := ipc.NewReader(bytes.NewReader(raw), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("decode stored schema: %w", err)
	}
	defer r.Release()
	return r.Schema(), nil
}

// conform casts every column of tbl whose type differs from the stored schema
// back to the stored type. tbl is consumed.
func conform(ctx context.Context, tbl arrow.Table, stored *arrow.Schema) (arrow.Table, error) {
	if stored == nil || stored.NumFields() != int(tbl.NumCols()) {
		return tbl, nil
	}
	same := true
	for i, f := range stored.Fields() {
		if !arrow.TypeEqual(tbl.Schema().Field(i).Type, f.Type) {
			same = false
			break
		}
	}
	if same {
		return tbl, nil
	}

	cols := make([]arrow.Column, 0, tbl.NumCols())
	defer func() {
		for i := range cols {
			cols[i].Release()
		}
	}()
	for i, want := range stored.Fields() {
		col := tbl.Column(i)
		if arrow.TypeEqual(col.DataType(), want.Type) {
			cols = append(cols, *arrow.NewColumn(want, col.Data()))
			continue
		}
		chunked, err := castChunked(ctx, col.Data(), want.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: cast %s to %s: %w", want.Name, col.DataType(), want.Type, err)
		}
		cols = append(cols, *arrow.NewColumn(want, chunked))
		chunked.Release()
	}

	out := array.NewTable(stored, cols, tbl.NumRows())
	tbl.Release()
	return out, nil
}

func castChunked(ctx context.Context, in *arrow.Chunked, to arrow.DataType) (*arrow.Chunked, error) {
	chunks := make([]arrow.Array, 0, len(in.Chunks()))
	defer func() {
		for _, c := range chunks {
			c.Release()
		}
	}()
	for _, chunk := range in.Chunks() {
		out, err := compute.CastArray(ctx, chunk, compute.SafeCastOptions(to))
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, out)
	}
	return arrow.NewChunked(to, chunks), nil
}

// validName rejects names that would escape the step directory layout.
func validName(s string) error {
	switch {
	case s == "", s == ".", s == "..":
		return fmt.Errorf("invalid name %q", s)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("name %q must not contain path separators", s)
	}
	return nil
}

func parseCompression(name string) compress.Compression {
	switch strings.ToLower(name) {
	case "none", "uncompressed":
		return compress.Codecs.Uncompressed
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "brotli":
		return compress.Codecs.Brotli
	default:
		return compress.Codecs.Snappy
	}
}
