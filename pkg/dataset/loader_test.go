package dataset

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bserrors "github.com/botscope/botscope/pkg/errors"
	"github.com/botscope/botscope/pkg/table"
)

type staticResolver struct {
	paths Paths
	err   error
	force []bool
}

func (s *staticResolver) Resolve(_ context.Context, force bool) (Paths, error) {
	s.force = append(s.force, force)
	return s.paths, s.err
}

func TestLoader_LoadsEveryManifestFile(t *testing.T) {
	f := &countingFetcher{payload: datasetArchive(t)}
	r, _ := newStandalone(t, f)

	tables, err := NewLoader(r, table.DefaultCSVOptions(), zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	defer tables.Release()

	require.Len(t, tables, 2)
	assert.Equal(t, int64(2), tables[TweetsFile].NumRows())
	assert.Equal(t, int64(5), tables[TweetsFile].NumCols())
	assert.Equal(t, int64(2), tables[UsersFile].NumRows())
	assert.Equal(t, "bot", tables[UsersFile].Schema().Field(2).Name)
}

func TestLoader_NeverForcesRefresh(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, TweetsFile), tweetsCSV)
	sr := &staticResolver{paths: Paths{TweetsFile: filepath.Join(dir, TweetsFile)}}

	tables, err := NewLoader(sr, table.CSVOptions{}, zerolog.Nop()).Load(context.Background())
	require.NoError(t, err)
	tables.Release()
	assert.Equal(t, []bool{false}, sr.force)
}

func TestLoader_ResolveErrorPropagates(t *testing.T) {
	sr := &staticResolver{err: bserrors.FetchFailed(errors.New("offline"), "x")}
	_, err := NewLoader(sr, table.CSVOptions{}, zerolog.Nop()).Load(context.Background())
	assert.True(t, bserrors.IsCode(err, bserrors.CodeFetchFailed))
}

func TestLoader_ParseFailureReturnsNoPartialDataset(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, TweetsFile), tweetsCSV)
	writeFile(t, filepath.Join(dir, UsersFile), "id,name\n1,\"broken\n")
	sr := &staticResolver{paths: Paths{
		TweetsFile: filepath.Join(dir, TweetsFile),
		UsersFile:  filepath.Join(dir, UsersFile),
	}}

	opts := table.DefaultCSVOptions()
	opts.Alloc = mem
	tables, err := NewLoader(sr, opts, zerolog.Nop()).Load(context.Background())
	assert.Nil(t, tables)
	assert.True(t, bserrors.IsCode(err, bserrors.CodeParseFailed), "got %v", err)
}

func TestLoader_MissingFile(t *testing.T) {
	sr := &staticResolver{paths: Paths{UsersFile: filepath.Join(t.TempDir(), UsersFile)}}
	_, err := NewLoader(sr, table.CSVOptions{}, zerolog.Nop()).Load(context.Background())
	assert.True(t, bserrors.IsCode(err, bserrors.CodeFileNotFound), "got %v", err)
}
