package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bserrors "github.com/botscope/botscope/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out = append(out, rel)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestStore_EnsureDirectoryCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "dataset")
	s := NewStore(root, DefaultManifest())

	got, err := s.EnsureDirectory(false)
	require.NoError(t, err)
	assert.Equal(t, root, got)
	assert.DirExists(t, root)
}

func TestStore_EnsureDirectoryIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "dataset")
	s := NewStore(root, DefaultManifest())

	_, err := s.EnsureDirectory(false)
	require.NoError(t, err)
	writeFile(t, filepath.Join(root, TweetsFile), "id\n1\n")
	writeFile(t, filepath.Join(root, "step", "a.parquet"), "x")
	once := listTree(t, root)

	_, err = s.EnsureDirectory(false)
	require.NoError(t, err)
	_, err = s.EnsureDirectory(false)
	require.NoError(t, err)
	assert.Equal(t, once, listTree(t, root))
}

func TestStore_ResetRemovesNestedContent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "dataset")
	s := NewStore(root, DefaultManifest())

	writeFile(t, filepath.Join(root, TweetsFile), "id\n1\n")
	writeFile(t, filepath.Join(root, UsersFile), "id\n1\n")
	writeFile(t, filepath.Join(root, "a", "b", "c", "deep.parquet"), "x")
	writeFile(t, filepath.Join(root, "a", "sibling.txt"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.True(t, s.IsFullyPresent())

	got, err := s.EnsureDirectory(true)
	require.NoError(t, err)
	assert.Equal(t, root, got)
	assert.Equal(t, []string{"."}, listTree(t, root))
	assert.False(t, s.IsFullyPresent())
}

func TestStore_ResetMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "never-created")
	s := NewStore(root, DefaultManifest())

	_, err := s.EnsureDirectory(true)
	require.NoError(t, err)
	assert.DirExists(t, root)
}

func TestStore_ResetFailureAbortsAndIsNotPresent(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	root := filepath.Join(t.TempDir(), "dataset")
	s := NewStore(root, DefaultManifest())

	writeFile(t, filepath.Join(root, TweetsFile), "id\n1\n")
	writeFile(t, filepath.Join(root, UsersFile), "id\n1\n")
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "artifact.parquet"), "x")
	require.NoError(t, os.Chmod(locked, 0o500))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	_, err := s.EnsureDirectory(true)
	require.Error(t, err)
	assert.True(t, bserrors.IsCode(err, bserrors.CodeFilePermission), "got %v", err)
	assert.False(t, s.IsFullyPresent())
}

func TestRemoveTree_RejectsNonEmptyDirectoryRemoval(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x", "file"), "1")

	// os.Remove is what removeTree uses for directories; it must fail loudly.
	assert.Error(t, os.Remove(filepath.Join(dir, "x")))
	require.NoError(t, removeTree(filepath.Join(dir, "x")))
	assert.NoDirExists(t, filepath.Join(dir, "x"))
}

func TestStore_IsFullyPresent(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, DefaultManifest())
	assert.False(t, s.IsFullyPresent())

	writeFile(t, filepath.Join(root, TweetsFile), "id\n")
	assert.False(t, s.IsFullyPresent())

	require.NoError(t, os.MkdirAll(filepath.Join(root, UsersFile), 0o755))
	assert.False(t, s.IsFullyPresent(), "a directory is not a dataset file")

	require.NoError(t, os.Remove(filepath.Join(root, UsersFile)))
	writeFile(t, filepath.Join(root, UsersFile), "id\n")
	assert.True(t, s.IsFullyPresent())

	assert.Equal(t, Paths{
		TweetsFile: filepath.Join(root, TweetsFile),
		UsersFile:  filepath.Join(root, UsersFile),
	}, s.Paths())
}
