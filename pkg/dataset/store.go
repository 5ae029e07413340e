// Package dataset provisions the raw tweets/users dataset on local disk.
//
// A Store owns the root directory that holds the manifest files. A Resolver
// decides where the files come from (a mounted shared drive or a downloaded
// archive) and a Loader decodes them into Arrow tables.
package dataset

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	bserrors "github.com/botscope/botscope/pkg/errors"
)

// Default manifest entries.
const (
	TweetsFile = "tweets.csv"
	UsersFile  = "users.csv"
)

// Manifest is the ordered set of logical file names making up one dataset version.
type Manifest []string

// DefaultManifest returns the tweets/users manifest.
func DefaultManifest() Manifest {
	return Manifest{TweetsFile, UsersFile}
}

// Paths maps a logical file name to its location.
type Paths map[string]string

// PathsUnder resolves every manifest entry directly under dir.
func (m Manifest) PathsUnder(dir string) Paths {
	p := make(Paths, len(m))
	for _, name := range m {
		p[name] = filepath.Join(dir, name)
	}
	return p
}

// Store manages the raw dataset root directory.
type Store struct {
	root     string
	manifest Manifest
	log      zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the store logger.
func WithStoreLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) { s.log = l }
}

// NewStore creates a store rooted at root.
func NewStore(root string, manifest Manifest, opts ...StoreOption) *Store {
	s := &Store{
		root:     root,
		manifest: manifest,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the root directory.
func (s *Store) Root() string { return s.root }

// Manifest returns the manifest.
func (s *Store) Manifest() Manifest { return s.manifest }

// Paths returns the manifest entries resolved under the root.
func (s *Store) Paths() Paths { return s.manifest.PathsUnder(s.root) }

// EnsureDirectory creates the root directory if needed and returns it.
// With reset, any existing content is deleted first, files before the
// directories holding them. The first failure aborts the reset.
func (s *Store) EnsureDirectory(reset bool) (string, error) {
	if reset {
		s.log.Info().Str("root", s.root).Msg("resetting dataset directory")
		// Manifest files go first so an aborted reset never reads as present.
		for _, path := range s.Paths() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return "", bserrors.FileSystem(err, "remove", path)
			}
		}
		if err := removeTree(s.root); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", bserrors.FileSystem(err, "mkdir", s.root)
	}
	return s.root, nil
}

// IsFullyPresent reports whether every manifest file exists under the root.
func (s *Store) IsFullyPresent() bool {
	for _, path := range s.Paths() {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// removeTree deletes dir post-order. Directories are removed with os.Remove,
// which fails on a non-empty directory instead of silently skipping it.
// A missing dir is not an error.
func removeTree(dir string) error {
	info, err := os.Lstat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return bserrors.FileSystem(err, "stat", dir)
	}
	if !info.IsDir() {
		if err := os.Remove(dir); err != nil {
			return bserrors.FileSystem(err, "remove", dir)
		}
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return bserrors.FileSystem(err, "readdir", dir)
	}
	for _, e := range entries {
		child := filepath.Join(dir, e.Name())
		if e.Type()&fs.ModeDir != 0 {
			if err := removeTree(child); err != nil {
				return err
			}
			continue
		}
		if err := os.Remove(child); err != nil {
			return bserrors.FileSystem(err, "remove", child)
		}
	}
	if err := os.Remove(dir); err != nil {
		return bserrors.FileSystem(err, "rmdir", dir)
	}
	return nil
}
