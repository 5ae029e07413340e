package dataset

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	bserrors "github.com/botscope/botscope/pkg/errors"
	"github.com/botscope/botscope/pkg/fetch"
)

// Source defaults for the tweets/users dataset.
const (
	DefaultArchiveURL    = "https://drive.google.com/uc?id=1Ii6X6AYzodwPB_DXL-nF2RT6LerTeyvV&export=download"
	DefaultMountPoint    = "/content/drive"
	DefaultSharedSubpath = "MyDrive/dataset"
)

// Resolver decides where the raw dataset comes from and returns its paths.
type Resolver struct {
	store         *Store
	fetcher       fetch.Fetcher
	probe         Probe
	mounter       Mounter
	archiveID     string
	mountPoint    string
	sharedSubpath string
	log           zerolog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithProbe sets the environment probe.
func WithProbe(p Probe) ResolverOption { return func(r *Resolver) { r.probe = p } }

// WithMounter sets the shared drive mounter.
func WithMounter(m Mounter) ResolverOption { return func(r *Resolver) { r.mounter = m } }

// WithArchive sets the remote archive identifier.
func WithArchive(id string) ResolverOption { return func(r *Resolver) { r.archiveID = id } }

// WithSharedDrive sets the mount point and the dataset subpath below it.
func WithSharedDrive(mountPoint, subpath string) ResolverOption {
	return func(r *Resolver) {
		r.mountPoint = mountPoint
		r.sharedSubpath = subpath
	}
}

// WithResolverLogger sets the resolver logger.
func WithResolverLogger(l zerolog.Logger) ResolverOption { return func(r *Resolver) { r.log = l } }

// NewResolver creates a resolver over store that downloads through f.
func NewResolver(store *Store, f fetch.Fetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:         store,
		fetcher:       f,
		probe:         DefaultNotebookProbe(),
		mounter:       PreMounted{},
		archiveID:     DefaultArchiveURL,
		mountPoint:    DefaultMountPoint,
		sharedSubpath: DefaultSharedSubpath,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the location of every manifest file.
//
// In a managed environment the shared drive is mounted and used as-is;
// forceRefresh is ignored because the drive is never deleted locally. In a
// standalone process the archive is downloaded unless the store already
// holds every file and forceRefresh is false.
func (r *Resolver) Resolve(ctx context.Context, forceRefresh bool) (Paths, error) {
	env := r.probe.Detect(ctx)
	r.log.Debug().Stringer("env", env).Bool("force", forceRefresh).Msg("resolving dataset")

	if env == Managed {
		return r.resolveShared(ctx)
	}
	return r.resolveLocal(ctx, forceRefresh)
}

func (r *Resolver) resolveShared(ctx context.Context) (Paths, error) {
	if err := r.mounter.Mount(ctx, r.mountPoint); err != nil {
		return nil, bserrors.MountFailed(err, r.mountPoint)
	}
	dir := filepath.Join(r.mountPoint, r.sharedSubpath)
	r.log.Info().Str("dir", dir).Msg("using shared drive dataset")
	return r.store.Manifest().PathsUnder(dir), nil
}

func (r *Resolver) resolveLocal(ctx context.Context, forceRefresh bool) (Paths, error) {
	root, err := r.store.EnsureDirectory(forceRefresh)
	if err != nil {
		return nil, err
	}
	if !forceRefresh && r.store.IsFullyPresent() {
		r.log.Debug().Str("root", root).Msg("dataset already present")
		return r.store.Paths(), nil
	}

	if err := r.download(ctx, root); err != nil {
		return nil, err
	}

	for name, path := range r.store.Paths() {
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			return nil, bserrors.MissingFile(name, root)
		}
	}
	return r.store.Paths(), nil
}

// download fetches the archive into root, unpacks it and removes it.
func (r *Resolver) download(ctx context.Context, root string) error {
	archive := filepath.Join(root, "dataset-"+uuid.NewString()+".zip")
	start := time.Now()
	r.log.Info().Str("id", r.archiveID).Msg("downloading dataset archive")

	f, err := os.Create(archive)
	if err != nil {
		return bserrors.FileSystem(err, "create", archive)
	}
	n, err := r.fetcher.Fetch(ctx, r.archiveID, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(archive)
		return bserrors.FetchFailed(err, r.archiveID)
	}
	r.log.Info().Int64("bytes", n).Dur("took", time.Since(start)).Msg("archive downloaded")

	files, err := extractZip(archive, root)
	if err != nil {
		os.Remove(archive)
		return bserrors.ExtractFailed(err, archive)
	}
	if err := os.Remove(archive); err != nil {
		return bserrors.FileSystem(err, "remove", archive)
	}
	r.log.Info().Int("files", files).Str("root", root).Msg("dataset unpacked")
	return nil
}
