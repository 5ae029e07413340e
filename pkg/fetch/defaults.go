package fetch

import (
	"context"
	"io"
	"sync"
)

// Options selects how the default registry builds its cloud clients.
type Options struct {
	S3          S3Config
	GCSKeyFile  string
	Azure       AzureConfig
	HTTPHeaders map[string]string
	Progress    func(contentLength int64) io.Writer
}

// NewDefaultRegistry registers every built-in transport. Cloud clients are
// created on first use so a plain HTTP download never loads AWS or GCP config.
func NewDefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(NewHTTPFetcher(HTTPOptions{Headers: opts.HTTPHeaders, Progress: opts.Progress}), "http", "https")
	r.Register(FileFetcher{}, "file")
	r.Register(NewAzureFetcher(opts.Azure), "az")

	r.Register(lazy(func(ctx context.Context) (Fetcher, error) {
		return NewS3Fetcher(ctx, opts.S3)
	}), "s3")
	r.Register(lazy(func(ctx context.Context) (Fetcher, error) {
		return NewGCSFetcher(ctx, opts.GCSKeyFile)
	}), "gs")
	return r
}

// lazy defers building a fetcher until the first Fetch. A failed build is
// retried on the next call.
func lazy(build func(ctx context.Context) (Fetcher, error)) Fetcher {
	var (
		mu sync.Mutex
		f  Fetcher
	)
	return FetcherFunc(func(ctx context.Context, id string, dst io.Writer) (int64, error) {
		mu.Lock()
		if f == nil {
			built, err := build(ctx)
			if err != nil {
				mu.Unlock()
				return 0, err
			}
			f = built
		}
		cur := f
		mu.Unlock()
		return cur.Fetch(ctx, id, dst)
	})
}
