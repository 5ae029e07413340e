package fetch

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSFetcher downloads gs://bucket/object identifiers.
type GCSFetcher struct {
	client *storage.Client
}

// NewGCSFetcher creates a GCS fetcher. With an empty keyFile the default
// application credentials are used.
func NewGCSFetcher(ctx context.Context, keyFile string) (*GCSFetcher, error) {
	var opts []option.ClientOption
	if keyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, keyFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSFetcher{client: client}, nil
}

// Fetch streams the object into dst.
func (f *GCSFetcher) Fetch(ctx context.Context, id string, dst io.Writer) (int64, error) {
	bucket, key, err := splitBucketKey(id, "gs")
	if err != nil {
		return 0, err
	}

	r, err := f.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return 0, fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}
	defer r.Close()

	n, err := io.Copy(dst, r)
	if err != nil {
		return n, fmt.Errorf("read gs://%s/%s: %w", bucket, key, err)
	}
	return n, nil
}

// Close releases the client.
func (f *GCSFetcher) Close() error {
	return f.client.Close()
}
