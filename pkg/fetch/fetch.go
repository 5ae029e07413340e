// Package fetch retrieves the bytes behind a dataset identifier.
//
// An identifier is a URL; its scheme selects the transport:
//
//	http, https   plain GET
//	s3            s3://bucket/key
//	gs            gs://bucket/object
//	az            az://account/container/blob
//	file or none  local path
//
// Fetchers do not retry. Timeouts belong to the transport clients.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

// Fetcher copies the content identified by id into dst.
type Fetcher interface {
	Fetch(ctx context.Context, id string, dst io.Writer) (int64, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id string, dst io.Writer) (int64, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, id string, dst io.Writer) (int64, error) {
	return f(ctx, id, dst)
}

// Registry dispatches on the identifier scheme.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]Fetcher)}
}

// Register binds fetcher to one or more schemes.
func (r *Registry) Register(f Fetcher, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.fetchers[strings.ToLower(s)] = f
	}
}

// Schemes returns the registered schemes.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.fetchers))
	for s := range r.fetchers {
		out = append(out, s)
	}
	return out
}

// Fetch routes id to the fetcher registered for its scheme.
func (r *Registry) Fetch(ctx context.Context, id string, dst io.Writer) (int64, error) {
	scheme, err := Scheme(id)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	f, ok := r.fetchers[scheme]
	r.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("no fetcher for scheme %q", scheme)
	}
	return f.Fetch(ctx, id, dst)
}

// Scheme returns the lower-cased scheme of id, "file" for bare paths.
func Scheme(id string) (string, error) {
	if !strings.Contains(id, "://") {
		return "file", nil
	}
	u, err := url.Parse(id)
	if err != nil {
		return "", fmt.Errorf("invalid identifier %q: %w", id, err)
	}
	return strings.ToLower(u.Scheme), nil
}

// splitBucketKey parses scheme://bucket/key.
func splitBucketKey(id, scheme string) (bucket, key string, err error) {
	u, err := url.Parse(id)
	if err != nil {
		return "", "", fmt.Errorf("parse %q: %w", id, err)
	}
	if u.Scheme != scheme {
		return "", "", fmt.Errorf("expected %s:// scheme, got %q in %q", scheme, u.Scheme, id)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("identifier %q needs both bucket and key", id)
	}
	return bucket, key, nil
}
