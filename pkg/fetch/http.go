package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

// HTTPFetcher downloads http and https identifiers.
type HTTPFetcher struct {
	client  *http.Client
	headers map[string]string
	// progress, when set, receives a copy of the body. It is given the
	// Content-Length, or -1 when unknown.
	progress func(contentLength int64) io.Writer
}

// HTTPOptions configures an HTTPFetcher.
type HTTPOptions struct {
	// Custom HTTP client
	Client *http.Client

	// Timeout for the client built when Client is nil. Zero means none:
	// the dataset archive is large and a fixed deadline would cut it off.
	Timeout time.Duration

	Headers     map[string]string
	BearerToken string

	Progress func(contentLength int64) io.Writer
}

// NewHTTPFetcher creates an HTTP fetcher.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	f := &HTTPFetcher{
		client:   opts.Client,
		headers:  make(map[string]string),
		progress: opts.Progress,
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: opts.Timeout}
	}
	for k, v := range opts.Headers {
		f.headers[k] = v
	}
	if opts.BearerToken != "" {
		f.headers["Authorization"] = "Bearer " + opts.BearerToken
	}
	return f
}

// Fetch GETs id and streams the body into dst. Any status other than 200
// fails, as does an HTML response.
func (f *HTTPFetcher) Fetch(ctx context.Context, id string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	// Drive and similar hosts answer 200 with an HTML interstitial (virus
	// scan or sign-in) instead of the file.
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && mt == "text/html" {
			return 0, fmt.Errorf("server returned an HTML page instead of the archive (Content-Type %q); the link may need confirmation or be private", ct)
		}
	}

	w := dst
	if f.progress != nil {
		w = io.MultiWriter(dst, f.progress(resp.ContentLength))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read body: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	return n, nil
}
