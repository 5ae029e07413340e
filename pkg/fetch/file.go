package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// FileFetcher copies local files. It serves file:// URLs and bare paths,
// which is how pre-staged archives are provisioned offline.
type FileFetcher struct{}

// Fetch copies the file into dst.
func (FileFetcher) Fetch(ctx context.Context, id string, dst io.Writer) (int64, error) {
	path := id
	if strings.HasPrefix(id, "file://") {
		u, err := url.Parse(id)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", id, err)
		}
		path = u.Path
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return io.Copy(dst, f)
}
