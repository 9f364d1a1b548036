// Package fetcher locates the master file. Local paths pass through;
// http(s) and ftp sources are downloaded into a working directory.
package fetcher

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote file.
type Fetcher interface {
	// Download fetches the URL and returns the body. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// DownloadToFile fetches url with f and writes it to path. Returns bytes
// written.
func DownloadToFile(ctx context.Context, f Fetcher, url, path string) (int64, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}

	n, err := io.Copy(file, body)
	if err != nil {
		file.Close() //nolint:errcheck
		return n, eris.Wrap(err, "write file")
	}
	if err := file.Sync(); err != nil {
		file.Close() //nolint:errcheck
		return n, eris.Wrap(err, "sync file")
	}
	return n, eris.Wrap(file.Close(), "close file")
}
