package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/model"
)

const renameLayout = "20060102_150405"

// Resolver turns a master source into a local file path.
type Resolver struct {
	http Fetcher
	ftp  Fetcher
	now  func() time.Time
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverClock sets the clock used for rename suffixes.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a Resolver. Either fetcher may be nil, in which case
// sources with that scheme are rejected.
func NewResolver(httpFetcher, ftpFetcher Fetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{http: httpFetcher, ftp: ftpFetcher, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsRemote reports whether source names an http(s) or ftp URL.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp":
		return true
	}
	return false
}

// Resolve returns a local path for source. Local paths (and file:// URLs)
// must exist and are returned unchanged. Remote sources are downloaded into
// destDir under their own file name; a file already there is first renamed
// with a _{YYYYMMDD_HHMMSS} suffix.
func (r *Resolver) Resolve(ctx context.Context, source, destDir string) (string, error) {
	if source == "" {
		return "", eris.New("fetcher: empty source")
	}
	if !IsRemote(source) {
		local := strings.TrimPrefix(source, "file://")
		info, err := os.Stat(local)
		if err != nil {
			return "", model.NewError(model.KindSourceMissing, "master source not found", err).With("source", source)
		}
		if info.IsDir() {
			return "", model.NewError(model.KindSourceMissing, "master source is a directory", nil).With("source", source)
		}
		return local, nil
	}

	u, _ := url.Parse(source)
	var f Fetcher
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		f = r.http
	case "ftp":
		f = r.ftp
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no fetcher configured for %s", u.Scheme)
	}

	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "" || name == "." || name == "/" {
		return "", eris.Errorf("fetcher: cannot derive a file name from %s", source)
	}

	if destDir == "" {
		destDir = "."
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "fetcher: create %s", destDir)
	}
	dest := filepath.Join(destDir, name)

	tmp, err := os.CreateTemp(destDir, ".fetch-*")
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create temp file")
	}
	tmpPath := tmp.Name()
	tmp.Close() //nolint:errcheck

	start := time.Now()
	n, err := DownloadToFile(ctx, f, source, tmpPath)
	if err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", model.NewError(model.KindSourceMissing, "download master", err).With("source", source)
	}

	if err := r.moveAside(dest); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", eris.Wrapf(err, "fetcher: rename into %s", dest)
	}

	zap.L().Info("fetcher: downloaded master",
		zap.String("source", source),
		zap.String("path", dest),
		zap.Int64("bytes", n),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return dest, nil
}

// moveAside renames an existing file at dest to {stem}_{timestamp}{ext},
// adding a counter if that name is taken too.
func (r *Resolver) moveAside(dest string) error {
	if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return eris.Wrapf(err, "fetcher: stat %s", dest)
	}

	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext) + "_" + r.now().Format(renameLayout)
	target := stem + ext
	for i := 1; ; i++ {
		if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
			break
		}
		target = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	if err := os.Rename(dest, target); err != nil {
		return eris.Wrapf(err, "fetcher: rename existing %s", dest)
	}
	zap.L().Info("fetcher: existing file renamed", zap.String("from", dest), zap.String("to", target))
	return nil
}
