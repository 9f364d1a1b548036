package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/model"
)

func TestIsRemote(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/master.xlsx": true,
		"HTTP://example.com/master.xlsx":  true,
		"ftp://example.com/master.xlsx":   true,
		"/data/master.xlsx":               false,
		"master.xlsx":                     false,
		"file:///data/master.xlsx":        false,
	}
	for src, want := range tests {
		assert.Equal(t, want, IsRemote(src), src)
	}
}

func TestResolve_Local(t *testing.T) {
	dir := t.TempDir()
	master := filepath.Join(dir, "master.xlsx")
	require.NoError(t, os.WriteFile(master, []byte("x"), 0o644))
	r := NewResolver(nil, nil)

	got, err := r.Resolve(context.Background(), master, "ignored")
	require.NoError(t, err)
	assert.Equal(t, master, got)

	got, err = r.Resolve(context.Background(), "file://"+master, "")
	require.NoError(t, err)
	assert.Equal(t, master, got)

	_, err = r.Resolve(context.Background(), filepath.Join(dir, "missing.xlsx"), "")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindSourceMissing))

	_, err = r.Resolve(context.Background(), dir, "")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindSourceMissing))
}

func TestResolve_DownloadRenamesExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("fresh")) //nolint:errcheck
	}))
	defer srv.Close()

	dest := t.TempDir()
	existing := filepath.Join(dest, "Hudson Master.xlsx")
	require.NoError(t, os.WriteFile(existing, []byte("stale"), 0o644))

	clock := func() time.Time { return time.Date(2025, 8, 27, 14, 7, 1, 0, time.UTC) }
	r := NewResolver(fastHTTP(HTTPOptions{}), nil, WithResolverClock(clock))

	got, err := r.Resolve(context.Background(), srv.URL+"/sites/pricing/Hudson%20Master.xlsx", dest)
	require.NoError(t, err)
	assert.Equal(t, existing, got)

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))

	renamed, err := os.ReadFile(filepath.Join(dest, "Hudson Master_20250827_140701.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "stale", string(renamed))

	// A second download in the same second gets a counter.
	require.NoError(t, os.WriteFile(existing, []byte("stale again"), 0o644))
	_, err = r.Resolve(context.Background(), srv.URL+"/Hudson%20Master.xlsx", dest)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dest, "Hudson Master_20250827_140701_1.xlsx"))
	require.NoError(t, err)
}

func TestResolve_DownloadFailureKeepsExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := t.TempDir()
	existing := filepath.Join(dest, "master.xlsx")
	require.NoError(t, os.WriteFile(existing, []byte("keep"), 0o644))

	_, err := NewResolver(fastHTTP(HTTPOptions{}), nil).Resolve(context.Background(), srv.URL+"/master.xlsx", dest)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindSourceMissing))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files or renames left behind")
	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))
}

func TestResolve_FTP(t *testing.T) {
	srv := newMiniFTPServer(t, map[string]string{"/pricing/master.csv": "ID\n1\n"})
	dest := filepath.Join(t.TempDir(), "downloads")

	got, err := NewResolver(nil, fastFTP()).Resolve(context.Background(), "ftp://"+srv.addr()+"/pricing/master.csv", dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "master.csv"), got)
}

func TestResolve_Errors(t *testing.T) {
	r := NewResolver(nil, nil)

	_, err := r.Resolve(context.Background(), "", "")
	require.Error(t, err)

	_, err = r.Resolve(context.Background(), "https://example.com/master.xlsx", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fetcher configured for https")

	_, err = NewResolver(fastHTTP(HTTPOptions{}), nil).Resolve(context.Background(), "https://example.com/", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot derive a file name")
}
