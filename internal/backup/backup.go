// Package backup takes timestamped, immutable copies of the master table
// before it is overwritten.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/model"
)

// DefaultDir is the backups directory created next to the master file.
const DefaultDir = "backups"

const timestampLayout = "20060102_150405"

// maxCollisions bounds the counter suffix search for one timestamp.
const maxCollisions = 1000

// Manager creates backups of master table files.
type Manager struct {
	dir string
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithDir sets the backups directory name (relative to the master's directory).
func WithDir(dir string) Option {
	return func(m *Manager) {
		if dir != "" {
			m.dir = dir
		}
	}
}

// WithClock sets the clock used for backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{dir: DefaultDir, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dir returns the backups directory for a master file.
func (m *Manager) Dir(masterPath string) string {
	if filepath.IsAbs(m.dir) {
		return m.dir
	}
	return filepath.Join(filepath.Dir(masterPath), m.dir)
}

// Backup copies masterPath into the backups directory and returns the
// backup's path. The copy keeps the source's bytes, mode and modification
// time. The source is never modified.
func (m *Manager) Backup(masterPath string) (string, error) {
	src, err := os.Open(masterPath)
	if err != nil {
		return "", model.NewError(model.KindSourceMissing, "open master", err).With("path", masterPath)
	}
	defer src.Close() //nolint:errcheck

	info, err := src.Stat()
	if err != nil {
		return "", model.NewError(model.KindSourceMissing, "stat master", err).With("path", masterPath)
	}
	if info.IsDir() {
		return "", model.NewError(model.KindSourceMissing, "master is a directory", nil).With("path", masterPath)
	}

	dir := m.Dir(masterPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", model.NewError(model.KindBackupFailed, "create backups directory", err).With("dir", dir)
	}

	dst, dstPath, err := m.create(dir, masterPath, info.Mode().Perm())
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()        //nolint:errcheck
		os.Remove(dstPath) //nolint:errcheck
		return "", model.NewError(model.KindBackupFailed, "copy master", err).With("backup", dstPath)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()        //nolint:errcheck
		os.Remove(dstPath) //nolint:errcheck
		return "", model.NewError(model.KindBackupFailed, "sync backup", err).With("backup", dstPath)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dstPath) //nolint:errcheck
		return "", model.NewError(model.KindBackupFailed, "close backup", err).With("backup", dstPath)
	}
	if err := os.Chmod(dstPath, info.Mode().Perm()); err != nil {
		zap.L().Warn("backup: could not preserve file mode",
			zap.String("backup", dstPath),
			zap.Error(err),
		)
	}
	if err := os.Chtimes(dstPath, info.ModTime(), info.ModTime()); err != nil {
		zap.L().Warn("backup: could not preserve modification time",
			zap.String("backup", dstPath),
			zap.Error(err),
		)
	}

	zap.L().Info("backup: created",
		zap.String("master", masterPath),
		zap.String("backup", dstPath),
		zap.Int64("bytes", info.Size()),
	)
	return dstPath, nil
}

// create opens a new, exclusive backup file. A name already taken in the
// same second gets a counter suffix.
func (m *Manager) create(dir, masterPath string, perm fs.FileMode) (*os.File, string, error) {
	base := Name(masterPath, m.now())
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 0; i < maxCollisions; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm|0o200)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", model.NewError(model.KindBackupFailed, "create backup file", err).With("backup", path)
		}
	}
	return nil, "", model.NewError(model.KindBackupFailed, "too many backups in one second", nil).With("dir", dir)
}

// Name returns the backup file name for a master at time t:
// {stem}_backup_{YYYYMMDD_HHMMSS}{ext}.
func Name(masterPath string, t time.Time) string {
	base := filepath.Base(masterPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return stem + "_backup_" + t.Format(timestampLayout) + ext
}

// Entry describes one existing backup.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// List returns the backups of masterPath, oldest first by name.
func (m *Manager) List(masterPath string) ([]Entry, error) {
	base := filepath.Base(masterPath)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "_backup_"

	dir := m.Dir(masterPath)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewError(model.KindUnreadableFile, "read backups directory", err).With("dir", dir)
	}

	var out []Entry
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
