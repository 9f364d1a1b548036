package appender

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/table"
)

// DefaultOutputName is the file name of the updated copy written next to
// the master in new-file mode.
const DefaultOutputName = "master-file-updated.xlsx"

// DefaultOutput returns the new-file output path for a master: the default
// name next to the master, keeping the master's extension when it can be
// written.
func DefaultOutput(masterPath string) string {
	name := DefaultOutputName
	if ext := filepath.Ext(masterPath); ext != "" && table.Writable(masterPath) {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ext
	}
	return filepath.Join(filepath.Dir(masterPath), name)
}

// Target says where a merged table goes.
type Target struct {
	Mode   model.WriteMode
	Master string // master table path
	Path   string // output path; defaults to Master in in-place mode
	Backup string // backup taken before an in-place write
}

// Destination returns the path Commit writes to.
func (t Target) Destination() string {
	if t.Mode == model.WriteModeInPlace && t.Path == "" {
		return t.Master
	}
	return t.Path
}

// Commit writes merged to the target atomically, starting from the master
// file when the writer supports templates. In-place writes over an
// existing master require a backup that exists on disk; new-file writes
// never touch the master.
func (e *Engine) Commit(merged *Merged, target Target) error {
	if merged == nil || merged.Table == nil {
		return eris.New("appender: nothing to commit")
	}
	if !target.Mode.Valid() {
		return eris.Errorf("appender: unknown write mode %q", target.Mode)
	}

	dest := target.Destination()
	if dest == "" {
		return model.NewError(model.KindUnwritableFile, "no output path", nil).With("mode", string(target.Mode))
	}

	switch target.Mode {
	case model.WriteModeNewFile:
		if samePath(dest, target.Master) {
			return model.NewError(model.KindUnsafeOverwrite, "new-file output would overwrite the master", nil).
				With("path", dest)
		}
	case model.WriteModeInPlace:
		if !samePath(dest, target.Master) {
			return eris.Errorf("appender: in-place output %s is not the master %s", dest, target.Master)
		}
		exists, err := fileExists(target.Master)
		if err != nil {
			return model.NewError(model.KindUnreadableFile, "stat master", err).With("path", target.Master)
		}
		if exists {
			if target.Backup == "" {
				return model.NewError(model.KindUnsafeOverwrite, "in-place write without a backup", nil).
					With("path", dest)
			}
			if ok, _ := fileExists(target.Backup); !ok {
				return model.NewError(model.KindUnsafeOverwrite, "backup file is missing", nil).
					With("path", dest).
					With("backup", target.Backup)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return model.NewError(model.KindUnwritableFile, "create output directory", err).With("path", dest)
	}
	if err := table.WriteAtomicFrom(e.writer, target.Master, dest, merged.Table); err != nil {
		return err
	}

	zap.L().Info("appender: committed master table",
		zap.String("mode", string(target.Mode)),
		zap.String("path", dest),
		zap.String("backup", target.Backup),
		zap.Int("rows", merged.Table.Len()),
		zap.Int("appended", merged.AppendedCount()),
	)
	return nil
}

func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
