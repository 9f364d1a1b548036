package table

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pricing-cli/internal/model"
)

// WriteAtomic writes t through w into a temporary file next to path and
// renames it into place, so readers see either the old file or the new
// one and never a partial write. The temporary file keeps path's extension
// so w can pick the format.
func WriteAtomic(w Writer, path string, t *Table) error {
	return WriteAtomicFrom(w, "", path, t)
}

// WriteAtomicFrom is WriteAtomic starting from template when w is a
// TemplateWriter. template may be path itself; it is read before the
// rename replaces it.
func WriteAtomicFrom(w Writer, template, path string, t *Table) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	suffix := filepath.Ext(base)
	stem := strings.TrimSuffix(base, suffix)

	tmp, err := os.CreateTemp(dir, "."+stem+".tmp-*"+suffix)
	if err != nil {
		return model.NewError(model.KindUnwritableFile, "create temp file", err).With("path", path)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return model.NewError(model.KindUnwritableFile, "close temp file", err).With("path", path)
	}

	write := w.Write
	if tw, ok := w.(TemplateWriter); ok && template != "" {
		write = func(p string, t *Table) error { return tw.WriteFrom(template, p, t) }
	}
	if err := write(tmpPath, t); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return eris.Wrap(err, "table: write temp file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return model.NewError(model.KindUnwritableFile, "rename into place", err).With("path", path)
	}
	return nil
}
