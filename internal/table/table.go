// Package table reads and writes spreadsheet files as plain header + row grids.
package table

import (
	"path/filepath"
	"strings"

	"github.com/sells-group/pricing-cli/internal/model"
)

// Table is an ordered set of named columns and string cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// New returns an empty table with the given header.
func New(columns []string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// FromGrid builds a table from raw rows. The first non-blank row is the
// header; trailing blank rows are dropped and every other row is padded or
// cut to the header width, so row positions match the source.
func FromGrid(grid [][]string) *Table {
	return FromGridAt(grid, firstNonBlank(grid))
}

// FromGridAt builds a table whose header is grid[header]. Rows above the
// header are ignored. A negative or out-of-range header gives an empty
// table.
func FromGridAt(grid [][]string, header int) *Table {
	t := &Table{}
	if header < 0 || header >= len(grid) {
		return t
	}

	body := grid[header+1:]
	end := len(body)
	for end > 0 && IsBlank(body[end-1]) {
		end--
	}

	t.Columns = trimTrailingEmpty(grid[header])
	t.Rows = make([][]string, 0, end)
	for _, row := range body[:end] {
		t.Rows = append(t.Rows, fit(row, len(t.Columns)))
	}
	return t
}

// DefaultHeaderScan is how many leading rows DetectHeader considers.
const DefaultHeaderScan = 30

// HeaderScorer rates how much a row looks like a header row. Zero means
// not a header.
type HeaderScorer func(row []string) float64

// DetectHeader returns the index of the best-scoring row among the first
// limit rows of grid; ties go to the earlier row. When no row scores above
// zero it falls back to the first non-blank row, and it returns -1 for a
// blank grid.
func DetectHeader(grid [][]string, limit int, score HeaderScorer) int {
	if score == nil {
		return firstNonBlank(grid)
	}
	if limit <= 0 || limit > len(grid) {
		limit = len(grid)
	}
	best, bestScore := -1, 0.0
	for i, row := range grid[:limit] {
		if IsBlank(row) {
			continue
		}
		if s := score(trimTrailingEmpty(row)); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return firstNonBlank(grid)
	}
	return best
}

func firstNonBlank(grid [][]string) int {
	for i, row := range grid {
		if !IsBlank(row) {
			return i
		}
	}
	return -1
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of the column with the exact header name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Cell returns the value at (row, col), or "" when out of range.
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]string(nil), row...)
	}
	return out
}

// Reader loads a table from a file.
type Reader interface {
	Read(path string) (*Table, error)
}

// Writer persists a table to a file, replacing any existing content.
type Writer interface {
	Write(path string, t *Table) error
}

// TemplateWriter is a Writer that can start from an existing file, such
// as the workbook the table was read from.
type TemplateWriter interface {
	Writer
	WriteFrom(template, path string, t *Table) error
}

// Options configures FileCodec.
type Options struct {
	Sheet       string   // XLSX sheet name; empty means PreferSheet, then the first sheet
	PreferSheet []string // words a default sheet name should contain, e.g. "matrix", "table"
	SkipRows    int      // rows to skip before looking for the header
	DateColumns []string // XLSX columns written as date cells

	// HeaderScore, when set, picks the header among the first HeaderScan
	// rows instead of taking the first non-blank row.
	HeaderScore HeaderScorer
	HeaderScan  int // default DefaultHeaderScan
}

// FileCodec reads and writes XLSX and CSV files, chosen by extension.
type FileCodec struct {
	opts Options
}

// NewFileCodec creates a FileCodec with the given options.
func NewFileCodec(opts Options) *FileCodec {
	return &FileCodec{opts: opts}
}

// Read implements Reader.
func (c *FileCodec) Read(path string) (*Table, error) {
	var (
		grid [][]string
		err  error
	)
	switch ext(path) {
	case ".xlsx", ".xlsm":
		grid, err = ReadXLSX(path, XLSXOptions{
			SheetName:   c.opts.Sheet,
			PreferSheet: c.opts.PreferSheet,
			SkipRows:    c.opts.SkipRows,
		})
	case ".csv":
		grid, err = ReadCSV(path, CSVOptions{SkipRows: c.opts.SkipRows, TrimSpace: true})
	default:
		return nil, model.NewError(model.KindUnreadableFile, "unsupported file type", nil).With("path", path)
	}
	if err != nil {
		return nil, model.NewError(model.KindUnreadableFile, "read "+path, err)
	}
	if c.opts.HeaderScore == nil {
		return FromGrid(grid), nil
	}
	scan := c.opts.HeaderScan
	if scan <= 0 {
		scan = DefaultHeaderScan
	}
	return FromGridAt(grid, DetectHeader(grid, scan, c.opts.HeaderScore)), nil
}

// Write implements Writer.
func (c *FileCodec) Write(path string, t *Table) error {
	return c.WriteFrom("", path, t)
}

// WriteFrom implements TemplateWriter. An XLSX template keeps its other
// sheets, and unchanged cells keep their types and formats.
func (c *FileCodec) WriteFrom(template, path string, t *Table) error {
	var err error
	switch ext(path) {
	case ".xlsx":
		opts := XLSXWriteOptions{SheetName: c.opts.Sheet, DateColumns: c.opts.DateColumns}
		if e := ext(template); e == ".xlsx" || e == ".xlsm" {
			opts.Template = template
		}
		err = WriteXLSX(path, t, opts)
	case ".csv":
		err = WriteCSV(path, t)
	default:
		return model.NewError(model.KindUnwritableFile, "unsupported file type", nil).With("path", path)
	}
	if err != nil {
		return model.NewError(model.KindUnwritableFile, "write "+path, err)
	}
	return nil
}

// Writable reports whether FileCodec can write a file with path's
// extension.
func Writable(path string) bool {
	switch ext(path) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsBlank reports whether every cell of row is empty or whitespace.
func IsBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func trimTrailingEmpty(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	out := make([]string, end)
	for i := range out {
		out[i] = strings.TrimSpace(row[i])
	}
	return out
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}
