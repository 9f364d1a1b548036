// Package appender merges new master rows into an existing master table
// and commits the result to disk.
package appender

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/dates"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/table"
)

// Engine merges and commits master tables.
type Engine struct {
	schema         *model.Schema
	writer         table.Writer
	skipDuplicates bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSkipDuplicates drops new rows whose business key already exists in
// the master or earlier in the same batch.
func WithSkipDuplicates(skip bool) Option {
	return func(e *Engine) { e.skipDuplicates = skip }
}

// NewEngine creates an Engine writing through w.
func NewEngine(w table.Writer, opts ...Option) *Engine {
	e := &Engine{schema: model.MasterSchema(), writer: w}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Merged is an in-memory merge result: the existing rows, unchanged and in
// order, followed by the appended rows.
type Merged struct {
	Table          *table.Table
	ExistingRows   int
	Appended       []model.MasterRow // with assigned Ids
	Skipped        []int             // indexes into the input batch dropped as duplicates
	FirstID        int64
	LastID         int64
	DroppedColumns []string // master columns outside the schema
}

// AppendedCount returns the number of rows added to the master.
func (m *Merged) AppendedCount() int {
	return len(m.Appended)
}

// Merge appends rows to master. master may be nil or header-only for a new
// master file. The input rows are not modified.
func (e *Engine) Merge(master *table.Table, rows []model.MasterRow) (*Merged, error) {
	if master == nil {
		master = table.New(nil)
	}

	existing, dropped, err := e.project(master)
	if err != nil {
		return nil, err
	}

	out := &Merged{
		Table:          table.New(e.schema.Headers()),
		ExistingRows:   len(existing),
		DroppedColumns: dropped,
	}
	out.Table.Rows = make([][]string, 0, len(existing)+len(rows))
	out.Table.Rows = append(out.Table.Rows, existing...)

	var seen map[string]bool
	if e.skipDuplicates {
		seen = make(map[string]bool, len(existing)+len(rows))
		for _, cells := range existing {
			seen[e.existingKey(cells)] = true
		}
	}

	next := maxID(existing) + 1
	for i, r := range rows {
		if seen != nil {
			key := r.BusinessKey()
			if seen[key] {
				out.Skipped = append(out.Skipped, i)
				continue
			}
			seen[key] = true
		}
		r.ID = next
		next++
		out.Appended = append(out.Appended, r)
		out.Table.Rows = append(out.Table.Rows, r.Cells())
	}

	if n := len(out.Appended); n > 0 {
		out.FirstID = out.Appended[0].ID
		out.LastID = out.Appended[n-1].ID
	}

	zap.L().Debug("appender: merged",
		zap.Int("existing_rows", out.ExistingRows),
		zap.Int("appended", len(out.Appended)),
		zap.Int("skipped_duplicates", len(out.Skipped)),
		zap.Int64("first_id", out.FirstID),
		zap.Int64("last_id", out.LastID),
	)
	return out, nil
}

// project re-orders the master's columns into schema order, keeping every
// existing cell's text.
func (e *Engine) project(master *table.Table) ([][]string, []string, error) {
	cols := e.schema.Columns
	pos := make([]int, len(cols))
	for i := range pos {
		pos[i] = -1
	}

	var dropped, duplicated []string
	for j, header := range master.Columns {
		if strings.TrimSpace(header) == "" {
			continue
		}
		i, ok := e.schema.Index(header)
		if !ok {
			dropped = append(dropped, header)
			continue
		}
		if pos[i] >= 0 {
			duplicated = append(duplicated, header)
			continue
		}
		pos[i] = j
	}
	if len(duplicated) > 0 {
		return nil, nil, model.NewError(model.KindSchemaMismatch, "master has duplicate columns", nil).
			With("duplicated", strings.Join(duplicated, ", "))
	}

	var missing []string
	for i, p := range pos {
		if p < 0 {
			missing = append(missing, string(cols[i].Column))
		}
	}
	if len(missing) > 0 && master.Len() > 0 {
		return nil, nil, model.NewError(model.KindSchemaMismatch, "master is missing columns", nil).
			With("missing", strings.Join(missing, ", "))
	}

	if len(dropped) > 0 {
		zap.L().Warn("appender: dropping master columns outside the schema",
			zap.Strings("columns", dropped),
		)
	}

	rows := make([][]string, master.Len())
	for r, src := range master.Rows {
		cells := make([]string, len(cols))
		for i, p := range pos {
			if p >= 0 && p < len(src) {
				cells[i] = src[p]
			}
		}
		rows[r] = cells
	}
	return rows, dropped, nil
}

var (
	idIdx    = columnIndex(model.ColID)
	zoneIdx  = columnIndex(model.ColZone)
	loadIdx  = columnIndex(model.ColLoad)
	repIdx   = columnIndex(model.ColREP)
	termIdx  = columnIndex(model.ColTerm)
	startIdx = columnIndex(model.ColStartDate)
)

func columnIndex(c model.Column) int {
	i, _ := model.MasterSchema().Index(string(c))
	return i
}

// maxID returns the largest numeric Id among rows. Non-numeric cells are
// ignored.
func maxID(rows [][]string) int64 {
	var highest int64
	for _, cells := range rows {
		if id, ok := parseID(cells[idIdx]); ok && id > highest {
			highest = id
		}
	}
	return highest
}

func parseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// existingKey builds the business key of a master row from its cell text,
// rendering term and start date the way new rows do.
func (e *Engine) existingKey(cells []string) string {
	term := strings.TrimSpace(cells[termIdx])
	if f, err := strconv.ParseFloat(term, 64); err == nil {
		term = strconv.Itoa(int(f))
	}
	start := strings.TrimSpace(cells[startIdx])
	if t, ok := dates.Parse(start); ok {
		start = t.Format(model.DateLayout)
	}
	return model.BusinessKey(
		cells[zoneIdx],
		cells[loadIdx],
		cells[repIdx],
		term,
		start,
	)
}
