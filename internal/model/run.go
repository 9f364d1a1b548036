package model

import (
	"time"
)

// RunStatus represents the current state of a merge run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusNoop     RunStatus = "noop"
	RunStatusFailed   RunStatus = "failed"
)

// WriteMode selects where a merged master table is written.
type WriteMode string

const (
	WriteModeNewFile WriteMode = "new_file" // write an updated copy, master untouched
	WriteModeInPlace WriteMode = "in_place" // overwrite the master after a backup
)

// Valid reports whether m is a known write mode.
func (m WriteMode) Valid() bool {
	return m == WriteModeNewFile || m == WriteModeInPlace
}

// DropReason explains why an input row did not reach the master table.
type DropReason string

const (
	DropFiltered         DropReason = "filtered"
	DropInvalidTerm      DropReason = "invalid_term"
	DropInvalidStartDate DropReason = "invalid_start_date"
	DropDuplicate        DropReason = "duplicate"
)

// DroppedRow records one excluded input row.
type DroppedRow struct {
	SourceRow int        `json:"source_row"` // 1-based data row number in the input
	Reason    DropReason `json:"reason"`
	Value     string     `json:"value,omitempty"`
}

// Run is one ledger entry for a merge invocation.
type Run struct {
	ID         string     `json:"id"`
	InputPath  string     `json:"input_path"`
	MasterPath string     `json:"master_path"`
	Mode       WriteMode  `json:"mode"`
	RunDate    time.Time  `json:"run_date"`
	Status     RunStatus  `json:"status"`
	Result     *RunResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunResult holds the outcome of a completed run.
type RunResult struct {
	RuleSet          string             `json:"rule_set"`
	RowsRead         int                `json:"rows_read"`
	RowsMapped       int                `json:"rows_mapped"`
	RowsAppended     int                `json:"rows_appended"`
	Dropped          map[DropReason]int `json:"dropped,omitempty"`
	FirstID          int64              `json:"first_id,omitempty"`
	LastID           int64              `json:"last_id,omitempty"`
	MasterRowsBefore int                `json:"master_rows_before"`
	MasterRowsAfter  int                `json:"master_rows_after"`
	OutputPath       string             `json:"output_path,omitempty"`
	BackupPath       string             `json:"backup_path,omitempty"`
}
