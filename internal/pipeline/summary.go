package pipeline

import (
	"time"

	"github.com/sells-group/pricing-cli/internal/model"
)

// Summary reports the outcome of one merge run.
type Summary struct {
	RunID      string          `json:"run_id"`
	Status     model.RunStatus `json:"status"`
	Mode       model.WriteMode `json:"mode"`
	RunDate    time.Time       `json:"run_date"`
	InputPath  string          `json:"input_path"`
	MasterPath string          `json:"master_path"`

	RuleSet string  `json:"rule_set"`
	Score   float64 `json:"score"`

	RowsRead          int                      `json:"rows_read"`
	RowsMapped        int                      `json:"rows_mapped"`
	RowsAppended      int                      `json:"rows_appended"`
	DuplicatesSkipped int                      `json:"duplicates_skipped"`
	Dropped           []model.DroppedRow       `json:"dropped,omitempty"`
	DroppedByReason   map[model.DropReason]int `json:"dropped_by_reason,omitempty"`

	FirstID          int64 `json:"first_id,omitempty"`
	LastID           int64 `json:"last_id,omitempty"`
	MasterRowsBefore int   `json:"master_rows_before"`
	MasterRowsAfter  int   `json:"master_rows_after"`

	OutputPath string `json:"output_path,omitempty"` // empty when nothing was written
	BackupPath string `json:"backup_path,omitempty"` // empty when no backup was taken

	UnmappedColumns []string `json:"unmapped_columns,omitempty"` // input columns no rule read
	DroppedColumns  []string `json:"dropped_columns,omitempty"`  // master columns outside the schema
}

func (s *Summary) addDropped(rows ...model.DroppedRow) {
	if len(rows) == 0 {
		return
	}
	if s.DroppedByReason == nil {
		s.DroppedByReason = make(map[model.DropReason]int)
	}
	for _, d := range rows {
		s.Dropped = append(s.Dropped, d)
		s.DroppedByReason[d.Reason]++
	}
}

// Result converts the summary into a ledger result.
func (s *Summary) Result() *model.RunResult {
	return &model.RunResult{
		RuleSet:          s.RuleSet,
		RowsRead:         s.RowsRead,
		RowsMapped:       s.RowsMapped,
		RowsAppended:     s.RowsAppended,
		Dropped:          s.DroppedByReason,
		FirstID:          s.FirstID,
		LastID:           s.LastID,
		MasterRowsBefore: s.MasterRowsBefore,
		MasterRowsAfter:  s.MasterRowsAfter,
		OutputPath:       s.OutputPath,
		BackupPath:       s.BackupPath,
	}
}
