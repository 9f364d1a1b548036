package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pricing-cli/internal/backup"
	"github.com/sells-group/pricing-cli/internal/mapping"
	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/table"
)

const (
	masterSheet    = "Master"
	notesText      = "Daily pricing master; do not rename sheets"
	currencyFormat = "$#,##0.00"
)

// xlsxFixture is a fixture whose master is a two-sheet workbook: a notes
// sheet followed by the master sheet, with Daily_No_Ruc shown as currency.
type xlsxFixture struct {
	*fixture
	masterCodec *table.FileCodec
}

func schemaIndex(t *testing.T, c model.Column) int {
	t.Helper()
	i, ok := model.MasterSchema().Index(string(c))
	require.True(t, ok, c)
	return i
}

func writeXLSXMaster(t *testing.T, path string) {
	t.Helper()
	f := xlsx.NewFile()
	notes, err := f.AddSheet("Notes")
	require.NoError(t, err)
	notes.AddRow().AddCell().SetString(notesText)

	sheet, err := f.AddSheet(masterSheet)
	require.NoError(t, err)
	header := sheet.AddRow()
	for _, h := range model.MasterSchema().Headers() {
		header.AddCell().SetString(h)
	}

	dates := map[int]bool{
		schemaIndex(t, model.ColPriceDate): true,
		schemaIndex(t, model.ColStartDate): true,
	}
	daily := schemaIndex(t, model.ColDailyNoRUC)
	for _, values := range masterRows {
		row := sheet.AddRow()
		for j, v := range values {
			cell := row.AddCell()
			if dates[j] {
				d, err := time.Parse(model.DateLayout, v)
				require.NoError(t, err)
				cell.SetDate(d)
				continue
			}
			n, err := strconv.ParseFloat(v, 64)
			switch {
			case err != nil:
				cell.SetString(v)
			case j == daily:
				cell.SetFloatWithFormat(n, currencyFormat)
			default:
				cell.SetFloat(n)
			}
		}
	}
	require.NoError(t, f.Save(path))
}

func newXLSXFixture(t *testing.T, inputRows ...[]string) *xlsxFixture {
	t.Helper()
	f := &xlsxFixture{
		fixture: newFixture(t, inputRows...),
		masterCodec: table.NewFileCodec(table.Options{
			Sheet:       masterSheet,
			DateColumns: model.MasterSchema().HeadersOfKind(model.KindDate),
		}),
	}
	f.master = filepath.Join(f.dir, "Master-Table.xlsx")
	writeXLSXMaster(t, f.master)
	return f
}

func (f *xlsxFixture) runner(opts ...Option) *Runner {
	opts = append([]Option{WithClock(fixedClock(runDate)), WithMasterReader(f.masterCodec)}, opts...)
	return New(f.codec, f.masterCodec, mapping.NewMapper(0), backup.NewManager(backup.WithClock(fixedClock(runDate))), opts...)
}

func (f *xlsxFixture) readMaster(t *testing.T, path string) *table.Table {
	t.Helper()
	tbl, err := f.masterCodec.Read(path)
	require.NoError(t, err)
	return tbl
}

// assertWorkbookKept checks that the notes sheet survived, the master sheet
// kept its name, and Daily_No_Ruc cells are still currency-formatted numbers.
func assertWorkbookKept(t *testing.T, path string, rows int) {
	t.Helper()
	wb, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, wb.Sheets, 2)
	assert.Equal(t, "Notes", wb.Sheets[0].Name)
	assert.Equal(t, notesText, wb.Sheets[0].Cell(0, 0).Value)

	sheet := wb.Sheets[1]
	assert.Equal(t, masterSheet, sheet.Name)
	daily := schemaIndex(t, model.ColDailyNoRUC)

	existing := sheet.Cell(1, daily)
	assert.Equal(t, xlsx.CellTypeNumeric, existing.Type())
	assert.Equal(t, "70", existing.Value)
	assert.Equal(t, currencyFormat, existing.NumFmt)

	for r := 1; r <= rows; r++ {
		c := sheet.Cell(r, daily)
		assert.Equal(t, xlsx.CellTypeNumeric, c.Type(), "row %d", r)
		assert.Equal(t, currencyFormat, c.NumFmt, "row %d", r)
	}
}

func TestRun_XLSXMasterNewFile(t *testing.T) {
	f := newXLSXFixture(t, scenarioRow())
	before := readBytes(t, f.master)
	existing := f.readMaster(t, f.master)
	require.Equal(t, 2, existing.Len())
	require.Equal(t, "70", existing.Rows[0][schemaIndex(t, model.ColDailyNoRUC)])

	sum, err := f.runner().Run(context.Background(), Request{InputPath: f.input, MasterPath: f.master})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "master-file-updated.xlsx"), sum.OutputPath)
	assert.Equal(t, before, readBytes(t, f.master), "new-file mode leaves the master alone")

	out := f.readMaster(t, sum.OutputPath)
	require.Equal(t, 3, out.Len())
	assert.Equal(t, existing.Rows, out.Rows[:2], "existing rows unchanged")
	row := out.Rows[2]
	assert.Equal(t, "3", row[col(t, out, model.ColID)])
	assert.Equal(t, "2025-08-31", row[col(t, out, model.ColPriceDate)])
	assert.Equal(t, "2024-03-01", row[col(t, out, model.ColStartDate)])
	assert.Equal(t, "75.5", row[col(t, out, model.ColDailyNoRUC)])

	assertWorkbookKept(t, sum.OutputPath, 3)
}

func TestRun_XLSXMasterInPlace(t *testing.T) {
	f := newXLSXFixture(t, scenarioRow())
	before := readBytes(t, f.master)
	existing := f.readMaster(t, f.master)
	req := Request{InputPath: f.input, MasterPath: f.master, Mode: model.WriteModeInPlace}

	sum, err := f.runner().Run(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, sum.BackupPath)
	assert.Equal(t, before, readBytes(t, sum.BackupPath), "backup equals the pre-overwrite master")

	first := f.readMaster(t, f.master)
	require.Equal(t, 3, first.Len())
	assert.Equal(t, existing.Rows, first.Rows[:2])
	assertWorkbookKept(t, f.master, 3)

	second, err := f.runner(WithClock(fixedClock(runDate.Add(24*time.Hour)))).Run(context.Background(), req)
	require.NoError(t, err, "the master sheet is still found by name")
	assert.Equal(t, int64(4), second.FirstID)

	again := f.readMaster(t, f.master)
	require.Equal(t, 4, again.Len())
	assert.Equal(t, first.Rows, again.Rows[:3])
	assertWorkbookKept(t, f.master, 4)
}

func TestRun_MacroMasterInPlaceRejectedBeforeBackup(t *testing.T) {
	f := newXLSXFixture(t, scenarioRow())
	macro := filepath.Join(f.dir, "Master-Table.xlsm")
	require.NoError(t, os.Rename(f.master, macro))
	before := readBytes(t, macro)

	_, err := f.runner().Run(context.Background(), Request{InputPath: f.input, MasterPath: macro, Mode: model.WriteModeInPlace})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindUnwritableFile))
	assert.Equal(t, before, readBytes(t, macro))
	_, err = os.Stat(filepath.Join(f.dir, backup.DefaultDir))
	assert.True(t, os.IsNotExist(err), "no backup for a run that cannot commit")

	sum, err := f.runner().Run(context.Background(), Request{InputPath: f.input, MasterPath: macro})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.dir, "master-file-updated.xlsx"), sum.OutputPath)
	assert.Equal(t, 3, f.readMaster(t, sum.OutputPath).Len())
	assertWorkbookKept(t, sum.OutputPath, 3)
}

const trimRulesYAML = `
rule_sets:
  - name: acme
    signature: [Region, Profile, Months, Cents, Begins]
    fields:
      Zone: {candidates: [Region], transform: trim}
      Load: {candidates: [Profile], transform: trim}
      Term: {candidates: [Months], transform: term}
      Daily_No_Ruc: {candidates: [Cents], transform: number}
      start_date: {candidates: [Begins]}
    constants:
      REP1: Acme
`

func TestRun_SkipDuplicatesIgnoresCase(t *testing.T) {
	dir := t.TempDir()
	codec := table.NewFileCodec(table.Options{})
	master := filepath.Join(dir, "master.csv")
	input := filepath.Join(dir, "acme.csv")
	require.NoError(t, codec.Write(master, table.New(model.MasterSchema().Headers())))
	require.NoError(t, codec.Write(input, &table.Table{
		Columns: []string{"Region", "Profile", "Months", "Cents", "Begins"},
		Rows:    [][]string{{"Houston", "Low", "12", "7.25", "2025-03-01"}},
	}))

	sets, err := mapping.Parse([]byte(trimRulesYAML))
	require.NoError(t, err)
	m := mapping.NewMapper(0)
	require.NoError(t, m.Register(sets...))
	runner := New(codec, codec, m, backup.NewManager(backup.WithClock(fixedClock(runDate))), WithClock(fixedClock(runDate)))
	req := Request{InputPath: input, MasterPath: master, Mode: model.WriteModeInPlace, SkipDuplicates: true}

	first, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "acme", first.RuleSet)
	assert.Equal(t, 1, first.RowsAppended)

	second, err := runner.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusNoop, second.Status)
	assert.Equal(t, 0, second.RowsAppended)
	assert.Equal(t, 1, second.DuplicatesSkipped)

	got, err := codec.Read(master)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "Houston", got.Rows[0][col(t, got, model.ColZone)])
}
