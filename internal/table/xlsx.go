package table

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/pricing-cli/internal/model"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex  int      // default 0
	SheetName   string   // if set, overrides SheetIndex and PreferSheet
	PreferSheet []string // if set, the first sheet whose name has all these words
	SkipRows    int      // number of leading rows to skip
}

// ReadXLSX reads an XLSX file and returns all rows as string slices.
// Cells with a date number format come back as ISO dates.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows || row == nil {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}

	return rows, nil
}

// XLSXWriteOptions configures WriteXLSX.
type XLSXWriteOptions struct {
	SheetName   string   // default "Sheet1", or the template's first sheet
	DateColumns []string // header names whose ISO values become date cells

	// Template is an existing workbook to write into. When it exists, its
	// other sheets are kept and only the table's sheet is rewritten.
	Template string
}

// WriteXLSX writes the table to an XLSX file. Integer and decimal text
// becomes numeric cells; everything else stays a string. With a template,
// cells whose text did not change are kept as they were, and new cells
// take the number format and style of their column.
func WriteXLSX(path string, t *Table, opts XLSXWriteOptions) error {
	f, sheet, err := openWorkbook(opts)
	if err != nil {
		return err
	}

	dateCols := make(map[int]bool, len(opts.DateColumns))
	for _, c := range opts.DateColumns {
		if i := t.Index(c); i >= 0 {
			dateCols[i] = true
		}
	}
	fillSheet(sheet, t, dateCols)

	if err := f.Save(path); err != nil {
		return eris.Wrap(err, "xlsx: save file")
	}
	return nil
}

func openWorkbook(opts XLSXWriteOptions) (*xlsx.File, *xlsx.Sheet, error) {
	if opts.Template != "" {
		_, err := os.Stat(opts.Template)
		switch {
		case err == nil:
			f, err := xlsx.OpenFile(opts.Template)
			if err != nil {
				return nil, nil, eris.Wrap(err, "xlsx: open template")
			}
			sheet, err := getSheet(f, XLSXOptions{SheetName: opts.SheetName})
			if err != nil {
				return nil, nil, err
			}
			return f, sheet, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, nil, eris.Wrap(err, "xlsx: stat template")
		}
	}

	name := opts.SheetName
	if name == "" {
		name = "Sheet1"
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(name)
	if err != nil {
		return nil, nil, eris.Wrap(err, "xlsx: add sheet")
	}
	return f, sheet, nil
}

// fillSheet replaces the header and data rows of sheet with t. Rows above
// the existing header stay. Existing rows are reused in place so their
// heights and hidden flags survive.
func fillSheet(sheet *xlsx.Sheet, t *Table, dateCols map[int]bool) {
	top := 0
	for i, row := range sheet.Rows {
		if row != nil && !IsBlank(rowToStrings(row)) {
			top = i
			break
		}
	}

	var oldHeader *xlsx.Row
	if top < len(sheet.Rows) {
		oldHeader = sheet.Rows[top]
	}
	oldCol := make(map[string]int)
	if oldHeader != nil {
		for j, c := range oldHeader.Cells {
			if c == nil {
				continue
			}
			name := strings.TrimSpace(cellText(c))
			if _, dup := oldCol[name]; name != "" && !dup {
				oldCol[name] = j
			}
		}
	}
	pos := make([]int, len(t.Columns))
	for j, name := range t.Columns {
		p, ok := oldCol[name]
		if !ok {
			p = -1
		}
		pos[j] = p
	}

	var oldData []*xlsx.Row
	if top+1 < len(sheet.Rows) {
		oldData = sheet.Rows[top+1:]
	}
	protos := columnProtos(oldData, pos)
	var headerProto *xlsx.Cell
	if oldHeader != nil && len(oldHeader.Cells) > 0 {
		headerProto = oldHeader.Cells[0]
	}

	rows := make([]*xlsx.Row, 0, top+1+len(t.Rows))
	for _, row := range sheet.Rows[:top] {
		if row == nil {
			row = &xlsx.Row{Sheet: sheet}
		}
		fillNilCells(row)
		rows = append(rows, row)
	}

	header := reuseRow(sheet, oldHeader)
	header.Cells = buildCells(header, oldCells(oldHeader), t.Columns, pos, func(j int, c *xlsx.Cell) {
		c.SetString(t.Columns[j])
		copyStyle(c, headerProto)
	})
	rows = append(rows, header)

	for i, values := range t.Rows {
		var old *xlsx.Row
		if i < len(oldData) {
			old = oldData[i]
		}
		row := reuseRow(sheet, old)
		row.Cells = buildCells(row, oldCells(old), values, pos, func(j int, c *xlsx.Cell) {
			setCell(c, values[j], dateCols[j])
			applyColumnFormat(c, protos[j])
		})
		rows = append(rows, row)
	}

	sheet.Rows = rows
	sheet.MaxRow = len(rows)
	sheet.MaxCol = 0
	for _, row := range rows {
		if n := len(row.Cells); n > sheet.MaxCol {
			sheet.MaxCol = n
		}
	}
}

func reuseRow(sheet *xlsx.Sheet, old *xlsx.Row) *xlsx.Row {
	if old == nil {
		return &xlsx.Row{Sheet: sheet}
	}
	return old
}

func oldCells(row *xlsx.Row) []*xlsx.Cell {
	if row == nil {
		return nil
	}
	return row.Cells
}

func fillNilCells(row *xlsx.Row) {
	for j, c := range row.Cells {
		if c == nil {
			row.Cells[j] = xlsx.NewCell(row)
		}
	}
}

// buildCells lays out values in table column order. A cell from old whose
// text equals the new value is kept as is; any other cell is made by set.
func buildCells(row *xlsx.Row, old []*xlsx.Cell, values []string, pos []int, set func(int, *xlsx.Cell)) []*xlsx.Cell {
	cells := make([]*xlsx.Cell, len(values))
	for j, v := range values {
		if p := pos[j]; p >= 0 && p < len(old) && old[p] != nil && cellText(old[p]) == v {
			old[p].Row = row
			cells[j] = old[p]
			continue
		}
		c := xlsx.NewCell(row)
		set(j, c)
		cells[j] = c
	}
	return cells
}

// columnProtos returns, per table column, the last non-empty existing
// cell of the matching sheet column, or nil.
func columnProtos(data []*xlsx.Row, pos []int) []*xlsx.Cell {
	protos := make([]*xlsx.Cell, len(pos))
	for j, p := range pos {
		if p < 0 {
			continue
		}
		for i := len(data) - 1; i >= 0; i-- {
			row := data[i]
			if row == nil || p >= len(row.Cells) || row.Cells[p] == nil {
				continue
			}
			if strings.TrimSpace(row.Cells[p].Value) != "" {
				protos[j] = row.Cells[p]
				break
			}
		}
	}
	return protos
}

// applyColumnFormat gives a new cell the style of its column and, when
// both are numbers of the same date-ness, the column's number format.
func applyColumnFormat(c, proto *xlsx.Cell) {
	if proto == nil {
		return
	}
	copyStyle(c, proto)
	if c.Type() == xlsx.CellTypeNumeric && proto.Type() == xlsx.CellTypeNumeric &&
		isDateFormat(c.NumFmt) == isDateFormat(proto.NumFmt) {
		c.NumFmt = proto.NumFmt
	}
}

func copyStyle(c, proto *xlsx.Cell) {
	if proto != nil {
		c.SetStyle(proto.GetStyle())
	}
}

func setCell(cell *xlsx.Cell, v string, isDate bool) {
	if v == "" {
		cell.SetString("")
		return
	}
	if isDate {
		if d, err := time.Parse(model.DateLayout, v); err == nil {
			cell.SetDate(d)
			return
		}
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil && strconv.FormatInt(n, 10) == v {
		cell.SetInt64(n)
		return
	}
	if fl, err := strconv.ParseFloat(v, 64); err == nil && strconv.FormatFloat(fl, 'f', -1, 64) == v {
		cell.SetFloat(fl)
		return
	}
	cell.SetString(v)
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if ok {
			return sheet, nil
		}
		// Vendor workbooks are inconsistent about case and padding.
		wanted := strings.TrimSpace(opts.SheetName)
		for _, s := range f.Sheets {
			if strings.EqualFold(strings.TrimSpace(s.Name), wanted) {
				return s, nil
			}
		}
		if s := sheetWithWords(f, strings.Fields(wanted)); s != nil {
			return s, nil
		}
		return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
	}

	if s := sheetWithWords(f, opts.PreferSheet); s != nil {
		return s, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

// sheetWithWords returns the first sheet whose name contains every word,
// ignoring case, or nil.
func sheetWithWords(f *xlsx.File, words []string) *xlsx.Sheet {
	if len(words) == 0 {
		return nil
	}
	for _, s := range f.Sheets {
		name := strings.ToLower(s.Name)
		match := true
		for _, w := range words {
			if !strings.Contains(name, strings.ToLower(strings.TrimSpace(w))) {
				match = false
				break
			}
		}
		if match {
			return s
		}
	}
	return nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		if cell == nil {
			continue
		}
		cells[j] = cellText(cell)
	}
	return cells
}

// cellText renders a cell from its stored value. Numbers come back in
// plain decimal form whatever their display format; date-formatted numbers
// come back as ISO dates.
func cellText(cell *xlsx.Cell) string {
	if cell.Type() != xlsx.CellTypeNumeric {
		return cell.String()
	}
	if isDateFormat(cell.GetNumberFormat()) {
		if t, err := cell.GetTime(false); err == nil {
			return t.Format(model.DateLayout)
		}
	}
	if f, err := cell.Float(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return cell.Value
}

// isDateFormat reports whether an Excel number format renders a date.
// Quoted literals and bracketed sections ([Red], [$-409]) are ignored.
func isDateFormat(format string) bool {
	if format == "" || strings.EqualFold(format, "general") {
		return false
	}
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range format {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	s := strings.ToLower(b.String())
	return strings.ContainsAny(s, "dy")
}
