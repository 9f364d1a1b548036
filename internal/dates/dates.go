// Package dates derives the two date columns of new master rows: the price
// date, which is the run date, and the start date, which comes only from
// the input.
package dates

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pricing-cli/internal/mapping"
	"github.com/sells-group/pricing-cli/internal/model"
)

// Options configures Derive.
type Options struct {
	// Strict fails the whole derivation when any row has an unparseable
	// start date, instead of dropping the offending rows.
	Strict bool
}

// Derived holds the rows that survived date derivation and their dates,
// index-aligned.
type Derived struct {
	Rows       []mapping.MappedRow
	PriceDates []time.Time
	StartDates []time.Time
	Dropped    []model.DroppedRow
}

// Len returns the number of surviving rows.
func (d *Derived) Len() int {
	return len(d.Rows)
}

// Derive computes price and start dates for every mapped row. runDate is
// the run's invocation time; it is truncated to a calendar day and never
// read from the clock here.
func Derive(mapped *mapping.MappedTable, runDate time.Time, opts Options) (*Derived, error) {
	n := len(mapped.Rows)
	out := &Derived{
		Rows:       make([]mapping.MappedRow, 0, n),
		StartDates: make([]time.Time, 0, n),
	}

	for _, row := range mapped.Rows {
		start, raw, ok := StartDate(row)
		if !ok {
			out.Dropped = append(out.Dropped, model.DroppedRow{
				SourceRow: row.SourceRow,
				Reason:    model.DropInvalidStartDate,
				Value:     raw,
			})
			continue
		}
		out.Rows = append(out.Rows, row)
		out.StartDates = append(out.StartDates, start)
	}

	if opts.Strict && len(out.Dropped) > 0 {
		return nil, model.NewError(model.KindInvalidStartDate,
			fmt.Sprintf("%d row(s) have no valid start date", len(out.Dropped)), nil).
			With("rows", describe(out.Dropped))
	}

	out.PriceDates = PriceDates(len(out.Rows), runDate)

	if len(out.Dropped) > 0 {
		zap.L().Warn("dates: dropped rows with invalid start dates",
			zap.Int("count", len(out.Dropped)),
			zap.String("rows", describe(out.Dropped)),
		)
	}
	return out, nil
}

// PriceDates returns n copies of runDate truncated to its calendar day.
func PriceDates(n int, runDate time.Time) []time.Time {
	day := model.Day(runDate)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = day
	}
	return out
}

// StartDate derives a row's start date from start_date, or from
// start_year and start_month with an optional start_day. It returns the
// raw input it looked at for error reporting.
func StartDate(row mapping.MappedRow) (time.Time, string, bool) {
	if raw := row.Get(mapping.FieldStartDate); raw != "" {
		t, ok := Parse(raw)
		return t, raw, ok
	}

	year, month, day := row.Get(mapping.FieldStartYear), row.Get(mapping.FieldStartMonth), row.Get(mapping.FieldStartDay)
	raw := strings.Trim(strings.Join([]string{year, month, day}, "-"), "-")
	if year == "" || month == "" {
		return time.Time{}, raw, false
	}
	t, ok := FromParts(year, month, day)
	return t, raw, ok
}

// Excel serial dates count days from 1899-12-30. Only values in this range
// are read as serials so plain numbers are not mistaken for dates.
const (
	minSerial = 20000
	maxSerial = 60000
)

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

var layouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"01-02-06",
	"01-02-2006",
	"2006/01/02",
	"Jan 2006",
	"January 2006",
	"Jan-2006",
	"2006-01",
}

// Parse reads a date in any of the supported layouts or as an Excel
// serial number. The result is midnight UTC.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < minSerial || f > maxSerial {
			return time.Time{}, false
		}
		return excelEpoch.AddDate(0, 0, int(f)), true
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.Day(t), true
		}
	}
	return time.Time{}, false
}

var monthNames = func() map[string]time.Month {
	m := make(map[string]time.Month, 36)
	for i := time.January; i <= time.December; i++ {
		name := strings.ToLower(i.String())
		m[name] = i
		m[name[:3]] = i
	}
	m["sept"] = time.September
	return m
}()

// ParseMonth reads a month as a number 1-12 or an English name.
func ParseMonth(s string) (time.Month, bool) {
	s = strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), ".")))
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n != float64(int(n)) || n < 1 || n > 12 {
			return 0, false
		}
		return time.Month(int(n)), true
	}
	m, ok := monthNames[s]
	return m, ok
}

// FromParts builds a date from year, month and optional day text.
func FromParts(year, month, day string) (time.Time, bool) {
	y, err := strconv.ParseFloat(strings.TrimSpace(year), 64)
	if err != nil || y != float64(int(y)) || y < 1900 || y > 2999 {
		return time.Time{}, false
	}
	m, ok := ParseMonth(month)
	if !ok {
		return time.Time{}, false
	}
	d := 1
	if strings.TrimSpace(day) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(day), 64)
		if err != nil || v != float64(int(v)) {
			return time.Time{}, false
		}
		d = int(v)
	}

	t := time.Date(int(y), m, d, 0, 0, 0, 0, time.UTC)
	if t.Month() != m || t.Day() != d {
		return time.Time{}, false // e.g. February 30
	}
	return t, true
}

func describe(rows []model.DroppedRow) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = fmt.Sprintf("row %d: %q", r.SourceRow, r.Value)
	}
	return strings.Join(parts, "; ")
}
