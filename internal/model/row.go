package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical text form of master date cells.
const DateLayout = "2006-01-02"

// TargetTerms are the contract terms (months) the master table accepts.
var TargetTerms = map[int]bool{12: true, 24: true, 36: true, 48: true, 60: true}

// MasterRow is one normalized pricing record in master schema order.
// Empty strings and invalid NullDecimals are the explicit null markers.
type MasterRow struct {
	ID         int64
	PriceDate  time.Time
	StartDate  time.Time
	Zone       string
	Load       string
	REP        string
	Term       int
	MinMWh     decimal.NullDecimal
	MaxMWh     decimal.NullDecimal
	DailyNoRUC decimal.NullDecimal
	RUCNodal   decimal.NullDecimal
	Daily      decimal.NullDecimal
	ComDisc    decimal.NullDecimal
	HOADisc    decimal.NullDecimal
	BrokerFee  decimal.NullDecimal
	MeterFee   decimal.NullDecimal
	MaxMeters  decimal.NullDecimal
}

// Cells renders the row as master table cells, one per schema column.
func (r MasterRow) Cells() []string {
	id := ""
	if r.ID > 0 {
		id = strconv.FormatInt(r.ID, 10)
	}
	term := ""
	if r.Term > 0 {
		term = strconv.Itoa(r.Term)
	}
	return []string{
		id,
		formatDate(r.PriceDate),
		formatDate(r.StartDate),
		r.Zone,
		r.Load,
		r.REP,
		term,
		formatDecimal(r.MinMWh),
		formatDecimal(r.MaxMWh),
		formatDecimal(r.DailyNoRUC),
		formatDecimal(r.RUCNodal),
		formatDecimal(r.Daily),
		formatDecimal(r.ComDisc),
		formatDecimal(r.HOADisc),
		formatDecimal(r.BrokerFee),
		formatDecimal(r.MeterFee),
		formatDecimal(r.MaxMeters),
	}
}

// BusinessKey identifies a pricing record independent of Id and run date.
func (r MasterRow) BusinessKey() string {
	return BusinessKey(r.Zone, r.Load, r.REP, strconv.Itoa(r.Term), formatDate(r.StartDate))
}

// BusinessKey joins the identifying attributes of a record. Text parts are
// trimmed and upper-cased so keys built from master cells and from freshly
// mapped rows compare equal.
func BusinessKey(zone, load, rep, term, startDate string) string {
	return keyPart(zone) + "|" + keyPart(load) + "|" + keyPart(rep) + "|" +
		strings.TrimSpace(term) + "|" + strings.TrimSpace(startDate)
}

func keyPart(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
