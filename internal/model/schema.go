package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Column is the on-disk header of one master table column.
type Column string

// Master table columns, A through Q.
const (
	ColID         Column = "ID"
	ColPriceDate  Column = "Price_Date"
	ColStartDate  Column = "Date"
	ColZone       Column = "Zone"
	ColLoad       Column = "Load"
	ColREP        Column = "REP1"
	ColTerm       Column = "Term"
	ColMinMWh     Column = "Min_MWh"
	ColMaxMWh     Column = "Max_MWh"
	ColDailyNoRUC Column = "Daily_No_Ruc"
	ColRUCNodal   Column = "RUC_Nodal"
	ColDaily      Column = "Daily"
	ColComDisc    Column = "Com_Disc"
	ColHOADisc    Column = "HOA_Disc"
	ColBrokerFee  Column = "Broker_Fee"
	ColMeterFee   Column = "Meter_Fee"
	ColMaxMeters  Column = "Max_Meters"
)

// ColumnKind describes how a column's cells are typed.
type ColumnKind int

const (
	KindInteger ColumnKind = iota
	KindDate
	KindText
	KindDecimal
)

// ColumnSpec describes one master column.
type ColumnSpec struct {
	Column   Column
	Kind     ColumnKind
	Synonyms []string // alternative headers seen in legacy masters and templates
}

// Schema is an indexed, ordered collection of column specs.
type Schema struct {
	Columns  []ColumnSpec
	byHeader map[string]int
}

var masterSpecs = []ColumnSpec{
	{Column: ColID, Kind: KindInteger, Synonyms: []string{"Id", "Row ID"}},
	{Column: ColPriceDate, Kind: KindDate, Synonyms: []string{"PriceDate", "Price Date"}},
	{Column: ColStartDate, Kind: KindDate, Synonyms: []string{"StartDate", "Start Date"}},
	{Column: ColZone, Kind: KindText},
	{Column: ColLoad, Kind: KindText, Synonyms: []string{"Load Factor"}},
	{Column: ColREP, Kind: KindText, Synonyms: []string{"REP", "Supplier"}},
	{Column: ColTerm, Kind: KindInteger},
	{Column: ColMinMWh, Kind: KindDecimal},
	{Column: ColMaxMWh, Kind: KindDecimal},
	{Column: ColDailyNoRUC, Kind: KindDecimal},
	{Column: ColRUCNodal, Kind: KindDecimal},
	{Column: ColDaily, Kind: KindDecimal},
	{Column: ColComDisc, Kind: KindDecimal},
	{Column: ColHOADisc, Kind: KindDecimal},
	{Column: ColBrokerFee, Kind: KindDecimal},
	{Column: ColMeterFee, Kind: KindDecimal},
	{Column: ColMaxMeters, Kind: KindDecimal},
}

// NewSchema creates a Schema with header lookups over names and synonyms.
func NewSchema(specs []ColumnSpec) *Schema {
	s := &Schema{
		Columns:  specs,
		byHeader: make(map[string]int, len(specs)*2),
	}
	for i, spec := range specs {
		s.byHeader[NormalizeHeader(string(spec.Column))] = i
		for _, syn := range spec.Synonyms {
			key := NormalizeHeader(syn)
			if _, taken := s.byHeader[key]; !taken {
				s.byHeader[key] = i
			}
		}
	}
	return s
}

// MasterSchema returns the fixed 17-column master schema.
func MasterSchema() *Schema {
	return NewSchema(masterSpecs)
}

// Index returns the position of the column a header refers to.
func (s *Schema) Index(header string) (int, bool) {
	i, ok := s.byHeader[NormalizeHeader(header)]
	return i, ok
}

// Headers returns the on-disk header row.
func (s *Schema) Headers() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = string(c.Column)
	}
	return out
}

// HeadersOfKind returns the headers of every column with the given kind.
func (s *Schema) HeadersOfKind(kind ColumnKind) []string {
	var out []string
	for _, c := range s.Columns {
		if c.Kind == kind {
			out = append(out, string(c.Column))
		}
	}
	return out
}

// NormalizeHeader folds a header for matching: NFKC, lower case, and only
// letters and digits kept. "Price ($)" and "price$" both become "price".
func NormalizeHeader(s string) string {
	s = strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
