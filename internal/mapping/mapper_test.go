package mapping

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pricing-cli/internal/model"
	"github.com/sells-group/pricing-cli/internal/table"
)

func matrixInput() *table.Table {
	return &table.Table{
		Columns: []string{"MatrixDescription", "Price", "TermCode", "StartDate"},
		Rows: [][]string{
			{"HOUSTON High Load Factor", "75.5", "12", "2024-03-01"},
		},
	}
}

func TestMap_MatrixScenario(t *testing.T) {
	m := NewMapper(0)
	got, err := m.Map(matrixInput(), "")
	require.NoError(t, err)

	assert.Equal(t, RuleSetMatrix, got.RuleSet)
	assert.InDelta(t, 0.8, got.Score, 0.0001)
	require.Len(t, got.Rows, 1)
	assert.Empty(t, got.Dropped)
	assert.Empty(t, got.Unmapped)

	row := got.Rows[0]
	assert.Equal(t, 1, row.SourceRow)
	assert.Equal(t, "HOUSTON", row.Get(FieldZone))
	assert.Equal(t, "HIGH", row.Get(FieldLoad))
	assert.Equal(t, "12", row.Get(FieldTerm))
	assert.Equal(t, "75.5", row.Get(FieldDailyNoRUC))
	assert.Equal(t, "2024-03-01", row.Get(FieldStartDate))
	assert.Equal(t, "HUDSON", row.Get(FieldREP))
	assert.Equal(t, "0", row.Get(FieldMinMWh))
	assert.Equal(t, "1000", row.Get(FieldMaxMWh))
	assert.Equal(t, "5", row.Get(FieldMaxMeters))
	assert.Equal(t, "", row.Get(FieldDaily), "Daily is derived later, not mapped")
}

func TestMap_MatrixFiltersAndTerms(t *testing.T) {
	input := &table.Table{
		Columns: []string{"Product", "Matrix Description", "Price $", "GreenPrice", "Term (months)", "Start Date", "Notes"},
		Rows: [][]string{
			{"Fixed Price", "NORTH Low Load Factor", "70.1", "", "24", "2024-05-01", "x"},
			{"Index", "NORTH Low Load Factor", "60", "", "24", "2024-05-01", ""},
			{"fixed price ", "WEST Medium Load Factor", "", "81.25", "36 Months", "2024-06-01", ""},
			{"Fixed Price", "SOUTH High Load Factor", "72", "", "18", "2024-06-01", ""},
			{"Fixed Price", "SOUTH High Load Factor", "72", "", "", "2024-06-01", ""},
		},
	}

	got, err := NewMapper(0).Map(input, RuleSetMatrix)
	require.NoError(t, err)

	require.Len(t, got.Rows, 2)
	assert.Equal(t, 1, got.Rows[0].SourceRow)
	assert.Equal(t, "NORTH", got.Rows[0].Get(FieldZone))
	assert.Equal(t, "LOW", got.Rows[0].Get(FieldLoad))

	assert.Equal(t, 3, got.Rows[1].SourceRow)
	assert.Equal(t, "MED", got.Rows[1].Get(FieldLoad))
	assert.Equal(t, "81.25", got.Rows[1].Get(FieldDailyNoRUC), "green price fallback")
	assert.Equal(t, "36", got.Rows[1].Get(FieldTerm))

	assert.Equal(t, []model.DroppedRow{
		{SourceRow: 2, Reason: model.DropFiltered, Value: "Index"},
		{SourceRow: 4, Reason: model.DropInvalidTerm, Value: "18"},
		{SourceRow: 5, Reason: model.DropInvalidTerm, Value: ""},
	}, got.Dropped)
	assert.Equal(t, []string{"Notes"}, got.Unmapped)
}

func TestMap_MatrixZoneColumns(t *testing.T) {
	input := &table.Table{
		Columns: []string{"Congestion Zone", "Load Factor", "Price", "TermCode", "StartDate"},
		Rows:    [][]string{{"coast", "High", "70", "12", "2024-01-01"}},
	}
	got, err := NewMapper(0).Map(input, RuleSetMatrix)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "COAST", got.Rows[0].Get(FieldZone))
	assert.Equal(t, "HIGH", got.Rows[0].Get(FieldLoad))
}

func TestMap_BlankRowsKeepNumbering(t *testing.T) {
	input := matrixInput()
	input.Rows = [][]string{
		{"", "", "", ""},
		{"HOUSTON High Load Factor", "75.5", "12", "2024-03-01"},
		{"NORTH Low Load Factor", "70", "18", "2024-03-01"},
	}

	got, err := NewMapper(0).Map(input, "")
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, 2, got.Rows[0].SourceRow)
	assert.Equal(t, []model.DroppedRow{{SourceRow: 3, Reason: model.DropInvalidTerm, Value: "18"}}, got.Dropped,
		"blank rows are skipped without a drop record")
}

func TestHeaderScore(t *testing.T) {
	m := NewMapper(0)
	assert.InDelta(t, 0.8, m.HeaderScore(matrixInput().Columns), 0.0001)
	assert.Zero(t, m.HeaderScore([]string{"ACME Energy"}))
	assert.Zero(t, m.HeaderScore(matrixInput().Rows[0]))

	grid := [][]string{
		{"ACME Energy pricing"},
		{"Effective", "2024-03-01"},
		matrixInput().Columns,
		matrixInput().Rows[0],
	}
	assert.Equal(t, 2, table.DetectHeader(grid, table.DefaultHeaderScan, m.HeaderScore))
}

func TestMap_Positional(t *testing.T) {
	input := &table.Table{
		Columns: []string{"A", "B", "C", "Term", "Descriptor", "F", "G", "Rate", "I", "Start"},
		Rows: [][]string{
			{"", "", "", "12", "Houston Zone - High LF", "", "", "0.0755", "", "03/01/2024"},
			{"", "", "", "60", "Panhandle Zone Low", "", "", "0.07", "", "04/01/2024"},
			{"", "", "", "7", "North Zone Low", "", "", "0.07", "", "04/01/2024"},
		},
	}

	got, err := NewMapper(0).Map(input, RuleSetPositional)
	require.NoError(t, err)
	require.Len(t, got.Rows, 2)

	first := got.Rows[0]
	assert.Equal(t, "COAST", first.Get(FieldZone))
	assert.Equal(t, "HIGH", first.Get(FieldLoad))
	assert.Equal(t, "75.5", first.Get(FieldDailyNoRUC))
	assert.Equal(t, "03/01/2024", first.Get(FieldStartDate))

	assert.Equal(t, "NA", got.Rows[1].Get(FieldZone))
	assert.Equal(t, "LOW", got.Rows[1].Get(FieldLoad))
	require.Len(t, got.Dropped, 1)
	assert.Equal(t, model.DropInvalidTerm, got.Dropped[0].Reason)
}

func TestMap_Template(t *testing.T) {
	input := &table.Table{
		Columns: []string{"Price_Date", "Date", "Zone", "Load", "REP1", "Term", "Min_MWh", "Max_MWh", "Daily_No_Ruc", "Ruc_Nodal", "Daily"},
		Rows: [][]string{
			{"2020-01-01", "2024-07-01", "north", "high", "acme", "48", "0", "1,000", "$70.00", "1.5", "71.5"},
		},
	}

	got, err := NewMapper(0).Map(input, "")
	require.NoError(t, err)
	assert.Equal(t, RuleSetTemplate, got.RuleSet)
	require.Len(t, got.Rows, 1)

	row := got.Rows[0]
	assert.Equal(t, "2024-07-01", row.Get(FieldStartDate))
	assert.Equal(t, "NORTH", row.Get(FieldZone))
	assert.Equal(t, "HIGH", row.Get(FieldLoad))
	assert.Equal(t, "ACME", row.Get(FieldREP))
	assert.Equal(t, "1000", row.Get(FieldMaxMWh))
	assert.Equal(t, "70", row.Get(FieldDailyNoRUC))
	assert.Equal(t, "1.5", row.Get(FieldRUCNodal))
	assert.Equal(t, "71.5", row.Get(FieldDaily))
	assert.Equal(t, "", row.Get(FieldComDisc))
	assert.Equal(t, []string{"Price_Date"}, got.Unmapped, "input price date is never used")
}

func TestMap_Unrecognized(t *testing.T) {
	input := &table.Table{Columns: []string{"Foo", "Bar", "Price"}}

	_, err := NewMapper(0).Map(input, "")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindUnrecognizedSourceFormat))

	var me *model.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "Foo, Bar, Price", me.Details["headers"])
	assert.Equal(t, RuleSetMatrix, me.Details["best_rule_set"])
}

func TestMap_UnknownHint(t *testing.T) {
	_, err := NewMapper(0).Map(matrixInput(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown rule set "acme"`)
}

func TestScores_TieKeepsRegistrationOrder(t *testing.T) {
	m := NewMapper(0.5)
	require.NoError(t, m.Register(&RuleSet{
		Name:      "acme",
		Signature: []string{"MatrixDescription", "Price", "TermCode", "StartDate", "Product"},
		Fields:    map[Field]Rule{"Term": {Candidates: []string{"TermCode"}}},
	}))

	scores := m.Scores(matrixInput().Columns)
	require.GreaterOrEqual(t, len(scores), 2)
	assert.Equal(t, "acme", scores[0].RuleSet)
	assert.Equal(t, RuleSetMatrix, scores[1].RuleSet)
	assert.Equal(t, scores[0].Score, scores[1].Score)

	rs, _, err := m.Select(matrixInput().Columns, "")
	require.NoError(t, err)
	assert.Equal(t, "acme", rs.Name)
}

func TestRegister_ReplacesByName(t *testing.T) {
	m := NewMapper(0)
	before := len(m.RuleSets())
	require.NoError(t, m.Register(&RuleSet{
		Name:      "Matrix",
		Signature: []string{"Desc"},
		Fields: map[Field]Rule{
			"Zone": {Candidates: []string{"Desc"}, Transform: "zone_from_description"},
			"Term": {Candidates: []string{"Months"}, Transform: "term"},
		},
	}))
	assert.Len(t, m.RuleSets(), before)
	rs, ok := m.Lookup(RuleSetMatrix)
	require.True(t, ok)
	assert.Equal(t, []string{"Desc"}, rs.Signature)
	assert.Same(t, rs, m.RuleSets()[0], "replacement keeps its position")
}

func TestRegister_Invalid(t *testing.T) {
	m := NewMapper(0)
	err := m.Register(&RuleSet{Name: "bad", Fields: map[Field]Rule{"ID": {Candidates: []string{"x"}}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assigned at merge time")
}

func TestValidate_CanonicalFields(t *testing.T) {
	rs := &RuleSet{
		Name: "x",
		Fields: map[Field]Rule{
			"Date":         {Candidates: []string{"Start"}},
			"daily no ruc": {Candidates: []string{"Rate"}, Transform: "number"},
			"START_MONTH":  {Candidates: []string{"Month"}},
		},
		Constants:       map[Field]string{"Supplier": "ACME", "term": "12"},
		PriceMultiplier: "10",
	}
	require.NoError(t, rs.Validate())
	assert.Equal(t, []Field{FieldDailyNoRUC, FieldREP, FieldTerm, FieldStartDate, FieldStartMonth}, rs.TargetFields())
	assert.True(t, rs.multiplier.Valid)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		rs   RuleSet
		want string
	}{
		{"no name", RuleSet{}, "no name"},
		{"unknown field", RuleSet{Name: "x", Fields: map[Field]Rule{"Color": {Candidates: []string{"c"}}}}, "unknown field"},
		{"unknown transform", RuleSet{Name: "x", Fields: map[Field]Rule{"Zone": {Candidates: []string{"c"}, Transform: "reverse"}}}, "unknown transform"},
		{"empty rule", RuleSet{Name: "x", Fields: map[Field]Rule{"Zone": {}}}, "candidates or an index"},
		{"bad multiplier", RuleSet{Name: "x", PriceMultiplier: "ten"}, "price_multiplier"},
		{"bad filter", RuleSet{Name: "x", Filters: []Filter{{Candidates: []string{"Product"}}}}, "needs candidates and equals"},
		{"no term", RuleSet{Name: "x", Fields: map[Field]Rule{"Zone": {Candidates: []string{"Region"}}}}, "has no Term rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := tt.rs
			err := rs.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const rulesYAML = `
rule_sets:
  - name: acme
    signature: [Region, Months, Cents, Begins]
    price_multiplier: "10"
    filters:
      - candidates: [Plan]
        equals: [Fixed]
    fields:
      Zone: {candidates: [Region], transform: upper}
      Load:
        candidates: [Profile]
        transform: load_word
      Term: {candidates: [Months], transform: term}
      Daily_No_Ruc: {candidates: [Cents], transform: number}
      start_year: {candidates: [Year]}
      start_month: {candidates: [Begins]}
    constants:
      REP1: ACME
      Max_Meters: "3"
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o644))

	sets, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "acme", sets[0].Name)

	m := NewMapper(0)
	require.NoError(t, m.Register(sets...))

	input := &table.Table{
		Columns: []string{"Plan", "Region", "Profile", "Months", "Cents", "Year", "Begins"},
		Rows: [][]string{
			{"Fixed", "far west", "Low", "12", "7.25", "2025", "March"},
			{"Variable", "far west", "Low", "12", "7.25", "2025", "March"},
		},
	}
	got, err := m.Map(input, "")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.RuleSet)
	require.Len(t, got.Rows, 1)
	row := got.Rows[0]
	assert.Equal(t, "FAR WEST", row.Get(FieldZone))
	assert.Equal(t, "LOW", row.Get(FieldLoad))
	assert.Equal(t, "72.5", row.Get(FieldDailyNoRUC))
	assert.Equal(t, "ACME", row.Get(FieldREP))
	assert.Equal(t, "3", row.Get(FieldMaxMeters))
	assert.Equal(t, "2025", row.Get(FieldStartYear))
	assert.Equal(t, "March", row.Get(FieldStartMonth))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("rule_sets: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse rules")

	dup := `
rule_sets:
  - name: a
    fields: {Term: {candidates: [Months]}}
  - name: a
    fields: {Term: {candidates: [Months]}}
`
	_, err = Parse([]byte(dup))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
