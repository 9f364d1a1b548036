// Package mapping translates vendor pricing tables into master-schema fields.
//
// A RuleSet describes one vendor layout: the headers that identify it, a
// rule per target field, row filters and constant defaults. The Mapper
// picks the rule set that best matches an input table and applies it.
package mapping

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/pricing-cli/internal/model"
)

// Field names a mapping target: a master column header or one of the
// start date inputs.
type Field string

// Start date inputs consumed by the date derivation step.
const (
	FieldStartDate  Field = "start_date"
	FieldStartYear  Field = "start_year"
	FieldStartMonth Field = "start_month"
	FieldStartDay   Field = "start_day"
)

// Master column targets.
const (
	FieldZone       = Field(model.ColZone)
	FieldLoad       = Field(model.ColLoad)
	FieldREP        = Field(model.ColREP)
	FieldTerm       = Field(model.ColTerm)
	FieldMinMWh     = Field(model.ColMinMWh)
	FieldMaxMWh     = Field(model.ColMaxMWh)
	FieldDailyNoRUC = Field(model.ColDailyNoRUC)
	FieldRUCNodal   = Field(model.ColRUCNodal)
	FieldDaily      = Field(model.ColDaily)
	FieldComDisc    = Field(model.ColComDisc)
	FieldHOADisc    = Field(model.ColHOADisc)
	FieldBrokerFee  = Field(model.ColBrokerFee)
	FieldMeterFee   = Field(model.ColMeterFee)
	FieldMaxMeters  = Field(model.ColMaxMeters)
)

// Rule locates the source value of one target field.
type Rule struct {
	Candidates []string `yaml:"candidates,omitempty"` // source headers, tried in order
	Index      *int     `yaml:"index,omitempty"`      // zero-based source column, used when no candidate matches
	Contains   bool     `yaml:"contains,omitempty"`   // allow substring header matches
	Transform  string   `yaml:"transform,omitempty"`
	Fallback   *Rule    `yaml:"fallback,omitempty"` // consulted when this rule yields no value
}

// Filter keeps only rows whose column equals one of the given values
// (case-insensitive). A filter whose column is absent from the input is
// not applied.
type Filter struct {
	Candidates []string `yaml:"candidates"`
	Contains   bool     `yaml:"contains,omitempty"`
	Equals     []string `yaml:"equals"`
}

// RuleSet describes one vendor layout.
type RuleSet struct {
	Name            string           `yaml:"name"`
	Description     string           `yaml:"description,omitempty"`
	Signature       []string         `yaml:"signature"`
	Fields          map[Field]Rule   `yaml:"fields"`
	Filters         []Filter         `yaml:"filters,omitempty"`
	Constants       map[Field]string `yaml:"constants,omitempty"`
	PriceMultiplier string           `yaml:"price_multiplier,omitempty"` // applied to Daily_No_Ruc

	multiplier decimal.NullDecimal
}

// Validate checks the rule set and canonicalizes its field names. Field
// keys may use any master header synonym; "Date" is the same as start_date.
func (rs *RuleSet) Validate() error {
	if strings.TrimSpace(rs.Name) == "" {
		return eris.New("mapping: rule set has no name")
	}

	fields := make(map[Field]Rule, len(rs.Fields))
	for key, rule := range rs.Fields {
		f, err := canonicalField(key)
		if err != nil {
			return eris.Wrapf(err, "mapping: rule set %s", rs.Name)
		}
		if err := validateRule(rule); err != nil {
			return eris.Wrapf(err, "mapping: rule set %s field %s", rs.Name, f)
		}
		fields[f] = rule
	}
	rs.Fields = fields

	constants := make(map[Field]string, len(rs.Constants))
	for key, v := range rs.Constants {
		f, err := canonicalField(key)
		if err != nil {
			return eris.Wrapf(err, "mapping: rule set %s constant", rs.Name)
		}
		constants[f] = v
	}
	rs.Constants = constants

	for i, flt := range rs.Filters {
		if len(flt.Candidates) == 0 || len(flt.Equals) == 0 {
			return eris.Errorf("mapping: rule set %s filter %d needs candidates and equals", rs.Name, i)
		}
	}

	rs.multiplier = decimal.NullDecimal{}
	if m := strings.TrimSpace(rs.PriceMultiplier); m != "" {
		d, err := decimal.NewFromString(m)
		if err != nil {
			return eris.Wrapf(err, "mapping: rule set %s price_multiplier", rs.Name)
		}
		rs.multiplier = decimal.NewNullDecimal(d)
	}

	_, mapped := rs.Fields[FieldTerm]
	_, constant := rs.Constants[FieldTerm]
	if !mapped && !constant {
		return eris.Errorf("mapping: rule set %s has no Term rule; every row would be dropped", rs.Name)
	}
	return nil
}

// TargetFields returns the fields the rule set maps or sets, sorted.
func (rs *RuleSet) TargetFields() []Field {
	seen := make(map[Field]bool)
	for f := range rs.Fields {
		seen[f] = true
	}
	for f := range rs.Constants {
		seen[f] = true
	}
	out := make([]Field, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func validateRule(r Rule) error {
	if len(r.Candidates) == 0 && r.Index == nil {
		return eris.New("rule needs candidates or an index")
	}
	if r.Index != nil && *r.Index < 0 {
		return eris.Errorf("negative column index %d", *r.Index)
	}
	if _, ok := transforms[r.Transform]; !ok {
		return eris.Errorf("unknown transform %q", r.Transform)
	}
	if r.Fallback != nil {
		return validateRule(*r.Fallback)
	}
	return nil
}

var masterSchema = model.MasterSchema()

func canonicalField(f Field) (Field, error) {
	switch Field(strings.ToLower(strings.TrimSpace(string(f)))) {
	case FieldStartDate:
		return FieldStartDate, nil
	case FieldStartYear:
		return FieldStartYear, nil
	case FieldStartMonth:
		return FieldStartMonth, nil
	case FieldStartDay:
		return FieldStartDay, nil
	}

	i, ok := masterSchema.Index(string(f))
	if !ok {
		return "", eris.Errorf("unknown field %q", f)
	}
	switch col := masterSchema.Columns[i].Column; col {
	case model.ColID, model.ColPriceDate:
		return "", eris.Errorf("field %q is assigned at merge time", f)
	case model.ColStartDate:
		return FieldStartDate, nil
	default:
		return Field(col), nil
	}
}
