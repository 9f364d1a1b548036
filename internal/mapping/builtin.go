package mapping

// Built-in rule set names.
const (
	RuleSetMatrix     = "matrix"
	RuleSetPositional = "positional"
	RuleSetTemplate   = "template"
)

// supplierDefaults are the fixed columns of the Hudson matrix feeds.
func supplierDefaults() map[Field]string {
	return map[Field]string{
		FieldREP:       "HUDSON",
		FieldMinMWh:    "0",
		FieldMaxMWh:    "1000",
		FieldRUCNodal:  "0",
		FieldComDisc:   "0",
		FieldHOADisc:   "0",
		FieldBrokerFee: "0",
		FieldMeterFee:  "0",
		FieldMaxMeters: "5",
	}
}

var fixedPriceFilter = Filter{
	Candidates: []string{"Product", "Products"},
	Contains:   true,
	Equals:     []string{"Fixed Price"},
}

func col(i int) *int { return &i }

// Matrix reads vendor matrix tables where zone and load factor are encoded
// in a description such as "HOUSTON High Load Factor".
func Matrix() *RuleSet {
	return &RuleSet{
		Name:        RuleSetMatrix,
		Description: "vendor matrix table with MatrixDescription, Price, TermCode and StartDate",
		Signature:   []string{"MatrixDescription", "Price", "TermCode", "StartDate", "Product"},
		Fields: map[Field]Rule{
			FieldZone: {
				Candidates: []string{"MatrixDescription", "Matrix Description", "Description", "Desc"},
				Contains:   true,
				Transform:  "zone_from_description",
				Fallback:   &Rule{Candidates: []string{"Zone", "Congestion Zone"}, Contains: true, Transform: "upper"},
			},
			FieldLoad: {
				Candidates: []string{"MatrixDescription", "Matrix Description", "Description", "Desc"},
				Contains:   true,
				Transform:  "load_from_description",
				Fallback:   &Rule{Candidates: []string{"Load Factor", "LoadFactor", "LF"}, Contains: true, Transform: "load_word"},
			},
			FieldTerm: {
				Candidates: []string{"TermCode", "Term", "Term Months", "Term_Months", "TermLength", "Term (months)"},
				Contains:   true,
				Transform:  "term",
			},
			FieldDailyNoRUC: {
				Candidates: []string{"Price", "Price $", "Price($)", "Matrix Price", "Rate", "Base Price"},
				Contains:   true,
				Transform:  "number",
				Fallback:   &Rule{Candidates: []string{"GreenPrice", "Green Price"}, Contains: true, Transform: "number"},
			},
			FieldStartDate: {
				Candidates: []string{"StartDate", "Start Date", "StartMonth", "Start Month", "Delivery Start", "First Delivery", "DeliveryStart"},
				Contains:   true,
				Transform:  "trim",
			},
		},
		Filters:   []Filter{fixedPriceFilter},
		Constants: supplierDefaults(),
	}
}

// Positional reads header-agnostic vendor exports by column position:
// D term, E zone and load descriptor, H price in $/kWh, J start date.
// It has no signature and is only used when requested by name.
func Positional() *RuleSet {
	return &RuleSet{
		Name:        RuleSetPositional,
		Description: "export read by position: D term, E zone/load, H price x1000, J start date",
		Fields: map[Field]Rule{
			FieldTerm:       {Index: col(3), Transform: "term"},
			FieldZone:       {Index: col(4), Transform: "zone_word"},
			FieldLoad:       {Index: col(4), Transform: "load_word"},
			FieldDailyNoRUC: {Index: col(7), Transform: "number"},
			FieldStartDate:  {Index: col(9), Transform: "trim"},
		},
		Filters:         []Filter{fixedPriceFilter},
		Constants:       supplierDefaults(),
		PriceMultiplier: "1000",
	}
}

// Template reads tables that already use the master layout.
func Template() *RuleSet {
	byHeader := func(headers ...string) Rule {
		return Rule{Candidates: headers, Transform: "number"}
	}
	return &RuleSet{
		Name:        RuleSetTemplate,
		Description: "table already in master layout (Price_Date, Date, Zone, Load, REP1, ...)",
		Signature:   []string{"Price_Date", "Date", "Zone", "Load", "REP1", "Term", "Daily_No_Ruc", "Daily"},
		Fields: map[Field]Rule{
			FieldStartDate:  {Candidates: []string{"Date", "Start Date", "StartDate"}, Transform: "trim"},
			FieldZone:       {Candidates: []string{"Zone"}, Transform: "upper"},
			FieldLoad:       {Candidates: []string{"Load", "Load Factor"}, Transform: "upper"},
			FieldREP:        {Candidates: []string{"REP1", "REP", "Supplier"}, Transform: "upper"},
			FieldTerm:       {Candidates: []string{"Term"}, Transform: "term"},
			FieldMinMWh:     byHeader("Min_MWh"),
			FieldMaxMWh:     byHeader("Max_MWh"),
			FieldDailyNoRUC: byHeader("Daily_No_Ruc"),
			FieldRUCNodal:   byHeader("RUC_Nodal"),
			FieldDaily:      byHeader("Daily"),
			FieldComDisc:    byHeader("Com_Disc"),
			FieldHOADisc:    byHeader("HOA_Disc"),
			FieldBrokerFee:  byHeader("Broker_Fee"),
			FieldMeterFee:   byHeader("Meter_Fee"),
			FieldMaxMeters:  byHeader("Max_Meters"),
		},
	}
}

// Builtins returns fresh copies of the built-in rule sets in registration
// order.
func Builtins() []*RuleSet {
	return []*RuleSet{Matrix(), Template(), Positional()}
}
