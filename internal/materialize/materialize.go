// Package materialize assembles typed master rows from mapped values and
// derived dates.
package materialize

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/sells-group/pricing-cli/internal/dates"
	"github.com/sells-group/pricing-cli/internal/mapping"
	"github.com/sells-group/pricing-cli/internal/model"
)

// Materialize builds one MasterRow per derived row, in input order. Ids
// are left at zero for the append step to assign.
func Materialize(derived *dates.Derived) ([]model.MasterRow, error) {
	n := derived.Len()
	if len(derived.PriceDates) != n || len(derived.StartDates) != n {
		return nil, model.NewError(model.KindSchemaMismatch, "derived columns have different lengths", nil).
			With("rows", n).
			With("price_dates", len(derived.PriceDates)).
			With("start_dates", len(derived.StartDates))
	}

	rows := make([]model.MasterRow, n)
	for i := range rows {
		src := derived.Rows[i]
		r := &rows[i]

		r.PriceDate = derived.PriceDates[i]
		r.StartDate = derived.StartDates[i]
		r.Zone = src.Get(mapping.FieldZone)
		r.Load = src.Get(mapping.FieldLoad)
		r.REP = src.Get(mapping.FieldREP)
		r.Term, _ = strconv.Atoi(src.Get(mapping.FieldTerm))

		r.MinMWh = number(src, mapping.FieldMinMWh)
		r.MaxMWh = number(src, mapping.FieldMaxMWh)
		r.DailyNoRUC = number(src, mapping.FieldDailyNoRUC)
		r.RUCNodal = number(src, mapping.FieldRUCNodal)
		r.Daily = number(src, mapping.FieldDaily)
		r.ComDisc = number(src, mapping.FieldComDisc)
		r.HOADisc = number(src, mapping.FieldHOADisc)
		r.BrokerFee = number(src, mapping.FieldBrokerFee)
		r.MeterFee = number(src, mapping.FieldMeterFee)
		r.MaxMeters = number(src, mapping.FieldMaxMeters)

		if !r.Daily.Valid {
			r.Daily = DailyTotal(r.DailyNoRUC, r.RUCNodal)
		}
	}
	return rows, nil
}

// DailyTotal is the price including the RUC charge. A missing RUC counts as
// zero; a missing base price leaves the total null.
func DailyTotal(base, ruc decimal.NullDecimal) decimal.NullDecimal {
	if !base.Valid {
		return decimal.NullDecimal{}
	}
	if !ruc.Valid {
		return base
	}
	return decimal.NewNullDecimal(base.Decimal.Add(ruc.Decimal))
}

func number(row mapping.MappedRow, f mapping.Field) decimal.NullDecimal {
	d, ok := mapping.ParseNumber(row.Get(f))
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
