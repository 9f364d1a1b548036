package model

import (
	"errors"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMasterSchema(t *testing.T) {
	t.Parallel()

	s := MasterSchema()
	assert.Equal(t, []string{
		"ID", "Price_Date", "Date", "Zone", "Load", "REP1", "Term", "Min_MWh", "Max_MWh",
		"Daily_No_Ruc", "RUC_Nodal", "Daily", "Com_Disc", "HOA_Disc", "Broker_Fee", "Meter_Fee", "Max_Meters",
	}, s.Headers())

	t.Run("Index matches normalized headers", func(t *testing.T) {
		t.Parallel()
		for header, want := range map[string]int{
			"ID":         0,
			"price date": 1,
			"PriceDate":  1,
			"Start Date": 2,
			"Ruc_Nodal":  10,
			" REP1 ":     5,
			"supplier":   5,
			"MAX_METERS": 16,
		} {
			i, ok := s.Index(header)
			require.True(t, ok, header)
			assert.Equal(t, want, i, header)
		}
	})

	t.Run("Index rejects unknown headers", func(t *testing.T) {
		t.Parallel()
		_, ok := s.Index("Utility")
		assert.False(t, ok)
	})

	t.Run("HeadersOfKind", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"Price_Date", "Date"}, s.HeadersOfKind(KindDate))
	})
}

func TestNormalizeHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Price ($)", "price"},
		{"Term (months)", "termmonths"},
		{"Matrix Description", "matrixdescription"},
		{"ＴｅｒｍＣｏｄｅ", "termcode"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeHeader(tt.in), tt.in)
	}
}

func TestMasterRowCells(t *testing.T) {
	t.Parallel()

	row := MasterRow{
		ID:         42,
		PriceDate:  time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC),
		StartDate:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Zone:       "HOUSTON",
		Load:       "HIGH",
		REP:        "HUDSON",
		Term:       12,
		DailyNoRUC: decimal.NewNullDecimal(decimal.RequireFromString("75.5")),
		MaxMeters:  decimal.NewNullDecimal(decimal.NewFromInt(5)),
	}

	cells := row.Cells()
	require.Len(t, cells, len(MasterSchema().Columns))
	assert.Equal(t, "42", cells[0])
	assert.Equal(t, "2025-08-31", cells[1])
	assert.Equal(t, "2024-03-01", cells[2])
	assert.Equal(t, "HOUSTON", cells[3])
	assert.Equal(t, "12", cells[6])
	assert.Equal(t, "", cells[7], "null decimal renders empty")
	assert.Equal(t, "75.5", cells[9])
	assert.Equal(t, "5", cells[16])

	assert.Equal(t, "", MasterRow{}.Cells()[0], "unassigned id renders empty")
}

func TestBusinessKey(t *testing.T) {
	t.Parallel()

	a := MasterRow{Zone: "NORTH", Load: "LOW", REP: "HUDSON", Term: 24, StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	b := a
	b.ID = 99
	b.PriceDate = time.Now()
	assert.Equal(t, a.BusinessKey(), b.BusinessKey())
	assert.Equal(t, BusinessKey("NORTH", "LOW", "HUDSON", "24", "2024-06-01"), a.BusinessKey())

	b.Term = 36
	assert.NotEqual(t, a.BusinessKey(), b.BusinessKey())

	mixed := a
	mixed.Zone = " North "
	mixed.Load = "low"
	mixed.REP = "Hudson"
	assert.Equal(t, a.BusinessKey(), mixed.BusinessKey(), "text parts ignore case and padding")
}

func TestDay(t *testing.T) {
	t.Parallel()

	in := time.Date(2025, 8, 31, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), Day(in))
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := NewError(KindBackupFailed, "copy master", cause).With("path", "/tmp/m.xlsx")

	assert.Equal(t, "backup_failed: copy master (path=/tmp/m.xlsx): disk full", err.Error())
	assert.ErrorIs(t, err, cause)

	wrapped := eris.Wrap(err, "pipeline: backup")
	assert.True(t, IsKind(wrapped, KindBackupFailed))
	assert.False(t, IsKind(wrapped, KindUnsafeOverwrite))

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindBackupFailed, kind)

	_, ok = KindOf(cause)
	assert.False(t, ok)
	assert.False(t, IsKind(nil, KindBackupFailed))
}

func TestIsKind_Nested(t *testing.T) {
	t.Parallel()

	inner := NewError(KindSourceMissing, "master not found", nil)
	outer := NewError(KindBackupFailed, "backup", inner)
	assert.True(t, IsKind(outer, KindSourceMissing))
	assert.True(t, IsKind(outer, KindBackupFailed))
}
