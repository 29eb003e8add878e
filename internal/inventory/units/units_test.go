package units_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/internal/inventory/units"
	"github.com/stocklot/stocklot-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestConvert_MassUnits(t *testing.T) {
	tests := []struct {
		name  string
		value string
		from  string
		to    string
		want  string
	}{
		{"kg to grams", "1", "kg", "gm", "1000"},
		{"grams to kg", "500", "gm", "kg", "0.5"},
		{"mg to grams", "2500", "mg", "g", "2.5"},
		{"kg to mg", "0.001", "kg", "mg", "1000"},
		{"gram alias to kilogram alias", "1500", "grams", "kilograms", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := units.Convert(dec(tt.value), tt.from, tt.to)
			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestConvert_VolumeUnits(t *testing.T) {
	got, err := units.Convert(dec("2"), "l", "ml")
	require.NoError(t, err)
	assert.True(t, dec("2000").Equal(got))

	got, err = units.Convert(dec("250"), "ml", "liter")
	require.NoError(t, err)
	assert.True(t, dec("0.25").Equal(got))
}

func TestConvert_SameUnitReturnsUnchanged(t *testing.T) {
	v := dec("42.42")

	got, err := units.Convert(v, "kg", "kg")
	require.NoError(t, err)
	assert.True(t, v.Equal(got))

	// aliases normalize to the same unit
	got, err = units.Convert(v, "gram", "gm")
	require.NoError(t, err)
	assert.True(t, v.Equal(got))
}

func TestConvert_IncompatibleCategories(t *testing.T) {
	_, err := units.Convert(dec("1"), "kg", "liter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrIncompatibleUnits))
}

func TestConvert_UnknownUnit(t *testing.T) {
	_, err := units.Convert(dec("1"), "bunch", "gm")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownUnit))

	// unknown tokens fail even when source and target match
	_, err = units.Convert(dec("1"), "bunch", "bunch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownUnit))
}

func TestConvert_CaseAndWhitespaceNormalization(t *testing.T) {
	got, err := units.Convert(dec("1"), " KG ", "Gm")
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(got))
}

func TestCompatible(t *testing.T) {
	assert.True(t, units.Compatible("kg", "mg"))
	assert.True(t, units.Compatible("l", "ml"))
	assert.False(t, units.Compatible("kg", "ml"))
	assert.False(t, units.Compatible("kg", "piece"))
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, units.CategoryMass, units.CategoryOf("kg"))
	assert.Equal(t, units.CategoryVolume, units.CategoryOf("milliliters"))
	assert.Equal(t, units.CategoryUnknown, units.CategoryOf("piece"))
}
