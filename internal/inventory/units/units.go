// Package units converts quantities between compatible measurement units.
// Conversions normalize to a canonical base (grams for mass, milliliters
// for volume) via fixed factor tables, then rescale. No state.
package units

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stocklot/stocklot-backend/pkg/errors"
)

// Category of measurement a unit belongs to
type Category string

const (
	CategoryMass    Category = "mass"
	CategoryVolume  Category = "volume"
	CategoryUnknown Category = "unknown"
)

// Factors relative to the canonical base unit of each category.
// Mass base: gram. Volume base: milliliter.
var massFactors = map[string]decimal.Decimal{
	"mg":        decimal.RequireFromString("0.001"),
	"gm":        decimal.NewFromInt(1),
	"g":         decimal.NewFromInt(1),
	"gram":      decimal.NewFromInt(1),
	"grams":     decimal.NewFromInt(1),
	"kg":        decimal.NewFromInt(1000),
	"kilogram":  decimal.NewFromInt(1000),
	"kilograms": decimal.NewFromInt(1000),
}

var volumeFactors = map[string]decimal.Decimal{
	"ml":          decimal.NewFromInt(1),
	"milliliter":  decimal.NewFromInt(1),
	"milliliters": decimal.NewFromInt(1),
	"l":           decimal.NewFromInt(1000),
	"liter":       decimal.NewFromInt(1000),
	"liters":      decimal.NewFromInt(1000),
	"litre":       decimal.NewFromInt(1000),
	"litres":      decimal.NewFromInt(1000),
}

// Normalize lowercases and trims a unit token
func Normalize(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// CategoryOf reports which measurement category a unit belongs to
func CategoryOf(unit string) Category {
	u := Normalize(unit)
	if _, ok := massFactors[u]; ok {
		return CategoryMass
	}
	if _, ok := volumeFactors[u]; ok {
		return CategoryVolume
	}
	return CategoryUnknown
}

// Compatible reports whether two units can be converted between each other
func Compatible(a, b string) bool {
	ca, cb := CategoryOf(a), CategoryOf(b)
	return ca == cb && ca != CategoryUnknown
}

func factor(unit string) (decimal.Decimal, Category, error) {
	u := Normalize(unit)
	if f, ok := massFactors[u]; ok {
		return f, CategoryMass, nil
	}
	if f, ok := volumeFactors[u]; ok {
		return f, CategoryVolume, nil
	}
	return decimal.Decimal{}, CategoryUnknown, errors.UnknownUnit(unit)
}

// Convert converts value from one unit to another within the same category.
// Both units must be known; crossing mass and volume fails.
func Convert(value decimal.Decimal, fromUnit, toUnit string) (decimal.Decimal, error) {
	fromFactor, fromCat, err := factor(fromUnit)
	if err != nil {
		return decimal.Decimal{}, err
	}
	toFactor, toCat, err := factor(toUnit)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if Normalize(fromUnit) == Normalize(toUnit) {
		return value, nil
	}

	if fromCat != toCat {
		return decimal.Decimal{}, errors.IncompatibleUnits(fromUnit, toUnit)
	}

	base := value.Mul(fromFactor)
	return base.Div(toFactor), nil
}
