package collection

import (
	"math"
	"strings"
)

// Material is a recyclable material category.
type Material string

const (
	MaterialPaper      Material = "paper"
	MaterialPlastic    Material = "plastic"
	MaterialGlass      Material = "glass"
	MaterialMetal      Material = "metal"
	MaterialElectronic Material = "electronic"
)

// Points-per-kilogram business constants. These are fixed domain values,
// not derived quantities.
var multipliers = map[Material]int{
	MaterialPaper:      8,
	MaterialPlastic:    10,
	MaterialGlass:      12,
	MaterialMetal:      15,
	MaterialElectronic: 20,
}

// ParseMaterial validates a material string.
func ParseMaterial(s string) (Material, bool) {
	m := Material(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := multipliers[m]; !ok {
		return "", false
	}
	return m, true
}

// MultiplierFor returns the points-per-kg multiplier for a material.
func MultiplierFor(m Material) (int, bool) {
	mult, ok := multipliers[m]
	return mult, ok
}

// PointsFor computes the points awarded for a drop-off:
// floor(weightKg x multiplier). Weight must be strictly positive.
func PointsFor(weightKg float64, m Material) (int, error) {
	if weightKg <= 0 || math.IsNaN(weightKg) || math.IsInf(weightKg, 0) {
		return 0, ErrInvalidInput
	}
	mult, ok := multipliers[m]
	if !ok {
		return 0, ErrInvalidInput
	}
	return int(math.Floor(weightKg * float64(mult))), nil
}
