package materials

import "math"

// Rate describes how many points one kilogram of a material earns.
type Rate struct {
	Material    Material `json:"material"`
	PointsPerKg int64    `json:"pointsPerKg"`
}

// rates are ordered from most to least valuable so the public listing
// reads naturally.
var rates = []Rate{
	{Material: MaterialElectronics, PointsPerKg: 50},
	{Material: MaterialMetal, PointsPerKg: 25},
	{Material: MaterialGlass, PointsPerKg: 15},
	{Material: MaterialPlastic, PointsPerKg: 12},
	{Material: MaterialPaper, PointsPerKg: 8},
	{Material: MaterialOrganic, PointsPerKg: 2},
}

// Rates returns the full rate table.
func Rates() []Rate {
	out := make([]Rate, len(rates))
	copy(out, rates)
	return out
}

// PointsFor computes the points earned for a weighed drop-off,
// rounding down. Unknown materials and non-positive weights earn
// nothing.
func PointsFor(material Material, weightKg float64) int64 {
	if weightKg <= 0 {
		return 0
	}
	for _, r := range rates {
		if r.Material == material {
			return int64(math.Floor(weightKg * float64(r.PointsPerKg)))
		}
	}
	return 0
}
