package materials

import (
	"strings"
)

// Material is a normalized recyclable material class.
type Material string

const (
	MaterialElectronics Material = "electronics"
	MaterialMetal       Material = "metal"
	MaterialGlass       Material = "glass"
	MaterialPlastic     Material = "plastic"
	MaterialPaper       Material = "paper"
	MaterialOrganic     Material = "organic"
)

// materialMapping defines keyword patterns mapped to normalized materials.
type materialMapping struct {
	material Material
	keywords []string
}

// materialMappings are checked in priority order (highest to lowest).
// When multiple materials match, the first match wins, so composite
// labels like "electronics with plastic casing" classify as the more
// specific material.
var materialMappings = []materialMapping{
	{
		material: MaterialElectronics,
		keywords: []string{"electronic", "e-waste", "battery", "batteries", "phone", "computer", "appliance", "cable"},
	},
	{
		material: MaterialMetal,
		keywords: []string{"metal", "aluminum", "aluminium", "steel", "tin", "can", "copper", "iron"},
	},
	{
		material: MaterialGlass,
		keywords: []string{"glass", "jar", "bottle glass"},
	},
	{
		material: MaterialPlastic,
		keywords: []string{"plastic", "pet", "hdpe", "pvc", "bottle", "styrofoam", "polystyrene", "bag"},
	},
	{
		material: MaterialPaper,
		keywords: []string{"paper", "cardboard", "carton", "newspaper", "magazine", "book"},
	},
	{
		material: MaterialOrganic,
		keywords: []string{"organic", "compost", "food", "garden"},
	},
}

// Normalize maps a free-text material label from a drop-off form to a
// normalized material class. Returns false when nothing matches so
// callers can reject unrecognized labels instead of silently
// misclassifying them.
func Normalize(label string) (Material, bool) {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return "", false
	}

	for _, mapping := range materialMappings {
		if lower == string(mapping.material) {
			return mapping.material, true
		}
		for _, keyword := range mapping.keywords {
			if strings.Contains(lower, keyword) {
				return mapping.material, true
			}
		}
	}

	return "", false
}
