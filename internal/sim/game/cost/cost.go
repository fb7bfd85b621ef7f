// Package cost derives purchase and level-up prices for generators.
package cost

import (
	"math"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/model"
)

// levelKeyResources are the base cost entries that scale the level-up price.
var levelKeyResources = []model.Resource{model.Parts, model.Energy, model.Ore}

// Purchase is the price of the next unit given the number already owned.
// Only resources with a positive base cost appear in the result.
func Purchase(def catalogs.GeneratorDef, owned int, costReduction float64) model.Ledger {
	out := make(model.Ledger, len(def.BaseCost))
	growth := math.Pow(def.CostGrowth, float64(owned))
	for r, base := range def.BaseCost {
		if base <= 0 {
			continue
		}
		out[r] = math.Ceil(base * costReduction * growth)
	}
	return out
}

// LevelUp is the price of raising a generator from level to level+1.
func LevelUp(def catalogs.GeneratorDef, level int) model.Ledger {
	factor := float64(3 * level)
	out := model.Ledger{}
	for _, r := range levelKeyResources {
		if base := def.BaseCost[r]; base > 0 {
			out[r] = base * factor
		}
	}
	if len(out) == 0 {
		out[model.Parts] = float64(50 * level)
		out[model.Energy] = float64(25 * level)
	}
	return out
}

// Refresh rewrites the cached purchase cost of every generator in st.
// Generators without a definition keep whatever cost they had.
func Refresh(st *model.State, cats *catalogs.Catalogs, costReduction float64) {
	for i := range st.Generators {
		g := &st.Generators[i]
		def, ok := cats.Generator(g.ID)
		if !ok {
			continue
		}
		g.Cost = Purchase(def, g.Owned, costReduction)
	}
}
