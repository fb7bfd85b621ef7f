// Package rates computes per-unit production and consumption for every
// generator from its definition, level and the current bonus set.
package rates

import (
	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/bonus"
	"stellarforge.dev/internal/sim/game/model"
)

// Table holds per-second, per-unit rates keyed by generator id.
type Table struct {
	Production  map[string]model.Ledger
	Consumption map[string]model.Ledger
}

// PrestigeMultiplier is the global production factor earned from banked points.
func PrestigeMultiplier(points int, perPoint float64) float64 {
	if points < 0 {
		points = 0
	}
	return 1 + float64(points)*perPoint
}

// LevelBonus is +10% per level above the first.
func LevelBonus(level int) float64 {
	if level < 1 {
		level = 1
	}
	return 1 + float64(level-1)*0.1
}

// Unit returns the per-unit production and consumption of one generator.
// Consumption gets neither the level bonus nor the prestige multiplier.
func Unit(def catalogs.GeneratorDef, level int, set bonus.Set, prestigeMult float64) (prod, cons model.Ledger) {
	buckets := bonus.Buckets(def)

	pm := set.ProductionFor(buckets) * prestigeMult * set.BoostProductionFor(buckets) * LevelBonus(level)
	prod = make(model.Ledger, len(def.Production))
	for r, base := range def.Production {
		prod[r] = base * pm
	}

	cm := set.ConsumptionFor(buckets) * set.BoostConsumptionFor(buckets)
	cons = make(model.Ledger, len(def.Consumption))
	for r, base := range def.Consumption {
		cons[r] = base * cm
	}
	return prod, cons
}

// Compute fills a Table for every generator in st, owned or not, so views
// can show what the next unit would yield. Generators without a definition
// are left out.
func Compute(st *model.State, cats *catalogs.Catalogs, set bonus.Set, prestigeMult float64) Table {
	t := Table{
		Production:  make(map[string]model.Ledger, len(st.Generators)),
		Consumption: make(map[string]model.Ledger, len(st.Generators)),
	}
	for _, g := range st.Generators {
		def, ok := cats.Generator(g.ID)
		if !ok {
			continue
		}
		t.Production[g.ID], t.Consumption[g.ID] = Unit(def, g.Level, set, prestigeMult)
	}
	return t
}
