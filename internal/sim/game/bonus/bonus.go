// Package bonus folds completed research, prestige upgrade levels and active
// boosts into a single Set of multipliers.
package bonus

import (
	"time"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/model"
)

// Set is the derived bonus state. Multipliers start at 1 and additive terms
// at 0. Production and Consumption hold research and prestige multipliers
// keyed by bucket; boost multipliers are kept in their own maps because
// production boosts match a narrower set of buckets than research does.
type Set struct {
	Click       float64
	Production  map[string]float64
	Consumption map[string]float64

	BoostProduction  map[string]float64
	BoostConsumption map[string]float64

	Synergy       float64
	AutoClick     float64
	CostReduction float64
}

func Identity() Set {
	return Set{
		Click:            1,
		Production:       map[string]float64{},
		Consumption:      map[string]float64{},
		BoostProduction:  map[string]float64{},
		BoostConsumption: map[string]float64{},
		Synergy:          1,
		CostReduction:    1,
	}
}

// Buckets lists the keys a generator's multipliers are resolved against:
// "all", its own id, then each tag.
func Buckets(def catalogs.GeneratorDef) []string {
	out := make([]string, 0, 2+len(def.Tags))
	out = append(out, model.TargetAll, def.ID)
	return append(out, def.Tags...)
}

// ProductionFor multiplies every research/prestige production bucket that matches.
func (s Set) ProductionFor(buckets []string) float64 { return product(s.Production, buckets) }

func (s Set) ConsumptionFor(buckets []string) float64 { return product(s.Consumption, buckets) }

// BoostProductionFor matches production boosts by id or tag only.
func (s Set) BoostProductionFor(buckets []string) float64 {
	m := 1.0
	for _, k := range buckets {
		if k == model.TargetAll {
			continue
		}
		if v, ok := s.BoostProduction[k]; ok {
			m *= v
		}
	}
	return m
}

// BoostConsumptionFor matches consumption boosts by "all", id or tag.
func (s Set) BoostConsumptionFor(buckets []string) float64 {
	return product(s.BoostConsumption, buckets)
}

func product(m map[string]float64, keys []string) float64 {
	out := 1.0
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out *= v
		}
	}
	return out
}

func mul(m map[string]float64, key string, v float64) {
	if key == "" {
		key = model.TargetAll
	}
	cur, ok := m[key]
	if !ok {
		cur = 1
	}
	m[key] = cur * v
}

// Prune drops boosts whose expiry is at or before now. The returned slice
// reuses the backing array of boosts.
func Prune(boosts []model.ActiveBoost, now time.Time) []model.ActiveBoost {
	out := boosts[:0]
	for _, b := range boosts {
		if b.Expired(now) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Aggregate prunes expired boosts from st and folds what remains. The tick
// loop calls it once per tick; it is the only place boosts are removed.
func Aggregate(st *model.State, cats *catalogs.Catalogs, now time.Time) Set {
	st.Boosts = Prune(st.Boosts, now)
	return Fold(st.CompletedResearch, st.PrestigeLevels, st.Boosts, cats)
}

// Fold is the pure aggregation. Ids missing from the catalogs are skipped.
func Fold(completed map[string]bool, levels map[string]int, boosts []model.ActiveBoost, cats *catalogs.Catalogs) Set {
	s := Identity()

	for id, done := range completed {
		if !done {
			continue
		}
		def, ok := cats.Research.ByID[id]
		if !ok {
			continue
		}
		switch def.Type {
		case catalogs.ResearchClick:
			s.Click *= def.Value
		case catalogs.ResearchProduction:
			mul(s.Production, def.Target, def.Value)
		case catalogs.ResearchConsumption:
			mul(s.Consumption, def.Target, def.Value)
		case catalogs.ResearchSynergy:
			s.Synergy *= def.Value
		case catalogs.ResearchAutoClick:
			s.AutoClick += def.Value
		}
	}

	for id, level := range levels {
		if level <= 0 {
			continue
		}
		def, ok := cats.Prestige.ByID[id]
		if !ok {
			continue
		}
		v := def.ValueAt(level)
		switch def.Type {
		case catalogs.PrestigeProduction:
			mul(s.Production, def.Target, v)
		case catalogs.PrestigeClick:
			s.Click *= v
		case catalogs.PrestigeCostReduction:
			s.CostReduction *= v
		}
	}

	for _, b := range boosts {
		switch b.Type {
		case model.BoostProduction:
			mul(s.BoostProduction, b.Target, b.Value)
		case model.BoostConsumption:
			mul(s.BoostConsumption, b.Target, b.Value)
		case model.BoostClick:
			s.Click *= b.Value
		}
	}
	return s
}
