// Package tick advances the economy by one fixed step.
//
// A step runs in a fixed order: auto-click, base production (pass 1),
// synergy adjustments (pass 2), the per-generator affordability gate
// (pass 3), then the ledger update, cumulative stats and the published
// resources-per-second. Boost pruning and bonus aggregation happen before
// Advance is called, in bonus.Aggregate.
package tick

import (
	"math"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/bonus"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/game/rates"
)

type Params struct {
	// TicksPerSecond converts per-second rates into per-tick deltas. The same
	// value is used for production, consumption and the published RPS.
	TicksPerSecond float64
	ClickResource  model.Resource
}

type Report struct {
	// Net is the per-tick change before clamping.
	Net model.Ledger
	// Produced is what was added to total_<resource> stats this tick.
	Produced model.Ledger
	RPS      model.Ledger

	// Gated lists owned generators that could not cover their consumption.
	Gated []string
	// Replicated counts whole units added by self-replication.
	Replicated map[string]int
}

// Advance applies one tick to st and returns what happened.
func Advance(st *model.State, cats *catalogs.Catalogs, set bonus.Set, tbl rates.Table, p Params) Report {
	tps := p.TicksPerSecond
	if tps <= 0 {
		tps = 1
	}
	rep := Report{
		Net:      model.NewLedger(),
		Produced: model.Ledger{},
	}

	if set.AutoClick > 0 && p.ClickResource != "" {
		rep.Net[p.ClickResource] += set.AutoClick * set.Click / tps
	}

	// Pass 1: per-second totals for owned generators.
	totals := make(map[string]model.Ledger, len(st.Generators))
	for _, g := range st.Generators {
		if g.Owned <= 0 {
			continue
		}
		unit, ok := tbl.Production[g.ID]
		if !ok {
			continue
		}
		total := make(model.Ledger, len(unit))
		for r, v := range unit {
			total[r] = v * float64(g.Owned)
		}
		totals[g.ID] = total
	}
	base := make(map[string]model.Ledger, len(totals))
	for id, l := range totals {
		base[id] = l.Clone()
	}

	// Pass 2: synergies declared on owned targets.
	for _, g := range st.Generators {
		if g.Owned <= 0 {
			continue
		}
		def, ok := cats.Generator(g.ID)
		if !ok || len(def.Synergies) == 0 {
			continue
		}
		for _, syn := range def.Synergies {
			switch syn.Bonus.Type {
			case catalogs.SynergyFlat:
				applyFlatSynergy(totals, g, syn, st.Owned(syn.SourceID), set.Synergy)
			case catalogs.SynergyPercentOfSource:
				applyPercentSynergy(rep.Net, base[syn.SourceID], syn, set.Synergy, tps)
			}
		}
	}

	// Pass 3: gate on pre-tick balances, one generator at a time.
	active := make(map[string]bool, len(totals))
	for _, g := range st.Generators {
		if g.Owned <= 0 {
			continue
		}
		need := make(model.Ledger, len(tbl.Consumption[g.ID]))
		for r, v := range tbl.Consumption[g.ID] {
			need[r] = v * float64(g.Owned) / tps
		}
		if !st.Resources.Covers(need) {
			rep.Gated = append(rep.Gated, g.ID)
			continue
		}
		active[g.ID] = true
		for r, v := range totals[g.ID] {
			perTick := v / tps
			rep.Net[r] += perTick
			rep.Produced[r] += perTick
		}
		for r, v := range need {
			rep.Net[r] -= v
		}
	}

	for r, v := range rep.Net {
		st.Resources[r] += v
	}
	st.Resources.ClampNonNegative()

	if st.Stats == nil {
		st.Stats = model.Stats{}
	}
	for r, v := range rep.Produced {
		st.Stats[model.StatTotal(r)] += v
	}

	rep.RPS = make(model.Ledger, len(rep.Net))
	for r, v := range rep.Net {
		rep.RPS[r] = v * tps
	}
	st.RPS = rep.RPS.Clone()

	rep.Replicated = replicate(st, cats, active, tps)
	return rep
}

// applyFlatSynergy adds floor(sourceOwned/per) * value bonus units per owned
// target unit into the target's own pass-1 total, so it is gated with it.
func applyFlatSynergy(totals map[string]model.Ledger, target model.Generator, syn catalogs.Synergy, sourceOwned int, synergyMult float64) {
	if sourceOwned <= 0 || syn.Bonus.Per <= 0 {
		return
	}
	steps := math.Floor(float64(sourceOwned) / float64(syn.Bonus.Per))
	if steps == 0 {
		return
	}
	total, ok := totals[target.ID]
	if !ok {
		total = model.Ledger{}
		totals[target.ID] = total
	}
	total[syn.TargetResource] += steps * syn.Bonus.Value * synergyMult * float64(target.Owned)
}

// applyPercentSynergy adds a share of the source's pass-1 output straight
// into the tick's net change. It is a tick-level bonus, not a per-unit one,
// and bypasses the target's affordability gate.
func applyPercentSynergy(net model.Ledger, sourceTotal model.Ledger, syn catalogs.Synergy, synergyMult, tps float64) {
	if sourceTotal == nil {
		return
	}
	from := syn.Bonus.SourceResource
	if from == "" {
		from = syn.TargetResource
	}
	out := sourceTotal[from]
	if out <= 0 {
		return
	}
	net[syn.TargetResource] += out * syn.Bonus.Value * synergyMult / tps
}

func replicate(st *model.State, cats *catalogs.Catalogs, active map[string]bool, tps float64) map[string]int {
	var out map[string]int
	for i := range st.Generators {
		g := &st.Generators[i]
		if !active[g.ID] {
			continue
		}
		def, ok := cats.Generator(g.ID)
		if !ok || def.SpecialEffect != catalogs.EffectSelfReplicating || def.ReplicationRate <= 0 {
			continue
		}
		g.ReplicationCarry += float64(g.Owned) * def.ReplicationRate / tps
		whole := math.Floor(g.ReplicationCarry)
		if whole < 1 {
			continue
		}
		g.ReplicationCarry -= whole
		g.Owned += int(whole)
		if out == nil {
			out = map[string]int{}
		}
		out[g.ID] += int(whole)
	}
	return out
}
