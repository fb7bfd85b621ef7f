// Package unlocks reveals generators and awards achievements from the
// current state.
package unlocks

import (
	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/model"
)

// Achievement predicate kinds.
const (
	KindStatAtLeast           = "stat_at_least"
	KindOwnedAtLeast          = "owned_at_least"
	KindOwnedAll              = "owned_all"
	KindLevelAtLeast          = "level_at_least"
	KindResearchCountAtLeast  = "research_count_at_least"
	KindResearchAll           = "research_all"
	KindResearchAnyTagged     = "research_any_tagged"
	KindResearchAllUntagged   = "research_all_untagged"
	KindPrestigePointsAtLeast = "prestige_points_at_least"
	KindResourceAtLeast       = "resource_at_least"
)

// Snapshot is the read-only view achievements are judged against.
type Snapshot struct {
	Resources         model.Ledger
	Generators        []model.Generator
	Stats             model.Stats
	CompletedResearch map[string]bool
	PrestigePoints    int
}

func SnapshotOf(st *model.State) Snapshot {
	return Snapshot{
		Resources:         st.Resources,
		Generators:        st.Generators,
		Stats:             st.Stats,
		CompletedResearch: st.CompletedResearch,
		PrestigePoints:    st.PrestigePoints,
	}
}

func (s Snapshot) owned(id string) int {
	for _, g := range s.Generators {
		if g.ID == id {
			return g.Owned
		}
	}
	return 0
}

// ConditionMet reports whether every owned and resource sub-condition holds.
// A generator without a condition is always available.
func ConditionMet(cond *catalogs.UnlockCondition, st *model.State) bool {
	if cond == nil {
		return true
	}
	for id, n := range cond.Owned {
		if st.Owned(id) < n {
			return false
		}
	}
	for r, n := range cond.Resources {
		if st.Resources[r] < n {
			return false
		}
	}
	return true
}

// Reveal marks newly unlocked generators and returns their ids in catalog
// order. Unlocks are never revoked.
func Reveal(st *model.State, cats *catalogs.Catalogs) []string {
	if st.Unlocked == nil {
		st.Unlocked = map[string]bool{}
	}
	var out []string
	for _, def := range cats.Generators.Defs {
		if st.Unlocked[def.ID] {
			continue
		}
		if !ConditionMet(def.UnlocksAt, st) {
			continue
		}
		st.Unlocked[def.ID] = true
		out = append(out, def.ID)
	}
	return out
}

// Award marks newly earned achievements and returns them in catalog order.
func Award(st *model.State, cats *catalogs.Catalogs) []catalogs.AchievementDef {
	if st.Achievements == nil {
		st.Achievements = map[string]bool{}
	}
	snap := SnapshotOf(st)
	var out []catalogs.AchievementDef
	for _, a := range cats.Achievements.Defs {
		if st.Achievements[a.ID] {
			continue
		}
		if !Achieved(a.Condition, snap, cats) {
			continue
		}
		out = append(out, a)
	}
	for _, a := range out {
		st.Achievements[a.ID] = true
	}
	return out
}

// Achieved evaluates one predicate. Unknown kinds never hold.
func Achieved(c catalogs.Condition, s Snapshot, cats *catalogs.Catalogs) bool {
	switch c.Kind {
	case KindStatAtLeast:
		return s.Stats[c.Key] >= c.Value
	case KindResourceAtLeast:
		return s.Resources[model.Resource(c.Key)] >= c.Value
	case KindPrestigePointsAtLeast:
		return float64(s.PrestigePoints) >= c.Value
	case KindOwnedAtLeast:
		return float64(s.owned(c.ID)) >= c.Value
	case KindOwnedAll:
		need := c.Value
		if need < 1 {
			need = 1
		}
		if len(cats.Generators.Defs) == 0 {
			return false
		}
		for _, def := range cats.Generators.Defs {
			if float64(s.owned(def.ID)) < need {
				return false
			}
		}
		return true
	case KindLevelAtLeast:
		for _, g := range s.Generators {
			if c.ID != "" && g.ID != c.ID {
				continue
			}
			if float64(g.Level) >= c.Value {
				return true
			}
		}
		return false
	case KindResearchCountAtLeast:
		n := 0
		for id, done := range s.CompletedResearch {
			if _, known := cats.Research.ByID[id]; done && known {
				n++
			}
		}
		return float64(n) >= c.Value
	case KindResearchAll:
		if len(c.IDs) == 0 {
			return false
		}
		for _, id := range c.IDs {
			if !s.CompletedResearch[id] {
				return false
			}
		}
		return true
	case KindResearchAnyTagged:
		for id, done := range s.CompletedResearch {
			if def, ok := cats.Research.ByID[id]; done && ok && def.HasTag(c.Tag) {
				return true
			}
		}
		return false
	case KindResearchAllUntagged:
		found := false
		for _, def := range cats.Research.Defs {
			if len(def.Tags) > 0 {
				continue
			}
			found = true
			if !s.CompletedResearch[def.ID] {
				return false
			}
		}
		return found
	}
	return false
}
