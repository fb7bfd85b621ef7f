package unlocks

import (
	"testing"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/model"
)

func testCatalogs() *catalogs.Catalogs {
	gens := []catalogs.GeneratorDef{
		{ID: "miner"},
		{ID: "panel", UnlocksAt: &catalogs.UnlockCondition{Owned: map[string]int{"miner": 5}}},
		{ID: "lab", UnlocksAt: &catalogs.UnlockCondition{Owned: map[string]int{"panel": 1}, Resources: model.Ledger{model.Parts: 20}}},
	}
	c := &catalogs.Catalogs{Generators: catalogs.GeneratorCatalog{Defs: gens, Index: map[string]int{}}}
	for i, d := range gens {
		c.Generators.Index[d.ID] = i
	}
	research := []catalogs.ResearchDef{{ID: "a"}, {ID: "b"}, {ID: "x", Tags: []string{"exotic"}}}
	c.Research = catalogs.ResearchCatalog{Defs: research, ByID: map[string]catalogs.ResearchDef{}}
	for _, r := range research {
		c.Research.ByID[r.ID] = r
	}
	return c
}

func TestRevealNeedsEverySubCondition(t *testing.T) {
	cats := testCatalogs()
	st := &model.State{
		Resources:  model.Ledger{model.Parts: 100},
		Generators: []model.Generator{{ID: "miner", Owned: 5, Level: 1}, {ID: "panel", Level: 1}, {ID: "lab", Level: 1}},
		Unlocked:   map[string]bool{"miner": true},
	}
	got := Reveal(st, cats)
	if len(got) != 1 || got[0] != "panel" {
		t.Fatalf("reveal: %v", got)
	}
	if again := Reveal(st, cats); len(again) != 0 {
		t.Fatalf("second reveal re-announced: %v", again)
	}

	st.Generators[1].Owned = 1
	st.Resources[model.Parts] = 19
	if got := Reveal(st, cats); len(got) != 0 {
		t.Fatalf("lab unlocked without enough parts: %v", got)
	}
	st.Resources[model.Parts] = 20
	if got := Reveal(st, cats); len(got) != 1 || got[0] != "lab" {
		t.Fatalf("lab: %v", got)
	}

	// Never re-locked.
	st.Generators[0].Owned = 0
	st.Resources[model.Parts] = 0
	Reveal(st, cats)
	if !st.Unlocked["panel"] || !st.Unlocked["lab"] {
		t.Fatalf("unlock revoked: %v", st.Unlocked)
	}
}

func TestAchievementPredicates(t *testing.T) {
	cats := testCatalogs()
	snap := Snapshot{
		Resources:         model.Ledger{model.StellarEssence: 2},
		Generators:        []model.Generator{{ID: "miner", Owned: 50, Level: 5}, {ID: "panel", Owned: 1, Level: 1}, {ID: "lab", Owned: 1, Level: 1}},
		Stats:             model.Stats{model.StatTotalClicks: 100},
		CompletedResearch: map[string]bool{"a": true, "b": true, "x": true, "gone": true},
		PrestigePoints:    25,
	}
	cases := []struct {
		c    catalogs.Condition
		want bool
	}{
		{catalogs.Condition{Kind: KindStatAtLeast, Key: "total_clicks", Value: 100}, true},
		{catalogs.Condition{Kind: KindStatAtLeast, Key: "total_clicks", Value: 101}, false},
		{catalogs.Condition{Kind: KindOwnedAtLeast, ID: "miner", Value: 50}, true},
		{catalogs.Condition{Kind: KindOwnedAll, Value: 1}, true},
		{catalogs.Condition{Kind: KindOwnedAll, Value: 2}, false},
		{catalogs.Condition{Kind: KindLevelAtLeast, Value: 5}, true},
		{catalogs.Condition{Kind: KindLevelAtLeast, ID: "panel", Value: 5}, false},
		{catalogs.Condition{Kind: KindResearchCountAtLeast, Value: 3}, true},
		{catalogs.Condition{Kind: KindResearchCountAtLeast, Value: 4}, false},
		{catalogs.Condition{Kind: KindResearchAll, IDs: []string{"a", "b"}}, true},
		{catalogs.Condition{Kind: KindResearchAll, IDs: []string{"a", "c"}}, false},
		{catalogs.Condition{Kind: KindResearchAnyTagged, Tag: "exotic"}, true},
		{catalogs.Condition{Kind: KindResearchAllUntagged}, true},
		{catalogs.Condition{Kind: KindPrestigePointsAtLeast, Value: 25}, true},
		{catalogs.Condition{Kind: KindResourceAtLeast, Key: "stellar_essence", Value: 1}, true},
		{catalogs.Condition{Kind: "mystery"}, false},
	}
	for _, tc := range cases {
		if got := Achieved(tc.c, snap, cats); got != tc.want {
			t.Fatalf("%+v: got %v want %v", tc.c, got, tc.want)
		}
	}
}

func TestAwardIsPermanent(t *testing.T) {
	cats := testCatalogs()
	cats.Achievements.Defs = []catalogs.AchievementDef{
		{ID: "clicker", Condition: catalogs.Condition{Kind: KindStatAtLeast, Key: "total_clicks", Value: 1}},
	}
	st := &model.State{Resources: model.NewLedger(), Stats: model.Stats{model.StatTotalClicks: 1}}
	if got := Award(st, cats); len(got) != 1 {
		t.Fatalf("award: %v", got)
	}
	st.Stats = model.Stats{}
	if got := Award(st, cats); len(got) != 0 || !st.Achievements["clicker"] {
		t.Fatalf("achievement lost or re-awarded: %v %v", got, st.Achievements)
	}
}
