package progression

import (
	"errors"
	"reflect"
	"testing"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/bonus"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/tuning"
)

func setup(t *testing.T) (*catalogs.Catalogs, Rules, *model.State) {
	t.Helper()
	cats, err := catalogs.Load("../../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	rules := RulesFrom(tuning.Defaults())
	return cats, rules, NewState(cats, rules)
}

func TestNewState(t *testing.T) {
	cats, _, st := setup(t)
	if len(st.Generators) != len(cats.Generators.Defs) {
		t.Fatalf("generators: %d", len(st.Generators))
	}
	if !st.Unlocked["auto_miner"] || len(st.Unlocked) != 1 {
		t.Fatalf("unlocked: %v", st.Unlocked)
	}
	g := st.Generator("auto_miner")
	if g.Owned != 0 || g.Level != 1 || g.Cost[model.Ore] != 15 {
		t.Fatalf("auto_miner: %+v", g)
	}
}

func TestPurchase(t *testing.T) {
	cats, _, st := setup(t)
	if err := Purchase(st, cats, "auto_miner", 1); !errors.Is(err, ErrUnaffordable) {
		t.Fatalf("expected unaffordable, got %v", err)
	}
	st.Resources[model.Ore] = 40
	if err := Purchase(st, cats, "auto_miner", 1); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	g := st.Generator("auto_miner")
	if g.Owned != 1 || st.Resources[model.Ore] != 25 || g.Cost[model.Ore] != 18 {
		t.Fatalf("after purchase: owned=%d ore=%v cost=%v", g.Owned, st.Resources[model.Ore], g.Cost)
	}

	st.Resources[model.Ore] = 1e9
	if err := Purchase(st, cats, "solar_panel", 1); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if err := Purchase(st, cats, "warp_gate", 1); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected unknown, got %v", err)
	}
}

func TestRejectedOperationsDoNotMutate(t *testing.T) {
	cats, _, st := setup(t)
	st.Resources[model.Ore] = 10
	before := st.Resources.Clone()

	_ = Purchase(st, cats, "auto_miner", 1)
	_ = LevelUp(st, cats, "auto_miner")
	_ = PurchaseResearch(st, cats, "click_1")
	_ = PurchasePrestigeUpgrade(st, cats, "stellar_output")

	if !reflect.DeepEqual(before, st.Resources) {
		t.Fatalf("resources changed: %v -> %v", before, st.Resources)
	}
	if st.Generator("auto_miner").Owned != 0 || len(st.CompletedResearch) != 0 || len(st.PrestigeLevels) != 0 {
		t.Fatalf("state changed on rejection")
	}
}

func TestLevelUp(t *testing.T) {
	cats, _, st := setup(t)
	if err := LevelUp(st, cats, "auto_miner"); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected not owned, got %v", err)
	}
	st.Generator("auto_miner").Owned = 1
	st.Resources[model.Ore] = 45
	if err := LevelUp(st, cats, "auto_miner"); err != nil {
		t.Fatalf("level up: %v", err)
	}
	if st.Generator("auto_miner").Level != 2 || st.Resources[model.Ore] != 0 {
		t.Fatalf("after level up: %+v ore=%v", st.Generator("auto_miner"), st.Resources[model.Ore])
	}
}

func TestPurchaseResearch(t *testing.T) {
	cats, _, st := setup(t)
	st.Resources[model.Parts] = 1000
	if err := PurchaseResearch(st, cats, "click_2"); !errors.Is(err, ErrPrerequisites) {
		t.Fatalf("expected prerequisites, got %v", err)
	}
	st.Resources[model.Ore] = 100
	if err := PurchaseResearch(st, cats, "click_1"); err != nil {
		t.Fatalf("click_1: %v", err)
	}
	if err := PurchaseResearch(st, cats, "click_1"); !errors.Is(err, ErrAlreadyResearched) {
		t.Fatalf("expected already researched, got %v", err)
	}
	if err := PurchaseResearch(st, cats, "click_2"); err != nil {
		t.Fatalf("click_2: %v", err)
	}
	if st.Resources[model.Ore] != 0 || st.Resources[model.Parts] != 950 {
		t.Fatalf("debits: %v", st.Resources)
	}
}

func TestPurchasePrestigeUpgrade(t *testing.T) {
	cats, _, st := setup(t)
	def := cats.Prestige.ByID["stellar_output"]
	st.PrestigePoints = 1
	if err := PurchasePrestigeUpgrade(st, cats, "stellar_output"); err != nil {
		t.Fatalf("first level: %v", err)
	}
	if st.PrestigePoints != 0 || st.PrestigeLevels["stellar_output"] != 1 {
		t.Fatalf("after purchase: points=%d levels=%v", st.PrestigePoints, st.PrestigeLevels)
	}
	st.PrestigePoints = 1
	if err := PurchasePrestigeUpgrade(st, cats, "stellar_output"); !errors.Is(err, ErrUnaffordable) {
		t.Fatalf("level 2 costs %d, got %v", def.CostAt(1), err)
	}
	st.PrestigeLevels["stellar_output"] = def.MaxLevel
	st.PrestigePoints = 1 << 30
	if err := PurchasePrestigeUpgrade(st, cats, "stellar_output"); !errors.Is(err, ErrMaxLevel) {
		t.Fatalf("expected max level, got %v", err)
	}
}

func TestPrestigeReset(t *testing.T) {
	cats, rules, st := setup(t)
	if _, err := Prestige(st, cats, rules); !errors.Is(err, ErrNothingToPrestige) {
		t.Fatalf("expected nothing to prestige, got %v", err)
	}

	st.Resources[model.DysonFragments] = 3.7
	st.Resources[model.Ore] = 5000
	st.Generator("auto_miner").Owned = 40
	st.Generator("auto_miner").Level = 3
	st.Unlocked["solar_panel"] = true
	st.CompletedResearch["click_1"] = true
	st.Achievements["first_click"] = true
	st.PrestigePoints = 2
	st.PrestigeLevels["starting_ore"] = 2
	st.Stats["total_ore"] = 12345
	st.VictoryAcknowledged = true
	stats := st.Stats.Clone()
	levels := map[string]int{"starting_ore": 2}

	banked, err := Prestige(st, cats, rules)
	if err != nil {
		t.Fatalf("prestige: %v", err)
	}
	if banked != 3 || st.PrestigePoints != 5 {
		t.Fatalf("banked=%d points=%d", banked, st.PrestigePoints)
	}
	if !reflect.DeepEqual(st.PrestigeLevels, levels) {
		t.Fatalf("prestige levels changed: %v", st.PrestigeLevels)
	}
	if st.Stats["total_ore"] != stats["total_ore"] || st.Stats[model.StatTotalPrestiges] != 1 {
		t.Fatalf("stats: %v", st.Stats)
	}
	if !reflect.DeepEqual(st.Generators, NewGenerators(cats)) {
		t.Fatalf("generators not reset")
	}
	if len(st.CompletedResearch) != 0 || len(st.Unlocked) != 1 || !st.Unlocked["auto_miner"] {
		t.Fatalf("research/unlocks: %v %v", st.CompletedResearch, st.Unlocked)
	}
	if !st.Achievements["first_click"] || st.VictoryAcknowledged {
		t.Fatalf("achievements/victory: %v %v", st.Achievements, st.VictoryAcknowledged)
	}
	// starting_ore level 2: 100 * 3^2.
	want := StartingResources(cats, rules, levels)
	if st.Resources[model.Ore] != 900 || !reflect.DeepEqual(st.Resources, want) {
		t.Fatalf("resources: %v", st.Resources)
	}
	if st.Resources[model.DysonFragments] != 0 {
		t.Fatalf("prestige currency kept")
	}
}

func TestClick(t *testing.T) {
	_, rules, st := setup(t)
	set := bonus.Identity()
	set.Click = 4
	if got := Click(st, set, rules); got != 4 {
		t.Fatalf("gain: %v", got)
	}
	if st.Resources[model.Ore] != 4 || st.Stats[model.StatTotalClicks] != 1 || st.Stats["total_ore"] != 4 {
		t.Fatalf("click state: %v %v", st.Resources, st.Stats)
	}
}

func TestVictoryAndVolume(t *testing.T) {
	_, rules, st := setup(t)
	if VictoryPending(st, rules) {
		t.Fatalf("victory at start")
	}
	st.Resources[model.StellarEssence] = rules.GoalAmount
	if !VictoryPending(st, rules) {
		t.Fatalf("victory not detected")
	}
	AcknowledgeVictory(st)
	if VictoryPending(st, rules) {
		t.Fatalf("acknowledged victory still pending")
	}

	SetVolume(st, model.Volume{Master: 1.5, Music: -1, SFX: 0.3})
	if st.Volume != (model.Volume{Master: 1, Music: 0, SFX: 0.3}) {
		t.Fatalf("volume: %+v", st.Volume)
	}
}
