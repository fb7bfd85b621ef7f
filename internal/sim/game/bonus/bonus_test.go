package bonus

import (
	"math"
	"testing"
	"time"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/model"
)

func testCatalogs() *catalogs.Catalogs {
	return &catalogs.Catalogs{
		Research: catalogs.ResearchCatalog{ByID: map[string]catalogs.ResearchDef{
			"click_1": {ID: "click_1", Type: catalogs.ResearchClick, Target: "click", Value: 2},
			"gears_1": {ID: "gears_1", Type: catalogs.ResearchProduction, Target: "factory", Value: 1.25},
			"gears_2": {ID: "gears_2", Type: catalogs.ResearchProduction, Target: "factory", Value: 1.25},
			"eff_1":   {ID: "eff_1", Type: catalogs.ResearchConsumption, Target: "all", Value: 0.9},
			"syn_1":   {ID: "syn_1", Type: catalogs.ResearchSynergy, Target: "synergy", Value: 1.5},
			"auto_1":  {ID: "auto_1", Type: catalogs.ResearchAutoClick, Target: "click", Value: 1},
			"auto_2":  {ID: "auto_2", Type: catalogs.ResearchAutoClick, Target: "click", Value: 5},
		}},
		Prestige: catalogs.PrestigeCatalog{ByID: map[string]catalogs.PrestigeUpgradeDef{
			"out":   {ID: "out", Type: catalogs.PrestigeProduction, Target: "all", Value: catalogs.Curve{Kind: "linear", Base: 1, Step: 0.05}},
			"cheap": {ID: "cheap", Type: catalogs.PrestigeCostReduction, Value: catalogs.Curve{Kind: "exponential", Base: 1, Step: 0.5}},
			"start": {ID: "start", Type: catalogs.PrestigeStartingResource, Resource: model.Ore, Value: catalogs.Curve{Kind: "linear", Base: 0, Step: 100}},
		}},
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFoldIdentity(t *testing.T) {
	s := Fold(nil, nil, nil, testCatalogs())
	if s.Click != 1 || s.Synergy != 1 || s.CostReduction != 1 || s.AutoClick != 0 {
		t.Fatalf("not identity: %+v", s)
	}
	if got := s.ProductionFor([]string{"all", "x", "factory"}); got != 1 {
		t.Fatalf("production identity: %v", got)
	}
}

func TestFoldResearch(t *testing.T) {
	done := map[string]bool{"click_1": true, "gears_1": true, "gears_2": true, "eff_1": true, "syn_1": true, "auto_1": true, "auto_2": true, "missing": true}
	s := Fold(done, nil, nil, testCatalogs())
	if s.Click != 2 {
		t.Fatalf("click: %v", s.Click)
	}
	if got := s.ProductionFor([]string{"all", "smelter", "factory"}); !near(got, 1.5625) {
		t.Fatalf("factory production: %v", got)
	}
	if got := s.ProductionFor([]string{"all", "auto_miner", "miner"}); got != 1 {
		t.Fatalf("miner production: %v", got)
	}
	if got := s.ConsumptionFor([]string{"all", "smelter"}); !near(got, 0.9) {
		t.Fatalf("consumption: %v", got)
	}
	if s.Synergy != 1.5 || s.AutoClick != 6 {
		t.Fatalf("synergy/auto: %+v", s)
	}
}

func TestFoldPrestige(t *testing.T) {
	s := Fold(nil, map[string]int{"out": 4, "cheap": 1, "start": 3, "gone": 2}, nil, testCatalogs())
	if got := s.ProductionFor([]string{"all", "x"}); !near(got, 1.2) {
		t.Fatalf("prestige production: %v", got)
	}
	if s.CostReduction != 0.5 {
		t.Fatalf("cost reduction: %v", s.CostReduction)
	}
}

func TestBoostMatching(t *testing.T) {
	boosts := []model.ActiveBoost{
		{Target: "miner", Type: model.BoostProduction, Value: 3},
		{Target: "all", Type: model.BoostProduction, Value: 7},
		{Target: "all", Type: model.BoostConsumption, Value: 0.25},
		{Target: "click", Type: model.BoostClick, Value: 10},
	}
	s := Fold(nil, nil, boosts, testCatalogs())
	buckets := []string{"all", "auto_miner", "miner"}
	if got := s.BoostProductionFor(buckets); got != 3 {
		t.Fatalf("production boosts match id/tag only: %v", got)
	}
	if got := s.BoostConsumptionFor(buckets); got != 0.25 {
		t.Fatalf("consumption boost: %v", got)
	}
	if s.Click != 10 {
		t.Fatalf("click boost: %v", s.Click)
	}
}

func TestAggregatePrunesExpired(t *testing.T) {
	now := time.Unix(1000, 0)
	st := &model.State{Boosts: []model.ActiveBoost{
		{ID: "a", Target: "miner", Type: model.BoostProduction, Value: 3, ExpiresAt: now},
		{ID: "b", Target: "miner", Type: model.BoostProduction, Value: 2, ExpiresAt: now.Add(time.Second)},
	}}
	s := Aggregate(st, testCatalogs(), now)
	if len(st.Boosts) != 1 || st.Boosts[0].ID != "b" {
		t.Fatalf("prune: %+v", st.Boosts)
	}
	if got := s.BoostProductionFor([]string{"all", "x", "miner"}); got != 2 {
		t.Fatalf("expired boost still applied: %v", got)
	}
}

func TestBuckets(t *testing.T) {
	got := Buckets(catalogs.GeneratorDef{ID: "smelter", Tags: []string{"factory", "heavy"}})
	want := []string{"all", "smelter", "factory", "heavy"}
	if len(got) != len(want) {
		t.Fatalf("buckets: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("buckets: %v", got)
		}
	}
}
