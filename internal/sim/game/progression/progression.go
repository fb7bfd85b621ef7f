// Package progression holds the player-driven state transitions: buying and
// levelling generators, research, the prestige tree and the prestige reset.
// Every operation either applies fully or returns an error without touching
// the state.
package progression

import (
	"errors"
	"math"
	"time"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/bonus"
	"stellarforge.dev/internal/sim/game/cost"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/tuning"
)

var (
	ErrUnknown           = errors.New("unknown id")
	ErrUnaffordable      = errors.New("cannot afford")
	ErrLocked            = errors.New("not unlocked")
	ErrNotOwned          = errors.New("generator not owned")
	ErrMaxLevel          = errors.New("already at max level")
	ErrAlreadyResearched = errors.New("already researched")
	ErrPrerequisites     = errors.New("prerequisites not met")
	ErrNothingToPrestige = errors.New("not enough prestige currency")
)

// Rules are the tuning values progression needs.
type Rules struct {
	ClickResource     model.Resource
	PrestigeResource  model.Resource
	GoalResource      model.Resource
	GoalAmount        float64
	StartingResources model.Ledger
	InitialUnlocked   []string
}

func RulesFrom(t tuning.Tuning) Rules {
	start := model.Ledger{}
	for k, v := range t.StartingResources {
		start[model.Resource(k)] = v
	}
	return Rules{
		ClickResource:     model.Resource(t.ClickResource),
		PrestigeResource:  model.Resource(t.PrestigeResource),
		GoalResource:      model.Resource(t.GoalResource),
		GoalAmount:        t.GoalAmount,
		StartingResources: start,
		InitialUnlocked:   append([]string(nil), t.InitialUnlocked...),
	}
}

// NewGenerators lists every catalog generator at zero owned, level 1, with
// its base cost.
func NewGenerators(cats *catalogs.Catalogs) []model.Generator {
	out := make([]model.Generator, 0, len(cats.Generators.Defs))
	for _, def := range cats.Generators.Defs {
		out = append(out, model.Generator{
			ID:    def.ID,
			Level: 1,
			Cost:  cost.Purchase(def, 0, 1),
		})
	}
	return out
}

// StartingResources is the ledger a fresh run begins with, including any
// starting_resource prestige upgrades.
func StartingResources(cats *catalogs.Catalogs, rules Rules, levels map[string]int) model.Ledger {
	out := model.NewLedger()
	out.Credit(rules.StartingResources)
	for id, level := range levels {
		if level <= 0 {
			continue
		}
		def, ok := cats.Prestige.ByID[id]
		if !ok || def.Type != catalogs.PrestigeStartingResource {
			continue
		}
		out[def.Resource] += def.ValueAt(level)
	}
	return out
}

func initialUnlocked(rules Rules) map[string]bool {
	out := make(map[string]bool, len(rules.InitialUnlocked))
	for _, id := range rules.InitialUnlocked {
		out[id] = true
	}
	return out
}

// NewState is a brand new game.
func NewState(cats *catalogs.Catalogs, rules Rules) *model.State {
	return &model.State{
		Resources:         StartingResources(cats, rules, nil),
		Generators:        NewGenerators(cats),
		Unlocked:          initialUnlocked(rules),
		CompletedResearch: map[string]bool{},
		Achievements:      map[string]bool{},
		PrestigeLevels:    map[string]int{},
		Stats:             model.Stats{},
		RPS:               model.NewLedger(),
		Cooldowns:         map[string]time.Time{},
		Volume:            model.DefaultVolume(),
	}
}

// Purchase buys one unit of a generator at its current price.
func Purchase(st *model.State, cats *catalogs.Catalogs, id string, costReduction float64) error {
	def, ok := cats.Generator(id)
	g := st.Generator(id)
	if !ok || g == nil {
		return ErrUnknown
	}
	if !st.Unlocked[id] {
		return ErrLocked
	}
	price := cost.Purchase(def, g.Owned, costReduction)
	if !st.Resources.Covers(price) {
		return ErrUnaffordable
	}
	st.Resources.Debit(price)
	g.Owned++
	g.Cost = cost.Purchase(def, g.Owned, costReduction)
	return nil
}

// LevelUp raises an owned generator by one level.
func LevelUp(st *model.State, cats *catalogs.Catalogs, id string) error {
	def, ok := cats.Generator(id)
	g := st.Generator(id)
	if !ok || g == nil {
		return ErrUnknown
	}
	if g.Owned < 1 {
		return ErrNotOwned
	}
	price := cost.LevelUp(def, g.Level)
	if !st.Resources.Covers(price) {
		return ErrUnaffordable
	}
	st.Resources.Debit(price)
	g.Level++
	return nil
}

func PurchaseResearch(st *model.State, cats *catalogs.Catalogs, id string) error {
	def, ok := cats.Research.ByID[id]
	if !ok {
		return ErrUnknown
	}
	if st.CompletedResearch[id] {
		return ErrAlreadyResearched
	}
	for _, p := range def.Prerequisites {
		if !st.CompletedResearch[p] {
			return ErrPrerequisites
		}
	}
	price := model.Ledger{def.Cost.Resource: def.Cost.Amount}
	if !st.Resources.Covers(price) {
		return ErrUnaffordable
	}
	st.Resources.Debit(price)
	if st.CompletedResearch == nil {
		st.CompletedResearch = map[string]bool{}
	}
	st.CompletedResearch[id] = true
	return nil
}

func PurchasePrestigeUpgrade(st *model.State, cats *catalogs.Catalogs, id string) error {
	def, ok := cats.Prestige.ByID[id]
	if !ok {
		return ErrUnknown
	}
	level := st.PrestigeLevels[id]
	if level >= def.MaxLevel {
		return ErrMaxLevel
	}
	price := def.CostAt(level)
	if st.PrestigePoints < price {
		return ErrUnaffordable
	}
	st.PrestigePoints -= price
	if st.PrestigeLevels == nil {
		st.PrestigeLevels = map[string]int{}
	}
	st.PrestigeLevels[id] = level + 1
	return nil
}

// CanPrestige reports the points a reset would bank right now.
func CanPrestige(st *model.State, rules Rules) (int, bool) {
	held := st.Resources[rules.PrestigeResource]
	if held < 1 {
		return 0, false
	}
	return int(math.Floor(held)), true
}

// Prestige banks the prestige currency and starts a new run. Prestige tree
// levels, stats, achievements, boosts and cooldowns carry over.
func Prestige(st *model.State, cats *catalogs.Catalogs, rules Rules) (int, error) {
	banked, ok := CanPrestige(st, rules)
	if !ok {
		return 0, ErrNothingToPrestige
	}
	st.PrestigePoints += banked
	if st.Stats == nil {
		st.Stats = model.Stats{}
	}
	st.Stats[model.StatTotalPrestiges]++

	st.Resources = StartingResources(cats, rules, st.PrestigeLevels)
	st.Generators = NewGenerators(cats)
	st.CompletedResearch = map[string]bool{}
	st.Unlocked = initialUnlocked(rules)
	st.RPS = model.NewLedger()
	st.VictoryAcknowledged = false
	return banked, nil
}

// Click mines by hand and returns the amount gained.
func Click(st *model.State, set bonus.Set, rules Rules) float64 {
	gain := set.Click
	st.Resources[rules.ClickResource] += gain
	if st.Stats == nil {
		st.Stats = model.Stats{}
	}
	st.Stats[model.StatTotalClicks]++
	st.Stats[model.StatTotal(rules.ClickResource)] += gain
	return gain
}

// VictoryPending is true once the goal is reached and not yet acknowledged.
func VictoryPending(st *model.State, rules Rules) bool {
	if rules.GoalResource == "" || rules.GoalAmount <= 0 {
		return false
	}
	return !st.VictoryAcknowledged && st.Resources[rules.GoalResource] >= rules.GoalAmount
}

func AcknowledgeVictory(st *model.State) { st.VictoryAcknowledged = true }

// SetVolume clamps each channel to [0,1].
func SetVolume(st *model.State, v model.Volume) {
	st.Volume = model.Volume{
		Master: clamp01(v.Master),
		Music:  clamp01(v.Music),
		SFX:    clamp01(v.SFX),
	}
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
