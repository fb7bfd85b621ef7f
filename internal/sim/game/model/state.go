package model

import "time"

type Generator struct {
	ID    string
	Owned int
	Level int

	// Cost is the current purchase cost, derived by the cost engine.
	Cost Ledger

	// ReplicationCarry accumulates fractional self-replicated units.
	ReplicationCarry float64
}

type BoostType string

const (
	BoostProduction  BoostType = "production_multiplier"
	BoostConsumption BoostType = "consumption_multiplier"
	BoostClick       BoostType = "click_multiplier"
)

// Boost targets with special meaning.
const (
	TargetAll   = "all"
	TargetClick = "click"
)

type ActiveBoost struct {
	ID          string
	SourceID    string
	Name        string
	Description string
	Target      string
	Type        BoostType
	Value       float64
	ExpiresAt   time.Time
}

func (b ActiveBoost) Expired(now time.Time) bool { return !now.Before(b.ExpiresAt) }

// ClickableEvent is a transient on-screen bonus target.
type ClickableEvent struct {
	InstanceID string
	EventID    string
	X          float64
	Y          float64
	ExpiresAt  time.Time
}

type Volume struct {
	Master float64
	Music  float64
	SFX    float64
}

func DefaultVolume() Volume { return Volume{Master: 0.8, Music: 0.5, SFX: 0.7} }

type Stats map[string]float64

func (s Stats) Clone() Stats {
	out := make(Stats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// State is the full mutable game state. It is owned by a single goroutine.
type State struct {
	Resources  Ledger
	Generators []Generator

	Unlocked          map[string]bool
	CompletedResearch map[string]bool
	Achievements      map[string]bool

	PrestigePoints int
	PrestigeLevels map[string]int

	Stats Stats
	RPS   Ledger

	Boosts    []ActiveBoost
	Cooldowns map[string]time.Time
	Clickable *ClickableEvent

	Volume              Volume
	VictoryAcknowledged bool
}

func (s *State) Generator(id string) *Generator {
	for i := range s.Generators {
		if s.Generators[i].ID == id {
			return &s.Generators[i]
		}
	}
	return nil
}

func (s *State) Owned(id string) int {
	if g := s.Generator(id); g != nil {
		return g.Owned
	}
	return 0
}

func CloneSet(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		if v {
			out[k] = true
		}
	}
	return out
}
