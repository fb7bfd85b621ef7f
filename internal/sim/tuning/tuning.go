package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz      int `yaml:"tick_rate_hz"`
	AutosaveEveryMs int `yaml:"autosave_every_ms"`
	ViewEveryTicks  int `yaml:"view_every_ticks"`

	ClickResource    string  `yaml:"click_resource"`
	PrestigeResource string  `yaml:"prestige_resource"`
	GoalResource     string  `yaml:"goal_resource"`
	GoalAmount       float64 `yaml:"goal_amount"`

	PrestigeBonusPerPoint float64 `yaml:"prestige_bonus_per_point"`

	StartingResources map[string]float64 `yaml:"starting_resources"`
	InitialUnlocked   []string           `yaml:"initial_unlocked"`

	Events  EventTuning   `yaml:"events"`
	Offline OfflineTuning `yaml:"offline"`

	NotificationLimit int `yaml:"notification_limit"`
}

type EventTuning struct {
	WorldEventEveryMs int     `yaml:"world_event_every_ms"`
	WorldEventChance  float64 `yaml:"world_event_chance"`

	ClickableEveryMs    int        `yaml:"clickable_every_ms"`
	ClickableChance     float64    `yaml:"clickable_chance"`
	ClickableTriggerTag string     `yaml:"clickable_trigger_tag"`
	ClickableX          [2]float64 `yaml:"clickable_x"`
	ClickableY          [2]float64 `yaml:"clickable_y"`
}

type OfflineTuning struct {
	MaxSeconds int `yaml:"max_seconds"`
	MinSeconds int `yaml:"min_seconds"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:       "1.0",
		TickRateHz:            10,
		AutosaveEveryMs:       5000,
		ViewEveryTicks:        5,
		ClickResource:         "ore",
		PrestigeResource:      "dyson_fragments",
		GoalResource:          "stellar_essence",
		GoalAmount:            1000,
		PrestigeBonusPerPoint: 0.01,
		StartingResources:     map[string]float64{},
		InitialUnlocked:       []string{"auto_miner"},
		Events: EventTuning{
			WorldEventEveryMs:   5000,
			WorldEventChance:    0.01,
			ClickableEveryMs:    4000,
			ClickableChance:     0.035,
			ClickableTriggerTag: "factory",
			ClickableX:          [2]float64{10, 90},
			ClickableY:          [2]float64{20, 80},
		},
		Offline: OfflineTuning{
			MaxSeconds: 8 * 60 * 60,
			MinSeconds: 10,
		},
		NotificationLimit: 3,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 {
		return fmt.Errorf("tick_rate_hz must be > 0")
	}
	if t.ClickResource == "" || t.PrestigeResource == "" {
		return fmt.Errorf("click_resource and prestige_resource are required")
	}
	if t.Events.WorldEventChance < 0 || t.Events.WorldEventChance > 1 {
		return fmt.Errorf("events.world_event_chance out of range")
	}
	if t.Events.ClickableChance < 0 || t.Events.ClickableChance > 1 {
		return fmt.Errorf("events.clickable_chance out of range")
	}
	if t.Offline.MaxSeconds < 0 || t.Offline.MinSeconds < 0 {
		return fmt.Errorf("offline bounds must be >= 0")
	}
	return nil
}

// TickInterval is the fixed real-time tick period.
func (t Tuning) TickInterval() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) WorldEventInterval() time.Duration {
	return msOr(t.Events.WorldEventEveryMs, 5000)
}

func (t Tuning) ClickableInterval() time.Duration {
	return msOr(t.Events.ClickableEveryMs, 4000)
}

func (t Tuning) AutosaveInterval() time.Duration {
	return msOr(t.AutosaveEveryMs, 5000)
}

func msOr(ms int, def int) time.Duration {
	if ms <= 0 {
		ms = def
	}
	return time.Duration(ms) * time.Millisecond
}
