package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"stellarforge.dev/internal/sim/game/model"
)

type Catalogs struct {
	Generators   GeneratorCatalog
	Research     ResearchCatalog
	Prestige     PrestigeCatalog
	Abilities    AbilityCatalog
	Events       EventCatalog
	Achievements AchievementCatalog
}

type GeneratorCatalog struct {
	// Defs keeps file order; views and new games list generators in this order.
	Defs   []GeneratorDef
	Index  map[string]int
	Digest string
}

type GeneratorDef struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	BaseCost    model.Ledger `json:"base_cost"`
	CostGrowth  float64      `json:"cost_growth"`
	Production  model.Ledger `json:"production"`
	Consumption model.Ledger `json:"consumption,omitempty"`
	Tags        []string     `json:"tags,omitempty"`

	UnlocksAt *UnlockCondition `json:"unlocks_at,omitempty"`
	Synergies []Synergy        `json:"synergies,omitempty"`

	SpecialEffect   string  `json:"special_effect,omitempty"`
	ReplicationRate float64 `json:"replication_rate,omitempty"`
}

const EffectSelfReplicating = "self_replicating"

func (d GeneratorDef) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type UnlockCondition struct {
	Owned     map[string]int `json:"owned,omitempty"`
	Resources model.Ledger   `json:"resources,omitempty"`
}

type Synergy struct {
	SourceID       string         `json:"source_id"`
	TargetStat     string         `json:"target_stat,omitempty"`
	TargetResource model.Resource `json:"target_resource"`
	Bonus          SynergyBonus   `json:"bonus"`
}

const (
	SynergyFlat            = "flat"
	SynergyPercentOfSource = "percentage_of_source_output"
)

type SynergyBonus struct {
	Type           string         `json:"type"`
	Value          float64        `json:"value"`
	Per            int            `json:"per,omitempty"`
	SourceResource model.Resource `json:"source_resource,omitempty"`
}

type ResearchCatalog struct {
	Defs   []ResearchDef
	ByID   map[string]ResearchDef
	Digest string
}

type ResearchCost struct {
	Resource model.Resource `json:"resource"`
	Amount   float64        `json:"amount"`
}

// Research bonus kinds.
const (
	ResearchClick       = "click_multiplier"
	ResearchProduction  = "production_multiplier"
	ResearchConsumption = "consumption_multiplier"
	ResearchSynergy     = "synergy_multiplier"
	ResearchAutoClick   = "auto_click"
)

type ResearchDef struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Cost          ResearchCost `json:"cost"`
	Type          string       `json:"type"`
	Target        string       `json:"target"`
	Value         float64      `json:"value"`
	Prerequisites []string     `json:"prerequisites,omitempty"`
	Tags          []string     `json:"tags,omitempty"`
}

func (d ResearchDef) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

type PrestigeCatalog struct {
	Defs   []PrestigeUpgradeDef
	ByID   map[string]PrestigeUpgradeDef
	Digest string
}

// Prestige upgrade effect kinds.
const (
	PrestigeProduction       = "production_multiplier"
	PrestigeClick            = "click_multiplier"
	PrestigeCostReduction    = "cost_reduction"
	PrestigeStartingResource = "starting_resource"
)

type PrestigeUpgradeDef struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	MaxLevel    int            `json:"max_level"`
	Type        string         `json:"type"`
	Target      string         `json:"target,omitempty"`
	Resource    model.Resource `json:"resource,omitempty"`
	Cost        Curve          `json:"cost"`
	Value       Curve          `json:"value"`
}

// CostAt is the prestige point price of buying level+1 from level.
func (d PrestigeUpgradeDef) CostAt(level int) int {
	return int(math.Ceil(d.Cost.At(level)))
}

// ValueAt is the effect of holding the given level.
func (d PrestigeUpgradeDef) ValueAt(level int) float64 {
	return d.Value.At(level)
}

// Curve is linear (base + step*level) or exponential (base * step^level).
type Curve struct {
	Kind string  `json:"kind"`
	Base float64 `json:"base"`
	Step float64 `json:"step"`
}

func (c Curve) At(level int) float64 {
	switch c.Kind {
	case "exponential":
		return c.Base * math.Pow(c.Step, float64(level))
	default:
		return c.Base + c.Step*float64(level)
	}
}

type BoostTemplate struct {
	Target string          `json:"target"`
	Type   model.BoostType `json:"type"`
	Value  float64         `json:"value"`
}

type AbilityCatalog struct {
	Defs   []AbilityDef
	ByID   map[string]AbilityDef
	Digest string
}

const (
	AbilityTimedBoost  = "timed_boost"
	AbilityInstantGain = "instant_gain"
)

type AbilityDef struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Cost            model.Ledger   `json:"cost"`
	CooldownSeconds float64        `json:"cooldown_seconds"`
	Type            string         `json:"type"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
	Boost           *BoostTemplate `json:"boost,omitempty"`
	Gain            model.Ledger   `json:"gain,omitempty"`
	GainSeconds     model.Ledger   `json:"gain_seconds,omitempty"`
}

type EventCatalog struct {
	Random    []RandomEventDef    `json:"random"`
	Clickable []ClickableEventDef `json:"clickable"`
	ByID      map[string]RandomEventDef
	Digest    string
}

type RandomEventDef struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
	Boost           BoostTemplate `json:"boost"`
}

type ClickableEventDef struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	DurationSeconds float64       `json:"duration_seconds"`
	LifespanSeconds float64       `json:"lifespan_seconds"`
	Boost           BoostTemplate `json:"boost"`
}

type AchievementCatalog struct {
	Defs   []AchievementDef
	Digest string
}

type AchievementDef struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Condition   Condition `json:"condition"`
}

// Condition is a data-driven achievement predicate. Which fields are read
// depends on Kind.
type Condition struct {
	Kind  string   `json:"kind"`
	Key   string   `json:"key,omitempty"`
	ID    string   `json:"id,omitempty"`
	IDs   []string `json:"ids,omitempty"`
	Tag   string   `json:"tag,omitempty"`
	Value float64  `json:"value,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	schemaDir := filepath.Join(configDir, "schemas")

	if err := loadGenerators(configDir, schemaDir, &c.Generators); err != nil {
		return nil, err
	}
	if err := loadResearch(configDir, schemaDir, &c.Research); err != nil {
		return nil, err
	}
	if err := loadPrestige(configDir, schemaDir, &c.Prestige); err != nil {
		return nil, err
	}
	if err := loadAbilities(configDir, schemaDir, &c.Abilities); err != nil {
		return nil, err
	}
	if err := loadEvents(configDir, schemaDir, &c.Events); err != nil {
		return nil, err
	}
	if err := loadAchievements(configDir, schemaDir, &c.Achievements); err != nil {
		return nil, err
	}
	return &c, nil
}

// Generator looks up a generator definition by id.
func (c *Catalogs) Generator(id string) (GeneratorDef, bool) {
	i, ok := c.Generators.Index[id]
	if !ok {
		return GeneratorDef{}, false
	}
	return c.Generators.Defs[i], true
}

// Digest identifies the full content set. Clients compare it to detect
// content changes between sessions.
func (c *Catalogs) Digest() string {
	parts := []string{
		c.Generators.Digest,
		c.Research.Digest,
		c.Prestige.Digest,
		c.Abilities.Digest,
		c.Events.Digest,
		c.Achievements.Digest,
	}
	return sha256Hex([]byte(strings.Join(parts, ":")))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// readValidated reads name from dir, validates it against its schema and
// returns the raw bytes for typed decoding.
func readValidated(dir, schemaDir, name string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	schemaName := strings.TrimSuffix(name, ".json") + ".schema.json"
	schema, err := jsonschema.Compile(filepath.Join(schemaDir, schemaName))
	if err != nil {
		return nil, fmt.Errorf("%s: schema: %w", name, err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return raw, nil
}

func loadGenerators(dir, schemaDir string, out *GeneratorCatalog) error {
	raw, err := readValidated(dir, schemaDir, "generators.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []GeneratorDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("generators.json: %w", err)
	}
	out.Defs = defs
	out.Index = make(map[string]int, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("generators.json: empty id")
		}
		if _, dup := out.Index[d.ID]; dup {
			return fmt.Errorf("generators.json: duplicate id %q", d.ID)
		}
		if d.CostGrowth <= 1 {
			return fmt.Errorf("generators.json: %s: cost_growth must be > 1", d.ID)
		}
		for _, s := range d.Synergies {
			if s.Bonus.Type == SynergyFlat && s.Bonus.Per < 1 {
				return fmt.Errorf("generators.json: %s: flat synergy needs per >= 1", d.ID)
			}
		}
		out.Index[d.ID] = i
	}
	return nil
}

func loadResearch(dir, schemaDir string, out *ResearchCatalog) error {
	raw, err := readValidated(dir, schemaDir, "research.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []ResearchDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("research.json: %w", err)
	}
	out.Defs = defs
	out.ByID = make(map[string]ResearchDef, len(defs))
	for _, d := range defs {
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("research.json: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadPrestige(dir, schemaDir string, out *PrestigeCatalog) error {
	raw, err := readValidated(dir, schemaDir, "prestige_upgrades.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []PrestigeUpgradeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("prestige_upgrades.json: %w", err)
	}
	out.Defs = defs
	out.ByID = make(map[string]PrestigeUpgradeDef, len(defs))
	for _, d := range defs {
		if d.Type == PrestigeStartingResource && !model.IsKnownResource(d.Resource) {
			return fmt.Errorf("prestige_upgrades.json: %s: starting_resource needs a resource", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadAbilities(dir, schemaDir string, out *AbilityCatalog) error {
	raw, err := readValidated(dir, schemaDir, "abilities.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []AbilityDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("abilities.json: %w", err)
	}
	out.Defs = defs
	out.ByID = make(map[string]AbilityDef, len(defs))
	for _, d := range defs {
		if d.Type == AbilityTimedBoost && (d.Boost == nil || d.DurationSeconds <= 0) {
			return fmt.Errorf("abilities.json: %s: timed_boost needs boost and duration_seconds", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadEvents(dir, schemaDir string, out *EventCatalog) error {
	raw, err := readValidated(dir, schemaDir, "events.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("events.json: %w", err)
	}
	out.ByID = make(map[string]RandomEventDef, len(out.Random))
	for _, ev := range out.Random {
		out.ByID[ev.ID] = ev
	}
	return nil
}

func loadAchievements(dir, schemaDir string, out *AchievementCatalog) error {
	raw, err := readValidated(dir, schemaDir, "achievements.json")
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.Defs); err != nil {
		return fmt.Errorf("achievements.json: %w", err)
	}
	seen := map[string]bool{}
	for _, a := range out.Defs {
		if seen[a.ID] {
			return fmt.Errorf("achievements.json: duplicate id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// SortedIDs returns the keys of m in lexical order.
func SortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
