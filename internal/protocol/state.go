package protocol

// Command names carried in CmdMsg.Cmd.
const (
	CmdClick           = "CLICK"
	CmdBuy             = "BUY"
	CmdLevelUp         = "LEVEL_UP"
	CmdResearch        = "RESEARCH"
	CmdPrestigeUpgrade = "PRESTIGE_UPGRADE"
	CmdPrestige        = "PRESTIGE"
	CmdAbility         = "ABILITY"
	CmdClaimEvent      = "CLAIM_EVENT"
	CmdAckVictory      = "ACK_VICTORY"
	CmdSetVolume       = "SET_VOLUME"
	CmdExport          = "EXPORT"
	CmdImport          = "IMPORT"
	CmdSave            = "SAVE"
)

// CMD (client -> server)
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	Cmd             string `json:"cmd"`

	// Target is the generator, research, upgrade, ability or clickable id.
	Target string     `json:"target,omitempty"`
	Volume *VolumeObs `json:"volume,omitempty"`
	Token  string     `json:"token,omitempty"`
}

// STATE (server -> client): a full view of the game.
type StateMsg struct {
	Type             string `json:"type"`
	ProtocolVersion  string `json:"protocol_version"`
	Tick             uint64 `json:"tick"`
	ServerTimeUnixMs int64  `json:"server_time_unix_ms"`

	Resources  map[string]float64 `json:"resources"`
	RPS        map[string]float64 `json:"rps"`
	ClickValue float64            `json:"click_value"`

	Generators       []GeneratorObs       `json:"generators"`
	Research         []ResearchObs        `json:"research"`
	PrestigeUpgrades []PrestigeUpgradeObs `json:"prestige_upgrades"`
	Abilities        []AbilityObs         `json:"abilities"`
	Boosts           []BoostObs           `json:"boosts"`
	Clickable        *ClickableObs        `json:"clickable,omitempty"`

	Achievements  []string `json:"achievements"`
	Notifications []Notice `json:"notifications"`

	PrestigePoints  int     `json:"prestige_points"`
	PrestigeBonus   float64 `json:"prestige_bonus"`
	PendingPrestige int     `json:"pending_prestige"`

	Stats   map[string]float64 `json:"stats"`
	Volume  VolumeObs          `json:"volume"`
	Victory bool               `json:"victory"`
}

type GeneratorObs struct {
	ID          string             `json:"id"`
	Owned       int                `json:"owned"`
	Level       int                `json:"level"`
	Unlocked    bool               `json:"unlocked"`
	Cost        map[string]float64 `json:"cost"`
	LevelUpCost map[string]float64 `json:"level_up_cost"`
	Affordable  bool               `json:"affordable"`
	Production  map[string]float64 `json:"production,omitempty"`
	Consumption map[string]float64 `json:"consumption,omitempty"`
}

type ResearchObs struct {
	ID         string `json:"id"`
	Completed  bool   `json:"completed"`
	Available  bool   `json:"available"`
	Affordable bool   `json:"affordable"`
}

type PrestigeUpgradeObs struct {
	ID       string `json:"id"`
	Level    int    `json:"level"`
	MaxLevel int    `json:"max_level"`
	NextCost int    `json:"next_cost"`
}

type AbilityObs struct {
	ID         string `json:"id"`
	ReadyInMs  int64  `json:"ready_in_ms"`
	Affordable bool   `json:"affordable"`
}

type BoostObs struct {
	ID       string  `json:"id"`
	SourceID string  `json:"source_id"`
	Name     string  `json:"name"`
	Target   string  `json:"target"`
	Kind     string  `json:"kind"`
	Value    float64 `json:"value"`
	EndsInMs int64   `json:"ends_in_ms"`
}

type ClickableObs struct {
	InstanceID string  `json:"instance_id"`
	EventID    string  `json:"event_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	EndsInMs   int64   `json:"ends_in_ms"`
}

type VolumeObs struct {
	Master float64 `json:"master"`
	Music  float64 `json:"music"`
	SFX    float64 `json:"sfx"`
}
