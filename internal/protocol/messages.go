package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type              string            `json:"type"`
	ProtocolVersion   string            `json:"protocol_version"`
	SupportedVersions []string          `json:"supported_versions,omitempty"`
	ClientName        string            `json:"client_name"`
	Capabilities      HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	MaxQueue    int  `json:"max_queue,omitempty"`
	EventCursor bool `json:"event_cursor,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type               string             `json:"type"`
	ProtocolVersion    string             `json:"protocol_version"`
	ServerCapabilities ServerCapabilities `json:"server_capabilities,omitempty"`
	SessionID          string             `json:"session_id"`
	Slot               string             `json:"slot"`
	GameParams         GameParams         `json:"game_params"`
	Catalogs           CatalogDigests     `json:"catalogs"`
	Offline            *OfflineReport     `json:"offline,omitempty"`
}

type ServerCapabilities struct {
	EventBatch bool `json:"event_batch,omitempty"`
	Export     bool `json:"export,omitempty"`
}

type GameParams struct {
	TickRateHz       int     `json:"tick_rate_hz"`
	ViewEveryTicks   int     `json:"view_every_ticks"`
	ClickResource    string  `json:"click_resource"`
	PrestigeResource string  `json:"prestige_resource"`
	GoalResource     string  `json:"goal_resource"`
	GoalAmount       float64 `json:"goal_amount"`
}

type CatalogDigests struct {
	GeneratorsDigest       string `json:"generators_digest"`
	ResearchDigest         string `json:"research_digest"`
	PrestigeUpgradesDigest string `json:"prestige_upgrades_digest"`
	AbilitiesDigest        string `json:"abilities_digest"`
	EventsDigest           string `json:"events_digest"`
	AchievementsDigest     string `json:"achievements_digest"`
	TuningDigest           string `json:"tuning_digest,omitempty"`
}

// OfflineReport tells a client what accrued while the game was not running.
type OfflineReport struct {
	ElapsedSeconds int                `json:"elapsed_seconds"`
	Capped         bool               `json:"capped,omitempty"`
	Gains          map[string]float64 `json:"gains"`
}

// CATALOG (server -> client): a chunk of catalog data.
// Each catalog is sent as a single part.
type CatalogMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Name            string      `json:"name"`   // e.g. "generators"
	Digest          string      `json:"digest"` // sha256 hex
	Part            int         `json:"part"`
	TotalParts      int         `json:"total_parts"`
	Data            interface{} `json:"data"`
}

// RESULT (server -> client): outcome of one CMD.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ResultFor       string `json:"result_for"`
	Cmd             string `json:"cmd"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`

	// Token carries the export string for EXPORT.
	Token string `json:"token,omitempty"`
	// Amount is the quantity a CLICK, PRESTIGE or instant ABILITY produced.
	Amount float64 `json:"amount,omitempty"`
}

// NOTICE (server -> client): a player-facing notification.
type NoticeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Notice          Notice `json:"notice"`
}

type Notice struct {
	ID       uint64 `json:"id"`
	Kind     string `json:"kind"`
	Text     string `json:"text"`
	AtUnixMs int64  `json:"at_unix_ms"`
}
