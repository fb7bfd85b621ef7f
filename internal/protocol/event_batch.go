package protocol

// EVENT_BATCH_REQ (client -> server): milestones after a cursor, used by a
// reconnecting client to catch up on what it missed.
type EventBatchReqMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	SinceCursor     uint64 `json:"since_cursor"`
	Limit           int    `json:"limit"`
}

type Milestone struct {
	Tick     uint64  `json:"tick"`
	AtUnixMs int64   `json:"at_unix_ms"`
	Kind     string  `json:"kind"`
	ID       string  `json:"id,omitempty"`
	Text     string  `json:"text"`
	Value    float64 `json:"value,omitempty"`
}

type EventBatchItem struct {
	Cursor uint64    `json:"cursor"`
	Event  Milestone `json:"event"`
}

// EVENT_BATCH (server -> client)
type EventBatchMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	ReqID           string           `json:"req_id"`
	Events          []EventBatchItem `json:"events"`
	NextCursor      uint64           `json:"next_cursor"`
	Slot            string           `json:"slot,omitempty"`
}
