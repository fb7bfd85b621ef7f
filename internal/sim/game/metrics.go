package game

import "time"

// Metrics is a copy of loop counters that other goroutines may read.
type Metrics struct {
	Slot    string `json:"slot"`
	Tick    uint64 `json:"tick"`
	Clients int    `json:"clients"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Resources       map[string]float64 `json:"resources"`
	RPS             map[string]float64 `json:"rps"`
	Generators      int                `json:"generators_owned"`
	PrestigePoints  int                `json:"prestige_points"`
	ActiveBoosts    int                `json:"active_boosts"`
	MilestoneCursor uint64             `json:"milestone_cursor"`
	LastSaveUnixMs  int64              `json:"last_save_unix_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

// Metrics returns the values recorded at the end of the last tick.
func (g *Game) Metrics() Metrics {
	v := g.metrics.Load()
	if v == nil {
		return Metrics{Slot: g.cfg.Slot}
	}
	m := v.(Metrics)
	m.QueueDepths = QueueDepths{Inbox: len(g.inbox), Join: len(g.join), Leave: len(g.leave)}
	return m
}

func (g *Game) recordMetrics(now time.Time, stepTime time.Duration) {
	owned := 0
	for _, gen := range g.st.Generators {
		owned += gen.Owned
	}
	active := 0
	for _, b := range g.st.Boosts {
		if !b.Expired(now) {
			active++
		}
	}
	g.metrics.Store(Metrics{
		Slot:            g.cfg.Slot,
		Tick:            g.tick,
		Clients:         len(g.clients),
		StepMS:          float64(stepTime.Microseconds()) / 1000,
		Resources:       ledgerMap(g.st.Resources),
		RPS:             ledgerMap(g.st.RPS),
		Generators:      owned,
		PrestigePoints:  g.st.PrestigePoints,
		ActiveBoosts:    active,
		MilestoneCursor: g.cursor,
		LastSaveUnixMs:  g.lastSave.UnixMilli(),
	})
}
