package game

import (
	"time"

	"stellarforge.dev/internal/protocol"
	"stellarforge.dev/internal/sim/game/bonus"
	"stellarforge.dev/internal/sim/game/cost"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/game/progression"
	"stellarforge.dev/internal/sim/game/rates"
	"stellarforge.dev/internal/sim/game/unlocks"
)

// Milestone is a durable record of something notable that happened in a
// save. Cursors increase by one per milestone for the life of the process.
type Milestone struct {
	Cursor uint64    `json:"cursor"`
	Slot   string    `json:"slot"`
	Tick   uint64    `json:"tick"`
	At     time.Time `json:"at"`
	Kind   string    `json:"kind"`
	ID     string    `json:"id,omitempty"`
	Text   string    `json:"text"`
	Value  float64   `json:"value,omitempty"`
}

const milestoneRingCap = 512

func (g *Game) notify(now time.Time, kind, text string) {
	g.noticeSeq++
	n := protocol.Notice{ID: g.noticeSeq, Kind: kind, Text: text, AtUnixMs: now.UnixMilli()}
	g.notices = append(g.notices, n)
	limit := g.tune.NotificationLimit
	if limit <= 0 {
		limit = 3
	}
	if over := len(g.notices) - limit; over > 0 {
		g.notices = append(g.notices[:0], g.notices[over:]...)
	}
	g.broadcast(protocol.NoticeMsg{Type: protocol.TypeNotice, ProtocolVersion: protocol.Version, Notice: n})
}

// Notifications returns the most recent notifications, oldest first.
func (g *Game) Notifications() []protocol.Notice {
	return append([]protocol.Notice(nil), g.notices...)
}

func (g *Game) milestone(now time.Time, m Milestone) {
	g.cursor++
	m.Cursor = g.cursor
	m.Slot = g.cfg.Slot
	m.Tick = g.tick
	m.At = now
	g.milestones = append(g.milestones, m)
	if over := len(g.milestones) - milestoneRingCap; over > 0 {
		g.milestones = append(g.milestones[:0], g.milestones[over:]...)
	}
	for _, j := range g.cfg.Journals {
		j.RecordMilestone(m)
	}
}

// EventBatch answers a cursor query from the in-memory milestone ring.
func (g *Game) EventBatch(req protocol.EventBatchReqMsg) protocol.EventBatchMsg {
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	out := protocol.EventBatchMsg{
		Type:            protocol.TypeEventBatch,
		ProtocolVersion: protocol.Version,
		ReqID:           req.ReqID,
		NextCursor:      req.SinceCursor,
		Slot:            g.cfg.Slot,
	}
	for _, m := range g.milestones {
		if m.Cursor <= req.SinceCursor {
			continue
		}
		if len(out.Events) >= limit {
			break
		}
		out.Events = append(out.Events, protocol.EventBatchItem{
			Cursor: m.Cursor,
			Event: protocol.Milestone{
				Tick:     m.Tick,
				AtUnixMs: m.At.UnixMilli(),
				Kind:     m.Kind,
				ID:       m.ID,
				Text:     m.Text,
				Value:    m.Value,
			},
		})
		out.NextCursor = m.Cursor
	}
	return out
}

// refresh recomputes the derived bonus set, costs and rates after a
// command. Expired boosts are skipped here but only removed by the tick.
func (g *Game) refresh(now time.Time) {
	live := make([]model.ActiveBoost, 0, len(g.st.Boosts))
	for _, b := range g.st.Boosts {
		if !b.Expired(now) {
			live = append(live, b)
		}
	}
	g.set = bonus.Fold(g.st.CompletedResearch, g.st.PrestigeLevels, live, g.cats)
	cost.Refresh(g.st, g.cats, g.set.CostReduction)
	g.tbl = rates.Compute(g.st, g.cats, g.set, g.prestigeMult())
}

// evaluate reveals generators, awards achievements and announces victory.
func (g *Game) evaluate(now time.Time) {
	for _, id := range unlocks.Reveal(g.st, g.cats) {
		name := id
		if def, ok := g.cats.Generator(id); ok {
			name = def.Name
		}
		g.notify(now, "unlock", "New generator available: "+name)
		g.milestone(now, Milestone{Kind: "unlock", ID: id, Text: name})
	}
	for _, a := range unlocks.Award(g.st, g.cats) {
		g.notify(now, "achievement", "Achievement unlocked: "+a.Name)
		g.milestone(now, Milestone{Kind: "achievement", ID: a.ID, Text: a.Name})
	}
	if progression.VictoryPending(g.st, g.rules) && !g.victoryAnnounced {
		g.victoryAnnounced = true
		g.notify(now, "victory", "The Dyson sphere is complete!")
		g.milestone(now, Milestone{Kind: "victory", Text: "goal reached", Value: g.st.Resources[g.rules.GoalResource]})
	}
}
