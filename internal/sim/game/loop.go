package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stellarforge.dev/internal/sim/game/bonus"
	"stellarforge.dev/internal/sim/game/cost"
	"stellarforge.dev/internal/sim/game/events"
	"stellarforge.dev/internal/sim/game/rates"
	"stellarforge.dev/internal/sim/game/tick"
)

func (g *Game) Run(ctx context.Context) error {
	tickT := time.NewTicker(g.tune.TickInterval())
	defer tickT.Stop()
	worldT := time.NewTicker(g.tune.WorldEventInterval())
	defer worldT.Stop()
	clickT := time.NewTicker(g.tune.ClickableInterval())
	defer clickT.Stop()
	saveT := time.NewTicker(g.tune.AutosaveInterval())
	defer saveT.Stop()

	for {
		select {
		case <-ctx.Done():
			g.saveLogged("shutdown")
			return ctx.Err()
		case <-g.stop:
			g.saveLogged("stop")
			return nil
		case req := <-g.join:
			g.handleJoin(req)
		case id := <-g.leave:
			delete(g.clients, id)
		case env := <-g.inbox:
			g.handleEnvelope(env)
		case <-tickT.C:
			g.StepOnce()
		case <-worldT.C:
			g.RollWorldEvent()
		case <-clickT.C:
			g.RollClickable()
		case <-saveT.C:
			g.saveLogged("autosave")
		}
	}
}

// StepOnce advances the simulation by one tick at the clock's current time.
func (g *Game) StepOnce() {
	g.step(g.clock.Now())
}

func (g *Game) step(now time.Time) {
	start := time.Now()
	g.set = bonus.Aggregate(g.st, g.cats, now)
	cost.Refresh(g.st, g.cats, g.set.CostReduction)
	g.tbl = rates.Compute(g.st, g.cats, g.set, g.prestigeMult())

	rep := tick.Advance(g.st, g.cats, g.set, g.tbl, tick.Params{
		TicksPerSecond: float64(g.tune.TickRateHz),
		ClickResource:  g.rules.ClickResource,
	})
	if len(rep.Replicated) > 0 {
		cost.Refresh(g.st, g.cats, g.set.CostReduction)
		g.tbl = rates.Compute(g.st, g.cats, g.set, g.prestigeMult())
	}
	if events.ExpireClickable(g.st, now) {
		g.log.Printf("slot=%s clickable expired", g.cfg.Slot)
	}
	g.evaluate(now)

	g.tick++
	if every := g.tune.ViewEveryTicks; every <= 1 || g.tick%uint64(every) == 0 {
		g.broadcastState(now)
	}
	g.recordMetrics(now, time.Since(start))
}

// RollWorldEvent runs one world-event roll.
func (g *Game) RollWorldEvent() {
	now := g.clock.Now()
	b, ok := g.sched.RollWorldEvent(g.st, g.cats, now)
	if !ok {
		return
	}
	g.refresh(now)
	g.notify(now, "world_event", b.Name+"! "+b.Description)
	g.milestone(now, Milestone{Kind: "world_event", ID: b.SourceID, Text: b.Name, Value: b.Value})
	g.broadcastState(now)
}

// RollClickable runs one clickable-event roll.
func (g *Game) RollClickable() {
	now := g.clock.Now()
	if _, ok := g.sched.RollClickable(g.st, g.cats, now); ok {
		g.broadcastState(now)
	}
}

func (g *Game) handleJoin(req JoinRequest) {
	id := "S" + uuid.NewString()[:8]
	g.clients[id] = &client{id: id, name: req.Name, out: req.Out}
	g.log.Printf("slot=%s join session=%s name=%s", g.cfg.Slot, id, req.Name)
	resp := JoinResponse{Welcome: g.welcome(id), Catalogs: g.catalogMsgs()}
	if req.Resp != nil {
		req.Resp <- resp
	}
	if req.Out != nil {
		if b, err := json.Marshal(g.stateMsg(g.clock.Now())); err == nil {
			sendLatest(req.Out, b)
		}
	}
}

func (g *Game) handleEnvelope(env Envelope) {
	c := g.clients[env.SessionID]
	switch {
	case env.Cmd != nil:
		res := g.Exec(*env.Cmd)
		if c != nil {
			g.send(c, res)
		}
		if res.OK {
			g.broadcastState(g.clock.Now())
		}
	case env.Batch != nil:
		if c != nil {
			g.send(c, g.EventBatch(*env.Batch))
		}
	}
}

func (g *Game) send(c *client, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		g.log.Printf("slot=%s marshal %T: %v", g.cfg.Slot, v, err)
		return
	}
	sendLatest(c.out, b)
}

func (g *Game) broadcast(v any) {
	if len(g.clients) == 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		g.log.Printf("slot=%s marshal %T: %v", g.cfg.Slot, v, err)
		return
	}
	for _, c := range g.clients {
		sendLatest(c.out, b)
	}
}

func (g *Game) broadcastState(now time.Time) {
	if len(g.clients) == 0 {
		return
	}
	g.broadcast(g.stateMsg(now))
}

func (g *Game) saveLogged(reason string) {
	if err := g.Save(); err != nil {
		g.log.Printf("slot=%s %s: %v", g.cfg.Slot, reason, err)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	if ch == nil {
		return
	}
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func fmtAmount(v float64) string {
	switch {
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	}
	return fmt.Sprintf("%.0f", v)
}
