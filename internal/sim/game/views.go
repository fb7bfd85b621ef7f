package game

import (
	"time"

	"stellarforge.dev/internal/protocol"
	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/cost"
	"stellarforge.dev/internal/sim/game/events"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/game/progression"
)

func (g *Game) welcome(sessionID string) protocol.WelcomeMsg {
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ServerCapabilities: protocol.ServerCapabilities{
			EventBatch: true,
			Export:     true,
		},
		SessionID: sessionID,
		Slot:      g.cfg.Slot,
		GameParams: protocol.GameParams{
			TickRateHz:       g.tune.TickRateHz,
			ViewEveryTicks:   g.tune.ViewEveryTicks,
			ClickResource:    g.tune.ClickResource,
			PrestigeResource: g.tune.PrestigeResource,
			GoalResource:     g.tune.GoalResource,
			GoalAmount:       g.tune.GoalAmount,
		},
		Catalogs: protocol.CatalogDigests{
			GeneratorsDigest:       g.cats.Generators.Digest,
			ResearchDigest:         g.cats.Research.Digest,
			PrestigeUpgradesDigest: g.cats.Prestige.Digest,
			AbilitiesDigest:        g.cats.Abilities.Digest,
			EventsDigest:           g.cats.Events.Digest,
			AchievementsDigest:     g.cats.Achievements.Digest,
		},
	}
	if g.offline != nil {
		w.Offline = &protocol.OfflineReport{
			ElapsedSeconds: g.offline.ElapsedSeconds,
			Capped:         g.offline.Capped,
			Gains:          ledgerMap(g.offline.Gains),
		}
	}
	return w
}

func catalogMsg(name, digest string, data any) protocol.CatalogMsg {
	return protocol.CatalogMsg{
		Type:            protocol.TypeCatalog,
		ProtocolVersion: protocol.Version,
		Name:            name,
		Digest:          digest,
		Part:            1,
		TotalParts:      1,
		Data:            data,
	}
}

type eventsCatalogData struct {
	Random    []catalogs.RandomEventDef    `json:"random"`
	Clickable []catalogs.ClickableEventDef `json:"clickable"`
}

func (g *Game) catalogMsgs() []protocol.CatalogMsg {
	c := g.cats
	return []protocol.CatalogMsg{
		catalogMsg("generators", c.Generators.Digest, c.Generators.Defs),
		catalogMsg("research", c.Research.Digest, c.Research.Defs),
		catalogMsg("prestige_upgrades", c.Prestige.Digest, c.Prestige.Defs),
		catalogMsg("abilities", c.Abilities.Digest, c.Abilities.Defs),
		catalogMsg("events", c.Events.Digest, eventsCatalogData{Random: c.Events.Random, Clickable: c.Events.Clickable}),
		catalogMsg("achievements", c.Achievements.Digest, c.Achievements.Defs),
	}
}

// View builds the full STATE message for the current time.
func (g *Game) View() protocol.StateMsg { return g.stateMsg(g.clock.Now()) }

func (g *Game) stateMsg(now time.Time) protocol.StateMsg {
	st := g.st
	pending, _ := progression.CanPrestige(st, g.rules)
	m := protocol.StateMsg{
		Type:             protocol.TypeState,
		ProtocolVersion:  protocol.Version,
		Tick:             g.tick,
		ServerTimeUnixMs: now.UnixMilli(),
		Resources:        ledgerMap(st.Resources),
		RPS:              ledgerMap(st.RPS),
		ClickValue:       g.set.Click,
		Achievements:     achievementIDs(g, st),
		Notifications:    g.Notifications(),
		PrestigePoints:   st.PrestigePoints,
		PrestigeBonus:    g.prestigeMult(),
		PendingPrestige:  pending,
		Stats:            map[string]float64(st.Stats.Clone()),
		Volume:           protocol.VolumeObs{Master: st.Volume.Master, Music: st.Volume.Music, SFX: st.Volume.SFX},
		Victory:          progression.VictoryPending(st, g.rules),
	}

	for _, def := range g.cats.Generators.Defs {
		gen := st.Generator(def.ID)
		if gen == nil {
			continue
		}
		obs := protocol.GeneratorObs{
			ID:          def.ID,
			Owned:       gen.Owned,
			Level:       gen.Level,
			Unlocked:    st.Unlocked[def.ID],
			Cost:        ledgerMap(gen.Cost),
			LevelUpCost: ledgerMap(cost.LevelUp(def, gen.Level)),
			Affordable:  st.Resources.Covers(gen.Cost),
		}
		if p, ok := g.tbl.Production[def.ID]; ok {
			obs.Production = ledgerMap(p)
		}
		if c, ok := g.tbl.Consumption[def.ID]; ok {
			obs.Consumption = ledgerMap(c)
		}
		m.Generators = append(m.Generators, obs)
	}

	for _, def := range g.cats.Research.Defs {
		done := st.CompletedResearch[def.ID]
		avail := !done
		for _, p := range def.Prerequisites {
			if !st.CompletedResearch[p] {
				avail = false
				break
			}
		}
		m.Research = append(m.Research, protocol.ResearchObs{
			ID:         def.ID,
			Completed:  done,
			Available:  avail,
			Affordable: st.Resources[def.Cost.Resource] >= def.Cost.Amount,
		})
	}

	for _, def := range g.cats.Prestige.Defs {
		lvl := st.PrestigeLevels[def.ID]
		m.PrestigeUpgrades = append(m.PrestigeUpgrades, protocol.PrestigeUpgradeObs{
			ID:       def.ID,
			Level:    lvl,
			MaxLevel: def.MaxLevel,
			NextCost: def.CostAt(lvl),
		})
	}

	for _, def := range g.cats.Abilities.Defs {
		m.Abilities = append(m.Abilities, protocol.AbilityObs{
			ID:         def.ID,
			ReadyInMs:  events.CooldownRemaining(st, def.ID, now).Milliseconds(),
			Affordable: st.Resources.Covers(def.Cost),
		})
	}

	for _, b := range st.Boosts {
		if b.Expired(now) {
			continue
		}
		m.Boosts = append(m.Boosts, protocol.BoostObs{
			ID:       b.ID,
			SourceID: b.SourceID,
			Name:     b.Name,
			Target:   b.Target,
			Kind:     string(b.Type),
			Value:    b.Value,
			EndsInMs: b.ExpiresAt.Sub(now).Milliseconds(),
		})
	}

	if ev := st.Clickable; ev != nil && now.Before(ev.ExpiresAt) {
		m.Clickable = &protocol.ClickableObs{
			InstanceID: ev.InstanceID,
			EventID:    ev.EventID,
			X:          ev.X,
			Y:          ev.Y,
			EndsInMs:   ev.ExpiresAt.Sub(now).Milliseconds(),
		}
	}
	return m
}

// achievementIDs lists earned achievements in catalog order.
func achievementIDs(g *Game, st *model.State) []string {
	var out []string
	for _, a := range g.cats.Achievements.Defs {
		if st.Achievements[a.ID] {
			out = append(out, a.ID)
		}
	}
	return out
}

func ledgerMap(l model.Ledger) map[string]float64 {
	out := make(map[string]float64, len(l))
	for r, v := range l {
		out[string(r)] = v
	}
	return out
}
