package game

import (
	"fmt"
	"math"
	"strings"
	"time"

	"stellarforge.dev/internal/persistence/snapshot"
	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/game/offline"
	"stellarforge.dev/internal/sim/game/progression"
)

// load starts from the slot's stored save, or a fresh game when there is
// none or it fails the integrity check.
func (g *Game) load(now time.Time) {
	g.st = progression.NewState(g.cats, g.rules)
	g.lastSave = now
	defer func() {
		g.refresh(now)
		g.evaluate(now)
	}()

	if g.cfg.Store == nil {
		return
	}
	tok, ok, err := g.cfg.Store.LoadSave(g.cfg.Slot)
	if err != nil {
		g.log.Printf("slot=%s load save: %v", g.cfg.Slot, err)
		return
	}
	if !ok {
		g.log.Printf("slot=%s no save; starting fresh", g.cfg.Slot)
		return
	}
	s, err := g.cfg.Codec.Decode(strings.TrimSpace(tok))
	if err != nil {
		g.log.Printf("slot=%s decode save: %v", g.cfg.Slot, err)
		g.notify(now, "error", "Save data was corrupted; a new game was started.")
		g.milestone(now, Milestone{Kind: "corrupt_save", Text: err.Error()})
		return
	}
	g.restore(s)

	last := time.UnixMilli(s.LastSaveUnixMs)
	lim := offline.Limits{MaxSeconds: g.tune.Offline.MaxSeconds, MinSeconds: g.tune.Offline.MinSeconds}
	rep := offline.Project(g.st.RPS, last, now, lim)
	if rep.ElapsedSeconds > lim.MinSeconds {
		offline.Apply(g.st, rep)
		g.offline = &rep
		var total float64
		for _, v := range rep.Gains {
			total += v
		}
		g.notify(now, "offline", fmt.Sprintf("Welcome back! Your forge produced %s resources in %s.", fmtAmount(total), time.Duration(rep.ElapsedSeconds)*time.Second))
	}
	g.log.Printf("slot=%s resumed save from %s offline=%ds", g.cfg.Slot, last.UTC().Format(time.RFC3339), rep.ElapsedSeconds)
}

// restore replaces the live state with s. Ids unknown to the catalogs and
// out-of-range values are dropped.
func (g *Game) restore(s snapshot.SaveV1) {
	st := progression.NewState(g.cats, g.rules)
	st.Resources = model.NewLedger()
	for k, v := range s.Resources {
		r := model.Resource(k)
		if model.IsKnownResource(r) && v > 0 && !math.IsInf(v, 0) {
			st.Resources[r] = v
		}
	}
	for _, gv := range s.Generators {
		gen := st.Generator(gv.ID)
		if gen == nil {
			continue
		}
		gen.Owned = max(gv.Owned, 0)
		gen.Level = max(gv.Level, 1)
	}
	for _, id := range s.UnlockedGenerators {
		if _, ok := g.cats.Generator(id); ok {
			st.Unlocked[id] = true
		}
	}
	for _, id := range s.CompletedResearch {
		if _, ok := g.cats.Research.ByID[id]; ok {
			st.CompletedResearch[id] = true
		}
	}
	for _, id := range s.Achievements {
		st.Achievements[id] = true
	}
	st.PrestigePoints = max(s.PrestigePoints, 0)
	for id, lvl := range s.PrestigeLevels {
		def, ok := g.cats.Prestige.ByID[id]
		if !ok || lvl <= 0 {
			continue
		}
		if def.MaxLevel > 0 && lvl > def.MaxLevel {
			lvl = def.MaxLevel
		}
		st.PrestigeLevels[id] = lvl
	}
	for k, v := range s.Stats {
		st.Stats[k] = v
	}
	for k, v := range s.RPS {
		if r := model.Resource(k); model.IsKnownResource(r) {
			st.RPS[r] = v
		}
	}
	for id, ms := range s.Cooldowns {
		if _, ok := g.cats.Abilities.ByID[id]; ok {
			st.Cooldowns[id] = time.UnixMilli(ms)
		}
	}
	progression.SetVolume(st, model.Volume{Master: s.Volume.Master, Music: s.Volume.Music, SFX: s.Volume.SFX})
	st.VictoryAcknowledged = s.VictoryAcknowledged

	g.st = st
	g.victoryAnnounced = false
}

// saveOf converts the live state. Slices are sorted so equal states encode
// to equal tokens.
func (g *Game) saveOf(now time.Time) snapshot.SaveV1 {
	st := g.st
	s := snapshot.SaveV1{
		Version:             snapshot.Version,
		Resources:           make(map[string]float64, len(st.Resources)),
		Generators:          make([]snapshot.GeneratorV1, 0, len(st.Generators)),
		UnlockedGenerators:  catalogs.SortedIDs(model.CloneSet(st.Unlocked)),
		CompletedResearch:   catalogs.SortedIDs(model.CloneSet(st.CompletedResearch)),
		Achievements:        catalogs.SortedIDs(model.CloneSet(st.Achievements)),
		PrestigePoints:      st.PrestigePoints,
		PrestigeLevels:      make(map[string]int, len(st.PrestigeLevels)),
		Stats:               make(map[string]float64, len(st.Stats)),
		RPS:                 make(map[string]float64, len(st.RPS)),
		Cooldowns:           map[string]int64{},
		Volume:              snapshot.VolumeV1{Master: st.Volume.Master, Music: st.Volume.Music, SFX: st.Volume.SFX},
		VictoryAcknowledged: st.VictoryAcknowledged,
		LastSaveUnixMs:      now.UnixMilli(),
	}
	for r, v := range st.Resources {
		s.Resources[string(r)] = v
	}
	for _, gen := range st.Generators {
		s.Generators = append(s.Generators, snapshot.GeneratorV1{ID: gen.ID, Owned: gen.Owned, Level: gen.Level})
	}
	for id, lvl := range st.PrestigeLevels {
		if lvl > 0 {
			s.PrestigeLevels[id] = lvl
		}
	}
	for k, v := range st.Stats {
		s.Stats[k] = v
	}
	for r, v := range st.RPS {
		s.RPS[string(r)] = v
	}
	for id, until := range st.Cooldowns {
		if now.Before(until) {
			s.Cooldowns[id] = until.UnixMilli()
		}
	}
	return s
}

// Snapshot returns the save form of the current state.
func (g *Game) Snapshot() snapshot.SaveV1 { return g.saveOf(g.clock.Now()) }

// OfflineReport is what the last load projected, or nil.
func (g *Game) OfflineReport() *offline.Report { return g.offline }

// Save writes an autosave to the store. Without a store it does nothing.
func (g *Game) Save() error {
	if g.cfg.Store == nil {
		return nil
	}
	now := g.clock.Now()
	tok, err := g.cfg.Codec.EncodeWith(g.saveOf(now), g.cfg.AutosaveCompression)
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	if err := g.cfg.Store.PutSave(g.cfg.Slot, tok, now); err != nil {
		return fmt.Errorf("store save: %w", err)
	}
	g.lastSave = now
	return nil
}

// Export encodes the current state with the codec's default compression.
func (g *Game) Export() (string, error) {
	return g.cfg.Codec.Encode(g.saveOf(g.clock.Now()))
}

// Import replaces the game with the save in token and stores it. A token
// that fails to decode leaves the game untouched.
func (g *Game) Import(token string) error {
	now := g.clock.Now()
	s, err := g.cfg.Codec.Decode(strings.TrimSpace(token))
	if err != nil {
		g.notify(now, "error", "Import failed: save data was corrupted.")
		return err
	}
	g.restore(s)
	g.refresh(now)
	g.notify(now, "import", "Save imported.")
	g.milestone(now, Milestone{Kind: "import", Text: "save imported", Value: float64(s.PrestigePoints)})
	return g.Save()
}
