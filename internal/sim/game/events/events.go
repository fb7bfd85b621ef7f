// Package events rolls world events and clickable bonus targets, and
// activates player abilities.
package events

import (
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/tuning"
)

var (
	ErrUnknownAbility = errors.New("unknown ability")
	ErrOnCooldown     = errors.New("ability on cooldown")
	ErrUnaffordable   = errors.New("cannot afford ability")
	ErrNoClickable    = errors.New("no clickable event on screen")
)

type Scheduler struct {
	cfg   tuning.EventTuning
	rng   *rand.Rand
	newID func() string
}

// NewScheduler uses rng for every roll and position; tests seed it.
func NewScheduler(cfg tuning.EventTuning, rng *rand.Rand) *Scheduler {
	return &Scheduler{cfg: cfg, rng: rng, newID: uuid.NewString}
}

func seconds(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func (s *Scheduler) boost(sourceID, name, desc string, tpl catalogs.BoostTemplate, expires time.Time) model.ActiveBoost {
	return model.ActiveBoost{
		ID:          sourceID + "_" + s.newID(),
		SourceID:    sourceID,
		Name:        name,
		Description: desc,
		Target:      tpl.Target,
		Type:        tpl.Type,
		Value:       tpl.Value,
		ExpiresAt:   expires,
	}
}

// WorldEventActive reports whether a boost sourced from a world event is
// still running at now.
func WorldEventActive(st *model.State, cats *catalogs.Catalogs, now time.Time) bool {
	for _, b := range st.Boosts {
		if _, ok := cats.Events.ByID[b.SourceID]; ok && !b.Expired(now) {
			return true
		}
	}
	return false
}

// RollWorldEvent runs one world-event check. It does nothing while another
// world event is active.
func (s *Scheduler) RollWorldEvent(st *model.State, cats *catalogs.Catalogs, now time.Time) (model.ActiveBoost, bool) {
	if len(cats.Events.Random) == 0 || WorldEventActive(st, cats, now) {
		return model.ActiveBoost{}, false
	}
	if s.rng.Float64() >= s.cfg.WorldEventChance {
		return model.ActiveBoost{}, false
	}
	def := cats.Events.Random[s.rng.Intn(len(cats.Events.Random))]
	b := s.boost(def.ID, def.Name, def.Description, def.Boost, now.Add(seconds(def.DurationSeconds)))
	st.Boosts = append(st.Boosts, b)
	return b, true
}

func ownsTagged(st *model.State, cats *catalogs.Catalogs, tag string) bool {
	for _, g := range st.Generators {
		if g.Owned <= 0 {
			continue
		}
		if def, ok := cats.Generator(g.ID); ok && def.HasTag(tag) {
			return true
		}
	}
	return false
}

// RollClickable runs one clickable-target check. It needs an owned generator
// carrying the trigger tag and an empty screen.
func (s *Scheduler) RollClickable(st *model.State, cats *catalogs.Catalogs, now time.Time) (*model.ClickableEvent, bool) {
	if st.Clickable != nil || len(cats.Events.Clickable) == 0 {
		return nil, false
	}
	if !ownsTagged(st, cats, s.cfg.ClickableTriggerTag) {
		return nil, false
	}
	if s.rng.Float64() >= s.cfg.ClickableChance {
		return nil, false
	}
	def := cats.Events.Clickable[s.rng.Intn(len(cats.Events.Clickable))]
	ev := &model.ClickableEvent{
		InstanceID: s.newID(),
		EventID:    def.ID,
		X:          between(s.rng, s.cfg.ClickableX),
		Y:          between(s.rng, s.cfg.ClickableY),
		ExpiresAt:  now.Add(seconds(def.LifespanSeconds)),
	}
	st.Clickable = ev
	return ev, true
}

func between(rng *rand.Rand, r [2]float64) float64 {
	return r[0] + rng.Float64()*(r[1]-r[0])
}

// ExpireClickable removes an unclicked target whose lifespan has elapsed.
func ExpireClickable(st *model.State, now time.Time) bool {
	if st.Clickable == nil || now.Before(st.Clickable.ExpiresAt) {
		return false
	}
	st.Clickable = nil
	return true
}

// ClaimClickable converts the on-screen target into a click boost.
func (s *Scheduler) ClaimClickable(st *model.State, cats *catalogs.Catalogs, instanceID string, now time.Time) (model.ActiveBoost, error) {
	ev := st.Clickable
	if ev == nil || (instanceID != "" && ev.InstanceID != instanceID) {
		return model.ActiveBoost{}, ErrNoClickable
	}
	st.Clickable = nil
	if !now.Before(ev.ExpiresAt) {
		return model.ActiveBoost{}, ErrNoClickable
	}
	for _, def := range cats.Events.Clickable {
		if def.ID != ev.EventID {
			continue
		}
		tpl := def.Boost
		tpl.Target = model.TargetClick
		tpl.Type = model.BoostClick
		b := s.boost(def.ID, def.Name, def.Description, tpl, now.Add(seconds(def.DurationSeconds)))
		st.Boosts = append(st.Boosts, b)
		return b, nil
	}
	return model.ActiveBoost{}, ErrNoClickable
}

// Activation is what an ability did.
type Activation struct {
	Ability catalogs.AbilityDef
	Boost   *model.ActiveBoost
	Granted model.Ledger
}

// CooldownRemaining is zero when the ability is ready.
func CooldownRemaining(st *model.State, id string, now time.Time) time.Duration {
	until, ok := st.Cooldowns[id]
	if !ok || !now.Before(until) {
		return 0
	}
	return until.Sub(now)
}

// ActivateAbility checks the cooldown, then affordability, then debits the
// cost, starts the cooldown and applies the effect. Rate-based grants use
// st.RPS as published by the previous tick.
func (s *Scheduler) ActivateAbility(st *model.State, cats *catalogs.Catalogs, id string, now time.Time) (Activation, error) {
	def, ok := cats.Abilities.ByID[id]
	if !ok {
		return Activation{}, ErrUnknownAbility
	}
	if CooldownRemaining(st, id, now) > 0 {
		return Activation{}, ErrOnCooldown
	}
	if !st.Resources.Covers(def.Cost) {
		return Activation{}, ErrUnaffordable
	}

	st.Resources.Debit(def.Cost)
	if st.Cooldowns == nil {
		st.Cooldowns = map[string]time.Time{}
	}
	st.Cooldowns[id] = now.Add(seconds(def.CooldownSeconds))

	act := Activation{Ability: def}
	switch def.Type {
	case catalogs.AbilityInstantGain:
		grant := model.Ledger{}
		for r, v := range def.Gain {
			if v > 0 {
				grant[r] += v
			}
		}
		for r, secs := range def.GainSeconds {
			if rate := st.RPS[r]; rate > 0 && secs > 0 {
				grant[r] += rate * secs
			}
		}
		st.Resources.Credit(grant)
		act.Granted = grant
	case catalogs.AbilityTimedBoost:
		if def.Boost != nil {
			b := s.boost(def.ID, def.Name, def.Description, *def.Boost, now.Add(seconds(def.DurationSeconds)))
			st.Boosts = append(st.Boosts, b)
			act.Boost = &b
		}
	}
	return act, nil
}
