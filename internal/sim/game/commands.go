package game

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"stellarforge.dev/internal/persistence/snapshot"
	"stellarforge.dev/internal/protocol"
	"stellarforge.dev/internal/sim/game/events"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/game/progression"
)

var (
	ErrUnknownCmd = errors.New("unknown command")
	ErrBadArgs    = errors.New("missing or invalid arguments")
)

// Exec applies one player command. A failed command leaves the state as it
// was. It must only be called from the goroutine running Run, or from tests
// that do not run the loop.
func (g *Game) Exec(cmd protocol.CmdMsg) protocol.ResultMsg {
	now := g.clock.Now()
	g.refresh(now)

	res := protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ResultFor:       cmd.ID,
		Cmd:             cmd.Cmd,
		ServerTick:      g.tick,
	}
	out, err := g.apply(cmd, now)
	if err != nil {
		res.Code = codeFor(err)
		res.Message = err.Error()
		return res
	}
	res.OK = true
	res.Amount = out.amount
	res.Token = out.token

	g.refresh(now)
	g.evaluate(now)
	return res
}

type cmdOutput struct {
	amount float64
	token  string
}

func (g *Game) apply(cmd protocol.CmdMsg, now time.Time) (cmdOutput, error) {
	target := strings.TrimSpace(cmd.Target)
	switch cmd.Cmd {
	case protocol.CmdClick:
		return cmdOutput{amount: progression.Click(g.st, g.set, g.rules)}, nil

	case protocol.CmdBuy:
		return cmdOutput{}, progression.Purchase(g.st, g.cats, target, g.set.CostReduction)

	case protocol.CmdLevelUp:
		return cmdOutput{}, progression.LevelUp(g.st, g.cats, target)

	case protocol.CmdResearch:
		if err := progression.PurchaseResearch(g.st, g.cats, target); err != nil {
			return cmdOutput{}, err
		}
		name := g.cats.Research.ByID[target].Name
		g.milestone(now, Milestone{Kind: "research", ID: target, Text: name})
		return cmdOutput{}, nil

	case protocol.CmdPrestigeUpgrade:
		if err := progression.PurchasePrestigeUpgrade(g.st, g.cats, target); err != nil {
			return cmdOutput{}, err
		}
		g.milestone(now, Milestone{Kind: "prestige_upgrade", ID: target, Text: g.cats.Prestige.ByID[target].Name, Value: float64(g.st.PrestigeLevels[target])})
		return cmdOutput{}, nil

	case protocol.CmdPrestige:
		banked, err := g.prestige(now)
		return cmdOutput{amount: float64(banked)}, err

	case protocol.CmdAbility:
		act, err := g.sched.ActivateAbility(g.st, g.cats, target, now)
		if err != nil {
			return cmdOutput{}, err
		}
		var granted float64
		for _, v := range act.Granted {
			granted += v
		}
		g.notify(now, "ability", act.Ability.Name+" activated")
		g.milestone(now, Milestone{Kind: "ability", ID: act.Ability.ID, Text: act.Ability.Name, Value: granted})
		return cmdOutput{amount: granted}, nil

	case protocol.CmdClaimEvent:
		b, err := g.sched.ClaimClickable(g.st, g.cats, target, now)
		if err != nil {
			return cmdOutput{}, err
		}
		g.notify(now, "clickable", fmt.Sprintf("%s! Clicks x%g", b.Name, b.Value))
		g.milestone(now, Milestone{Kind: "clickable", ID: b.SourceID, Text: b.Name, Value: b.Value})
		return cmdOutput{}, nil

	case protocol.CmdAckVictory:
		progression.AcknowledgeVictory(g.st)
		return cmdOutput{}, nil

	case protocol.CmdSetVolume:
		if cmd.Volume == nil {
			return cmdOutput{}, ErrBadArgs
		}
		progression.SetVolume(g.st, model.Volume{Master: cmd.Volume.Master, Music: cmd.Volume.Music, SFX: cmd.Volume.SFX})
		return cmdOutput{}, nil

	case protocol.CmdExport:
		tok, err := g.Export()
		return cmdOutput{token: tok}, err

	case protocol.CmdImport:
		if strings.TrimSpace(cmd.Token) == "" {
			return cmdOutput{}, ErrBadArgs
		}
		return cmdOutput{}, g.Import(cmd.Token)

	case protocol.CmdSave:
		return cmdOutput{}, g.Save()
	}
	return cmdOutput{}, ErrUnknownCmd
}

func (g *Game) prestige(now time.Time) (int, error) {
	ended := g.saveOf(now)
	run := int(g.st.Stats[model.StatTotalPrestiges]) + 1
	banked, err := progression.Prestige(g.st, g.cats, g.rules)
	if err != nil {
		return 0, err
	}
	g.victoryAnnounced = false
	if g.cfg.Archive != nil {
		if path, err := g.cfg.Archive(run, banked, ended, now); err != nil {
			g.log.Printf("slot=%s archive run %d: %v", g.cfg.Slot, run, err)
		} else {
			g.log.Printf("slot=%s archived run %d to %s", g.cfg.Slot, run, path)
		}
	}
	g.notify(now, "prestige", fmt.Sprintf("Prestige! Banked %d points", banked))
	g.milestone(now, Milestone{Kind: "prestige", ID: fmt.Sprintf("run_%d", run), Text: "prestige reset", Value: float64(banked)})
	g.saveLogged("prestige save")
	return banked, nil
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, progression.ErrUnaffordable),
		errors.Is(err, events.ErrUnaffordable),
		errors.Is(err, progression.ErrNothingToPrestige):
		return protocol.ErrNoResource
	case errors.Is(err, progression.ErrUnknown),
		errors.Is(err, events.ErrUnknownAbility),
		errors.Is(err, events.ErrNoClickable):
		return protocol.ErrInvalidTarget
	case errors.Is(err, progression.ErrLocked),
		errors.Is(err, progression.ErrNotOwned),
		errors.Is(err, progression.ErrPrerequisites):
		return protocol.ErrBlocked
	case errors.Is(err, progression.ErrMaxLevel),
		errors.Is(err, progression.ErrAlreadyResearched):
		return protocol.ErrConflict
	case errors.Is(err, events.ErrOnCooldown):
		return protocol.ErrCooldown
	case errors.Is(err, snapshot.ErrIntegrity):
		return protocol.ErrIntegrity
	case errors.Is(err, ErrUnknownCmd), errors.Is(err, ErrBadArgs):
		return protocol.ErrBadRequest
	}
	return protocol.ErrInternal
}
