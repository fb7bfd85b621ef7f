// Command bot is a scripted player: it connects over the websocket API,
// clicks, buys the cheapest affordable generator and spends what it earns.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"

	"github.com/gorilla/websocket"

	"stellarforge.dev/internal/protocol"
)

func main() {
	var (
		url           = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name          = flag.String("name", "bot", "client name")
		prestigeAt    = flag.Int("prestige_at", 5, "prestige once this many points are pending (0 never)")
		clicksPerView = flag.Int("clicks", 1, "CLICK commands sent per STATE")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		Capabilities: protocol.HelloCapabilities{
			MaxQueue: 8,
		},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	p := planner{prestigeAt: *prestigeAt, clicks: *clicksPerView}
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s slot=%s tick_rate=%d", w.SessionID, w.Slot, w.GameParams.TickRateHz)
			if w.Offline != nil {
				logger.Printf("offline for %ds", w.Offline.ElapsedSeconds)
			}

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			for _, c := range p.plan(&st) {
				if err := conn.WriteJSON(c); err != nil {
					return
				}
			}

		case protocol.TypeNotice:
			var n protocol.NoticeMsg
			if err := json.Unmarshal(msg, &n); err == nil {
				logger.Printf("NOTICE %s: %s", n.Notice.Kind, n.Notice.Text)
			}

		case protocol.TypeResult:
			var r protocol.ResultMsg
			if err := json.Unmarshal(msg, &r); err == nil && !r.OK && r.Code != protocol.ErrNoResource {
				logger.Printf("%s %s rejected: %s %s", r.Cmd, r.ResultFor, r.Code, r.Message)
			}
		}
	}
}

type planner struct {
	prestigeAt int
	clicks     int
	seq        uint64
}

func (p *planner) cmd(name, target string) protocol.CmdMsg {
	p.seq++
	return protocol.CmdMsg{
		Type:            protocol.TypeCmd,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("B%d", p.seq),
		Cmd:             name,
		Target:          target,
	}
}

// plan picks the commands to send in response to one STATE.
func (p *planner) plan(st *protocol.StateMsg) []protocol.CmdMsg {
	var out []protocol.CmdMsg
	if st.Victory {
		out = append(out, p.cmd(protocol.CmdAckVictory, ""))
	}
	if st.Clickable != nil && st.Clickable.EndsInMs > 0 {
		out = append(out, p.cmd(protocol.CmdClaimEvent, st.Clickable.InstanceID))
	}
	if p.prestigeAt > 0 && st.PendingPrestige >= p.prestigeAt {
		return append(out, p.cmd(protocol.CmdPrestige, ""))
	}
	for i := 0; i < p.clicks; i++ {
		out = append(out, p.cmd(protocol.CmdClick, ""))
	}
	for _, r := range st.Research {
		if r.Available && r.Affordable {
			out = append(out, p.cmd(protocol.CmdResearch, r.ID))
			break
		}
	}
	if id := cheapestAffordable(st.Generators); id != "" {
		out = append(out, p.cmd(protocol.CmdBuy, id))
	}
	for _, a := range st.Abilities {
		if a.ReadyInMs == 0 && a.Affordable {
			out = append(out, p.cmd(protocol.CmdAbility, a.ID))
		}
	}
	return out
}

// cheapestAffordable returns the unlocked, affordable generator with the
// lowest summed cost, or "".
func cheapestAffordable(gens []protocol.GeneratorObs) string {
	type cand struct {
		id    string
		total float64
	}
	var cs []cand
	for _, g := range gens {
		if !g.Unlocked || !g.Affordable {
			continue
		}
		var total float64
		for _, v := range g.Cost {
			total += v
		}
		cs = append(cs, cand{g.ID, total})
	}
	if len(cs) == 0 {
		return ""
	}
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].total < cs[j].total })
	return cs[0].id
}
