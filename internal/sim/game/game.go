// Package game owns a running Stellar Forge save: the tick loop, the event
// and autosave timers, player commands, notifications and view publication.
// All state is confined to the goroutine running Run.
package game

import (
	"io"
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"stellarforge.dev/internal/persistence/snapshot"
	"stellarforge.dev/internal/protocol"
	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game/bonus"
	"stellarforge.dev/internal/sim/game/events"
	"stellarforge.dev/internal/sim/game/model"
	"stellarforge.dev/internal/sim/game/offline"
	"stellarforge.dev/internal/sim/game/progression"
	"stellarforge.dev/internal/sim/game/rates"
	"stellarforge.dev/internal/sim/tuning"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// SaveStore persists encoded save tokens by slot.
type SaveStore interface {
	LoadSave(slot string) (token string, ok bool, err error)
	PutSave(slot, token string, savedAt time.Time) error
}

// Journal receives every milestone. Implementations must not block.
type Journal interface {
	RecordMilestone(m Milestone)
}

// RunArchiver stores the save of a run that was just ended by prestige.
type RunArchiver func(run, banked int, save snapshot.SaveV1, now time.Time) (string, error)

type Config struct {
	Slot     string
	Tuning   tuning.Tuning
	Catalogs *catalogs.Catalogs
	Codec    *snapshot.Codec

	// AutosaveCompression is the codec tag used for autosaves; exports use
	// the codec's own default.
	AutosaveCompression snapshot.Compression

	Clock  Clock
	Seed   int64
	Logger *log.Logger

	Store    SaveStore
	Journals []Journal
	Archive  RunArchiver
}

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome  protocol.WelcomeMsg
	Catalogs []protocol.CatalogMsg
}

// Envelope carries one client message into the loop. Exactly one of Cmd
// and Batch is set.
type Envelope struct {
	SessionID string
	Cmd       *protocol.CmdMsg
	Batch     *protocol.EventBatchReqMsg
}

type client struct {
	id   string
	name string
	out  chan []byte
}

type Game struct {
	cfg   Config
	cats  *catalogs.Catalogs
	tune  tuning.Tuning
	rules progression.Rules
	clock Clock
	log   *log.Logger
	sched *events.Scheduler

	st       *model.State
	set      bonus.Set
	tbl      rates.Table
	tick     uint64
	lastSave time.Time
	offline  *offline.Report

	victoryAnnounced bool

	notices   []protocol.Notice
	noticeSeq uint64

	milestones []Milestone
	cursor     uint64

	clients map[string]*client
	metrics atomic.Value

	join  chan JoinRequest
	leave chan string
	inbox chan Envelope
	stop  chan struct{}
}

func New(cfg Config) (*Game, error) {
	if cfg.Slot == "" {
		cfg.Slot = "default"
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Codec == nil {
		cfg.Codec = snapshot.NewCodec("", snapshot.CompressZstd)
	}
	if cfg.AutosaveCompression == 0 {
		cfg.AutosaveCompression = snapshot.CompressLZ4
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}

	g := &Game{
		cfg:     cfg,
		cats:    cfg.Catalogs,
		tune:    cfg.Tuning,
		rules:   progression.RulesFrom(cfg.Tuning),
		clock:   cfg.Clock,
		log:     cfg.Logger,
		sched:   events.NewScheduler(cfg.Tuning.Events, rand.New(rand.NewSource(cfg.Seed))),
		clients: map[string]*client{},
		join:    make(chan JoinRequest, 16),
		leave:   make(chan string, 16),
		inbox:   make(chan Envelope, 256),
		stop:    make(chan struct{}),
	}
	now := g.clock.Now()
	g.load(now)
	g.recordMetrics(now, 0)
	return g, nil
}

func (g *Game) Join() chan<- JoinRequest { return g.join }
func (g *Game) Leave() chan<- string     { return g.leave }
func (g *Game) Inbox() chan<- Envelope   { return g.inbox }

// Stop ends Run after a final save. It must be called at most once.
func (g *Game) Stop() { close(g.stop) }

func (g *Game) Slot() string        { return g.cfg.Slot }
func (g *Game) CurrentTick() uint64 { return g.tick }

func (g *Game) prestigeMult() float64 {
	return rates.PrestigeMultiplier(g.st.PrestigePoints, g.tune.PrestigeBonusPerPoint)
}
