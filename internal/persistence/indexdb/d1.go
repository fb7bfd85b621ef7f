package indexdb

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game"
	"stellarforge.dev/internal/sim/tuning"
)

// D1Config points at an HTTP ingest worker in front of a Cloudflare D1
// database.
type D1Config struct {
	Endpoint      string
	Token         string
	Slot          string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// Gzip compresses request bodies of at least gzipMinBytes.
	Gzip   bool
	Logger *log.Logger
}

// D1Index ships milestones, archived runs and catalogs to a remote index in
// batches. A batch that fails to send is kept and retried on the next flush.
type D1Index struct {
	cfg    D1Config
	client *http.Client

	events chan d1Event
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

type D1Stats struct {
	QueueDepth        int
	QueueCapacity     int
	SentTotal         uint64
	FlushFailTotal    uint64
	QueueDroppedTotal uint64
}

type d1Event struct {
	Kind    string `json:"kind"`
	Slot    string `json:"slot"`
	Payload any    `json:"payload"`
}

type d1RunPayload struct {
	Run            int    `json:"run"`
	Banked         int    `json:"banked"`
	PrestigePoints int    `json:"prestige_points"`
	Path           string `json:"path"`
	RecordedAt     string `json:"recorded_at"`
}

type d1CatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

const (
	// maxRetained bounds unsent events held while the endpoint is down.
	maxRetained  = 4096
	gzipMinBytes = 4 << 10
)

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Slot = strings.TrimSpace(cfg.Slot)
	switch {
	case cfg.Endpoint == "":
		return nil, fmt.Errorf("d1 index: empty ingest endpoint")
	case cfg.Slot == "":
		return nil, fmt.Errorf("d1 index: empty slot")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	d := &D1Index{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		events: make(chan d1Event, 8192),
		done:   make(chan struct{}),
	}
	go d.run()
	return d, nil
}

// Close stops intake and makes one last delivery attempt.
func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.events)
		<-d.done
	})
	return nil
}

func (d *D1Index) RecordMilestone(m game.Milestone) {
	d.enqueue(d1Event{Kind: "milestone", Slot: d.cfg.Slot, Payload: m})
}

func (d *D1Index) RecordRun(r RunRow) {
	if r.Run <= 0 || strings.TrimSpace(r.Path) == "" {
		return
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	d.enqueue(d1Event{Kind: "run", Slot: d.cfg.Slot, Payload: d1RunPayload{
		Run:            r.Run,
		Banked:         r.Banked,
		PrestigePoints: r.PrestigePoints,
		Path:           r.Path,
		RecordedAt:     r.RecordedAt.UTC().Format(time.RFC3339Nano),
	}})
}

func (d *D1Index) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if d == nil || d.closed.Load() || cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type row struct {
		name   string
		digest string
		data   []byte
	}
	rows := make([]row, 0, 8)
	for _, f := range []struct{ name, digest string }{
		{"generators", cats.Generators.Digest},
		{"research", cats.Research.Digest},
		{"prestige_upgrades", cats.Prestige.Digest},
		{"abilities", cats.Abilities.Digest},
		{"events", cats.Events.Digest},
		{"achievements", cats.Achievements.Digest},
	} {
		if configDir == "" {
			break
		}
		b, err := os.ReadFile(filepath.Join(configDir, f.name+".json"))
		if err != nil {
			continue
		}
		rows = append(rows, row{name: f.name, digest: f.digest, data: b})
	}
	if b, err := json.Marshal(tune); err == nil && len(b) > 0 {
		sum := sha256.Sum256(b)
		rows = append(rows, row{name: "tuning", digest: hex.EncodeToString(sum[:]), data: b})
	}

	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.data) == 0 {
			continue
		}
		d.enqueue(d1Event{Kind: "catalog", Slot: d.cfg.Slot, Payload: d1CatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.data),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (d *D1Index) Stats() D1Stats {
	return D1Stats{
		QueueDepth:        len(d.events),
		QueueCapacity:     cap(d.events),
		SentTotal:         d.sent.Load(),
		FlushFailTotal:    d.failed.Load(),
		QueueDroppedTotal: d.dropped.Load(),
	}
}

func (d *D1Index) enqueue(ev d1Event) {
	if d == nil || d.closed.Load() {
		return
	}
	select {
	case d.events <- ev:
	default:
		d.dropped.Add(1)
		d.printf("d1 index queue full; drop kind=%s", ev.Kind)
	}
}

func (d *D1Index) run() {
	defer close(d.done)
	t := time.NewTicker(d.cfg.FlushInterval)
	defer t.Stop()

	var pending []d1Event
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := d.post(pending); err != nil {
			d.failed.Add(1)
			d.printf("d1 index flush failed events=%d err=%v", len(pending), err)
			if over := len(pending) - maxRetained; over > 0 {
				d.dropped.Add(uint64(over))
				pending = append(pending[:0], pending[over:]...)
			}
			return
		}
		d.sent.Add(uint64(len(pending)))
		pending = pending[:0]
	}

	for {
		select {
		case ev, ok := <-d.events:
			if !ok {
				flush()
				return
			}
			pending = append(pending, ev)
			if len(pending) >= d.cfg.BatchSize {
				flush()
			}
		case <-t.C:
			flush()
		}
	}
}

func (d *D1Index) post(events []d1Event) error {
	body, err := json.Marshal(struct {
		Events []d1Event `json:"events"`
	}{events})
	if err != nil {
		return err
	}
	encoding := ""
	if d.cfg.Gzip && len(body) >= gzipMinBytes {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
		body, encoding = buf.Bytes(), "gzip"
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if encoding != "" {
		req.Header.Set("content-encoding", encoding)
	}
	if d.cfg.Token != "" {
		req.Header.Set("x-sf-index-token", d.cfg.Token)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(msg)))
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
