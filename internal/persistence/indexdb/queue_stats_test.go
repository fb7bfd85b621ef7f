package indexdb

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game"
	"stellarforge.dev/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqMilestone, milestone: game.Milestone{Cursor: 1}}

	s.RecordMilestone(game.Milestone{Cursor: 2})
	s.RecordRun(RunRow{Slot: "a", Run: 1, Path: "/tmp/run-000001"})
	s.RecordRun(RunRow{Slot: "a", Run: 0, Path: "/tmp/ignored"})

	st := s.Stats()
	if st.DropMilestoneTotal != 1 {
		t.Fatalf("DropMilestoneTotal=%d want=1", st.DropMilestoneTotal)
	}
	if st.DropRunTotal != 1 {
		t.Fatalf("DropRunTotal=%d want=1", st.DropRunTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestD1Index_RetainsBatchOnFlushFailure(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts int
		got      []d1Event
		tokens   []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		tokens = append(tokens, r.Header.Get("x-sf-index-token"))
		if attempts <= 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		var body struct {
			Events []d1Event `json:"events"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		got = append(got, body.Events...)
	}))
	defer srv.Close()

	idx, err := OpenD1(D1Config{
		Endpoint:      srv.URL,
		Token:         "tok",
		Slot:          "slot_1",
		BatchSize:     1,
		FlushInterval: 20 * time.Millisecond,
		HTTPTimeout:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("OpenD1: %v", err)
	}
	idx.RecordMilestone(game.Milestone{Cursor: 1, Slot: "slot_1", Tick: 123, Kind: "unlock", ID: "drone_bay"})

	delivered := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0
	}
	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline) && !delivered(); {
		time.Sleep(20 * time.Millisecond)
	}
	_ = idx.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Kind != "milestone" || got[0].Slot != "slot_1" {
		t.Fatalf("delivered=%+v after %d attempts", got, attempts)
	}
	for _, tok := range tokens {
		if tok != "tok" {
			t.Fatalf("ingest token header=%q", tok)
		}
	}
	st := idx.Stats()
	if st.FlushFailTotal < 3 || st.SentTotal != 1 || st.QueueDroppedTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestD1Index_RejectsIncompleteConfig(t *testing.T) {
	if _, err := OpenD1(D1Config{Slot: "a"}); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	if _, err := OpenD1(D1Config{Endpoint: "http://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected error for empty slot")
	}
}

func TestD1Index_GzipsLargeBatches(t *testing.T) {
	var (
		mu    sync.Mutex
		names []string
		enc   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body io.Reader = r.Body
		if r.Header.Get("content-encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defer zr.Close()
			body = zr
		}
		var req struct {
			Events []struct {
				Kind    string           `json:"kind"`
				Payload d1CatalogPayload `json:"payload"`
			} `json:"events"`
		}
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		enc = r.Header.Get("content-encoding")
		for _, ev := range req.Events {
			names = append(names, ev.Payload.Name)
		}
		mu.Unlock()
	}))
	defer srv.Close()

	idx, err := OpenD1(D1Config{Endpoint: srv.URL, Slot: "main", Gzip: true, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("OpenD1: %v", err)
	}
	cats, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", cats, tuning.Defaults()); err != nil {
		t.Fatalf("UpsertCatalogs: %v", err)
	}
	_ = idx.Close()

	mu.Lock()
	defer mu.Unlock()
	if enc != "gzip" {
		t.Fatalf("content-encoding=%q", enc)
	}
	if len(names) != 7 || names[len(names)-1] != "tuning" {
		t.Fatalf("catalog events=%v", names)
	}
}
