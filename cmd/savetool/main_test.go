package main

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stellarforge.dev/internal/persistence/archive"
	"stellarforge.dev/internal/persistence/indexdb"
	persistlog "stellarforge.dev/internal/persistence/log"
	"stellarforge.dev/internal/persistence/snapshot"
	"stellarforge.dev/internal/sim/game"
)

func sampleSave() snapshot.SaveV1 {
	return snapshot.SaveV1{
		Version:           snapshot.Version,
		Resources:         map[string]float64{"ore": 42},
		Generators:        []snapshot.GeneratorV1{{ID: "auto_miner", Owned: 3, Level: 1}},
		CompletedResearch: []string{"better_drills"},
		PrestigePoints:    2,
		LastSaveUnixMs:    1_700_000_000_000,
	}
}

func TestVerifyAndReencode(t *testing.T) {
	in := snapshot.NewCodec("old", snapshot.CompressLZ4)
	tok, err := in.Encode(sampleSave())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	sum, err := verifyToken(in, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(sum, "generators_owned=3") || !strings.Contains(sum, "prestige_points=2") {
		t.Fatalf("summary=%q", sum)
	}

	out := snapshot.NewCodec("new", snapshot.CompressZstd)
	re, err := reencode(in, out, tok, snapshot.CompressZstd)
	if err != nil {
		t.Fatalf("reencode: %v", err)
	}
	if _, err := verifyToken(in, re); !errors.Is(err, snapshot.ErrIntegrity) {
		t.Fatalf("old key should reject the re-keyed token, got %v", err)
	}
	s, err := out.Decode(re)
	if err != nil {
		t.Fatalf("decode re-encoded: %v", err)
	}
	if s.Resources["ore"] != 42 || s.Generators[0].Owned != 3 {
		t.Fatalf("round trip lost data: %+v", s)
	}
}

func TestLoadSlotToken(t *testing.T) {
	dataDir := t.TempDir()
	idx, err := indexdb.OpenSQLite(slotDBPath(dataDir, "main"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.PutSave("main", "tok-main", time.Now()); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = idx.Close()

	tok, err := loadSlotToken(dataDir, "main")
	if err != nil || tok != "tok-main" {
		t.Fatalf("tok=%q err=%v", tok, err)
	}
	if _, err := loadSlotToken(dataDir, "other"); err == nil {
		t.Fatalf("expected error for a slot with no database")
	}
}

func TestReadJournalAcrossSegments(t *testing.T) {
	dataDir := t.TempDir()
	l := persistlog.NewMilestoneLogger(dataDir, "main", nil)
	at := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	l.RecordMilestone(game.Milestone{Cursor: 1, At: at, Kind: "unlock", ID: "drone_bay"})
	l.RecordMilestone(game.Milestone{Cursor: 2, At: at.Add(time.Hour), Kind: "achievement", ID: "first_click"})
	l.RecordMilestone(game.Milestone{Cursor: 3, At: at.Add(2 * time.Hour), Kind: "unlock", ID: "fusion_core"})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	all, err := readJournal(dataDir, "main", "")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 3 || all[0].Cursor != 1 || all[2].Cursor != 3 {
		t.Fatalf("all=%+v", all)
	}
	unlocks, err := readJournal(dataDir, "main", "unlock")
	if err != nil || len(unlocks) != 2 {
		t.Fatalf("unlocks=%+v err=%v", unlocks, err)
	}
}

func TestListRunsSortsByRun(t *testing.T) {
	dataDir := t.TempDir()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, run := range []int{10, 2, 1} {
		if _, err := archive.ArchiveRun(dataDir, "main", run, run, sampleSave(), now); err != nil {
			t.Fatalf("archive %d: %v", run, err)
		}
	}
	metas, err := listRuns(dataDir, "main")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(metas) != 3 || metas[0].Run != 1 || metas[1].Run != 2 || metas[2].Run != 10 {
		t.Fatalf("metas=%+v", metas)
	}
	if metas[2].PrestigePoints != 12 {
		t.Fatalf("run 10 prestige points=%d", metas[2].PrestigePoints)
	}
	if _, err := listRuns(filepath.Join(dataDir, "missing"), "main"); err == nil {
		t.Fatalf("expected error for missing archive dir")
	}
}
