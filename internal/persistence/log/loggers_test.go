package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stellarforge.dev/internal/sim/game"
)

func TestMilestoneLogger_RotatesByHourAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	l := NewMilestoneLogger(dir, "slot1", nil)

	t0 := time.Date(2026, 5, 1, 9, 59, 0, 0, time.UTC)
	l.RecordMilestone(game.Milestone{Cursor: 1, Slot: "slot1", At: t0, Kind: "unlock", ID: "solar_panel", Text: "Solar Panel"})
	l.RecordMilestone(game.Milestone{Cursor: 2, Slot: "slot1", At: t0.Add(30 * time.Second), Kind: "achievement", ID: "first_click", Text: "First Click"})
	l.RecordMilestone(game.Milestone{Cursor: 3, Slot: "slot1", At: t0.Add(2 * time.Minute), Kind: "prestige", Value: 3})
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	nine := filepath.Join(dir, "journal", "slot1", "milestones-2026-05-01-09.jsonl.zst")
	ten := filepath.Join(dir, "journal", "slot1", "milestones-2026-05-01-10.jsonl.zst")
	got, err := ReadMilestones(nine)
	if err != nil {
		t.Fatalf("read 09: %v", err)
	}
	if len(got) != 2 || got[0].ID != "solar_panel" || got[1].Cursor != 2 {
		t.Fatalf("09 contents: %+v", got)
	}
	got, err = ReadMilestones(ten)
	if err != nil {
		t.Fatalf("read 10: %v", err)
	}
	if len(got) != 1 || got[0].Kind != "prestige" || got[0].Value != 3 {
		t.Fatalf("10 contents: %+v", got)
	}
}

func TestMilestoneLogger_AppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 2; i++ {
		l := NewMilestoneLogger(dir, "s", nil)
		l.RecordMilestone(game.Milestone{Cursor: uint64(i), At: at, Kind: "test"})
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	path := filepath.Join(dir, "journal", "s", "milestones-2026-05-01-09.jsonl.zst")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
	got, err := ReadMilestones(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both zstd frames to decode, got %d", len(got))
	}
}

func TestMilestoneLogger_ReportsClosedSegments(t *testing.T) {
	dir := t.TempDir()
	l := NewMilestoneLogger(dir, "s", nil)
	var closed []string
	l.OnSegmentClosed(func(path string) { closed = append(closed, filepath.Base(path)) })

	at := time.Date(2026, 5, 1, 9, 10, 0, 0, time.UTC)
	l.RecordMilestone(game.Milestone{Cursor: 1, At: at, Kind: "test"})
	l.RecordMilestone(game.Milestone{Cursor: 2, At: at.Add(time.Minute), Kind: "test"})
	if len(closed) != 0 {
		t.Fatalf("no segment should be closed yet: %v", closed)
	}
	l.RecordMilestone(game.Milestone{Cursor: 3, At: at.Add(time.Hour), Kind: "test"})
	if len(closed) != 1 || closed[0] != "milestones-2026-05-01-09.jsonl.zst" {
		t.Fatalf("closed after rotation: %v", closed)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(closed) != 2 || closed[1] != "milestones-2026-05-01-10.jsonl.zst" {
		t.Fatalf("closed after Close: %v", closed)
	}
}
