package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`
tick_rate_hz: 20
goal_amount: 5000
events:
  world_event_chance: 0.5
offline:
  max_seconds: 3600
`)
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TickRateHz != 20 || tu.TickInterval() != 50*time.Millisecond {
		t.Fatalf("tick rate not applied: %+v", tu.TickRateHz)
	}
	if tu.GoalAmount != 5000 {
		t.Fatalf("goal amount: %v", tu.GoalAmount)
	}
	if tu.Events.WorldEventChance != 0.5 || tu.Events.ClickableChance != 0.035 {
		t.Fatalf("events merge: %+v", tu.Events)
	}
	if tu.Offline.MaxSeconds != 3600 || tu.Offline.MinSeconds != 10 {
		t.Fatalf("offline merge: %+v", tu.Offline)
	}
}

func TestLoadRejectsBadTickRate(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for zero tick rate")
	}
}

func TestRepoTuningLoads(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load repo tuning: %v", err)
	}
	if tu.TickRateHz != 10 {
		t.Fatalf("expected 10Hz, got %d", tu.TickRateHz)
	}
	if tu.Offline.MaxSeconds != 28800 {
		t.Fatalf("expected 8h offline cap, got %d", tu.Offline.MaxSeconds)
	}
}
