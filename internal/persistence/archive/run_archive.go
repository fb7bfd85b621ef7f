package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stellarforge.dev/internal/persistence/snapshot"
)

type RunArchiveMeta struct {
	Slot           string `json:"slot"`
	Run            int    `json:"run"`
	Banked         int    `json:"banked"`
	PrestigePoints int    `json:"prestige_points"`
	Snapshot       string `json:"snapshot"`
	CreatedAt      string `json:"created_at"`
}

// RunDir is where the final save of prestige run n is kept.
func RunDir(dataDir, slot string, run int) string {
	return filepath.Join(dataDir, "archives", slot, fmt.Sprintf("run_%03d", run))
}

// ArchiveRun writes the last save of a finished run (taken just before the
// prestige reset) plus a meta.json next to it, and returns the snapshot path.
func ArchiveRun(dataDir, slot string, run, banked int, save snapshot.SaveV1, now time.Time) (string, error) {
	if run <= 0 {
		return "", fmt.Errorf("run must be >= 1, got %d", run)
	}
	dir := RunDir(dataDir, slot, run)
	path := filepath.Join(dir, "save.snap.zst")
	if err := snapshot.WriteSnapshot(path, snapshot.HeaderOf(slot, save), save); err != nil {
		return "", err
	}

	meta := RunArchiveMeta{
		Slot:           slot,
		Run:            run,
		Banked:         banked,
		PrestigePoints: save.PrestigePoints + banked,
		Snapshot:       filepath.Base(path),
		CreatedAt:      now.UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return path, nil
}

// ReadMeta loads the meta.json of an archived run.
func ReadMeta(dataDir, slot string, run int) (RunArchiveMeta, error) {
	var m RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(RunDir(dataDir, slot, run), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
