package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stellarforge.dev/internal/persistence/indexdb"
	"stellarforge.dev/internal/persistence/snapshot"
	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game"
	"stellarforge.dev/internal/sim/tuning"
)

// remoteIndex is an optional second read model fed with the same
// milestones and runs as the local sqlite index.
type remoteIndex interface {
	game.Journal
	RecordRun(r indexdb.RunRow)
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	Close() error
}

func openSaveStore(slotDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	return indexdb.OpenSQLite(filepath.Join(slotDir, "index", "saves.sqlite"))
}

func openRemoteIndex(slot string, logger *log.Logger) (remoteIndex, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SF_INDEX_REMOTE")))
	switch backend {
	case "", "none", "off", "disabled":
		return nil, nil
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("SF_INDEX_D1_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("SF_INDEX_D1_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("SF_INDEX_REMOTE=d1 but SF_INDEX_D1_INGEST_URL is empty")
		}
		flushMS := envInt("SF_INDEX_D1_FLUSH_MS", 500)
		batchSize := envInt("SF_INDEX_D1_BATCH_SIZE", 128)
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         token,
			Slot:          slot,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Gzip:          envBool("SF_INDEX_D1_GZIP", true),
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported SF_INDEX_REMOTE: %s", backend)
	}
}

func runRow(slot string, run, banked int, save snapshot.SaveV1, path string, now time.Time) indexdb.RunRow {
	return indexdb.RunRow{
		Slot:           slot,
		Run:            run,
		Banked:         banked,
		PrestigePoints: save.PrestigePoints + banked,
		Path:           path,
		RecordedAt:     now,
	}
}
