package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stellarforge.dev/internal/persistence/archive"
	"stellarforge.dev/internal/persistence/indexdb"
	"stellarforge.dev/internal/persistence/snapshot"
	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game"
	"stellarforge.dev/internal/sim/tuning"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

func newTestGameForServer(t *testing.T, store *indexdb.SQLiteIndex) *game.Game {
	t.Helper()
	cats, err := catalogs.Load(filepath.Join(findRepoRootForServerTests(t), "configs"))
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	cfg := game.Config{
		Slot:     "srv",
		Tuning:   tuning.Defaults(),
		Catalogs: cats,
		Codec:    snapshot.NewCodec("k", snapshot.CompressZstd),
		Seed:     3,
	}
	if store != nil {
		cfg.Store = store
		cfg.Journals = []game.Journal{store}
	}
	g, err := game.New(cfg)
	if err != nil {
		t.Fatalf("new game: %v", err)
	}
	return g
}

func get(t *testing.T, h http.Handler, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMux_HealthAndMetrics(t *testing.T) {
	g := newTestGameForServer(t, nil)
	mux := newMux(g, nil, muxOptions{})

	if rec := get(t, mux, "/healthz", "10.0.0.1:5000"); rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	rec := get(t, mux, "/metrics", "10.0.0.1:5000")
	body := rec.Body.String()
	for _, want := range []string{
		`stellarforge_tick{slot="srv"} 0`,
		`stellarforge_queue_depth{slot="srv",queue="inbox"} 0`,
		`stellarforge_resource{slot="srv",resource="ore"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "stellarforge_index_") || strings.Contains(body, "r2_mirror") {
		t.Fatalf("disabled backends should not report metrics:\n%s", body)
	}
}

func TestMux_AdminIsLoopbackOnly(t *testing.T) {
	g := newTestGameForServer(t, nil)
	mux := newMux(g, nil, muxOptions{enableAdmin: true})

	if rec := get(t, mux, "/admin/v1/state", "203.0.113.9:4000"); rec.Code != http.StatusForbidden {
		t.Fatalf("remote admin status=%d", rec.Code)
	}
	rec := get(t, mux, "/admin/v1/state", "127.0.0.1:4000")
	if rec.Code != http.StatusOK {
		t.Fatalf("local admin status=%d", rec.Code)
	}
	var m game.Metrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Slot != "srv" {
		t.Fatalf("metrics=%+v", m)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/save", nil)
	req.RemoteAddr = "[::1]:4000"
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("save status=%d", rr.Code)
	}
}

func TestRunArchiver_ArchivesAndIndexes(t *testing.T) {
	dataDir := t.TempDir()
	store, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	archiveRun := runArchiver(dataDir, "main", store, nil, nil, nil)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	save := snapshot.SaveV1{Version: snapshot.Version, PrestigePoints: 2, LastSaveUnixMs: now.UnixMilli()}
	path, err := archiveRun(1, 3, save, now)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	meta, err := archive.ReadMeta(dataDir, "main", 1)
	if err != nil || meta.PrestigePoints != 5 {
		t.Fatalf("meta=%+v err=%v", meta, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	runs, err := store.Runs("main")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Banked != 3 || runs[0].PrestigePoints != 5 || runs[0].Path != path {
		t.Fatalf("runs=%+v", runs)
	}
}
