package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stellarforge.dev/internal/persistence/archive"
	"stellarforge.dev/internal/persistence/indexdb"
	persistlog "stellarforge.dev/internal/persistence/log"
	"stellarforge.dev/internal/persistence/snapshot"
	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game"
	"stellarforge.dev/internal/sim/tuning"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		slot        = flag.String("slot", "default", "save slot to run")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "random event seed")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		saveKey     = flag.String("save_key", "", "save token MAC key (or set SF_SAVE_KEY)")
		compression = flag.String("compression", "lz4", "autosave compression: lz4 or zstd")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite save store and milestone index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	comp, err := snapshot.ParseCompression(*compression)
	if err != nil {
		logger.Fatalf("compression: %v", err)
	}
	key := strings.TrimSpace(*saveKey)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("SF_SAVE_KEY"))
	}
	if key == "" {
		logger.Printf("no save key configured; tokens are tamper-evident but not secret-keyed")
	}
	codec := snapshot.NewCodec(key, comp)

	slotDir := filepath.Join(*dataDir, "slots", *slot)
	_ = os.MkdirAll(slotDir, 0o755)

	store, err := openSaveStore(slotDir, *disableDB)
	if err != nil {
		logger.Fatalf("open save store: %v", err)
	}
	if store != nil {
		defer store.Close()
		if err := store.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("save store: upsert catalogs: %v", err)
		}
	} else {
		logger.Printf("save store disabled; progress will not persist")
	}

	remote, err := openRemoteIndex(*slot, logger)
	if err != nil {
		logger.Fatalf("open remote index: %v", err)
	}
	if remote != nil {
		defer remote.Close()
		if err := remote.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("remote index: upsert catalogs: %v", err)
		}
	}

	mirror, err := buildR2MirrorRuntime(*dataDir, logger)
	if err != nil {
		logger.Fatalf("init r2 mirror: %v", err)
	}
	defer mirror.Close()

	journal := persistlog.NewMilestoneLogger(*dataDir, *slot, logger)
	journal.OnSegmentClosed(mirror.Enqueue)
	// Closed before the mirror so the last segment is uploaded.
	defer journal.Close()

	journals := []game.Journal{journal}
	if store != nil {
		journals = append(journals, store)
	}
	if remote != nil {
		journals = append(journals, remote)
	}

	cfg := game.Config{
		Slot:                *slot,
		Tuning:              tune,
		Catalogs:            cats,
		Codec:               codec,
		AutosaveCompression: comp,
		Seed:                *seed,
		Logger:              logger,
		Journals:            journals,
		Archive:             runArchiver(*dataDir, *slot, store, remote, mirror, logger),
	}
	if store != nil {
		cfg.Store = store
	}
	g, err := game.New(cfg)
	if err != nil {
		logger.Fatalf("game: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := g.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("game stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(g, logger, muxOptions{store: store, remote: remote, mirror: mirror}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("slot=%s listening on %s", *slot, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-done
	if store != nil {
		ctx3, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel3()
		if err := store.Flush(ctx3); err != nil {
			logger.Printf("save store flush: %v", err)
		}
	}
}

// runArchiver keeps the final save of every prestiged run on disk, indexes
// it and queues it for the mirror.
func runArchiver(dataDir, slot string, store *indexdb.SQLiteIndex, remote remoteIndex, mirror *r2MirrorRuntime, logger *log.Logger) game.RunArchiver {
	return func(run, banked int, save snapshot.SaveV1, now time.Time) (string, error) {
		path, err := archive.ArchiveRun(dataDir, slot, run, banked, save, now)
		if err != nil {
			return "", err
		}
		row := runRow(slot, run, banked, save, path, now)
		if store != nil {
			store.RecordRun(row)
		}
		if remote != nil {
			remote.RecordRun(row)
		}
		mirror.EnqueueRun(path)
		if logger != nil {
			logger.Printf("slot=%s archived run=%d banked=%d path=%s", slot, run, banked, path)
		}
		return path, nil
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
