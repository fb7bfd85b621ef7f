package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"stellarforge.dev/internal/sim/catalogs"
	"stellarforge.dev/internal/sim/game"
	"stellarforge.dev/internal/sim/tuning"
)

// SQLiteIndex stores save slots synchronously and indexes milestones and
// archived runs through a background writer.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	// pending counts queued requests not yet committed or rolled back.
	pending atomic.Int64

	dropMilestone atomic.Uint64
	dropRun       atomic.Uint64
}

type reqKind int

const (
	reqMilestone reqKind = iota + 1
	reqRun
)

type req struct {
	kind reqKind

	milestone game.Milestone
	run       RunRow
}

// RunRow describes one archived run.
type RunRow struct {
	Slot           string
	Run            int
	Banked         int
	PrestigePoints int
	Path           string
	RecordedAt     time.Time
}

// SaveRow is one save slot.
type SaveRow struct {
	Slot    string
	Token   string
	SavedAt time.Time
}

type QueueStats struct {
	QueueDepth         int
	QueueCapacity      int
	DropMilestoneTotal uint64
	DropRunTotal       uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			slot TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			saved_at_ms INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS milestones (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			slot TEXT NOT NULL,
			cursor INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			at_ms INTEGER NOT NULL,
			kind TEXT NOT NULL,
			ref_id TEXT,
			text TEXT NOT NULL,
			value REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_milestones_slot_kind ON milestones(slot, kind, at_ms);`,
		`CREATE TABLE IF NOT EXISTS runs (
			slot TEXT NOT NULL,
			run INTEGER NOT NULL,
			banked INTEGER NOT NULL,
			prestige_points INTEGER NOT NULL,
			archive_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (slot, run)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// PutSave replaces the token stored for slot.
func (s *SQLiteIndex) PutSave(slot, token string, savedAt time.Time) error {
	if s == nil {
		return errors.New("index not open")
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO saves(slot,token,saved_at_ms,updated_at) VALUES(?,?,?,?)`,
		slot, token, savedAt.UnixMilli(), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// LoadSave returns the token stored for slot; ok is false when the slot is
// empty.
func (s *SQLiteIndex) LoadSave(slot string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("index not open")
	}
	var tok string
	err := s.db.QueryRow(`SELECT token FROM saves WHERE slot=?`, slot).Scan(&tok)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tok, true, nil
}

func (s *SQLiteIndex) ListSaves() ([]SaveRow, error) {
	rows, err := s.db.Query(`SELECT slot, token, saved_at_ms FROM saves ORDER BY slot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SaveRow
	for rows.Next() {
		var (
			r  SaveRow
			ms int64
		)
		if err := rows.Scan(&r.Slot, &r.Token, &ms); err != nil {
			return nil, err
		}
		r.SavedAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordMilestone queues m for indexing. It never blocks; when the writer
// falls behind the milestone is dropped and counted.
func (s *SQLiteIndex) RecordMilestone(m game.Milestone) {
	if s == nil || s.closed.Load() {
		return
	}
	s.pending.Add(1)
	select {
	case s.ch <- req{kind: reqMilestone, milestone: m}:
	default:
		s.pending.Add(-1)
		// Drop if the indexer falls behind; the JSONL journal remains the source of truth.
		s.dropMilestone.Add(1)
	}
}

func (s *SQLiteIndex) RecordRun(r RunRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if r.Run <= 0 || r.Path == "" {
		return
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	s.pending.Add(1)
	select {
	case s.ch <- req{kind: reqRun, run: r}:
	default:
		s.pending.Add(-1)
		s.dropRun.Add(1)
	}
}

func (s *SQLiteIndex) Stats() QueueStats {
	return QueueStats{
		QueueDepth:         len(s.ch),
		QueueCapacity:      cap(s.ch),
		DropMilestoneTotal: s.dropMilestone.Load(),
		DropRunTotal:       s.dropRun.Load(),
	}
}

// Milestones returns the newest milestones for slot, newest first. An empty
// kind matches every kind.
func (s *SQLiteIndex) Milestones(slot, kind string, limit int) ([]game.Milestone, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT raw_json FROM milestones WHERE slot=? AND (?='' OR kind=?) ORDER BY seq DESC LIMIT ?`,
		slot, kind, kind, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []game.Milestone
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var m game.Milestone
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Runs(slot string) ([]RunRow, error) {
	rows, err := s.db.Query(
		`SELECT slot, run, banked, prestige_points, archive_path, recorded_at FROM runs WHERE slot=? ORDER BY run`,
		slot,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		var (
			r  RunRow
			at string
		)
		if err := rows.Scan(&r.Slot, &r.Run, &r.Banked, &r.PrestigePoints, &r.Path, &at); err != nil {
			return nil, err
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Flush waits until every queued write is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	files := []struct{ name, digest string }{
		{"generators", cats.Generators.Digest},
		{"research", cats.Research.Digest},
		{"prestige_upgrades", cats.Prestige.Digest},
		{"abilities", cats.Abilities.Digest},
		{"events", cats.Events.Digest},
		{"achievements", cats.Achievements.Digest},
	}
	for _, f := range files {
		if configDir == "" {
			break
		}
		b, err := os.ReadFile(filepath.Join(configDir, f.name+".json"))
		if err != nil {
			continue
		}
		rows = append(rows, kv{name: f.name, digest: f.digest, json: b})
	}

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('catalogs_digest',?)`, cats.Digest()); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CatalogDigest returns the stored digest for a catalog name.
func (s *SQLiteIndex) CatalogDigest(name string) (string, error) {
	var d string
	err := s.db.QueryRow(`SELECT digest FROM catalogs WHERE name=?`, name).Scan(&d)
	return d, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertMilestone, _ := s.db.Prepare(`INSERT INTO milestones(slot,cursor,tick,at_ms,kind,ref_id,text,value,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(slot,run,banked,prestige_points,archive_path,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertMilestone != nil {
			_ = insertMilestone.Close()
		}
		if insertRun != nil {
			_ = insertRun.Close()
		}
	}()

	var (
		tx          *sql.Tx
		opCount     int
		taken       int64
		commitEvery = 500
	)
	settle := func() {
		s.pending.Add(-taken)
		taken = 0
	}

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		settle()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		settle()
	}

	// Batch while the queue has work; commit as soon as it drains so the
	// single connection is free for synchronous save-slot queries.
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}

	for r := range s.ch {
		taken++
		begin()
		if tx == nil {
			settle()
			continue
		}
		switch r.kind {
		case reqMilestone:
			m := r.milestone
			raw, _ := json.Marshal(m)
			if insertMilestone != nil {
				if _, err := tx.Stmt(insertMilestone).Exec(
					m.Slot,
					int64(m.Cursor),
					int64(m.Tick),
					m.At.UnixMilli(),
					m.Kind,
					m.ID,
					m.Text,
					m.Value,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqRun:
			ru := r.run
			if insertRun != nil {
				if _, err := tx.Stmt(insertRun).Exec(
					ru.Slot,
					ru.Run,
					ru.Banked,
					ru.PrestigePoints,
					ru.Path,
					ru.RecordedAt.UTC().Format(time.RFC3339Nano),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
