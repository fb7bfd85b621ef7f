package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

func slotDBPath(dataDir, slot string) string {
	return filepath.Join(dataDir, "slots", slot, "index", "saves.sqlite")
}

func loadSlotToken(dataDir, slot string) (string, error) {
	db, err := sql.Open("sqlite", slotDBPath(dataDir, slot))
	if err != nil {
		return "", err
	}
	defer db.Close()
	var tok string
	err = db.QueryRow(`SELECT token FROM saves WHERE slot=?`, slot).Scan(&tok)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("slot %s has no save", slot)
	}
	return tok, err
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	slot := fs.String("slot", "default", "save slot (ignored with -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	kind := fs.String("kind", "", "milestone kind filter (milestones)")
	_ = fs.Parse(args)

	q := "saves"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = slotDBPath(*dataDir, *slot)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	var rows *sql.Rows
	switch q {
	case "saves":
		rows, err = db.Query(`SELECT slot,saved_at_ms,length(token),updated_at FROM saves ORDER BY slot`)
	case "milestones":
		rows, err = db.Query(`SELECT cursor,slot,tick,at_ms,kind,COALESCE(ref_id,''),text,value FROM milestones WHERE (?='' OR kind=?) ORDER BY seq DESC LIMIT ?`, *kind, *kind, *limit)
	case "runs":
		rows, err = db.Query(`SELECT slot,run,banked,prestige_points,archive_path,recorded_at FROM runs ORDER BY slot,run`)
	case "catalogs":
		rows, err = db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(saves|milestones|runs|catalogs)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()

	for rows.Next() {
		switch q {
		case "saves":
			var r struct {
				Slot       string `json:"slot"`
				SavedAt    string `json:"saved_at"`
				TokenBytes int    `json:"token_bytes"`
				UpdatedAt  string `json:"updated_at"`
			}
			var ms int64
			if err := rows.Scan(&r.Slot, &ms, &r.TokenBytes, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.SavedAt = time.UnixMilli(ms).UTC().Format(time.RFC3339)
			printJSON(r)
		case "milestones":
			var r struct {
				Cursor uint64  `json:"cursor"`
				Slot   string  `json:"slot"`
				Tick   uint64  `json:"tick"`
				AtMs   int64   `json:"at_ms"`
				Kind   string  `json:"kind"`
				RefID  string  `json:"id,omitempty"`
				Text   string  `json:"text"`
				Value  float64 `json:"value,omitempty"`
			}
			if err := rows.Scan(&r.Cursor, &r.Slot, &r.Tick, &r.AtMs, &r.Kind, &r.RefID, &r.Text, &r.Value); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		case "runs":
			var r struct {
				Slot           string `json:"slot"`
				Run            int    `json:"run"`
				Banked         int    `json:"banked"`
				PrestigePoints int    `json:"prestige_points"`
				Path           string `json:"archive_path"`
				RecordedAt     string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Slot, &r.Run, &r.Banked, &r.PrestigePoints, &r.Path, &r.RecordedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		case "catalogs":
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}
