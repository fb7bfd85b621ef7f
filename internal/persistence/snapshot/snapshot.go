package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// SaveV1 is the persisted form of a game. Times are unix milliseconds so a
// save compares equal after a round trip regardless of time zone.
type SaveV1 struct {
	Version int `json:"version"`

	Resources  map[string]float64 `json:"resources"`
	Generators []GeneratorV1      `json:"generators"`

	UnlockedGenerators []string `json:"unlocked_generators"`
	CompletedResearch  []string `json:"completed_research"`
	Achievements       []string `json:"achievements"`

	PrestigePoints int            `json:"prestige_points"`
	PrestigeLevels map[string]int `json:"prestige_levels"`

	Stats map[string]float64 `json:"stats"`
	RPS   map[string]float64 `json:"rps"`

	// Cooldowns maps ability id to the unix ms it becomes ready.
	Cooldowns map[string]int64 `json:"cooldowns"`

	Volume              VolumeV1 `json:"volume"`
	VictoryAcknowledged bool     `json:"victory_acknowledged"`
	LastSaveUnixMs      int64    `json:"last_save_unix_ms"`
}

type GeneratorV1 struct {
	ID    string `json:"id"`
	Owned int    `json:"owned"`
	Level int    `json:"level"`
}

type VolumeV1 struct {
	Master float64 `json:"master"`
	Music  float64 `json:"music"`
	SFX    float64 `json:"sfx"`
}

// Header is written as a JSON line ahead of the gob body so archived files
// can be identified without decoding them.
type Header struct {
	Version        int    `json:"version"`
	Slot           string `json:"slot"`
	PrestigePoints int    `json:"prestige_points"`
	SavedUnixMs    int64  `json:"saved_unix_ms"`
}

func HeaderOf(slot string, s SaveV1) Header {
	return Header{Version: s.Version, Slot: slot, PrestigePoints: s.PrestigePoints, SavedUnixMs: s.LastSaveUnixMs}
}

// WriteSnapshot stores a save as zstd(header line + gob).
func WriteSnapshot(path string, h Header, s SaveV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(h)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&s); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func ReadSnapshot(path string) (Header, SaveV1, error) {
	var (
		h Header
		s SaveV1
	)
	f, err := os.Open(path)
	if err != nil {
		return h, s, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, s, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, s, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, s, fmt.Errorf("header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&s); err != nil {
		return h, s, fmt.Errorf("gob decode: %w", err)
	}
	return h, s, nil
}
