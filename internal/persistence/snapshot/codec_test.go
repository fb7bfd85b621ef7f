package snapshot

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func sampleSave() SaveV1 {
	return SaveV1{
		Version:   Version,
		Resources: map[string]float64{"ore": 1234.5, "energy": 0.1, "dyson_fragments": 3},
		Generators: []GeneratorV1{
			{ID: "auto_miner", Owned: 42, Level: 3},
			{ID: "solar_panel", Owned: 7, Level: 1},
		},
		UnlockedGenerators: []string{"auto_miner", "solar_panel"},
		CompletedResearch:  []string{"click_1"},
		Achievements:       []string{"first_click"},
		PrestigePoints:     12,
		PrestigeLevels:     map[string]int{"stellar_output": 2},
		Stats:              map[string]float64{"total_clicks": 99, "total_ore": 1e6},
		RPS:                map[string]float64{"ore": 42.25, "energy": -1.5},
		Cooldowns:          map[string]int64{"ore_rush": 1_700_000_180_000},
		Volume:             VolumeV1{Master: 0.8, Music: 0.5, SFX: 0.7},
		LastSaveUnixMs:     1_700_000_000_123,
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, comp := range []Compression{CompressZstd, CompressLZ4} {
		c := NewCodec("secret", comp)
		in := sampleSave()
		tok, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%s encode: %v", comp, err)
		}
		out, err := c.Decode(tok)
		if err != nil {
			t.Fatalf("%s decode: %v", comp, err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Fatalf("%s round trip mismatch:\n in=%+v\nout=%+v", comp, in, out)
		}
	}
}

func TestCodecDecodesEitherCompression(t *testing.T) {
	c := NewCodec("secret", CompressZstd)
	tok, err := c.EncodeWith(sampleSave(), CompressLZ4)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := c.Decode(tok); err != nil {
		t.Fatalf("decode lz4 token with zstd default: %v", err)
	}
}

func TestCodecRejectsEverySingleBitFlip(t *testing.T) {
	c := NewCodec("secret", CompressLZ4)
	tok, err := c.Encode(sampleSave())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := []byte(tok)
	for i := range b {
		for bit := 0; bit < 8; bit++ {
			b[i] ^= 1 << bit
			if _, err := c.Decode(string(b)); !errors.Is(err, ErrIntegrity) {
				t.Fatalf("flip byte %d bit %d: got %v", i, bit, err)
			}
			b[i] ^= 1 << bit
		}
	}
}

func TestCodecRejectsOtherKeyAndGarbage(t *testing.T) {
	tok, err := NewCodec("a", CompressZstd).Encode(sampleSave())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := NewCodec("b", CompressZstd).Decode(tok); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("foreign key: %v", err)
	}
	for _, bad := range []string{"", "not base64!", "AAAA", tok[:len(tok)-4], tok + "\n"} {
		if _, err := NewCodec("a", CompressZstd).Decode(bad); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("%q: %v", bad, err)
		}
	}
}

func TestParseCompression(t *testing.T) {
	if c, err := ParseCompression("LZ4"); err != nil || c != CompressLZ4 {
		t.Fatalf("lz4: %v %v", c, err)
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archives", "prestige_001", "save.snap.zst")
	in := sampleSave()
	h := HeaderOf("default", in)
	if err := WriteSnapshot(path, h, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	gotH, out, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if gotH != h {
		t.Fatalf("header: %+v", gotH)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("file round trip mismatch")
	}
}
