package catalogs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRepoCatalogs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Generators.Defs) == 0 {
		t.Fatalf("expected generators")
	}
	if _, ok := c.Generator("auto_miner"); !ok {
		t.Fatalf("missing auto_miner")
	}
	if c.Generators.Defs[0].ID != "auto_miner" {
		t.Fatalf("file order not kept: first=%s", c.Generators.Defs[0].ID)
	}
	if len(c.Events.Random) == 0 || len(c.Events.Clickable) == 0 {
		t.Fatalf("expected random and clickable events")
	}
	if len(c.Generators.Digest) != 64 || c.Digest() == "" {
		t.Fatalf("bad digests")
	}

	// Every synergy and unlock reference must resolve in shipped content.
	for _, d := range c.Generators.Defs {
		for _, s := range d.Synergies {
			if _, ok := c.Generator(s.SourceID); !ok {
				t.Fatalf("%s: synergy source %s unknown", d.ID, s.SourceID)
			}
		}
		if d.UnlocksAt != nil {
			for id := range d.UnlocksAt.Owned {
				if _, ok := c.Generator(id); !ok {
					t.Fatalf("%s: unlock references %s", d.ID, id)
				}
			}
		}
	}
	for _, r := range c.Research.Defs {
		for _, p := range r.Prerequisites {
			if _, ok := c.Research.ByID[p]; !ok {
				t.Fatalf("%s: prerequisite %s unknown", r.ID, p)
			}
		}
	}
}

func TestCurves(t *testing.T) {
	lin := Curve{Kind: "linear", Base: 1, Step: 0.05}
	if got := lin.At(4); got < 1.1999 || got > 1.2001 {
		t.Fatalf("linear: got %v", got)
	}
	exp := Curve{Kind: "exponential", Base: 2, Step: 1.5}
	if got := exp.At(2); got != 4.5 {
		t.Fatalf("exponential: got %v", got)
	}
	d := PrestigeUpgradeDef{Cost: exp}
	if got := d.CostAt(2); got != 5 {
		t.Fatalf("cost rounds up: got %d", got)
	}
}

func TestLoadRejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	copyConfigs(t, dir)
	bad := `[{"id":"x","name":"X","base_cost":{"unobtainium":1},"cost_growth":1.1,"production":{}}]`
	if err := os.WriteFile(filepath.Join(dir, "generators.json"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "generators.json") {
		t.Fatalf("expected generators.json error, got %v", err)
	}
}

func TestLoadRejectsFlatGrowth(t *testing.T) {
	dir := t.TempDir()
	copyConfigs(t, dir)
	bad := `[{"id":"x","name":"X","base_cost":{"ore":1},"cost_growth":1,"production":{"ore":1}}]`
	if err := os.WriteFile(filepath.Join(dir, "generators.json"), []byte(bad), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected cost_growth error")
	}
}

func copyConfigs(t *testing.T, dst string) {
	t.Helper()
	src := "../../../configs"
	for _, sub := range []string{"", "schemas"} {
		entries, err := os.ReadDir(filepath.Join(src, sub))
		if err != nil {
			t.Fatalf("read %s: %v", sub, err)
		}
		if err := os.MkdirAll(filepath.Join(dst, sub), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			b, err := os.ReadFile(filepath.Join(src, sub, e.Name()))
			if err != nil {
				t.Fatalf("read %s: %v", e.Name(), err)
			}
			if err := os.WriteFile(filepath.Join(dst, sub, e.Name()), b, 0o644); err != nil {
				t.Fatalf("write %s: %v", e.Name(), err)
			}
		}
	}
}
