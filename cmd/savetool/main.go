// Command savetool inspects and maintains Stellar Forge save data offline:
// save tokens, the sqlite save store, milestone journals and run archives.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"stellarforge.dev/internal/persistence/archive"
	persistlog "stellarforge.dev/internal/persistence/log"
	"stellarforge.dev/internal/persistence/snapshot"
	"stellarforge.dev/internal/sim/game"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "reencode":
			reencodeCmd(os.Args[2:])
			return
		case "journal":
			journalCmd(os.Args[2:])
			return
		case "runs":
			runsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("savetool", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "slots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// tokenFlags are shared by the commands that read a save token.
type tokenFlags struct {
	token   *string
	file    *string
	dataDir *string
	slot    *string
	key     *string
}

func addTokenFlags(fs *flag.FlagSet) tokenFlags {
	return tokenFlags{
		token:   fs.String("token", "", "save token (use - to read stdin)"),
		file:    fs.String("file", "", "file holding a save token"),
		dataDir: fs.String("data", "./data", "runtime data directory"),
		slot:    fs.String("slot", "", "read the token stored for this slot"),
		key:     fs.String("key", "", "save token MAC key (or set SF_SAVE_KEY)"),
	}
}

func (f tokenFlags) codec(comp snapshot.Compression) *snapshot.Codec {
	k := strings.TrimSpace(*f.key)
	if k == "" {
		k = strings.TrimSpace(os.Getenv("SF_SAVE_KEY"))
	}
	return snapshot.NewCodec(k, comp)
}

func (f tokenFlags) read(stdin io.Reader) (string, error) {
	switch {
	case *f.token == "-":
		b, err := io.ReadAll(stdin)
		return strings.TrimSpace(string(b)), err
	case *f.token != "":
		return strings.TrimSpace(*f.token), nil
	case *f.file != "":
		b, err := os.ReadFile(*f.file)
		return strings.TrimSpace(string(b)), err
	case *f.slot != "":
		return loadSlotToken(*f.dataDir, *f.slot)
	}
	return "", errors.New("one of -token, -file or -slot is required")
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	tf := addTokenFlags(fs)
	archived := fs.String("archive", "", "archived run snapshot (.snap.zst) to print instead of a token")
	_ = fs.Parse(args)

	if *archived != "" {
		h, s, err := snapshot.ReadSnapshot(*archived)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		printJSON(struct {
			Header snapshot.Header `json:"header"`
			Save   snapshot.SaveV1 `json:"save"`
		}{h, s})
		return
	}

	tok, err := tf.read(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(2)
	}
	s, err := tf.codec(snapshot.CompressZstd).Decode(tok)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode:", err)
		os.Exit(1)
	}
	printJSON(s)
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	tf := addTokenFlags(fs)
	_ = fs.Parse(args)

	tok, err := tf.read(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(2)
	}
	sum, err := verifyToken(tf.codec(snapshot.CompressZstd), tok)
	if err != nil {
		fmt.Println("INVALID:", err)
		os.Exit(1)
	}
	fmt.Println("OK", sum)
}

func reencodeCmd(args []string) {
	fs := flag.NewFlagSet("reencode", flag.ExitOnError)
	tf := addTokenFlags(fs)
	compression := fs.String("compression", "zstd", "output compression: zstd or lz4")
	newKey := fs.String("new_key", "", "MAC key for the output token (defaults to the input key)")
	_ = fs.Parse(args)

	comp, err := snapshot.ParseCompression(*compression)
	if err != nil {
		fmt.Fprintln(os.Stderr, "compression:", err)
		os.Exit(2)
	}
	tok, err := tf.read(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		os.Exit(2)
	}
	in := tf.codec(comp)
	out := in
	if *newKey != "" {
		out = snapshot.NewCodec(*newKey, comp)
	}
	res, err := reencode(in, out, tok, comp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "reencode:", err)
		os.Exit(1)
	}
	fmt.Println(res)
}

// verifyToken decodes tok and returns a one-line summary of the save.
func verifyToken(c *snapshot.Codec, tok string) (string, error) {
	s, err := c.Decode(tok)
	if err != nil {
		return "", err
	}
	owned := 0
	for _, g := range s.Generators {
		owned += g.Owned
	}
	return fmt.Sprintf("version=%d generators_owned=%d research=%d prestige_points=%d achievements=%d",
		s.Version, owned, len(s.CompletedResearch), s.PrestigePoints, len(s.Achievements)), nil
}

func reencode(in, out *snapshot.Codec, tok string, comp snapshot.Compression) (string, error) {
	s, err := in.Decode(tok)
	if err != nil {
		return "", err
	}
	return out.EncodeWith(s, comp)
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	slot := fs.String("slot", "default", "save slot")
	kind := fs.String("kind", "", "only print milestones of this kind")
	_ = fs.Parse(args)

	ms, err := readJournal(*dataDir, *slot, *kind)
	if err != nil {
		fmt.Fprintln(os.Stderr, "journal:", err)
		os.Exit(1)
	}
	for _, m := range ms {
		printJSON(m)
	}
}

// readJournal returns every journaled milestone of slot in file order.
func readJournal(dataDir, slot, kind string) ([]game.Milestone, error) {
	dir := filepath.Join(dataDir, "journal", slot)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "milestones-") && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []game.Milestone
	for _, name := range names {
		ms, err := persistlog.ReadMilestones(filepath.Join(dir, name))
		if err != nil {
			return out, err
		}
		for _, m := range ms {
			if kind == "" || m.Kind == kind {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func runsCmd(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	slot := fs.String("slot", "default", "save slot")
	_ = fs.Parse(args)

	metas, err := listRuns(*dataDir, *slot)
	if err != nil {
		fmt.Fprintln(os.Stderr, "runs:", err)
		os.Exit(1)
	}
	for _, m := range metas {
		printJSON(m)
	}
}

// listRuns reads the meta.json of every archived run of slot, oldest first.
func listRuns(dataDir, slot string) ([]archive.RunArchiveMeta, error) {
	ents, err := os.ReadDir(filepath.Join(dataDir, "archives", slot))
	if err != nil {
		return nil, err
	}
	var out []archive.RunArchiveMeta
	for _, e := range ents {
		var run int
		if !e.IsDir() {
			continue
		}
		if _, err := fmt.Sscanf(e.Name(), "run_%d", &run); err != nil {
			continue
		}
		m, err := archive.ReadMeta(dataDir, slot, run)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Run < out[j].Run })
	return out, nil
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
