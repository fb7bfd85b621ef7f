package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"stellarforge.dev/internal/sim/game"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer

	// onClosed receives the path of each hourly file once it is complete.
	onClosed func(path string)
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.curHour
	err := w.closeLocked()
	w.curHour = ""
	if prev != "" && w.onClosed != nil {
		w.onClosed(w.pathForHour(prev))
	}
	return err
}

func (w *JSONLZstdWriter) Write(v any) error {
	return w.writeAt(time.Now(), v)
}

// writeAt appends v to the file for the hour containing at.
func (w *JSONLZstdWriter) writeAt(at time.Time, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := at.UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	prev := w.curHour
	if err := w.closeLocked(); err != nil {
		return err
	}
	if prev != "" && w.onClosed != nil {
		w.onClosed(w.pathForHour(prev))
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// MilestoneLogger journals game milestones as compressed JSONL, one file
// per slot and UTC hour.
type MilestoneLogger struct {
	w   *JSONLZstdWriter
	log *stdlog.Logger
}

func NewMilestoneLogger(dataDir, slot string, logger *stdlog.Logger) *MilestoneLogger {
	w := NewJSONLZstdWriter(filepath.Join(dataDir, "journal", slot), "milestones")
	return &MilestoneLogger{w: w, log: logger}
}

// OnSegmentClosed registers fn to run with the path of every journal file
// that rotation has finished with.
func (l *MilestoneLogger) OnSegmentClosed(fn func(path string)) {
	l.w.mu.Lock()
	l.w.onClosed = fn
	l.w.mu.Unlock()
}

// RecordMilestone files m under the hour it happened. Write errors are
// logged, never returned, so the game loop is not interrupted.
func (l *MilestoneLogger) RecordMilestone(m game.Milestone) {
	if err := l.w.writeAt(m.At, m); err != nil && l.log != nil {
		l.log.Printf("journal: slot=%s cursor=%d: %v", m.Slot, m.Cursor, err)
	}
}

func (l *MilestoneLogger) Dir() string  { return l.w.baseDir }
func (l *MilestoneLogger) Close() error { return l.w.Close() }

// ReadMilestones decodes one journal file.
func ReadMilestones(path string) ([]game.Milestone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []game.Milestone
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var m game.Milestone
		if err := json.Unmarshal(line, &m); err != nil {
			return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, m)
	}
	return out, sc.Err()
}
