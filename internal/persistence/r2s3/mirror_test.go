package r2s3

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestMirror_UploadsRunArchiveUnderPrefix(t *testing.T) {
	var (
		mu   sync.Mutex
		puts = map[string]string{}
		ctyp = map[string]string{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), sigV4Algorithm+" Credential=AKID/") {
			http.Error(w, "auth", http.StatusForbidden)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts[r.URL.Path] = string(b)
		ctyp[r.URL.Path] = r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	runDir := filepath.Join(dataDir, "archives", "main", "run_001")
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		t.Fatal(err)
	}
	snap := filepath.Join(runDir, "save.snap.zst")
	if err := os.WriteFile(snap, []byte("snap"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "meta.json"), []byte(`{"run":1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	client, err := New(Config{Endpoint: srv.URL, Bucket: "forge", AccessKeyID: "AKID", SecretAccessKey: "secret"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m := NewMirror(client, MirrorConfig{DataDir: dataDir, Prefix: "prod/", Workers: 2, QueueCapacity: 16})
	m.EnqueueRun(snap)
	m.Close()

	st := m.Stats()
	if st.UploadSuccessTotal != 2 || st.UploadFailTotal != 0 {
		t.Fatalf("stats=%+v", st)
	}
	mu.Lock()
	defer mu.Unlock()
	if got := puts["/forge/prod/archives/main/run_001/save.snap.zst"]; got != "snap" {
		t.Fatalf("snapshot body=%q puts=%v", got, puts)
	}
	if got := ctyp["/forge/prod/archives/main/run_001/meta.json"]; got != "application/json" {
		t.Fatalf("meta content-type=%q", got)
	}
}

func TestMirror_SkipsPathsOutsideDataDir(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "x.zst")
	if err := os.WriteFile(outside, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := &Mirror{cfg: MirrorConfig{DataDir: t.TempDir()}}
	if _, err := m.objectKey(outside); err == nil {
		t.Fatalf("expected error for path outside data dir")
	}
}

func TestMirror_DropsWhenQueueSaturated(t *testing.T) {
	m := &Mirror{client: &Client{}, cfg: MirrorConfig{EnqueueWait: time.Millisecond}, jobs: make(chan upload, 1)}
	m.Enqueue("a")
	m.Enqueue("b")
	st := m.Stats()
	if st.EnqueuedTotal != 2 || st.QueueSaturatedTotal != 1 || st.DroppedTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
	// A dropped key may be queued again later.
	<-m.jobs
	m.Enqueue("b")
	if got := m.Stats().DroppedTotal; got != 1 {
		t.Fatalf("dropped=%d after retry", got)
	}
}

func TestMirror_SkipsKeyAlreadyQueued(t *testing.T) {
	m := &Mirror{client: &Client{}, cfg: MirrorConfig{EnqueueWait: time.Millisecond}, jobs: make(chan upload, 4)}
	m.Enqueue("seg.jsonl.zst")
	m.Enqueue("seg.jsonl.zst")
	st := m.Stats()
	if st.EnqueuedTotal != 1 || st.DuplicateTotal != 1 || len(m.jobs) != 1 {
		t.Fatalf("stats=%+v depth=%d", st, len(m.jobs))
	}
}

func TestSigner_StableForFixedTime(t *testing.T) {
	s := signer{keyID: "AKID", secret: "secret", region: "auto", service: "s3"}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sign := func() string {
		req := httptest.NewRequest(http.MethodPut, "https://r2.example/forge/a/b.json", nil)
		s.sign(req, "UNSIGNED", at)
		return req.Header.Get("Authorization")
	}
	a, b := sign(), sign()
	if a != b {
		t.Fatalf("signature not deterministic:\n%s\n%s", a, b)
	}
	if !strings.Contains(a, "Credential=AKID/20260301/auto/s3/aws4_request") {
		t.Fatalf("auth=%s", a)
	}
}
