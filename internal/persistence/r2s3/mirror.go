package r2s3

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MirrorConfig controls the upload workers and the enqueue backpressure.
type MirrorConfig struct {
	// DataDir is the local root; object keys are paths relative to it.
	DataDir string
	Prefix  string

	Workers       int
	QueueCapacity int
	// EnqueueWait is how long Enqueue may block on a full queue before
	// dropping the file.
	EnqueueWait time.Duration
	MaxAttempts int
	RetryBase   time.Duration

	Logger *log.Logger
}

// Stats counts mirror queue and upload outcomes.
type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	EnqueuedTotal       uint64
	DuplicateTotal      uint64
	QueueSaturatedTotal uint64
	DroppedTotal        uint64
	UploadSuccessTotal  uint64
	UploadFailTotal     uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

type upload struct {
	local string
	key   string
}

// Mirror copies finished files under the data dir (archived runs, closed
// journal segments) to the bucket. A key already waiting in the queue is not
// queued twice.
type Mirror struct {
	client *Client
	cfg    MirrorConfig

	jobs chan upload
	wg   sync.WaitGroup

	mu      sync.Mutex
	pending map[string]bool

	enqueued  atomic.Uint64
	dupes     atomic.Uint64
	saturated atomic.Uint64
	dropped   atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
	lastOK    atomic.Int64
	lastErr   atomic.Int64
}

func NewMirror(client *Client, cfg MirrorConfig) *Mirror {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	if cfg.EnqueueWait <= 0 {
		cfg.EnqueueWait = 25 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 200 * time.Millisecond
	}
	cfg.Prefix = strings.Trim(strings.ReplaceAll(cfg.Prefix, "\\", "/"), "/")

	m := &Mirror{
		client:  client,
		cfg:     cfg,
		jobs:    make(chan upload, cfg.QueueCapacity),
		pending: map[string]bool{},
	}
	for i := 0; i < cfg.Workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Enqueue schedules localPath for upload. It may block for at most
// EnqueueWait, so it is safe to call from the game loop.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.client == nil {
		return
	}
	key, err := m.objectKey(localPath)
	if err != nil {
		m.printf("mirror skip local=%s err=%v", localPath, err)
		return
	}
	if !m.claim(key) {
		m.dupes.Add(1)
		return
	}
	m.enqueued.Add(1)

	job := upload{local: localPath, key: key}
	select {
	case m.jobs <- job:
		return
	default:
	}
	m.saturated.Add(1)
	t := time.NewTimer(m.cfg.EnqueueWait)
	defer t.Stop()
	select {
	case m.jobs <- job:
	case <-t.C:
		m.release(key)
		n := m.dropped.Add(1)
		m.printf("mirror drop key=%s queue saturated dropped_total=%d", key, n)
	}
}

// EnqueueRun mirrors an archived run: the snapshot and the meta.json next
// to it.
func (m *Mirror) EnqueueRun(snapshotPath string) {
	if snapshotPath == "" {
		return
	}
	m.Enqueue(snapshotPath)
	m.Enqueue(filepath.Join(filepath.Dir(snapshotPath), "meta.json"))
}

// Close waits for every queued upload to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(m.jobs),
		QueueCapacity:       cap(m.jobs),
		EnqueuedTotal:       m.enqueued.Load(),
		DuplicateTotal:      m.dupes.Load(),
		QueueSaturatedTotal: m.saturated.Load(),
		DroppedTotal:        m.dropped.Load(),
		UploadSuccessTotal:  m.succeeded.Load(),
		UploadFailTotal:     m.failed.Load(),
		LastSuccessUnix:     m.lastOK.Load(),
		LastErrorUnix:       m.lastErr.Load(),
	}
}

func (m *Mirror) worker() {
	defer m.wg.Done()
	for job := range m.jobs {
		m.release(job.key)
		err := m.put(job)
		now := time.Now().Unix()
		if err != nil {
			m.failed.Add(1)
			m.lastErr.Store(now)
			m.printf("mirror upload failed key=%s err=%v", job.key, err)
			continue
		}
		m.succeeded.Add(1)
		m.lastOK.Store(now)
		m.printf("mirror uploaded key=%s", job.key)
	}
}

// put retries with quadratic backoff.
func (m *Mirror) put(job upload) error {
	var err error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.client.PutFile(ctx, job.key, job.local)
		cancel()
		if err == nil {
			return nil
		}
		if attempt < m.cfg.MaxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * m.cfg.RetryBase)
		}
	}
	return err
}

func (m *Mirror) claim(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		m.pending = map[string]bool{}
	}
	if m.pending[key] {
		return false
	}
	m.pending[key] = true
	return true
}

func (m *Mirror) release(key string) {
	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty local path")
	}
	base, err := filepath.Abs(m.cfg.DataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside data dir %s", abs, base)
	}
	if m.cfg.Prefix != "" {
		rel = path.Join(m.cfg.Prefix, rel)
	}
	return rel, nil
}

func (m *Mirror) printf(format string, args ...any) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Printf(format, args...)
	}
}
