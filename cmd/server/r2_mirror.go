package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"stellarforge.dev/internal/persistence/r2s3"
)

// r2MirrorRuntime is nil-safe: with the mirror disabled every method is a
// no-op, so callers never branch on it.
type r2MirrorRuntime struct {
	mirror *r2s3.Mirror
}

func buildR2MirrorRuntime(dataDir string, logger *log.Logger) (*r2MirrorRuntime, error) {
	if !envBool("SF_R2_MIRROR", false) {
		return nil, nil
	}
	cfg := r2s3.Config{
		Endpoint:        os.Getenv("SF_R2_ENDPOINT"),
		Bucket:          os.Getenv("SF_R2_BUCKET"),
		AccessKeyID:     os.Getenv("SF_R2_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("SF_R2_SECRET_ACCESS_KEY"),
		Region:          strings.TrimSpace(os.Getenv("SF_R2_REGION")),
	}
	client, err := r2s3.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("SF_R2_MIRROR is set: %w", err)
	}
	m := r2s3.NewMirror(client, r2s3.MirrorConfig{
		DataDir:       dataDir,
		Prefix:        os.Getenv("SF_R2_PREFIX"),
		Workers:       envInt("SF_R2_UPLOAD_WORKERS", 2),
		QueueCapacity: envInt("SF_R2_QUEUE_CAPACITY", 256),
		EnqueueWait:   time.Duration(envInt("SF_R2_ENQUEUE_WAIT_MS", 25)) * time.Millisecond,
		Logger:        logger,
	})
	logger.Printf("r2 mirror enabled bucket=%s", strings.TrimSpace(cfg.Bucket))
	return &r2MirrorRuntime{mirror: m}, nil
}

func (r *r2MirrorRuntime) Close() {
	if r != nil {
		r.mirror.Close()
	}
}

func (r *r2MirrorRuntime) Enqueue(localPath string) {
	if r != nil {
		r.mirror.Enqueue(localPath)
	}
}

func (r *r2MirrorRuntime) EnqueueRun(snapshotPath string) {
	if r != nil {
		r.mirror.EnqueueRun(snapshotPath)
	}
}

func (r *r2MirrorRuntime) Stats() (r2s3.Stats, bool) {
	if r == nil {
		return r2s3.Stats{}, false
	}
	return r.mirror.Stats(), true
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return b
}

// envInt returns def for unset, malformed or non-positive values.
func envInt(key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
