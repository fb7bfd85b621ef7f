package r2s3

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

const sigV4Algorithm = "AWS4-HMAC-SHA256"

// Config addresses one bucket on an S3-compatible store. R2 accepts the
// region "auto".
type Config struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Timeout         time.Duration
}

// Client writes objects with path-style URLs and SigV4 request signing.
type Client struct {
	base   string
	bucket string
	signer signer
	http   *http.Client
}

func New(cfg Config) (*Client, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.Trim(strings.TrimSpace(cfg.Bucket), "/")
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("r2s3: endpoint and bucket are required")
	}
	if strings.TrimSpace(cfg.AccessKeyID) == "" || strings.TrimSpace(cfg.SecretAccessKey) == "" {
		return nil, fmt.Errorf("r2s3: credentials are required")
	}
	if !strings.Contains(cfg.Endpoint, "://") {
		cfg.Endpoint = "https://" + cfg.Endpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("r2s3: bad endpoint %q", cfg.Endpoint)
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Client{
		base:   u.Scheme + "://" + u.Host + strings.TrimRight(u.Path, "/"),
		bucket: cfg.Bucket,
		signer: signer{
			keyID:   strings.TrimSpace(cfg.AccessKeyID),
			secret:  strings.TrimSpace(cfg.SecretAccessKey),
			region:  cfg.Region,
			service: "s3",
		},
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// PutFile uploads the file at localPath as key.
func (c *Client) PutFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("r2s3: %s is not a regular file", localPath)
	}
	return c.PutObject(ctx, key, f, fi.Size())
}

// PutObject hashes body, rewinds it and sends it in one signed PUT.
func (c *Client) PutObject(ctx context.Context, key string, body io.ReadSeeker, size int64) error {
	key = cleanKey(key)
	if key == "" {
		return fmt.Errorf("r2s3: empty object key")
	}
	h := sha256.New()
	if _, err := io.Copy(h, body); err != nil {
		return err
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return err
	}
	payloadHash := hex.EncodeToString(h.Sum(nil))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.base+"/"+c.bucket+"/"+escapeKey(key), body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentTypeFor(key))
	c.signer.sign(req, payloadHash, time.Now())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	return fmt.Errorf("object put failed status=%d key=%s body=%s", resp.StatusCode, key, strings.TrimSpace(string(msg)))
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".zst":
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

// cleanKey rejects keys that climb out of the bucket root.
func cleanKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" {
		return ""
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" || clean == "." {
		return ""
	}
	return clean
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// signer implements AWS Signature Version 4 for unsigned-query requests.
type signer struct {
	keyID   string
	secret  string
	region  string
	service string
}

func (s signer) scope(day string) string {
	return day + "/" + s.region + "/" + s.service + "/aws4_request"
}

func (s signer) sign(req *http.Request, payloadHash string, at time.Time) {
	at = at.UTC()
	stamp := at.Format("20060102T150405Z")
	day := at.Format("20060102")

	req.Header.Set("x-amz-date", stamp)
	req.Header.Set("x-amz-content-sha256", payloadHash)

	const signed = "host;x-amz-content-sha256;x-amz-date"
	canonical := req.Method + "\n" +
		req.URL.EscapedPath() + "\n" +
		req.URL.RawQuery + "\n" +
		"host:" + req.URL.Host + "\n" +
		"x-amz-content-sha256:" + payloadHash + "\n" +
		"x-amz-date:" + stamp + "\n" +
		"\n" +
		signed + "\n" +
		payloadHash

	digest := sha256.Sum256([]byte(canonical))
	toSign := sigV4Algorithm + "\n" + stamp + "\n" + s.scope(day) + "\n" + hex.EncodeToString(digest[:])

	key := []byte("AWS4" + s.secret)
	for _, part := range []string{day, s.region, s.service, "aws4_request"} {
		key = hmacSum(key, part)
	}
	sig := hex.EncodeToString(hmacSum(key, toSign))

	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigV4Algorithm, s.keyID, s.scope(day), signed, sig))
}

func hmacSum(key []byte, data string) []byte {
	m := hmac.New(sha256.New, key)
	m.Write([]byte(data))
	return m.Sum(nil)
}
