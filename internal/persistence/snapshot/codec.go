package snapshot

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"lukechampine.com/blake3"
)

// ErrIntegrity covers every way a token can fail to decode: bad encoding,
// MAC mismatch, unknown compression or a body that does not parse.
var ErrIntegrity = errors.New("save data failed integrity check")

type Compression byte

const (
	CompressZstd Compression = 'z'
	CompressLZ4  Compression = 'l'
)

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "zstd", "":
		return CompressZstd, nil
	case "lz4":
		return CompressLZ4, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

func (c Compression) String() string {
	switch c {
	case CompressZstd:
		return "zstd"
	case CompressLZ4:
		return "lz4"
	}
	return fmt.Sprintf("unknown(%d)", byte(c))
}

const macSize = 32

var tokenEncoding = base64.RawURLEncoding.Strict()

// Codec turns saves into opaque tokens and back. A token is
// base64url(mac || tag || compressed JSON), where mac is a keyed BLAKE3 of
// tag || compressed JSON.
type Codec struct {
	key  [32]byte
	comp Compression
}

// NewCodec derives the MAC key from secret. Tokens only decode with a codec
// built from the same secret.
func NewCodec(secret string, comp Compression) *Codec {
	return &Codec{key: blake3.Sum256([]byte("stellarforge save v1:" + secret)), comp: comp}
}

// Fingerprint identifies the key without revealing it.
func (c *Codec) Fingerprint() string {
	sum := sha256.Sum256(c.key[:])
	return fmt.Sprintf("%x", sum[:4])
}

func (c *Codec) mac(body []byte) []byte {
	h := blake3.New(macSize, c.key[:])
	_, _ = h.Write(body)
	return h.Sum(nil)
}

func (c *Codec) Encode(s SaveV1) (string, error) {
	return c.EncodeWith(s, c.comp)
}

// EncodeWith encodes using an explicit compression, e.g. lz4 for frequent
// autosaves and zstd for exports.
func (c *Codec) EncodeWith(s SaveV1, comp Compression) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	packed, err := compress(comp, raw)
	if err != nil {
		return "", err
	}
	body := make([]byte, 0, 1+len(packed))
	body = append(body, byte(comp))
	body = append(body, packed...)

	out := make([]byte, 0, macSize+len(body))
	out = append(out, c.mac(body)...)
	out = append(out, body...)
	return tokenEncoding.EncodeToString(out), nil
}

func (c *Codec) Decode(token string) (SaveV1, error) {
	var s SaveV1
	// The base64 decoder skips CR/LF; a token must not contain them at all.
	if strings.ContainsAny(token, "\r\n") {
		return s, ErrIntegrity
	}
	buf, err := tokenEncoding.DecodeString(token)
	if err != nil || len(buf) < macSize+1 {
		return s, ErrIntegrity
	}
	mac, body := buf[:macSize], buf[macSize:]
	if subtle.ConstantTimeCompare(mac, c.mac(body)) != 1 {
		return s, ErrIntegrity
	}
	raw, err := decompress(Compression(body[0]), body[1:])
	if err != nil {
		return s, ErrIntegrity
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return SaveV1{}, ErrIntegrity
	}
	if s.Version != Version {
		return SaveV1{}, ErrIntegrity
	}
	return s, nil
}

func compress(comp Compression, raw []byte) ([]byte, error) {
	switch comp {
	case CompressZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case CompressLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown compression %v", comp)
}

const maxDecoded = 16 << 20

func decompress(comp Compression, packed []byte) ([]byte, error) {
	switch comp {
	case CompressZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecoded))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(packed, nil)
	case CompressLZ4:
		return io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(packed)), maxDecoded))
	}
	return nil, fmt.Errorf("unknown compression %v", comp)
}
