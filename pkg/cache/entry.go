package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"travel-intel/pkg/hasher"
)

// Tier names where an entry was served from.
type Tier string

const (
	TierMemory  Tier = "memory"
	TierDurable Tier = "durable"
)

// Entry is one cached value with its TTL bookkeeping.
type Entry struct {
	Key      string
	Value    []byte
	StoredAt time.Time
	TTL      time.Duration
	Tier     Tier
}

// ExpiresAt is the zero time for entries without a TTL.
func (e Entry) ExpiresAt() time.Time {
	if e.TTL <= 0 {
		return time.Time{}
	}
	return e.StoredAt.Add(e.TTL)
}

func (e Entry) Expired(now time.Time) bool {
	exp := e.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

var ErrInvalidKey = errors.New("cache: invalid key")

// Key derives a cache key from the destination, the pipeline stage and a hash
// of every semantically relevant input. inputHash is mandatory: a key built
// from the destination alone would serve stale results for differently
// sourced reruns.
func Key(destinationID, stage, inputHash string) (string, error) {
	destinationID = strings.TrimSpace(destinationID)
	stage = strings.ToLower(strings.TrimSpace(stage))
	inputHash = strings.TrimSpace(inputHash)
	switch {
	case destinationID == "":
		return "", fmt.Errorf("%w: empty destination", ErrInvalidKey)
	case stage == "":
		return "", fmt.Errorf("%w: empty stage", ErrInvalidKey)
	case inputHash == "":
		return "", fmt.Errorf("%w: empty input hash for %s/%s", ErrInvalidKey, destinationID, stage)
	}
	return stage + ":" + hasher.Sum(destinationID, stage, inputHash), nil
}

// envelope is the on-disk and on-redis form of an entry.
type envelope struct {
	Key       string    `json:"key"`
	StoredAt  time.Time `json:"stored_at"`
	TTLMillis int64     `json:"ttl_ms"`
	Encoding  string    `json:"encoding"`
	Value     []byte    `json:"value"`
}

const encodingZstd = "zstd"

// codec compresses values with zstd inside a JSON envelope. EncodeAll and
// DecodeAll are safe for concurrent use.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newCodec() (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("cache: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("cache: zstd decoder: %w", err)
	}
	return &codec{enc: enc, dec: dec}, nil
}

func (c *codec) encode(e Entry) ([]byte, error) {
	env := envelope{
		Key:       e.Key,
		StoredAt:  e.StoredAt.UTC(),
		TTLMillis: e.TTL.Milliseconds(),
		Encoding:  encodingZstd,
		Value:     c.enc.EncodeAll(e.Value, nil),
	}
	return json.Marshal(env)
}

func (c *codec) decode(raw []byte) (Entry, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Entry{}, fmt.Errorf("cache: corrupt envelope: %w", err)
	}
	value := env.Value
	switch env.Encoding {
	case encodingZstd:
		out, err := c.dec.DecodeAll(env.Value, nil)
		if err != nil {
			return Entry{}, fmt.Errorf("cache: corrupt value for %s: %w", env.Key, err)
		}
		value = out
	case "":
	default:
		return Entry{}, fmt.Errorf("cache: unknown encoding %q", env.Encoding)
	}
	return Entry{
		Key:      env.Key,
		Value:    value,
		StoredAt: env.StoredAt,
		TTL:      time.Duration(env.TTLMillis) * time.Millisecond,
		Tier:     TierDurable,
	}, nil
}

func (c *codec) close() {
	c.enc.Close()
	c.dec.Close()
}
