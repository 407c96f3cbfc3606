// Package hasher computes content hashes of record payloads.
//
// A payload is canonicalized first (keys sorted, strings NFC-normalized,
// numbers in one form, volatile keys dropped) and then digested with SHA-256,
// so the hash is stable across processes and independent of key order or
// float formatting.
package hasher

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// DefaultVolatileKeys are wall-clock fields that never take part in a content hash.
var DefaultVolatileKeys = []string{
	"produced_at",
	"collected_at",
	"generated_at",
	"processing_date",
	"timestamp",
	"cached_at",
}

// SerializationError reports a payload that cannot be canonicalized.
type SerializationError struct {
	Path   string
	Reason string
}

func (e *SerializationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("hasher: cannot serialize payload: %s", e.Reason)
	}
	return fmt.Sprintf("hasher: cannot serialize payload at %s: %s", e.Path, e.Reason)
}

// Hasher canonicalizes and digests payloads.
type Hasher struct {
	volatile map[string]struct{}
}

// Option customizes a Hasher.
type Option func(*Hasher)

// WithVolatileKeys replaces the set of keys stripped before hashing.
func WithVolatileKeys(keys ...string) Option {
	return func(h *Hasher) {
		h.volatile = make(map[string]struct{}, len(keys))
		for _, k := range keys {
			h.volatile[k] = struct{}{}
		}
	}
}

func New(opts ...Option) *Hasher {
	h := &Hasher{}
	WithVolatileKeys(DefaultVolatileKeys...)(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Canonicalize returns the canonical byte form of payload.
func (h *Hasher) Canonicalize(payload any) ([]byte, error) {
	c := canonicalizer{volatile: h.volatile}
	return c.value("", payload)
}

// Hash returns the hex SHA-256 of the canonical form of payload.
func (h *Hasher) Hash(payload any) (string, error) {
	canonical, err := h.Canonicalize(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// HashRecord hashes a record payload together with its kind discriminator, so a
// theme and a nuance with identical payloads never share a hash.
func (h *Hasher) HashRecord(kind string, payload map[string]any) (string, error) {
	return h.Hash(map[string]any{
		"kind":    kind,
		"payload": payload,
	})
}

// Sum digests an ordered list of strings. Each part is length-prefixed so
// ("ab","c") and ("a","bc") never collide.
func Sum(parts ...string) string {
	d := sha256.New()
	var lenBuf [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(p)))
		d.Write(lenBuf[:])
		d.Write([]byte(p))
	}
	return hex.EncodeToString(d.Sum(nil))
}
