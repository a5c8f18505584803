// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"encoding/hex"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"
)

// Identifier limits. These are protocol constants — the metadata key
// encoding reserves a single byte for the bucket length, and key bytes
// are embedded in substrate keys unescaped.
const (
	// MaxBucketLen is the maximum byte length of a bucket identifier.
	MaxBucketLen = 64

	// MaxKeyLen is the maximum byte length of an object key.
	MaxKeyLen = 1024
)

// BucketID is a tenant namespace label. Valid bucket identifiers are
// 1..=64 bytes drawn from [A-Za-z0-9_-]. The identifier participates
// in substrate key construction, so validity is enforced at the
// boundary — a BucketID obtained from ParseBucketID is always safe to
// encode.
type BucketID string

// ParseBucketID validates a bucket label and returns it as a BucketID.
func ParseBucketID(s string) (BucketID, error) {
	if len(s) == 0 {
		return "", fmt.Errorf("%w: empty bucket name", ErrBucketInvalid)
	}
	if len(s) > MaxBucketLen {
		return "", fmt.Errorf("%w: bucket name is %d bytes, limit %d", ErrBucketInvalid, len(s), MaxBucketLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			return "", fmt.Errorf("%w: byte 0x%02x at offset %d in %q", ErrBucketInvalid, c, i, s)
		}
	}
	return BucketID(s), nil
}

// String returns the bucket label.
func (b BucketID) String() string { return string(b) }

// Key is an opaque object key within a bucket: 1..=1024 bytes with no
// internal structure. Ordering is pure lexicographic byte comparison.
type Key []byte

// ParseKey validates a key and returns it as a Key. The input is not
// copied; callers that retain the Key must not mutate the source.
func ParseKey(k []byte) (Key, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrKeyInvalid)
	}
	if len(k) > MaxKeyLen {
		return nil, fmt.Errorf("%w: key is %d bytes, limit %d", ErrKeyInvalid, len(k), MaxKeyLen)
	}
	return Key(k), nil
}

// String renders the key for logs and errors. Keys are arbitrary
// bytes; non-ASCII keys render as quoted Go strings.
func (k Key) String() string { return fmt.Sprintf("%q", []byte(k)) }

// Version is a 128-bit ULID-shaped object version: a 48-bit millisecond
// timestamp followed by 80 bits of randomness. Versions sort
// lexicographically by time, and the engine guarantees strict
// per-key monotonicity (see the engine's version source).
type Version ulid.ULID

// ParseVersion parses a version from its canonical ULID text form.
func ParseVersion(s string) (Version, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return Version(id), nil
}

// VersionFromBytes reconstructs a Version from its 16-byte encoding.
func VersionFromBytes(b []byte) (Version, error) {
	if len(b) != 16 {
		return Version{}, fmt.Errorf("version must be 16 bytes, got %d", len(b))
	}
	var v Version
	copy(v[:], b)
	return v, nil
}

// Compare orders two versions lexicographically. The result is -1, 0,
// or +1.
func (v Version) Compare(other Version) int {
	return ulid.ULID(v).Compare(ulid.ULID(other))
}

// Timestamp returns the version's embedded millisecond timestamp.
func (v Version) Timestamp() uint64 { return ulid.ULID(v).Time() }

// IsZero reports whether the version is the zero value. The zero
// version never appears on a committed record.
func (v Version) IsZero() bool { return v == Version{} }

// String renders the version in Crockford base32, the canonical ULID
// text form.
func (v Version) String() string { return ulid.ULID(v).String() }

// Digest is a 32-byte BLAKE3-256 hash. It serves both as the content
// address of a chunk (the dedup key in the chunk partition) and as the
// whole-object content digest in metadata. Truncation is forbidden.
type Digest [32]byte

// DigestOf computes the BLAKE3-256 digest of data.
func DigestOf(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// DigestFromBytes reconstructs a Digest from its 32-byte encoding.
func DigestFromBytes(b []byte) (Digest, error) {
	if len(b) != 32 {
		return Digest{}, fmt.Errorf("digest must be 32 bytes, got %d", len(b))
	}
	var d Digest
	copy(d[:], b)
	return d, nil
}

// String renders the digest as lowercase hex.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }
