// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseBucketID(t *testing.T) {
	valid := []string{"a", "photos", "My-Bucket_01", strings.Repeat("x", 64)}
	for _, name := range valid {
		if _, err := ParseBucketID(name); err != nil {
			t.Errorf("ParseBucketID(%q) = %v, want ok", name, err)
		}
	}

	invalid := []string{"", strings.Repeat("x", 65), "has space", "slash/ed", "dotted.name", "ümlaut"}
	for _, name := range invalid {
		if _, err := ParseBucketID(name); !errors.Is(err, ErrBucketInvalid) {
			t.Errorf("ParseBucketID(%q) = %v, want ErrBucketInvalid", name, err)
		}
	}
}

func TestParseKey(t *testing.T) {
	if _, err := ParseKey([]byte("k")); err != nil {
		t.Errorf("single-byte key rejected: %v", err)
	}
	// Keys are opaque bytes: control characters and non-UTF8 allowed.
	if _, err := ParseKey([]byte{0x00, 0xff, 0x01}); err != nil {
		t.Errorf("binary key rejected: %v", err)
	}
	if _, err := ParseKey(bytes.Repeat([]byte{'k'}, MaxKeyLen)); err != nil {
		t.Errorf("max-length key rejected: %v", err)
	}

	if _, err := ParseKey(nil); !errors.Is(err, ErrKeyInvalid) {
		t.Errorf("empty key accepted")
	}
	if _, err := ParseKey(bytes.Repeat([]byte{'k'}, MaxKeyLen+1)); !errors.Is(err, ErrKeyInvalid) {
		t.Errorf("oversized key accepted")
	}
}

func TestVersionCompare(t *testing.T) {
	lo := testVersion(0x01)
	hi := testVersion(0x02)
	if lo.Compare(hi) >= 0 || hi.Compare(lo) <= 0 || lo.Compare(lo) != 0 {
		t.Error("version comparison is not byte-lexicographic")
	}
	if !(Version{}).IsZero() || lo.IsZero() {
		t.Error("IsZero misreports")
	}
}

func TestDigestOf(t *testing.T) {
	a := DigestOf([]byte("hello"))
	b := DigestOf([]byte("hello"))
	c := DigestOf([]byte("hellp"))
	if a != b {
		t.Error("digest is not deterministic")
	}
	if a == c {
		t.Error("distinct inputs produced equal digests")
	}
	if len(a.String()) != 64 {
		t.Errorf("hex digest length = %d, want 64", len(a.String()))
	}
}

func TestIsCorruption(t *testing.T) {
	for _, err := range []error{ErrDigestMismatch, ErrChunkMissing, ErrInvariantViolation} {
		if !IsCorruption(err) {
			t.Errorf("IsCorruption(%v) = false", err)
		}
	}
	for _, err := range []error{ErrNotFound, ErrSubstrateUnavailable, ErrBodyTooLarge, nil} {
		if IsCorruption(err) {
			t.Errorf("IsCorruption(%v) = true", err)
		}
	}
}
