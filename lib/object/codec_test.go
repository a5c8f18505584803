// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func testVersion(b byte) Version {
	var v Version
	for i := range v {
		v[i] = b
	}
	return v
}

func TestMetaKeyLayout(t *testing.T) {
	key := MetaKey("photos", Key("a.txt"))

	want := append([]byte{6}, []byte("photos")...)
	want = append(want, 0x00)
	want = append(want, []byte("a.txt")...)
	if !bytes.Equal(key, want) {
		t.Errorf("MetaKey = % x, want % x", key, want)
	}

	bucket, k, err := SplitMetaKey(key)
	if err != nil {
		t.Fatalf("SplitMetaKey failed: %v", err)
	}
	if bucket != "photos" || string(k) != "a.txt" {
		t.Errorf("SplitMetaKey = (%q, %s)", bucket, k)
	}
}

func TestMetaKeyOrderingMatchesKeyOrdering(t *testing.T) {
	// Within one bucket, substrate key order must equal object key
	// order — prefix scans depend on it.
	keys := []string{"a", "ab", "ac", "b", "b\x00", "b\xff"}
	for i := 1; i < len(keys); i++ {
		prev := MetaKey("t", Key(keys[i-1]))
		cur := MetaKey("t", Key(keys[i]))
		if bytes.Compare(prev, cur) >= 0 {
			t.Errorf("MetaKey(%q) >= MetaKey(%q)", keys[i-1], keys[i])
		}
	}
}

func TestMetaKeyBucketsDoNotInterleave(t *testing.T) {
	// A long key in bucket "a" must never sort into bucket "ab"'s
	// range. The length prefix plus 0x00 separator guarantees it.
	inA := MetaKey("a", Key(bytes.Repeat([]byte{0xff}, 32)))
	prefixAB := MetaKeyPrefix("ab", nil)
	if bytes.HasPrefix(inA, prefixAB) {
		t.Error("bucket a key sorted under bucket ab prefix")
	}
}

func TestMetadataFrameGoldenBytes(t *testing.T) {
	m := &Metadata{
		Version:       testVersion(0x11),
		Size:          5,
		CreatedAt:     0x0102030405060708,
		ContentDigest: DigestOf([]byte("hello")),
		Inline:        []byte("hello"),
	}
	enc := EncodeMetadata(m)

	// Frame header: magic "wFDB" then format version 0x01.
	if !bytes.Equal(enc[0:4], []byte{0x77, 0x46, 0x44, 0x42}) {
		t.Errorf("magic bytes = % x, want 77 46 44 42", enc[0:4])
	}
	if enc[4] != 0x01 {
		t.Errorf("format version = %d, want 1", enc[4])
	}
	if !bytes.Equal(enc[5:21], m.Version[:]) {
		t.Errorf("version field = % x", enc[5:21])
	}
	if got := binary.LittleEndian.Uint64(enc[21:29]); got != 5 {
		t.Errorf("size field = %d, want 5", got)
	}
	if got := binary.LittleEndian.Uint64(enc[29:37]); got != m.CreatedAt {
		t.Errorf("created_at field = %d", got)
	}
	if enc[69] != 0 {
		t.Errorf("tombstone byte = %d, want 0", enc[69])
	}
	if enc[70] != 0x00 {
		t.Errorf("storage tag = %d, want inline", enc[70])
	}
	if got := binary.LittleEndian.Uint32(enc[71:75]); got != 5 {
		t.Errorf("inline length = %d, want 5", got)
	}
	if !bytes.Equal(enc[75:], []byte("hello")) {
		t.Errorf("inline bytes = %q", enc[75:])
	}
}

func TestMetadataRoundTripInline(t *testing.T) {
	m := &Metadata{
		Version:       testVersion(0x22),
		Size:          11,
		CreatedAt:     1700000000000,
		ContentDigest: DigestOf([]byte("hello world")),
		Inline:        []byte("hello world"),
	}
	got, err := DecodeMetadata(EncodeMetadata(m))
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if got.Version != m.Version || got.Size != m.Size || got.CreatedAt != m.CreatedAt {
		t.Errorf("header fields changed: %+v", got)
	}
	if got.ContentDigest != m.ContentDigest {
		t.Error("content digest changed")
	}
	if got.Chunked() {
		t.Error("inline record decoded as chunked")
	}
	if !bytes.Equal(got.Inline, m.Inline) {
		t.Errorf("inline body = %q", got.Inline)
	}
}

func TestMetadataRoundTripChunked(t *testing.T) {
	m := &Metadata{
		Version:       testVersion(0x33),
		Size:          10 << 20,
		CreatedAt:     1700000000001,
		ContentDigest: DigestOf([]byte("stand-in")),
		Manifest: Manifest{
			{Digest: DigestOf([]byte("c1")), Size: 4 << 20},
			{Digest: DigestOf([]byte("c2")), Size: 4 << 20},
			{Digest: DigestOf([]byte("c3")), Size: 2 << 20},
		},
	}
	got, err := DecodeMetadata(EncodeMetadata(m))
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if !got.Chunked() {
		t.Fatal("chunked record decoded as inline")
	}
	if len(got.Manifest) != 3 {
		t.Fatalf("manifest has %d entries, want 3", len(got.Manifest))
	}
	for i := range m.Manifest {
		if got.Manifest[i] != m.Manifest[i] {
			t.Errorf("manifest[%d] = %+v, want %+v", i, got.Manifest[i], m.Manifest[i])
		}
	}
	if got.Manifest.TotalSize() != m.Size {
		t.Errorf("manifest total %d != size %d", got.Manifest.TotalSize(), m.Size)
	}
}

func TestMetadataRoundTripTombstone(t *testing.T) {
	m := &Metadata{
		Version:   testVersion(0x44),
		Size:      123,
		CreatedAt: 1700000000002,
		Tombstone: true,
	}
	got, err := DecodeMetadata(EncodeMetadata(m))
	if err != nil {
		t.Fatalf("DecodeMetadata failed: %v", err)
	}
	if !got.Tombstone {
		t.Error("tombstone flag lost")
	}
	if got.Live() {
		t.Error("tombstone reported live")
	}
	if len(got.Inline) != 0 || got.Chunked() {
		t.Error("tombstone carries a body")
	}
}

func TestDecodeMetadataRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"empty":       {},
		"short":       {0x77, 0x46, 0x44},
		"bad magic":   append([]byte{0xde, 0xad, 0xbe, 0xef}, make([]byte, 80)...),
		"bad version": append([]byte{0x77, 0x46, 0x44, 0x42, 0x09}, make([]byte, 80)...),
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeMetadata(value); !errors.Is(err, ErrInvariantViolation) {
				t.Errorf("DecodeMetadata(%s) = %v, want invariant violation", name, err)
			}
		})
	}

	// Truncated manifest: claim two entries, supply one.
	m := &Metadata{
		Version:  testVersion(0x55),
		Size:     8,
		Manifest: Manifest{{Digest: DigestOf([]byte("x")), Size: 8}},
	}
	enc := EncodeMetadata(m)
	binary.LittleEndian.PutUint32(enc[71:75], 2)
	if _, err := DecodeMetadata(enc); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("truncated manifest decoded: %v", err)
	}
}

func TestChunkRecordRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte{0xab}, 1024)
	enc := EncodeChunkRecord(7, body)

	if got := binary.LittleEndian.Uint64(enc[0:8]); got != 7 {
		t.Errorf("refcount field = %d, want 7", got)
	}
	if got := binary.LittleEndian.Uint32(enc[8:12]); got != 1024 {
		t.Errorf("length field = %d, want 1024", got)
	}

	refcount, decoded, err := DecodeChunkRecord(enc)
	if err != nil {
		t.Fatalf("DecodeChunkRecord failed: %v", err)
	}
	if refcount != 7 {
		t.Errorf("refcount = %d, want 7", refcount)
	}
	if !bytes.Equal(decoded, body) {
		t.Error("chunk body changed in round trip")
	}
}

func TestPatchChunkRefcount(t *testing.T) {
	enc := EncodeChunkRecord(1, []byte("payload"))
	if err := PatchChunkRefcount(enc, 42); err != nil {
		t.Fatalf("PatchChunkRefcount failed: %v", err)
	}
	refcount, body, err := DecodeChunkRecord(enc)
	if err != nil {
		t.Fatalf("DecodeChunkRecord failed: %v", err)
	}
	if refcount != 42 {
		t.Errorf("refcount = %d, want 42", refcount)
	}
	if string(body) != "payload" {
		t.Errorf("body = %q, payload corrupted by patch", body)
	}
}

func TestDecodeChunkRecordRejectsLengthMismatch(t *testing.T) {
	enc := EncodeChunkRecord(1, []byte("payload"))
	if _, _, err := DecodeChunkRecord(enc[:len(enc)-2]); !errors.Is(err, ErrInvariantViolation) {
		t.Errorf("truncated chunk record decoded: %v", err)
	}
}
