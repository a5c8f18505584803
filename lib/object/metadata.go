// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package object

// ChunkRef is one manifest entry: the content address of a chunk and
// its byte length. Chunks are fixed-size except the final entry, which
// may be shorter.
type ChunkRef struct {
	Digest Digest
	Size   uint32
}

// Manifest is the ordered chunk list of a chunked object. The
// concatenation of chunk bytes in manifest order equals the full
// object body.
type Manifest []ChunkRef

// TotalSize returns the sum of chunk sizes, which must equal the
// object's metadata size.
func (m Manifest) TotalSize() uint64 {
	var total uint64
	for _, ref := range m {
		total += uint64(ref.Size)
	}
	return total
}

// DistinctDigests returns the manifest's digests with duplicates
// removed, in first-occurrence order. Chunk refcounts count manifests,
// not occurrences: a manifest referencing the same digest five times
// holds one reference, so refcount bookkeeping iterates distinct
// digests.
func (m Manifest) DistinctDigests() []Digest {
	seen := make(map[Digest]bool, len(m))
	out := make([]Digest, 0, len(m))
	for _, ref := range m {
		if seen[ref.Digest] {
			continue
		}
		seen[ref.Digest] = true
		out = append(out, ref.Digest)
	}
	return out
}

// Metadata is the per-key record stored in the meta partition. A key's
// live value is the record with the highest version and Tombstone
// false; a tombstoned record marks logical deletion pending GC.
type Metadata struct {
	// Version orders writes to the same key. Strictly increasing per
	// key; assigned at commit time.
	Version Version

	// Size is the total object byte length.
	Size uint64

	// CreatedAt is the commit wall-clock time in milliseconds since
	// the Unix epoch. For tombstones this is the deletion time, which
	// anchors the GC grace period.
	CreatedAt uint64

	// ContentDigest is the BLAKE3 digest of the full object body.
	ContentDigest Digest

	// Tombstone marks the key logically deleted. The record remains
	// until the GC sweep physically removes it.
	Tombstone bool

	// Inline holds the object body when it is stored inline (size
	// below the inline threshold). Nil for chunked objects. Tombstones
	// carry neither inline bytes nor a manifest.
	Inline []byte

	// Manifest lists the object's chunks in order. Nil for inline
	// objects and tombstones.
	Manifest Manifest
}

// Chunked reports whether the object body lives in the chunk
// partition rather than inline in the record.
func (m *Metadata) Chunked() bool { return m.Manifest != nil }

// Live reports whether this record is a readable object version (not
// a tombstone).
func (m *Metadata) Live() bool { return !m.Tombstone }
