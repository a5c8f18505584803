// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Metadata record frame. Every value in the meta partition opens with
// a four-byte magic and a one-byte format version. The magic bytes
// spell "wFDB" in ASCII, making records identifiable in hex dumps.
// Changing the layout requires a new format version; decoders reject
// versions they do not know.
const (
	metaMagic         uint32 = 0x77464442
	metaFormatVersion byte   = 0x01
)

// Storage tags inside a metadata record.
const (
	storageTagInline  byte = 0x00
	storageTagChunked byte = 0x01
)

// metaHeaderLen is the fixed-size portion of an encoded record:
// magic(4) + format(1) + version(16) + size(8) + created_at(8) +
// digest(32) + tombstone(1) + storage_tag(1).
const metaHeaderLen = 4 + 1 + 16 + 8 + 8 + 32 + 1 + 1

// MetaKey builds the substrate key for an object's metadata record:
//
//	bucket_len(1) || bucket || 0x00 || key
//
// The length prefix plus separator keeps distinct (bucket, key) pairs
// distinct and keeps all keys of one bucket contiguous in substrate
// order, so a bucket scan is a single range.
func MetaKey(bucket BucketID, key Key) []byte {
	out := make([]byte, 0, 2+len(bucket)+len(key))
	out = append(out, byte(len(bucket)))
	out = append(out, bucket...)
	out = append(out, 0x00)
	out = append(out, key...)
	return out
}

// MetaKeyPrefix builds the substrate key prefix covering every key of
// bucket that starts with keyPrefix. An empty keyPrefix covers the
// whole bucket.
func MetaKeyPrefix(bucket BucketID, keyPrefix []byte) []byte {
	out := make([]byte, 0, 2+len(bucket)+len(keyPrefix))
	out = append(out, byte(len(bucket)))
	out = append(out, bucket...)
	out = append(out, 0x00)
	out = append(out, keyPrefix...)
	return out
}

// SplitMetaKey recovers the object key from an encoded metadata key.
// The bucket is returned as raw bytes without revalidation — substrate
// keys are trusted, having been produced by MetaKey.
func SplitMetaKey(metaKey []byte) (BucketID, Key, error) {
	if len(metaKey) < 3 {
		return "", nil, fmt.Errorf("%w: metadata key too short (%d bytes)", ErrInvariantViolation, len(metaKey))
	}
	bucketLen := int(metaKey[0])
	if bucketLen == 0 || len(metaKey) < 1+bucketLen+2 || metaKey[1+bucketLen] != 0x00 {
		return "", nil, fmt.Errorf("%w: malformed metadata key % x", ErrInvariantViolation, metaKey)
	}
	bucket := BucketID(metaKey[1 : 1+bucketLen])
	key := Key(metaKey[1+bucketLen+1:])
	return bucket, key, nil
}

// EncodeMetadata serializes a metadata record into its persisted
// frame. The layout is a binary contract (see the repository design
// notes); readers of any wflDB data directory depend on it.
func EncodeMetadata(m *Metadata) []byte {
	bodyLen := 0
	switch {
	case m.Chunked():
		bodyLen = 4 + len(m.Manifest)*(32+4)
	default:
		bodyLen = 4 + len(m.Inline)
	}

	out := make([]byte, 0, metaHeaderLen+bodyLen)
	out = binary.BigEndian.AppendUint32(out, metaMagic)
	out = append(out, metaFormatVersion)
	out = append(out, m.Version[:]...)
	out = binary.LittleEndian.AppendUint64(out, m.Size)
	out = binary.LittleEndian.AppendUint64(out, m.CreatedAt)
	out = append(out, m.ContentDigest[:]...)
	if m.Tombstone {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}

	if m.Chunked() {
		out = append(out, storageTagChunked)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(m.Manifest)))
		for _, ref := range m.Manifest {
			out = append(out, ref.Digest[:]...)
			out = binary.LittleEndian.AppendUint32(out, ref.Size)
		}
	} else {
		out = append(out, storageTagInline)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(m.Inline)))
		out = append(out, m.Inline...)
	}
	return out
}

// DecodeMetadata parses a persisted metadata record. Any structural
// defect is reported as an invariant violation — records are written
// only by EncodeMetadata, so a malformed one means corruption.
func DecodeMetadata(value []byte) (*Metadata, error) {
	if len(value) < metaHeaderLen {
		return nil, fmt.Errorf("%w: metadata record truncated at %d bytes", ErrInvariantViolation, len(value))
	}
	if magic := binary.BigEndian.Uint32(value[0:4]); magic != metaMagic {
		return nil, fmt.Errorf("%w: bad metadata magic 0x%08x", ErrInvariantViolation, magic)
	}
	if value[4] != metaFormatVersion {
		return nil, fmt.Errorf("%w: unknown metadata format version %d", ErrInvariantViolation, value[4])
	}

	m := &Metadata{}
	copy(m.Version[:], value[5:21])
	m.Size = binary.LittleEndian.Uint64(value[21:29])
	m.CreatedAt = binary.LittleEndian.Uint64(value[29:37])
	copy(m.ContentDigest[:], value[37:69])
	switch value[69] {
	case 0:
	case 1:
		m.Tombstone = true
	default:
		return nil, fmt.Errorf("%w: bad tombstone byte 0x%02x", ErrInvariantViolation, value[69])
	}

	body := value[metaHeaderLen:]
	switch tag := value[70]; tag {
	case storageTagInline:
		if len(body) < 4 {
			return nil, fmt.Errorf("%w: inline body truncated", ErrInvariantViolation)
		}
		n := binary.LittleEndian.Uint32(body[0:4])
		if uint32(len(body)-4) != n {
			return nil, fmt.Errorf("%w: inline length %d does not match body %d", ErrInvariantViolation, n, len(body)-4)
		}
		if n > 0 {
			m.Inline = bytes.Clone(body[4:])
		}
	case storageTagChunked:
		if len(body) < 4 {
			return nil, fmt.Errorf("%w: manifest truncated", ErrInvariantViolation)
		}
		count := binary.LittleEndian.Uint32(body[0:4])
		const entryLen = 32 + 4
		if uint64(len(body)-4) != uint64(count)*entryLen {
			return nil, fmt.Errorf("%w: manifest length %d does not match %d entries", ErrInvariantViolation, len(body)-4, count)
		}
		m.Manifest = make(Manifest, count)
		for i := range m.Manifest {
			entry := body[4+i*entryLen:]
			copy(m.Manifest[i].Digest[:], entry[0:32])
			m.Manifest[i].Size = binary.LittleEndian.Uint32(entry[32:36])
		}
	default:
		return nil, fmt.Errorf("%w: unknown storage tag 0x%02x", ErrInvariantViolation, tag)
	}
	return m, nil
}

// chunkRecordHeaderLen is refcount(8) + length(4).
const chunkRecordHeaderLen = 8 + 4

// EncodeChunkRecord serializes a chunk record:
//
//	refcount(8, LE) || len(4, LE) || bytes
//
// The refcount lives inline with the payload so a single point read
// returns both, and so refcount updates commit in the same substrate
// batch as the manifest mutation that caused them.
func EncodeChunkRecord(refcount uint64, body []byte) []byte {
	out := make([]byte, 0, chunkRecordHeaderLen+len(body))
	out = binary.LittleEndian.AppendUint64(out, refcount)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}

// DecodeChunkRecord parses a chunk record into its refcount and
// payload. The payload aliases the input value.
func DecodeChunkRecord(value []byte) (refcount uint64, body []byte, err error) {
	if len(value) < chunkRecordHeaderLen {
		return 0, nil, fmt.Errorf("%w: chunk record truncated at %d bytes", ErrInvariantViolation, len(value))
	}
	refcount = binary.LittleEndian.Uint64(value[0:8])
	n := binary.LittleEndian.Uint32(value[8:12])
	if uint32(len(value)-chunkRecordHeaderLen) != n {
		return 0, nil, fmt.Errorf("%w: chunk length %d does not match record %d", ErrInvariantViolation, n, len(value)-chunkRecordHeaderLen)
	}
	return refcount, value[chunkRecordHeaderLen:], nil
}

// PatchChunkRefcount rewrites the refcount field of an encoded chunk
// record in place. Used for addref/release, which must not copy the
// multi-megabyte payload just to bump an eight-byte counter.
func PatchChunkRefcount(value []byte, refcount uint64) error {
	if len(value) < chunkRecordHeaderLen {
		return fmt.Errorf("%w: chunk record truncated at %d bytes", ErrInvariantViolation, len(value))
	}
	binary.LittleEndian.PutUint64(value[0:8], refcount)
	return nil
}
