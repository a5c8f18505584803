// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/wfldb-foundation/wfldb/lib/codec"
	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// Multipart upload: a large object assembled from independently
// uploaded parts, finalized by a single atomic commit. Part bodies
// flow through the chunk store as they arrive — each part holds one
// reference per distinct chunk digest — and completion splices the
// part manifests into the object manifest, transferring ownership of
// those references to the object. Session records live in the reserved
// system keyspace as CBOR, outside the metadata record contract.

// multipartSession is the persisted state of one open upload.
type multipartSession struct {
	ID        string        `cbor:"id"`
	Bucket    string        `cbor:"bucket"`
	Key       []byte        `cbor:"key"`
	CreatedAt uint64        `cbor:"created_at_ms"`
	Parts     []sessionPart `cbor:"parts"`
}

type sessionPart struct {
	Number uint32         `cbor:"number"`
	Size   uint64         `cbor:"size"`
	Digest []byte         `cbor:"digest"`
	Chunks []sessionChunk `cbor:"chunks"`
}

type sessionChunk struct {
	Digest []byte `cbor:"digest"`
	Size   uint32 `cbor:"size"`
}

// PartInfo describes one uploaded part.
type PartInfo struct {
	Number uint32
	Size   uint64
	Digest object.Digest
}

func decodeSession(value []byte) (*multipartSession, error) {
	var session multipartSession
	if err := codec.Unmarshal(value, &session); err != nil {
		return nil, fmt.Errorf("%w: decoding multipart session: %v", object.ErrInvariantViolation, err)
	}
	return &session, nil
}

// readSession loads a session by upload ID.
func (e *Engine) readSession(uploadID string) (*multipartSession, error) {
	value, ok, err := e.sub.Get(substrate.Meta, multipartKey(uploadID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", object.ErrUploadNotFound, uploadID)
	}
	session, err := decodeSession(value)
	if err != nil {
		return nil, e.observe(err)
	}
	return session, nil
}

// stageSession stages a session write on tx.
func (tx *txn) stageSession(session *multipartSession) error {
	encoded, err := codec.Marshal(session)
	if err != nil {
		return fmt.Errorf("engine: encoding multipart session: %w", err)
	}
	tx.setSystem(multipartKey(session.ID), encoded)
	return nil
}

// CreateMultipart opens a multipart upload targeting (bucket, key)
// and returns its upload ID. The target object is untouched until
// CompleteMultipart commits.
func (e *Engine) CreateMultipart(ctx context.Context, bucket string, key []byte) (string, error) {
	bkt, err := object.ParseBucketID(bucket)
	if err != nil {
		return "", err
	}
	k, err := object.ParseKey(key)
	if err != nil {
		return "", err
	}
	if err := e.writeGate(); err != nil {
		return "", err
	}

	session := &multipartSession{
		ID:        uuid.NewString(),
		Bucket:    bkt.String(),
		Key:       append([]byte(nil), k...),
		CreatedAt: e.nowMillis(),
	}
	tx := e.newTxn()
	if err := tx.stageSession(session); err != nil {
		return "", err
	}
	if err := tx.commit(ctx, substrate.Buffered); err != nil {
		return "", err
	}
	return session.ID, nil
}

// UploadPart stores one part of an open upload. Parts may arrive in
// any order and may be re-uploaded; a repeated part number replaces
// the earlier body. Every part except the object's final one must be
// a multiple of the chunk size, so the spliced manifest keeps its
// fixed chunk boundaries — CompleteMultipart enforces this.
func (e *Engine) UploadPart(ctx context.Context, uploadID string, partNumber uint32, body io.Reader) (*PartInfo, error) {
	if err := e.writeGate(); err != nil {
		return nil, err
	}
	if partNumber < 1 {
		return nil, fmt.Errorf("%w: part number %d, must be >= 1", object.ErrUploadIncomplete, partNumber)
	}
	session, err := e.readSession(uploadID)
	if err != nil {
		return nil, err
	}

	tx := e.newTxn()
	hasher := blake3.New()
	ck := newChunker(body, e.opts.ChunkSize)
	part := sessionPart{Number: partNumber}
	seen := make(map[object.Digest]bool)
	for {
		chunk, err := ck.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("engine: reading part body: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		part.Size += uint64(len(chunk))
		if e.opts.MaxObjectBytes > 0 && int64(part.Size) > e.opts.MaxObjectBytes {
			return nil, fmt.Errorf("%w: part exceeds %d bytes", object.ErrBodyTooLarge, e.opts.MaxObjectBytes)
		}
		hasher.Write(chunk)
		digest := object.DigestOf(chunk)
		// One staged reference per part, however many times the part
		// repeats the chunk.
		if !seen[digest] {
			seen[digest] = true
			e.chunks.put(tx, digest, chunk)
		}
		part.Chunks = append(part.Chunks, sessionChunk{Digest: digest[:], Size: uint32(len(chunk))})
	}
	part.Digest = hasher.Sum(nil)

	// A re-upload of the same part number releases the chunks of the
	// replaced body.
	kept := session.Parts[:0]
	for _, existing := range session.Parts {
		if existing.Number == partNumber {
			releasePartChunks(e, tx, existing)
			continue
		}
		kept = append(kept, existing)
	}
	session.Parts = append(kept, part)
	sort.Slice(session.Parts, func(i, j int) bool {
		return session.Parts[i].Number < session.Parts[j].Number
	})

	if err := tx.stageSession(session); err != nil {
		return nil, err
	}
	if err := tx.commit(ctx, substrate.Buffered); err != nil {
		return nil, err
	}

	info := &PartInfo{Number: partNumber, Size: part.Size}
	copy(info.Digest[:], part.Digest)
	return info, nil
}

// releasePartChunks releases the part's staged references: one per
// distinct digest, mirroring what UploadPart acquired.
func releasePartChunks(e *Engine, tx *txn, part sessionPart) {
	for _, digest := range partDistinctDigests(part) {
		e.chunks.release(tx, digest)
	}
}

func partDistinctDigests(part sessionPart) []object.Digest {
	seen := make(map[object.Digest]bool, len(part.Chunks))
	out := make([]object.Digest, 0, len(part.Chunks))
	for _, c := range part.Chunks {
		digest, err := object.DigestFromBytes(c.Digest)
		if err != nil {
			continue
		}
		if seen[digest] {
			continue
		}
		seen[digest] = true
		out = append(out, digest)
	}
	return out
}

// CompleteMultipart validates the uploaded parts — contiguous numbers
// from 1, chunk-aligned sizes except the final part — splices their
// manifests into one object manifest, and commits the object with the
// requested durability. The whole completion is one atomic batch:
// object metadata, release of any replaced manifest, and removal of
// the session record.
func (e *Engine) CompleteMultipart(ctx context.Context, uploadID string, d substrate.Durability) (object.Version, error) {
	if err := e.writeGate(); err != nil {
		return object.Version{}, err
	}
	session, err := e.readSession(uploadID)
	if err != nil {
		return object.Version{}, err
	}
	if len(session.Parts) == 0 {
		return object.Version{}, fmt.Errorf("%w: no parts uploaded", object.ErrUploadIncomplete)
	}
	for i, part := range session.Parts {
		if part.Number != uint32(i+1) {
			return object.Version{}, fmt.Errorf("%w: part numbers not contiguous at %d", object.ErrUploadIncomplete, part.Number)
		}
		if i < len(session.Parts)-1 && part.Size%uint64(e.opts.ChunkSize) != 0 {
			return object.Version{}, fmt.Errorf("%w: part %d size %d is not a multiple of the chunk size %d",
				object.ErrUploadIncomplete, part.Number, part.Size, e.opts.ChunkSize)
		}
	}

	var (
		manifest object.Manifest
		size     uint64
	)
	for _, part := range session.Parts {
		for _, c := range part.Chunks {
			digest, err := object.DigestFromBytes(c.Digest)
			if err != nil {
				return object.Version{}, e.observe(fmt.Errorf("%w: session chunk digest", object.ErrInvariantViolation))
			}
			manifest = append(manifest, object.ChunkRef{Digest: digest, Size: c.Size})
		}
		size += part.Size
	}
	if e.opts.MaxObjectBytes > 0 && int64(size) > e.opts.MaxObjectBytes {
		return object.Version{}, fmt.Errorf("%w: assembled object is %d bytes", object.ErrBodyTooLarge, size)
	}

	// The object's content digest covers the full body; stream the
	// chunks through the hasher one at a time.
	hasher := blake3.New()
	for _, ref := range manifest {
		chunk, err := e.chunks.get(ref.Digest)
		if err != nil {
			return object.Version{}, e.observe(err)
		}
		hasher.Write(chunk)
	}

	tx := e.newTxn()
	meta := &object.Metadata{Size: size}
	hasher.Sum(meta.ContentDigest[:0])

	// The session holds one reference per (part, digest) pair; the
	// finished object must hold exactly one per distinct digest —
	// refcounts count referencing manifests. Reconcile the surplus.
	sessionRefs := make(map[object.Digest]int)
	for _, part := range session.Parts {
		for _, digest := range partDistinctDigests(part) {
			sessionRefs[digest]++
		}
	}

	if size < uint64(e.opts.InlineThreshold) {
		// Small assembled objects are stored inline, honoring the
		// inline-iff-below-threshold invariant. Every staged part
		// reference is dropped.
		inline := make([]byte, 0, size)
		for _, ref := range manifest {
			chunk, err := e.chunks.get(ref.Digest)
			if err != nil {
				return object.Version{}, e.observe(err)
			}
			inline = append(inline, chunk...)
		}
		meta.Inline = inline
		for digest, refs := range sessionRefs {
			for i := 0; i < refs; i++ {
				e.chunks.release(tx, digest)
			}
		}
	} else {
		// The object manifest takes over one reference per digest;
		// extra per-part references are released here, and the
		// session removal below releases nothing.
		meta.Manifest = manifest
		for digest, refs := range sessionRefs {
			for i := 0; i < refs-1; i++ {
				e.chunks.release(tx, digest)
			}
		}
	}

	bkt := object.BucketID(session.Bucket)
	metaKey := object.MetaKey(bkt, object.Key(session.Key))
	prior, err := e.readMetadata(metaKey)
	if err != nil {
		return object.Version{}, err
	}
	if prior != nil && prior.Live() {
		for _, digest := range prior.Manifest.DistinctDigests() {
			e.chunks.release(tx, digest)
		}
	}

	version, err := e.versions.next()
	if err != nil {
		return object.Version{}, err
	}
	meta.Version = version
	meta.CreatedAt = version.Timestamp()
	tx.setMeta(metaKey, meta)
	tx.removeSystem(multipartKey(session.ID))

	if err := tx.commit(ctx, d); err != nil {
		return object.Version{}, err
	}
	return version, nil
}

// AbortMultipart discards an open upload, releasing every part's
// chunk references and removing the session record. Aborting an
// unknown upload is an error; aborting twice reports the second as
// unknown.
func (e *Engine) AbortMultipart(ctx context.Context, uploadID string) error {
	if err := e.writeGate(); err != nil {
		return err
	}
	session, err := e.readSession(uploadID)
	if err != nil {
		return err
	}
	tx := e.newTxn()
	e.abortSessionTx(tx, session)
	return tx.commit(ctx, substrate.Buffered)
}

// abortSessionTx stages the release of a session's chunk references
// and the removal of its record. Shared by AbortMultipart and the GC
// sweep's TTL expiry.
func (e *Engine) abortSessionTx(tx *txn, session *multipartSession) {
	for _, part := range session.Parts {
		releasePartChunks(e, tx, part)
	}
	tx.removeSystem(multipartKey(session.ID))
}
