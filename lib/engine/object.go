// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/blake3"

	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// Put stores body at (bucket, key) and returns the committed version.
// Bodies below the inline threshold are stored inside the metadata
// record; larger bodies stream through the fixed-size chunker into the
// content-addressed chunk store. Either way the object's metadata, the
// chunk mutations, and the release of any replaced manifest commit in
// one atomic batch with the requested durability.
//
// The body stream is consumed exactly once. Cancellation before the
// commit is submitted leaves no trace; after submission the commit
// proceeds.
func (e *Engine) Put(ctx context.Context, bucket string, key []byte, body io.Reader, d substrate.Durability) (object.Version, error) {
	bkt, err := object.ParseBucketID(bucket)
	if err != nil {
		return object.Version{}, err
	}
	k, err := object.ParseKey(key)
	if err != nil {
		return object.Version{}, err
	}
	if err := e.writeGate(); err != nil {
		return object.Version{}, err
	}
	if err := ctx.Err(); err != nil {
		return object.Version{}, err
	}

	tx := e.newTxn()
	hasher := blake3.New()

	// Consume up to the inline threshold. A body that ends before the
	// threshold is stored inline; one that reaches it is chunked.
	head := make([]byte, e.opts.InlineThreshold)
	n, err := io.ReadFull(body, head)
	switch {
	case err == nil:
		// Threshold reached: chunked path.
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		head = head[:n]
	default:
		return object.Version{}, fmt.Errorf("engine: reading body: %w", err)
	}

	meta := &object.Metadata{}
	if len(head) < e.opts.InlineThreshold {
		if e.opts.MaxObjectBytes > 0 && int64(len(head)) > e.opts.MaxObjectBytes {
			return object.Version{}, fmt.Errorf("%w: %d bytes", object.ErrBodyTooLarge, len(head))
		}
		hasher.Write(head)
		meta.Size = uint64(len(head))
		meta.Inline = head
	} else {
		size, manifest, err := e.putChunked(ctx, tx, hasher, io.MultiReader(bytes.NewReader(head), body))
		if err != nil {
			return object.Version{}, err
		}
		meta.Size = size
		meta.Manifest = manifest
	}
	hasher.Sum(meta.ContentDigest[:0])

	// Release the manifest this put replaces. A tombstoned prior
	// already released its chunks at deletion time.
	metaKey := object.MetaKey(bkt, k)
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

	if err := tx.commit(ctx, d); err != nil {
		return object.Version{}, err
	}
	return version, nil
}

// putChunked streams the body through the chunker, staging each chunk
// in the chunk store and accumulating the manifest.
func (e *Engine) putChunked(ctx context.Context, tx *txn, hasher *blake3.Hasher, body io.Reader) (uint64, object.Manifest, error) {
	ck := newChunker(body, e.opts.ChunkSize)
	var (
		manifest object.Manifest
		size     uint64
		seen     = make(map[object.Digest]bool)
	)
	for {
		chunk, err := ck.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, nil, fmt.Errorf("engine: reading body: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		size += uint64(len(chunk))
		if e.opts.MaxObjectBytes > 0 && int64(size) > e.opts.MaxObjectBytes {
			return 0, nil, fmt.Errorf("%w: body exceeds %d bytes", object.ErrBodyTooLarge, e.opts.MaxObjectBytes)
		}
		hasher.Write(chunk)
		digest := object.DigestOf(chunk)
		// One reference per manifest: repeated chunks within this
		// object do not bump the refcount again.
		if !seen[digest] {
			seen[digest] = true
			e.chunks.put(tx, digest, chunk)
		}
		manifest = append(manifest, object.ChunkRef{Digest: digest, Size: uint32(len(chunk))})
	}
	return size, manifest, nil
}

// Get returns the metadata and a body stream for the live object at
// (bucket, key). Chunked bodies are reassembled lazily in manifest
// order, one chunk in memory at a time, each verified against its
// digest. The caller must Close the stream; closing releases the read
// epoch that fences GC.
func (e *Engine) Get(ctx context.Context, bucket string, key []byte) (*object.Metadata, io.ReadCloser, error) {
	bkt, err := object.ParseBucketID(bucket)
	if err != nil {
		return nil, nil, err
	}
	k, err := object.ParseKey(key)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	tok := e.epochs.enter()
	meta, err := e.readMetadata(object.MetaKey(bkt, k))
	if err != nil {
		e.epochs.exit(tok)
		return nil, nil, err
	}
	if meta == nil || meta.Tombstone {
		e.epochs.exit(tok)
		return nil, nil, fmt.Errorf("%w: %s/%s", object.ErrNotFound, bkt, k)
	}

	if !meta.Chunked() {
		// Inline bodies are fully materialized; no epoch needs to
		// outlive this call.
		e.epochs.exit(tok)
		return meta, io.NopCloser(bytes.NewReader(meta.Inline)), nil
	}
	return meta, &chunkReader{eng: e, manifest: meta.Manifest, tok: tok}, nil
}

// Head returns the metadata of the live object at (bucket, key)
// without touching the body.
func (e *Engine) Head(ctx context.Context, bucket string, key []byte) (*object.Metadata, error) {
	bkt, err := object.ParseBucketID(bucket)
	if err != nil {
		return nil, err
	}
	k, err := object.ParseKey(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok := e.epochs.enter()
	defer e.epochs.exit(tok)
	meta, err := e.readMetadata(object.MetaKey(bkt, k))
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.Tombstone {
		return nil, fmt.Errorf("%w: %s/%s", object.ErrNotFound, bkt, k)
	}
	return meta, nil
}

// Delete logically deletes the object at (bucket, key): the metadata
// record becomes a tombstone (preserving version history) and the
// manifest's chunk references are released in the same batch. Physical
// removal is deferred to the GC sweep. Returns false when there was no
// live object to delete.
func (e *Engine) Delete(ctx context.Context, bucket string, key []byte, d substrate.Durability) (bool, error) {
	bkt, err := object.ParseBucketID(bucket)
	if err != nil {
		return false, err
	}
	k, err := object.ParseKey(key)
	if err != nil {
		return false, err
	}
	if err := e.writeGate(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	metaKey := object.MetaKey(bkt, k)
	prior, err := e.readMetadata(metaKey)
	if err != nil {
		return false, err
	}
	if prior == nil || prior.Tombstone {
		return false, nil
	}

	tx := e.newTxn()
	for _, digest := range prior.Manifest.DistinctDigests() {
		e.chunks.release(tx, digest)
	}
	version, err := e.versions.next()
	if err != nil {
		return false, err
	}
	tx.setMeta(metaKey, &object.Metadata{
		Version:       version,
		Size:          prior.Size,
		CreatedAt:     version.Timestamp(),
		ContentDigest: prior.ContentDigest,
		Tombstone:     true,
	})
	if err := tx.commit(ctx, d); err != nil {
		return false, err
	}
	return true, nil
}

// chunkReader streams a chunked body in manifest order. It holds one
// chunk in memory and an epoch token that fences GC until Close.
type chunkReader struct {
	eng      *Engine
	manifest object.Manifest
	tok      epochToken

	next     int    // next manifest entry to fetch
	buf      []byte // unread remainder of the current chunk
	err      error  // sticky failure
	released bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	for len(r.buf) == 0 {
		if r.next >= len(r.manifest) {
			r.fail(io.EOF)
			return 0, io.EOF
		}
		ref := r.manifest[r.next]
		body, err := r.eng.chunks.get(ref.Digest)
		if err != nil {
			err = r.eng.observe(err)
			r.fail(err)
			return 0, err
		}
		if uint32(len(body)) != ref.Size {
			err := r.eng.observe(fmt.Errorf("%w: chunk %s is %d bytes, manifest says %d",
				object.ErrInvariantViolation, ref.Digest, len(body), ref.Size))
			r.fail(err)
			return 0, err
		}
		r.next++
		r.buf = body
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// fail latches a sticky error and releases the epoch token.
func (r *chunkReader) fail(err error) {
	r.err = err
	if !r.released {
		r.released = true
		r.eng.epochs.exit(r.tok)
	}
}

// Close stops the stream and releases the epoch token. Always returns
// nil; safe to call more than once.
func (r *chunkReader) Close() error {
	if r.err == nil {
		r.err = fmt.Errorf("engine: body stream closed")
	}
	if !r.released {
		r.released = true
		r.eng.epochs.exit(r.tok)
	}
	return nil
}

var _ io.ReadCloser = (*chunkReader)(nil)
