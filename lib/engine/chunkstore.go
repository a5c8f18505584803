// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"fmt"

	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// chunkStore reads and mutates the content-addressed chunk partition.
// Chunk bytes are keyed by their BLAKE3 digest and carry an inline
// refcount: the number of live manifests referencing the digest. All
// mutations are staged on a txn so they commit atomically with the
// manifest change that caused them; the final refcount arithmetic
// happens at commit time under the engine's commit lock (see
// txn.materialize).
type chunkStore struct {
	sub substrate.Substrate
}

// put stages body as a content-addressed chunk under digest, adding
// one reference. A digest already stored — in the substrate or staged
// earlier in the same txn — gains the reference without a second copy
// of the bytes. Callers add one reference per referencing manifest,
// not per occurrence; dedup within a manifest is the caller's job.
func (cs *chunkStore) put(tx *txn, digest object.Digest, body []byte) {
	st := tx.chunk(digest)
	st.delta++
	if st.body == nil {
		// Keep the bytes: if the substrate record turns out to be
		// absent at commit time (never written, or swept between our
		// read and the commit), they are what gets written.
		st.body = bytes.Clone(body)
	}
}

// addref stages a +1 on an existing chunk's refcount. The digest must
// exist at commit time.
func (cs *chunkStore) addref(tx *txn, digest object.Digest) {
	tx.chunk(digest).delta++
}

// release stages a -1 on an existing chunk's refcount. A refcount
// reaching zero keeps its record — in-flight readers may still be
// streaming it — and becomes eligible for the GC sweep.
func (cs *chunkStore) release(tx *txn, digest object.Digest) {
	tx.chunk(digest).delta--
}

// sweep stages physical removal of a chunk record, applied at commit
// time only if its refcount is still zero then. Used by GC.
func (cs *chunkStore) sweep(tx *txn, digest object.Digest) {
	tx.sweeps[digest] = true
}

// get reads and verifies a chunk body. Absence and corruption are
// both terminal for the read: a digest is only ever requested because
// a live manifest references it.
func (cs *chunkStore) get(digest object.Digest) ([]byte, error) {
	value, ok, err := cs.sub.Get(substrate.Chunks, digest[:])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", object.ErrChunkMissing, digest)
	}
	_, body, err := object.DecodeChunkRecord(value)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", digest, err)
	}
	if object.DigestOf(body) != digest {
		return nil, fmt.Errorf("%w: record at %s hashes differently", object.ErrDigestMismatch, digest)
	}
	return body, nil
}

// refcount reads a chunk's current refcount. Returns (0, false, nil)
// when the record is absent.
func (cs *chunkStore) refcount(digest object.Digest) (uint64, bool, error) {
	value, ok, err := cs.sub.Get(substrate.Chunks, digest[:])
	if err != nil || !ok {
		return 0, false, err
	}
	refcount, _, err := object.DecodeChunkRecord(value)
	if err != nil {
		return 0, false, fmt.Errorf("chunk %s: %w", digest, err)
	}
	return refcount, true, nil
}
