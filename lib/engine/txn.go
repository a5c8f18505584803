// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// txn accumulates the logical effects of one engine operation — put,
// delete, coordinator batch, multipart step, or GC slice — before they
// become substrate mutations. Refcount deltas, tombstones, and version
// stamps are all resolved here so the substrate batch carries the full
// set of meta and chunks mutations and commits atomically.
//
// A txn is single-use and not safe for concurrent access. Dropping an
// uncommitted txn has no effect.
type txn struct {
	eng *Engine

	// metas stages metadata writes keyed by the encoded meta key.
	metas map[string]*object.Metadata

	// system stages raw writes/removals in the reserved system
	// keyspace (multipart sessions, GC checkpoint).
	system map[string][]byte

	// chunks stages refcount deltas and, for new chunks, bodies.
	chunks map[object.Digest]*chunkDelta

	// sweeps stages conditional chunk removals (GC only).
	sweeps map[object.Digest]bool

	// metaSweeps stages conditional metadata removals (GC only): the
	// record is deleted only if it still holds the given tombstone
	// version at commit time. A put that revived the key in the
	// meantime wins.
	metaSweeps map[string]object.Version
}

type chunkDelta struct {
	delta int64
	body  []byte // nil when only the refcount changes
}

func (e *Engine) newTxn() *txn {
	return &txn{
		eng:        e,
		metas:      make(map[string]*object.Metadata),
		system:     make(map[string][]byte),
		chunks:     make(map[object.Digest]*chunkDelta),
		sweeps:     make(map[object.Digest]bool),
		metaSweeps: make(map[string]object.Version),
	}
}

// chunk returns the staged delta for digest, creating it.
func (tx *txn) chunk(digest object.Digest) *chunkDelta {
	st, ok := tx.chunks[digest]
	if !ok {
		st = &chunkDelta{}
		tx.chunks[digest] = st
	}
	return st
}

// setMeta stages a metadata record write.
func (tx *txn) setMeta(metaKey []byte, meta *object.Metadata) {
	tx.metas[string(metaKey)] = meta
}

// sweepMeta stages conditional physical removal of a tombstone: the
// record goes only if it still carries this version at commit time.
func (tx *txn) sweepMeta(metaKey []byte, version object.Version) {
	tx.metaSweeps[string(metaKey)] = version
}

// setSystem stages a write in the reserved system keyspace.
func (tx *txn) setSystem(key, value []byte) {
	tx.system[string(key)] = value
}

// removeSystem stages a removal in the reserved system keyspace.
func (tx *txn) removeSystem(key []byte) {
	tx.system[string(key)] = nil
}

// staged reports whether the txn carries a staged metadata write for
// metaKey. Used by the batch coordinator to read through pending
// state.
func (tx *txn) staged(metaKey []byte) (*object.Metadata, bool) {
	meta, ok := tx.metas[string(metaKey)]
	return meta, ok
}

// commit materializes the txn into a substrate batch and applies it
// with the requested durability. Materialization and commit run under
// the engine commit lock: refcount arithmetic reads the substrate and
// must not interleave with another commit's writes.
//
// A context already cancelled on entry aborts with no effect. Once
// the substrate commit is submitted it runs to completion —
// cancellation mid-fsync is not honored, matching the rule that a
// cancelled put after commit-submission still commits.
func (tx *txn) commit(ctx context.Context, d substrate.Durability) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := tx.eng

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	b := e.sub.NewBatch()
	defer b.Close()

	if err := tx.materialize(b); err != nil {
		return e.observe(err)
	}
	size := b.Size()
	if err := e.sub.Commit(b, d); err != nil {
		return e.observe(err)
	}

	if e.bytesSinceSweep.Add(size) >= e.opts.GCTriggerBytes {
		e.bytesSinceSweep.Store(0)
		select {
		case e.gcKick <- struct{}{}:
		default:
		}
	}
	return nil
}

// materialize resolves staged logical effects into raw substrate
// mutations. Caller holds the engine commit lock.
func (tx *txn) materialize(b substrate.Batch) error {
	e := tx.eng

	for digest, st := range tx.chunks {
		if st.delta == 0 {
			continue
		}
		if err := tx.materializeChunk(b, digest, st); err != nil {
			return err
		}
	}

	for digest := range tx.sweeps {
		refcount, ok, err := e.chunks.refcount(digest)
		if err != nil {
			return err
		}
		if ok && refcount == 0 {
			if err := b.Delete(substrate.Chunks, digest[:]); err != nil {
				return err
			}
		}
	}

	for metaKey, version := range tx.metaSweeps {
		value, ok, err := e.sub.Get(substrate.Meta, []byte(metaKey))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		current, err := object.DecodeMetadata(value)
		if err != nil {
			return fmt.Errorf("decoding metadata at % x: %w", metaKey, err)
		}
		if !current.Tombstone || current.Version != version {
			continue
		}
		if err := b.Delete(substrate.Meta, []byte(metaKey)); err != nil {
			return err
		}
	}

	for metaKey, meta := range tx.metas {
		if err := b.Set(substrate.Meta, []byte(metaKey), object.EncodeMetadata(meta)); err != nil {
			return err
		}
	}

	for key, value := range tx.system {
		if value == nil {
			if err := b.Delete(substrate.Meta, []byte(key)); err != nil {
				return err
			}
			continue
		}
		if err := b.Set(substrate.Meta, []byte(key), value); err != nil {
			return err
		}
	}
	return nil
}

// materializeChunk resolves one chunk's refcount delta against the
// substrate's current record.
func (tx *txn) materializeChunk(b substrate.Batch, digest object.Digest, st *chunkDelta) error {
	e := tx.eng

	value, ok, err := e.sub.Get(substrate.Chunks, digest[:])
	if err != nil {
		return err
	}

	if !ok {
		// No record: only a fresh put (which carries the body) may
		// create one.
		if st.delta < 0 {
			return fmt.Errorf("%w: releasing absent chunk %s", object.ErrInvariantViolation, digest)
		}
		if st.body == nil {
			return fmt.Errorf("%w: addref of %s", object.ErrChunkMissing, digest)
		}
		if err := b.Set(substrate.Chunks, digest[:], object.EncodeChunkRecord(uint64(st.delta), st.body)); err != nil {
			return err
		}
		return nil
	}

	refcount, _, err := object.DecodeChunkRecord(value)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", digest, err)
	}
	switch {
	case st.delta > 0 && refcount > math.MaxUint64-uint64(st.delta):
		return fmt.Errorf("%w: refcount overflow on chunk %s", object.ErrInvariantViolation, digest)
	case st.delta < 0 && refcount < uint64(-st.delta):
		return fmt.Errorf("%w: refcount underflow on chunk %s (refcount %d, delta %d)",
			object.ErrInvariantViolation, digest, refcount, st.delta)
	}
	newCount := refcount + uint64(st.delta) // two's complement handles delta < 0
	if err := object.PatchChunkRefcount(value, newCount); err != nil {
		return fmt.Errorf("chunk %s: %w", digest, err)
	}
	return b.Set(substrate.Chunks, digest[:], value)
}
