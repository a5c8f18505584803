// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wfldb-foundation/wfldb/lib/codec"
	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// gcSliceSize bounds the mutations per GC transaction. The sweep
// commits in bounded slices so an interrupted sweep leaves a prefix
// of its work durably applied and the rest for the next run —
// interruption never violates invariants, only defers reclamation.
const gcSliceSize = 128

// gcCheckpoint records the outcome of the last completed sweep in the
// reserved system keyspace. Informational: the sweep itself is a full
// rescan and needs no cursor to resume correctly.
type gcCheckpoint struct {
	CompletedAt       uint64 `cbor:"completed_at_ms"`
	TombstonesRemoved int    `cbor:"tombstones_removed"`
	ChunksRemoved     int    `cbor:"chunks_removed"`
	SessionsAborted   int    `cbor:"sessions_aborted"`
}

// gcLoop drives scheduled sweeps until Close. Early sweeps are kicked
// after GCTriggerBytes of committed batch volume.
func (e *Engine) gcLoop() {
	defer e.gcDone.Done()
	ticker := e.clk.NewTicker(e.opts.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.gcStop:
			return
		case <-ticker.C:
		case <-e.gcKick:
		}
		if err := e.Sweep(context.Background()); err != nil {
			e.log.Warn("gc sweep failed", "error", err)
		}
	}
}

// Sweep runs one garbage collection pass: it physically removes
// tombstoned metadata older than the grace period, chunk records
// whose refcount is zero, and multipart sessions past their TTL.
// Before each removal slice the sweep waits out in-flight readers via
// the epoch barrier. Sweep is idempotent and safe to invoke manually
// alongside the background loop (tests do).
func (e *Engine) Sweep(ctx context.Context) error {
	if err := e.writeGate(); err != nil {
		return err
	}
	now := e.nowMillis()
	graceMs := uint64(e.opts.GCGrace.Milliseconds())
	sessionTTLMs := uint64(e.opts.MultipartTTL.Milliseconds())

	expiredMeta, expiredSessions, err := e.collectExpiredMeta(now, graceMs, sessionTTLMs)
	if err != nil {
		return err
	}
	deadChunks, err := e.collectDeadChunks()
	if err != nil {
		return err
	}

	checkpoint := gcCheckpoint{CompletedAt: now}

	for start := 0; start < len(expiredMeta); start += gcSliceSize {
		slice := expiredMeta[start:min(start+gcSliceSize, len(expiredMeta))]
		if err := e.epochs.barrier(ctx); err != nil {
			return err
		}
		tx := e.newTxn()
		for _, tombstone := range slice {
			tx.sweepMeta(tombstone.metaKey, tombstone.version)
		}
		if err := tx.commit(ctx, substrate.Buffered); err != nil {
			return err
		}
		checkpoint.TombstonesRemoved += len(slice)
	}

	for _, session := range expiredSessions {
		tx := e.newTxn()
		e.abortSessionTx(tx, session)
		if err := tx.commit(ctx, substrate.Buffered); err != nil {
			return err
		}
		checkpoint.SessionsAborted++
	}

	for start := 0; start < len(deadChunks); start += gcSliceSize {
		slice := deadChunks[start:min(start+gcSliceSize, len(deadChunks))]
		if err := e.epochs.barrier(ctx); err != nil {
			return err
		}
		tx := e.newTxn()
		for _, digest := range slice {
			e.chunks.sweep(tx, digest)
		}
		if err := tx.commit(ctx, substrate.Buffered); err != nil {
			return err
		}
		checkpoint.ChunksRemoved += len(slice)
	}

	if checkpoint.TombstonesRemoved+checkpoint.ChunksRemoved+checkpoint.SessionsAborted > 0 {
		e.log.Info("gc sweep",
			"tombstones_removed", checkpoint.TombstonesRemoved,
			"chunks_removed", checkpoint.ChunksRemoved,
			"sessions_aborted", checkpoint.SessionsAborted)
	}
	encoded, err := codec.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("engine: encoding gc checkpoint: %w", err)
	}
	tx := e.newTxn()
	tx.setSystem(sysGCCheckpointKey, encoded)
	return tx.commit(ctx, substrate.Buffered)
}

// expiredTombstone identifies one tombstone eligible for removal. The
// version pins the removal: a key revived after collection is spared
// by the commit-time re-check.
type expiredTombstone struct {
	metaKey []byte
	version object.Version
}

// collectExpiredMeta scans the meta partition for tombstones past the
// grace period and multipart sessions past their TTL.
func (e *Engine) collectExpiredMeta(now, graceMs, sessionTTLMs uint64) ([]expiredTombstone, []*multipartSession, error) {
	it, err := e.sub.Scan(substrate.Meta, substrate.ScanOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	var (
		expired  []expiredTombstone
		sessions []*multipartSession
	)
	for it.Next() {
		key := it.Key()
		if len(key) > 0 && key[0] == 0x00 {
			// Reserved system keyspace.
			if !bytes.HasPrefix(key, sysMultipartPrefix) {
				continue
			}
			session, err := decodeSession(it.Value())
			if err != nil {
				return nil, nil, e.observe(err)
			}
			if session.CreatedAt+sessionTTLMs <= now {
				sessions = append(sessions, session)
			}
			continue
		}
		meta, err := object.DecodeMetadata(it.Value())
		if err != nil {
			return nil, nil, e.observe(fmt.Errorf("decoding metadata at % x: %w", key, err))
		}
		if meta.Tombstone && meta.CreatedAt+graceMs <= now {
			expired = append(expired, expiredTombstone{
				metaKey: bytes.Clone(key),
				version: meta.Version,
			})
		}
	}
	return expired, sessions, it.Err()
}

// collectDeadChunks scans the chunks partition for records whose
// refcount is zero. The sweep transaction re-checks the refcount at
// commit time, so a chunk resurrected by a deduplicating put between
// collection and commit survives.
func (e *Engine) collectDeadChunks() ([]object.Digest, error) {
	it, err := e.sub.Scan(substrate.Chunks, substrate.ScanOptions{})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var dead []object.Digest
	for it.Next() {
		refcount, _, err := object.DecodeChunkRecord(it.Value())
		if err != nil {
			return nil, e.observe(fmt.Errorf("chunk record at % x: %w", it.Key(), err))
		}
		if refcount != 0 {
			continue
		}
		digest, err := object.DigestFromBytes(it.Key())
		if err != nil {
			return nil, e.observe(fmt.Errorf("%w: chunk key % x", object.ErrInvariantViolation, it.Key()))
		}
		dead = append(dead, digest)
	}
	return dead, it.Err()
}
