// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// BatchOpKind discriminates batch operations.
type BatchOpKind uint8

const (
	// BatchPut stores an inline object body.
	BatchPut BatchOpKind = iota

	// BatchDelete tombstones a key.
	BatchDelete

	// BatchConditionalPut stores an inline body only if the key's
	// current version matches ExpectedVersion. A nil ExpectedVersion
	// requires the key to have no live object. Any mismatch fails the
	// whole batch.
	BatchConditionalPut
)

// BatchOp is one mutation inside a coordinator batch. Bodies must be
// below the inline threshold: large objects commit through the
// streaming put path, never inside a batch.
type BatchOp struct {
	Kind            BatchOpKind
	Key             []byte
	Body            []byte
	ExpectedVersion *object.Version
}

// BatchOpResult reports one operation's effect after a successful
// batch.
type BatchOpResult struct {
	Key object.Key

	// Version is the version assigned to a put. Zero for deletes.
	Version object.Version

	// Deleted is set for delete operations, whether or not a live
	// object existed.
	Deleted bool
}

// BatchResponse is the result of a successful CommitBatch. Results
// appear in operation order.
type BatchResponse struct {
	Results []BatchOpResult
}

// CommitBatch applies multiple object mutations in one bucket as a
// single atomic commit: either every operation's effect becomes
// visible or none does. Operations on the same key apply in the order
// given — the final state is the last operation's effect — while
// conditional checks evaluate against the state at batch start, not
// intermediate states.
//
// Refcount releases for replaced or deleted manifests are resolved
// before commit, so the substrate batch carries the complete set of
// meta and chunks mutations.
func (e *Engine) CommitBatch(ctx context.Context, bucket string, ops []BatchOp, d substrate.Durability) (*BatchResponse, error) {
	bkt, err := object.ParseBucketID(bucket)
	if err != nil {
		return nil, err
	}
	if err := e.writeGate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(ops) == 0 {
		return &BatchResponse{}, nil
	}
	if len(ops) > e.opts.BatchMaxOps {
		return nil, fmt.Errorf("%w: %d operations, limit %d", object.ErrBatchTooLarge, len(ops), e.opts.BatchMaxOps)
	}

	var totalBytes int64
	metaKeys := make([][]byte, len(ops))
	for i := range ops {
		op := &ops[i]
		k, err := object.ParseKey(op.Key)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		metaKeys[i] = object.MetaKey(bkt, k)
		if op.Kind == BatchDelete {
			continue
		}
		if len(op.Body) >= e.opts.InlineThreshold {
			return nil, fmt.Errorf("%w: operation %d body is %d bytes, inline threshold %d",
				object.ErrBatchLargeObjectUnsupported, i, len(op.Body), e.opts.InlineThreshold)
		}
		totalBytes += int64(len(op.Body))
		if totalBytes > e.opts.BatchMaxBytes {
			return nil, fmt.Errorf("%w: total body bytes exceed %d", object.ErrBatchTooLarge, e.opts.BatchMaxBytes)
		}
	}

	// Serialize against other conditional batches touching the same
	// keys. Locks are taken in sorted key order so two overlapping
	// batches cannot deadlock.
	distinct := make(map[string]struct{}, len(metaKeys))
	var lockOrder []string
	for _, mk := range metaKeys {
		s := string(mk)
		if _, ok := distinct[s]; !ok {
			distinct[s] = struct{}{}
			lockOrder = append(lockOrder, s)
		}
	}
	sort.Strings(lockOrder)
	locks := make([]*sync.Mutex, len(lockOrder))
	for i, s := range lockOrder {
		locks[i] = e.lockKey([]byte(s))
		locks[i].Lock()
	}
	defer func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}()

	// Snapshot the state at batch start for every involved key.
	snapshot := make(map[string]*object.Metadata, len(lockOrder))
	for _, s := range lockOrder {
		meta, err := e.readMetadata([]byte(s))
		if err != nil {
			return nil, err
		}
		snapshot[s] = meta
	}

	// Conditional checks run against the snapshot only.
	for i := range ops {
		op := &ops[i]
		if op.Kind != BatchConditionalPut {
			continue
		}
		current := snapshot[string(metaKeys[i])]
		switch {
		case op.ExpectedVersion == nil:
			if current != nil && current.Live() {
				return nil, fmt.Errorf("%w: operation %d expects no object, found version %s",
					object.ErrPreconditionFailed, i, current.Version)
			}
		default:
			if current == nil || !current.Live() {
				return nil, fmt.Errorf("%w: operation %d expects version %s, found none",
					object.ErrPreconditionFailed, i, op.ExpectedVersion)
			}
			if current.Version != *op.ExpectedVersion {
				return nil, fmt.Errorf("%w: operation %d expects version %s, found %s",
					object.ErrPreconditionFailed, i, op.ExpectedVersion, current.Version)
			}
		}
	}

	// Apply in order. Later operations on a key overwrite earlier
	// staged state; the snapshot manifest is released exactly once,
	// when the key's state first diverges from it.
	tx := e.newTxn()
	released := make(map[string]bool, len(lockOrder))
	releaseSnapshot := func(metaKey string) {
		if released[metaKey] {
			return
		}
		released[metaKey] = true
		if prior := snapshot[metaKey]; prior != nil && prior.Live() {
			for _, digest := range prior.Manifest.DistinctDigests() {
				e.chunks.release(tx, digest)
			}
		}
	}

	results := make([]BatchOpResult, len(ops))
	for i := range ops {
		op := &ops[i]
		mk := string(metaKeys[i])
		_, key, _ := object.SplitMetaKey(metaKeys[i])
		switch op.Kind {
		case BatchPut, BatchConditionalPut:
			version, err := e.versions.next()
			if err != nil {
				return nil, err
			}
			digest := object.DigestOf(op.Body)
			releaseSnapshot(mk)
			tx.setMeta(metaKeys[i], &object.Metadata{
				Version:       version,
				Size:          uint64(len(op.Body)),
				CreatedAt:     version.Timestamp(),
				ContentDigest: digest,
				Inline:        op.Body,
			})
			results[i] = BatchOpResult{Key: key, Version: version}

		case BatchDelete:
			results[i] = BatchOpResult{Key: key, Deleted: true}
			prior, wasStaged := tx.staged(metaKeys[i])
			if !wasStaged {
				prior = snapshot[mk]
			}
			if prior == nil || prior.Tombstone {
				// Nothing live to delete; leave no record behind when
				// the key never existed.
				if !wasStaged {
					continue
				}
			}
			releaseSnapshot(mk)
			version, err := e.versions.next()
			if err != nil {
				return nil, err
			}
			tombstone := &object.Metadata{
				Version:   version,
				CreatedAt: version.Timestamp(),
				Tombstone: true,
			}
			if prior != nil {
				tombstone.Size = prior.Size
				tombstone.ContentDigest = prior.ContentDigest
			}
			tx.setMeta(metaKeys[i], tombstone)

		default:
			return nil, fmt.Errorf("engine: unknown batch operation kind %d", op.Kind)
		}
	}

	if err := tx.commit(ctx, d); err != nil {
		return nil, err
	}
	return &BatchResponse{Results: results}, nil
}
