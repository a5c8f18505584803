// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"

	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// ScanEntry is one live object in a scan result.
type ScanEntry struct {
	Key  object.Key
	Meta *object.Metadata
}

// Scan returns live objects in bucket whose keys start with prefix,
// in strict ascending lexicographic key order. Tombstoned entries are
// filtered out.
//
// startAfter (exclusive) is the pagination cursor: pass the last key
// of the previous page to continue. limit bounds the page size; a
// page of exactly limit entries means more may be available. limit <=
// 0 means unbounded.
//
// A resumed scan is correct under concurrent mutation: keys inserted
// after the cursor appear, mutated keys reflect their newest version,
// and keys deleted mid-scan disappear. No stale versions are ever
// returned — each page reads current substrate state.
func (e *Engine) Scan(ctx context.Context, bucket string, prefix, startAfter []byte, limit int) ([]ScanEntry, error) {
	bkt, err := object.ParseBucketID(bucket)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := substrate.ScanOptions{Prefix: object.MetaKeyPrefix(bkt, prefix)}
	if startAfter != nil {
		after, err := object.ParseKey(startAfter)
		if err != nil {
			return nil, fmt.Errorf("start_after: %w", err)
		}
		opts.StartAfter = object.MetaKey(bkt, after)
	}

	tok := e.epochs.enter()
	defer e.epochs.exit(tok)

	it, err := e.sub.Scan(substrate.Meta, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var entries []ScanEntry
	for it.Next() {
		if len(entries)%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		_, key, err := object.SplitMetaKey(it.Key())
		if err != nil {
			return nil, e.observe(err)
		}
		meta, err := object.DecodeMetadata(it.Value())
		if err != nil {
			return nil, e.observe(fmt.Errorf("decoding metadata at %s: %w", key, err))
		}
		if meta.Tombstone {
			continue
		}
		// Key aliases the iterator; copy before retaining.
		entries = append(entries, ScanEntry{Key: append(object.Key(nil), key...), Meta: meta})
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
