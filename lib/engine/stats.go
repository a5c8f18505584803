// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// Stats is a point-in-time inventory of the engine's persisted state,
// computed by full partition iteration. Intended for status endpoints
// and operational checks, not hot paths.
type Stats struct {
	// LiveObjects counts non-tombstoned metadata records.
	LiveObjects int

	// Tombstones counts tombstoned records awaiting GC.
	Tombstones int

	// LiveBytes sums the logical sizes of live objects.
	LiveBytes uint64

	// Chunks counts chunk records, including refcount-zero ones
	// awaiting GC.
	Chunks int

	// ChunkBytes sums stored chunk payload bytes.
	ChunkBytes uint64

	// DeadChunks counts chunk records with refcount zero.
	DeadChunks int

	// OpenUploads counts multipart sessions.
	OpenUploads int

	// ReadOnly reports the corruption latch.
	ReadOnly bool
}

// Stats walks both partitions and returns the inventory.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ReadOnly: e.ReadOnly()}

	it, err := e.sub.Scan(substrate.Meta, substrate.ScanOptions{})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := it.Key()
		if len(key) > 0 && key[0] == 0x00 {
			if bytes.HasPrefix(key, sysMultipartPrefix) {
				stats.OpenUploads++
			}
			continue
		}
		meta, err := object.DecodeMetadata(it.Value())
		if err != nil {
			return nil, e.observe(fmt.Errorf("decoding metadata at % x: %w", key, err))
		}
		if meta.Tombstone {
			stats.Tombstones++
			continue
		}
		stats.LiveObjects++
		stats.LiveBytes += meta.Size
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	chunkIt, err := e.sub.Scan(substrate.Chunks, substrate.ScanOptions{})
	if err != nil {
		return nil, err
	}
	defer chunkIt.Close()
	for chunkIt.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		refcount, body, err := object.DecodeChunkRecord(chunkIt.Value())
		if err != nil {
			return nil, e.observe(fmt.Errorf("chunk record at % x: %w", chunkIt.Key(), err))
		}
		stats.Chunks++
		stats.ChunkBytes += uint64(len(body))
		if refcount == 0 {
			stats.DeadChunks++
		}
	}
	return stats, chunkIt.Err()
}
