// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the wflDB object layer: the storage engine
// that turns PUT / GET / DELETE / SCAN / BATCH calls into durable
// operations against the LSM substrate, with key-value separation,
// BLAKE3 content addressing, chunk deduplication, and reference-counted
// chunk lifecycle.
//
// The package is organized around a handful of cooperating pieces:
//
//   - Object layer: size-based routing between inline storage (bodies
//     below the inline threshold live inside the metadata record) and
//     chunked storage (bodies split into fixed-size chunks, addressed
//     by digest, reassembled by manifest order on read).
//
//   - Chunk store: content-addressed records in the chunks partition
//     with an inline refcount. Identical chunks are stored once;
//     manifests share them through refcount bookkeeping that commits
//     in the same atomic batch as the manifest mutation causing it.
//
//   - Batch coordinator: multiple inline-object mutations against one
//     bucket, with conditional versions checked against the state at
//     batch start, committed all-or-nothing.
//
//   - Scan: cursor-paginated prefix iteration over live objects in
//     strict ascending key order.
//
//   - GC: a background sweep that physically removes tombstoned
//     metadata past its grace period, chunk records whose refcount
//     reached zero, and abandoned multipart sessions. An epoch guard
//     fences removal against in-flight readers.
//
// Durability is selectable per mutating call: Sync commits fsync the
// substrate WAL before returning; Buffered commits become durable on
// the next group flush. Either way a commit is atomic — readers
// observe all of its effects or none.
//
// Corruption (digest mismatch, missing chunk, invariant violation)
// latches the engine read-only: subsequent writes fail until operator
// intervention, reads of undamaged objects continue to serve.
package engine
