// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

// Package substrate is the single seam between the engine and the
// underlying LSM key-value store. It exposes a capability set — point
// get, ordered prefix scan, and atomic cross-partition batch commit
// with selectable durability — and nothing of the concrete engine's
// types, so the storage engine can be swapped without touching the
// invariants built on top.
//
// The production implementation wraps cockroachdb/pebble. Both logical
// partitions (meta and chunks) live in one pebble keyspace under
// distinct one-byte key prefixes; a single pebble batch therefore
// commits mutations to both partitions atomically through one WAL
// entry.
package substrate
