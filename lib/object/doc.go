// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

// Package object defines the data model of the wflDB object store:
// bucket and key identifiers, ULID-shaped versions, BLAKE3 content
// digests, object metadata with inline or chunked storage, and chunk
// manifests.
//
// The package also owns the two persisted binary contracts — the
// metadata record frame and the chunk record layout — and the error
// taxonomy shared by the engine and its collaborators. Everything here
// is pure data: no I/O, no substrate types.
package object
