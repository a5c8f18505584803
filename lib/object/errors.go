// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package object

import "errors"

// Caller-facing errors. These surface through the operational contract
// unchanged; the transport maps them to wire status codes. Match with
// errors.Is — the engine wraps them with context via fmt.Errorf %w.
var (
	// ErrNotFound reports that a key is absent or tombstoned.
	ErrNotFound = errors.New("object not found")

	// ErrBucketInvalid reports a malformed bucket identifier.
	ErrBucketInvalid = errors.New("invalid bucket name")

	// ErrKeyInvalid reports a malformed object key.
	ErrKeyInvalid = errors.New("invalid key")

	// ErrBodyTooLarge reports an object body exceeding the per-object
	// size cap.
	ErrBodyTooLarge = errors.New("object body too large")

	// ErrPreconditionFailed reports a conditional batch operation whose
	// expected version did not match the state at batch start. The
	// whole batch is rolled back.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrBatchLargeObjectUnsupported reports a batch put whose body
	// crosses the inline threshold. Large objects commit through the
	// streaming put path, never inside a batch.
	ErrBatchLargeObjectUnsupported = errors.New("large objects are not supported in batches")

	// ErrBatchTooLarge reports a batch exceeding the configured
	// operation-count or byte cap.
	ErrBatchTooLarge = errors.New("batch too large")

	// ErrUploadNotFound reports an unknown or already-finalized
	// multipart upload ID.
	ErrUploadNotFound = errors.New("multipart upload not found")

	// ErrUploadIncomplete reports a multipart completion whose parts do
	// not form a contiguous 1..n sequence.
	ErrUploadIncomplete = errors.New("multipart upload incomplete")
)

// Engine-internal failure classes. SubstrateUnavailable is retryable at
// a higher layer; the corruption class is terminal and latches the
// engine read-only.
var (
	// ErrSubstrateUnavailable reports an I/O or substrate-internal
	// failure. The in-progress batch is rolled back; the caller may
	// retry once the substrate recovers.
	ErrSubstrateUnavailable = errors.New("substrate unavailable")

	// ErrDigestMismatch reports a chunk whose stored bytes hash to a
	// different digest than its content address. On-disk corruption;
	// fatal for the read and latches the engine read-only.
	ErrDigestMismatch = errors.New("chunk digest mismatch")

	// ErrChunkMissing reports a digest referenced by a live manifest
	// with no chunk record. A referential-integrity violation; fatal
	// for the read and latches the engine read-only.
	ErrChunkMissing = errors.New("chunk missing")

	// ErrInvariantViolation reports an internal consistency check
	// failure (refcount underflow or overflow, malformed persisted
	// record). Latches the engine read-only.
	ErrInvariantViolation = errors.New("invariant violation")
)

// IsCorruption reports whether err belongs to the terminal corruption
// class that must latch the engine read-only: digest mismatches,
// missing chunks, and invariant violations. Substrate unavailability is
// not corruption — it may clear on retry.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrDigestMismatch) ||
		errors.Is(err, ErrChunkMissing) ||
		errors.Is(err, ErrInvariantViolation)
}
