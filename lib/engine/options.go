// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/wfldb-foundation/wfldb/lib/clock"
)

// Defaults for Options fields left zero.
const (
	// DefaultInlineThreshold is the size below which object bodies are
	// stored inline in the metadata record. At or above it, bodies are
	// chunked through the chunk store.
	DefaultInlineThreshold = 64 * 1024

	// DefaultChunkSize is the fixed chunk boundary for chunked
	// objects. Fixed-size boundaries keep manifests small and
	// deterministic — identical bodies always produce identical
	// manifests — and make the boundary decision O(1) per byte.
	DefaultChunkSize = 4 * 1024 * 1024

	// DefaultBatchMaxOps caps operations per coordinator batch.
	DefaultBatchMaxOps = 1024

	// DefaultBatchMaxBytes caps the summed body bytes of a
	// coordinator batch.
	DefaultBatchMaxBytes = 16 * 1024 * 1024

	// DefaultGCGrace is how long a tombstone must age before the
	// sweep may physically remove it.
	DefaultGCGrace = 60 * time.Second

	// DefaultGCInterval is the background sweep schedule.
	DefaultGCInterval = 30 * time.Second

	// DefaultGCTriggerBytes is the committed-batch volume that kicks
	// an early sweep between scheduled ones.
	DefaultGCTriggerBytes = 256 * 1024 * 1024

	// DefaultMultipartTTL is how long after its creation an open
	// multipart session may live before the sweep aborts it. Uploading
	// parts does not extend it.
	DefaultMultipartTTL = 24 * time.Hour
)

// Option bounds enforced by validate.
const (
	maxInlineThreshold = 16 * 1024 * 1024
	minChunkSize       = 64 * 1024
	maxChunkSize       = 64 * 1024 * 1024
)

// Options configures an Engine. The zero value of every field except
// DataDir selects the documented default.
type Options struct {
	// DataDir is the substrate directory. Required.
	DataDir string

	// InlineThreshold is the inline/chunked routing boundary in
	// bytes. Must be positive and at most 16 MiB.
	InlineThreshold int

	// ChunkSize is the fixed chunk boundary in bytes. Must be a power
	// of two between 64 KiB and 64 MiB.
	ChunkSize int

	// BatchMaxOps caps operations per coordinator batch.
	BatchMaxOps int

	// BatchMaxBytes caps summed body bytes per coordinator batch.
	BatchMaxBytes int64

	// MaxObjectBytes caps a single object body. Zero means unbounded.
	MaxObjectBytes int64

	// GCGrace is the tombstone grace period.
	GCGrace time.Duration

	// GCInterval is the background sweep schedule.
	GCInterval time.Duration

	// GCTriggerBytes kicks an early sweep after this much committed
	// batch volume.
	GCTriggerBytes int64

	// MultipartTTL bounds the lifetime of an open multipart session.
	MultipartTTL time.Duration

	// Clock supplies time. Defaults to the system clock; tests inject
	// a fake to control version timestamps and GC aging.
	Clock clock.Clock

	// Logger receives engine lifecycle and sweep events. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// withDefaults returns a copy of o with zero fields replaced by
// defaults.
func (o Options) withDefaults() Options {
	if o.InlineThreshold == 0 {
		o.InlineThreshold = DefaultInlineThreshold
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.BatchMaxOps == 0 {
		o.BatchMaxOps = DefaultBatchMaxOps
	}
	if o.BatchMaxBytes == 0 {
		o.BatchMaxBytes = DefaultBatchMaxBytes
	}
	if o.GCGrace == 0 {
		o.GCGrace = DefaultGCGrace
	}
	if o.GCInterval == 0 {
		o.GCInterval = DefaultGCInterval
	}
	if o.GCTriggerBytes == 0 {
		o.GCTriggerBytes = DefaultGCTriggerBytes
	}
	if o.MultipartTTL == 0 {
		o.MultipartTTL = DefaultMultipartTTL
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// validate rejects configurations outside the supported envelope.
// Called on the defaulted copy.
func (o Options) validate() error {
	if o.DataDir == "" {
		return fmt.Errorf("engine: DataDir is required")
	}
	if o.InlineThreshold <= 0 || o.InlineThreshold > maxInlineThreshold {
		return fmt.Errorf("engine: InlineThreshold %d outside (0, %d]", o.InlineThreshold, maxInlineThreshold)
	}
	if o.ChunkSize < minChunkSize || o.ChunkSize > maxChunkSize || o.ChunkSize&(o.ChunkSize-1) != 0 {
		return fmt.Errorf("engine: ChunkSize %d must be a power of two in [%d, %d]", o.ChunkSize, minChunkSize, maxChunkSize)
	}
	if o.BatchMaxOps < 1 {
		return fmt.Errorf("engine: BatchMaxOps %d must be positive", o.BatchMaxOps)
	}
	if o.BatchMaxBytes < 1 {
		return fmt.Errorf("engine: BatchMaxBytes %d must be positive", o.BatchMaxBytes)
	}
	if o.MaxObjectBytes < 0 {
		return fmt.Errorf("engine: MaxObjectBytes %d must not be negative", o.MaxObjectBytes)
	}
	return nil
}
