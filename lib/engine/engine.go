// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/wfldb-foundation/wfldb/lib/clock"
	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// Engine is the storage engine. One Engine owns one data directory;
// it is safe for concurrent use by any number of goroutines.
type Engine struct {
	sub  substrate.Substrate
	opts Options
	log  *slog.Logger
	clk  clock.Clock

	chunks   *chunkStore
	versions *versionSource
	epochs   *epochGuard

	// commitMu serializes transaction materialization and substrate
	// commit. Refcount updates are read-modify-write against the
	// substrate, so the read and the commit must be one critical
	// section.
	commitMu sync.Mutex

	// keyLocks serializes conditional batches per key. Plain puts and
	// deletes take no lock above the substrate.
	keyLocks *xsync.MapOf[string, *sync.Mutex]

	// corrupt, once set, latches the engine read-only. It holds the
	// first corruption error observed.
	corrupt atomic.Pointer[latchedError]

	// bytesSinceSweep accumulates committed batch volume; crossing
	// GCTriggerBytes kicks an early sweep.
	bytesSinceSweep atomic.Int64
	gcKick          chan struct{}
	gcStop          chan struct{}
	gcDone          sync.WaitGroup
}

type latchedError struct {
	err error
}

// Open opens (creating if necessary) an engine over the data
// directory in opts and starts the background GC sweeper.
func Open(opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	sub, err := substrate.Open(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("engine: opening substrate: %w", err)
	}
	e := &Engine{
		sub:      sub,
		opts:     opts,
		log:      opts.Logger,
		clk:      opts.Clock,
		chunks:   &chunkStore{sub: sub},
		versions: newVersionSource(opts.Clock),
		epochs:   newEpochGuard(),
		keyLocks: xsync.NewMapOf[string, *sync.Mutex](),
		gcKick:   make(chan struct{}, 1),
		gcStop:   make(chan struct{}),
	}
	e.gcDone.Add(1)
	go e.gcLoop()
	e.log.Info("engine open",
		"data_dir", opts.DataDir,
		"inline_threshold", opts.InlineThreshold,
		"chunk_size", opts.ChunkSize)
	return e, nil
}

// Close stops the GC sweeper and closes the substrate. The engine
// must not be used afterwards.
func (e *Engine) Close() error {
	close(e.gcStop)
	e.gcDone.Wait()
	if err := e.sub.Close(); err != nil {
		return fmt.Errorf("engine: closing substrate: %w", err)
	}
	e.log.Info("engine closed", "data_dir", e.opts.DataDir)
	return nil
}

// ReadOnly reports whether the engine has latched read-only after
// observing corruption. A latched engine serves reads of undamaged
// objects but fails all writes until operator intervention.
func (e *Engine) ReadOnly() bool { return e.corrupt.Load() != nil }

// writeGate fails fast when the engine is latched read-only.
func (e *Engine) writeGate() error {
	if latched := e.corrupt.Load(); latched != nil {
		return fmt.Errorf("%w: engine is read-only after corruption: %v",
			object.ErrSubstrateUnavailable, latched.err)
	}
	return nil
}

// latchCorruption records the first corruption error and flips the
// engine read-only. Later corruption keeps the original cause.
func (e *Engine) latchCorruption(err error) {
	if e.corrupt.CompareAndSwap(nil, &latchedError{err: err}) {
		e.log.Error("corruption detected, engine latched read-only", "error", err)
	}
}

// observe routes an error through the corruption latch and returns it
// unchanged. Every read and commit path funnels failures through here.
func (e *Engine) observe(err error) error {
	if err != nil && object.IsCorruption(err) {
		e.latchCorruption(err)
	}
	return err
}

// lockKey returns the per-key mutex used to serialize conditional
// batches, creating it on first use. The table grows with the set of
// contended keys; entries are never removed (a mutex is two words).
func (e *Engine) lockKey(metaKey []byte) *sync.Mutex {
	mu, _ := e.keyLocks.LoadOrCompute(string(metaKey), func() *sync.Mutex {
		return &sync.Mutex{}
	})
	return mu
}

// readMetadata fetches and decodes the metadata record at metaKey.
// Returns (nil, nil) when absent. Tombstoned records are returned as
// stored — callers decide whether a tombstone counts as present.
func (e *Engine) readMetadata(metaKey []byte) (*object.Metadata, error) {
	value, ok, err := e.sub.Get(substrate.Meta, metaKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	meta, err := object.DecodeMetadata(value)
	if err != nil {
		return nil, e.observe(fmt.Errorf("decoding metadata at % x: %w", metaKey, err))
	}
	return meta, nil
}

// nowMillis returns the clock's current time in milliseconds since
// the Unix epoch.
func (e *Engine) nowMillis() uint64 {
	return uint64(e.clk.Now().UnixMilli())
}
