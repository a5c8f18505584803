// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

func TestBatchPutsAndDeletes(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	mustPut(t, e, "b", "old", []byte("stale"))

	resp, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchPut, Key: []byte("k1"), Body: []byte("v1")},
		{Kind: BatchPut, Key: []byte("k2"), Body: []byte("v2")},
		{Kind: BatchDelete, Key: []byte("old")},
	}, substrate.Buffered)
	if err != nil {
		t.Fatalf("CommitBatch failed: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(resp.Results))
	}
	if resp.Results[0].Version.IsZero() || resp.Results[1].Version.IsZero() {
		t.Error("puts missing versions")
	}
	if !resp.Results[2].Deleted {
		t.Error("delete result not marked")
	}

	_, body := mustGet(t, e, "b", "k1")
	if string(body) != "v1" {
		t.Errorf("k1 = %q", body)
	}
	if _, _, err := e.Get(ctx, "b", []byte("old")); !errors.Is(err, object.ErrNotFound) {
		t.Error("batch delete did not take effect")
	}
}

func TestBatchAtomicPreconditionFailure(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	bogus := object.Version{}
	bogus[0] = 0x99
	_, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchPut, Key: []byte("k1"), Body: []byte("v1")},
		{Kind: BatchConditionalPut, Key: []byte("k2"), Body: []byte("v2"), ExpectedVersion: &bogus},
	}, substrate.Buffered)
	if !errors.Is(err, object.ErrPreconditionFailed) {
		t.Fatalf("CommitBatch = %v, want ErrPreconditionFailed", err)
	}

	// No partial effects: neither key exists.
	if _, _, err := e.Get(ctx, "b", []byte("k1")); !errors.Is(err, object.ErrNotFound) {
		t.Errorf("k1 leaked from failed batch: %v", err)
	}
	if _, _, err := e.Get(ctx, "b", []byte("k2")); !errors.Is(err, object.ErrNotFound) {
		t.Errorf("k2 leaked from failed batch: %v", err)
	}

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LiveObjects != 0 || stats.Tombstones != 0 || stats.Chunks != 0 {
		t.Errorf("failed batch left state: %+v", stats)
	}
}

func TestConditionalPutMatchesCurrentVersion(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	v1 := mustPut(t, e, "b", "k", []byte("one"))

	resp, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchConditionalPut, Key: []byte("k"), Body: []byte("two"), ExpectedVersion: &v1},
	}, substrate.Buffered)
	if err != nil {
		t.Fatalf("matching conditional failed: %v", err)
	}
	v2 := resp.Results[0].Version

	// Stale expected version now fails.
	_, err = e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchConditionalPut, Key: []byte("k"), Body: []byte("three"), ExpectedVersion: &v1},
	}, substrate.Buffered)
	if !errors.Is(err, object.ErrPreconditionFailed) {
		t.Fatalf("stale conditional = %v", err)
	}

	_, body := mustGet(t, e, "b", "k")
	if string(body) != "two" {
		t.Errorf("body = %q, want two", body)
	}
	meta, err := e.Head(ctx, "b", []byte("k"))
	if err != nil {
		t.Fatal(err)
	}
	if meta.Version != v2 {
		t.Error("version is not the conditional put's")
	}
}

func TestConditionalPutExpectsAbsent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// nil expectation on an empty key: create.
	if _, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchConditionalPut, Key: []byte("k"), Body: []byte("v")},
	}, substrate.Buffered); err != nil {
		t.Fatalf("create-if-absent failed: %v", err)
	}

	// Second create-if-absent fails: the key now exists.
	if _, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchConditionalPut, Key: []byte("k"), Body: []byte("w")},
	}, substrate.Buffered); !errors.Is(err, object.ErrPreconditionFailed) {
		t.Fatalf("create over existing = %v", err)
	}
}

func TestBatchSameKeyOrderedLastWins(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	resp, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchPut, Key: []byte("k"), Body: []byte("first")},
		{Kind: BatchPut, Key: []byte("k"), Body: []byte("second")},
	}, substrate.Buffered)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Results[1].Version.Compare(resp.Results[0].Version) <= 0 {
		t.Error("later op in batch got earlier version")
	}

	_, body := mustGet(t, e, "b", "k")
	if string(body) != "second" {
		t.Errorf("body = %q, want second", body)
	}
}

func TestBatchPutThenDeleteSameKey(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchPut, Key: []byte("k"), Body: []byte("v")},
		{Kind: BatchDelete, Key: []byte("k")},
	}, substrate.Buffered); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Get(ctx, "b", []byte("k")); !errors.Is(err, object.ErrNotFound) {
		t.Errorf("key live after put-then-delete batch: %v", err)
	}
}

func TestBatchConditionalEvaluatesAgainstBatchStart(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// A put earlier in the batch must not satisfy a conditional that
	// checks against the state at batch start.
	_, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchPut, Key: []byte("k"), Body: []byte("v")},
		{Kind: BatchConditionalPut, Key: []byte("k"), Body: []byte("w")},
	}, substrate.Buffered)
	if err != nil {
		t.Fatalf("conditional against batch-start state failed: %v", err)
	}
	_, body := mustGet(t, e, "b", "k")
	if string(body) != "w" {
		t.Errorf("body = %q, want w", body)
	}
}

func TestBatchDeleteReleasesManifest(t *testing.T) {
	e, _ := newTestEngine(t, smallChunks)
	ctx := context.Background()

	body := bytes.Repeat([]byte{0x06}, 256<<10)
	mustPut(t, e, "b", "big", body)
	meta, _ := mustGet(t, e, "b", "big")

	if _, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchDelete, Key: []byte("big")},
	}, substrate.Buffered); err != nil {
		t.Fatal(err)
	}
	for _, ref := range meta.Manifest {
		refcount, ok, err := e.chunks.refcount(ref.Digest)
		if err != nil {
			t.Fatal(err)
		}
		if ok && refcount != 0 {
			t.Errorf("chunk %s refcount = %d after batch delete", ref.Digest, refcount)
		}
	}
}

func TestBatchCaps(t *testing.T) {
	e, _ := newTestEngine(t, func(o *Options) {
		o.BatchMaxOps = 2
		o.BatchMaxBytes = 10
	})
	ctx := context.Background()

	ops := []BatchOp{
		{Kind: BatchPut, Key: []byte("a"), Body: []byte("1")},
		{Kind: BatchPut, Key: []byte("b"), Body: []byte("2")},
		{Kind: BatchPut, Key: []byte("c"), Body: []byte("3")},
	}
	if _, err := e.CommitBatch(ctx, "b", ops, substrate.Buffered); !errors.Is(err, object.ErrBatchTooLarge) {
		t.Errorf("op-count cap = %v", err)
	}

	if _, err := e.CommitBatch(ctx, "b", []BatchOp{
		{Kind: BatchPut, Key: []byte("a"), Body: []byte("0123456789A")},
	}, substrate.Buffered); !errors.Is(err, object.ErrBatchTooLarge) {
		t.Errorf("byte cap = %v", err)
	}
}

func TestBatchRejectsLargeObjects(t *testing.T) {
	e, _ := newTestEngine(t, smallChunks)
	big := bytes.Repeat([]byte{0x01}, 2048) // over the 1 KiB inline threshold
	_, err := e.CommitBatch(context.Background(), "b", []BatchOp{
		{Kind: BatchPut, Key: []byte("k"), Body: big},
	}, substrate.Buffered)
	if !errors.Is(err, object.ErrBatchLargeObjectUnsupported) {
		t.Errorf("large body in batch = %v", err)
	}
}

func TestEmptyBatch(t *testing.T) {
	e, _ := newTestEngine(t)
	resp, err := e.CommitBatch(context.Background(), "b", nil, substrate.Buffered)
	if err != nil {
		t.Fatalf("empty batch failed: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("empty batch returned %d results", len(resp.Results))
	}
}
