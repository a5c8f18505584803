// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"
	"time"
)

func TestBarrierPassesWithNoReaders(t *testing.T) {
	g := newEpochGuard()
	if err := g.barrier(context.Background()); err != nil {
		t.Fatalf("barrier with no readers blocked: %v", err)
	}
}

func TestBarrierWaitsForEarlierReader(t *testing.T) {
	g := newEpochGuard()
	tok := g.enter()

	done := make(chan error, 1)
	go func() {
		done <- g.barrier(context.Background())
	}()

	select {
	case err := <-done:
		t.Fatalf("barrier passed with reader active: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	g.exit(tok)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("barrier failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("barrier never released after reader exit")
	}
}

func TestBarrierIgnoresLaterReader(t *testing.T) {
	g := newEpochGuard()
	early := g.enter()

	done := make(chan error, 1)
	go func() {
		done <- g.barrier(context.Background())
	}()
	// Give the barrier a moment to advance the epoch, then enter a
	// new reader: it belongs to the post-fence epoch and must not
	// hold the barrier.
	time.Sleep(20 * time.Millisecond)
	late := g.enter()
	defer g.exit(late)

	g.exit(early)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("barrier failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("barrier blocked on post-fence reader")
	}
}

func TestBarrierHonorsContext(t *testing.T) {
	g := newEpochGuard()
	tok := g.enter()
	defer g.exit(tok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.barrier(ctx); err != context.DeadlineExceeded {
		t.Fatalf("barrier = %v, want deadline exceeded", err)
	}
}

func TestMultipleReadersSameEpoch(t *testing.T) {
	g := newEpochGuard()
	a := g.enter()
	b := g.enter()

	done := make(chan error, 1)
	go func() {
		done <- g.barrier(context.Background())
	}()

	g.exit(a)
	select {
	case <-done:
		t.Fatal("barrier passed with one of two readers active")
	case <-time.After(50 * time.Millisecond):
	}

	g.exit(b)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("barrier never released")
	}
}
