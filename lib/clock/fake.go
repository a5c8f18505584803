// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake is a deterministic Clock for tests. Time stands still until
// Advance moves it; tickers fire synchronously from inside Advance for
// every elapsed interval. Sleep returns immediately after advancing
// the fake time by the requested duration (a sleeping component makes
// progress without stalling the test).
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	ch       chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
}

// NewFake returns a Fake clock starting at a fixed, arbitrary epoch.
func NewFake() *Fake {
	return &Fake{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake time by d and returns. With a fake clock a
// "sleeping" goroutine must not block the test that drives time.
func (f *Fake) Sleep(d time.Duration) { f.Advance(d) }

// NewTicker returns a ticker that fires when Advance crosses its
// interval boundaries.
func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ft := &fakeTicker{
		ch:       make(chan time.Time, 1),
		interval: d,
		next:     f.now.Add(d),
	}
	f.tickers = append(f.tickers, ft)
	return &Ticker{
		C: ft.ch,
		stop: func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			ft.stopped = true
		},
	}
}

// Advance moves the fake time forward by d, firing any tickers whose
// intervals elapse. Ticks are delivered non-blocking (capacity 1,
// matching the real ticker's drop behavior).
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.now.Add(d)
	for {
		// Fire tickers in deadline order until none are due.
		var due *fakeTicker
		for _, ft := range f.tickers {
			if ft.stopped || ft.next.After(target) {
				continue
			}
			if due == nil || ft.next.Before(due.next) {
				due = ft
			}
		}
		if due == nil {
			break
		}
		f.now = due.next
		due.next = due.next.Add(due.interval)
		select {
		case due.ch <- f.now:
		default:
		}
	}
	f.now = target
}
