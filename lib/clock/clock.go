// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time capability the engine depends on. Production
// functions that would call time.Now, time.Sleep, or time.NewTicker
// take a Clock instead (or are methods on a struct holding one).
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C; call Stop to
// release resources. C has capacity 1 — a slow consumer drops ticks
// rather than queueing them.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. No ticks are delivered after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }
