// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wfldb-foundation/wfldb/lib/clock"
	"github.com/wfldb-foundation/wfldb/lib/object"
)

// versionSource issues ULID-shaped versions that are strictly
// increasing engine-wide, which implies strict per-key monotonicity.
//
// Within one millisecond the 80-bit random tail acts as a monotonic
// counter rather than fresh randomness — a deliberate deviation from
// pure-random ULIDs required for the ordering guarantee. The tail
// starts random and grows by a random step of up to 2^32 per version,
// so it can overflow well before 2^80 versions; when it does, the
// source waits for the next millisecond. A clock that steps backwards is clamped to
// the last issued timestamp.
type versionSource struct {
	clk clock.Clock

	mu      sync.Mutex
	lastMs  uint64
	entropy *ulid.MonotonicEntropy
}

func newVersionSource(clk clock.Clock) *versionSource {
	return &versionSource{
		clk:     clk,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// next issues the next version.
func (vs *versionSource) next() (object.Version, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	for {
		ms := ulid.Timestamp(vs.clk.Now())
		if ms < vs.lastMs {
			ms = vs.lastMs
		}
		id, err := ulid.New(ms, vs.entropy)
		if err == nil {
			vs.lastMs = ms
			return object.Version(id), nil
		}
		if errors.Is(err, ulid.ErrMonotonicOverflow) {
			// Random tail exhausted within this millisecond; wait for
			// the clock to advance.
			vs.clk.Sleep(time.Millisecond)
			continue
		}
		return object.Version{}, fmt.Errorf("engine: generating version: %w", err)
	}
}
