// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the engine. Production code injects
// Real(); tests inject NewFake() and advance it deterministically —
// version timestamps, GC grace periods, and the sweep ticker all flow
// through a Clock, so no test ever sleeps real wall time to age a
// tombstone.
package clock
