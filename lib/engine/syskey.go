// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

// The reserved system keyspace lives in the meta partition under a
// leading zero byte. Object metadata keys always begin with the
// bucket length (1..=64), so system records can never collide with —
// or be visited by — a bucket scan.
var (
	sysGCCheckpointKey = []byte{0x00, 'g', 'c'}
	sysMultipartPrefix = []byte{0x00, 'm', 'p', 0x00}
)

// multipartKey builds the system key of a multipart session record.
func multipartKey(uploadID string) []byte {
	out := make([]byte, 0, len(sysMultipartPrefix)+len(uploadID))
	out = append(out, sysMultipartPrefix...)
	out = append(out, uploadID...)
	return out
}
