// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides deterministic CBOR encoding (RFC 8949 Core
// Deterministic Encoding) for persisted engine state that is not
// covered by the fixed binary record contracts: multipart upload
// sessions and the GC checkpoint. Deterministic encoding means the
// same logical value always produces identical bytes, which keeps
// repeated session rewrites byte-stable.
package codec
