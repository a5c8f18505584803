// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

// wfldb-server is the HTTP transport collaborator for the wflDB
// storage engine. It translates a small REST surface onto the engine's
// operational contract:
//
//	PUT    /v1/{bucket}/{key}                 store an object
//	GET    /v1/{bucket}/{key}                 fetch an object (streamed)
//	HEAD   /v1/{bucket}/{key}                 fetch metadata only
//	DELETE /v1/{bucket}/{key}                 tombstone an object
//	GET    /v1/{bucket}?prefix=&after=&limit= prefix scan (paginated)
//	POST   /v1/{bucket}                       atomic multi-op batch
//	POST   /v1/{bucket}/{key}?uploads         open a multipart upload
//	PUT    /v1/{bucket}/{key}?uploadId=&part= upload one part
//	POST   /v1/{bucket}/{key}?uploadId=       complete an upload
//	DELETE /v1/{bucket}/{key}?uploadId=       abort an upload
//	GET    /healthz                           liveness and latch state
//	GET    /statusz                           engine inventory
//
// Mutating requests accept ?durability=sync|buffered (default sync).
// Authentication, authorization, and the framed wire protocol are
// separate collaborators; this binary serves already-trusted callers.
package main
