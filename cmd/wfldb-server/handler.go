// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wfldb-foundation/wfldb/lib/engine"
	"github.com/wfldb-foundation/wfldb/lib/object"
	"github.com/wfldb-foundation/wfldb/lib/substrate"
)

// Response headers carrying object metadata.
const (
	headerVersion = "X-Wfldb-Version"
	headerDigest  = "X-Wfldb-Digest"
)

type handler struct {
	eng *engine.Engine
	log *slog.Logger
}

func newHandler(eng *engine.Engine, logger *slog.Logger) http.Handler {
	h := &handler{eng: eng, log: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /statusz", h.status)
	mux.HandleFunc("GET /v1/{bucket}", h.scan)
	mux.HandleFunc("POST /v1/{bucket}", h.batch)
	mux.HandleFunc("PUT /v1/{bucket}/{key...}", h.put)
	mux.HandleFunc("GET /v1/{bucket}/{key...}", h.get)
	mux.HandleFunc("DELETE /v1/{bucket}/{key...}", h.delete)
	mux.HandleFunc("POST /v1/{bucket}/{key...}", h.multipart)
	return mux
}

// writeError maps engine errors onto HTTP statuses. Corruption-class
// errors surface as 500 with the engine already latched; the handler
// adds nothing beyond the mapping.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, object.ErrNotFound), errors.Is(err, object.ErrUploadNotFound):
		status = http.StatusNotFound
	case errors.Is(err, object.ErrBucketInvalid),
		errors.Is(err, object.ErrKeyInvalid),
		errors.Is(err, object.ErrUploadIncomplete):
		status = http.StatusBadRequest
	case errors.Is(err, object.ErrBodyTooLarge),
		errors.Is(err, object.ErrBatchTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, object.ErrBatchLargeObjectUnsupported):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, object.ErrPreconditionFailed):
		status = http.StatusPreconditionFailed
	case errors.Is(err, object.ErrSubstrateUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// durability parses ?durability=sync|buffered, defaulting to sync:
// callers must opt in to the weaker guarantee.
func durability(r *http.Request) (substrate.Durability, error) {
	switch r.URL.Query().Get("durability") {
	case "", "sync":
		return substrate.Sync, nil
	case "buffered":
		return substrate.Buffered, nil
	default:
		return 0, fmt.Errorf("unknown durability %q", r.URL.Query().Get("durability"))
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"read_only": h.eng.ReadOnly(),
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.eng.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("uploadId") {
		h.uploadPart(w, r)
		return
	}
	d, err := durability(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	version, err := h.eng.Put(r.Context(), r.PathValue("bucket"), []byte(r.PathValue("key")), r.Body, d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"version": version.String()})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), []byte(r.PathValue("key"))

	if r.Method == http.MethodHead {
		meta, err := h.eng.Head(r.Context(), bucket, key)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		setMetaHeaders(w, meta)
		w.WriteHeader(http.StatusOK)
		return
	}

	meta, stream, err := h.eng.Get(r.Context(), bucket, key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer stream.Close()

	setMetaHeaders(w, meta)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		// Headers are gone; nothing to do but drop the connection.
		h.log.Warn("body stream aborted", "bucket", bucket, "error", err)
	}
}

func setMetaHeaders(w http.ResponseWriter, meta *object.Metadata) {
	w.Header().Set(headerVersion, meta.Version.String())
	w.Header().Set(headerDigest, hex.EncodeToString(meta.ContentDigest[:]))
	w.Header().Set("Content-Length", strconv.FormatUint(meta.Size, 10))
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("uploadId") {
		if err := h.eng.AbortMultipart(r.Context(), r.URL.Query().Get("uploadId")); err != nil {
			h.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	d, err := durability(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	deleted, err := h.eng.Delete(r.Context(), r.PathValue("bucket"), []byte(r.PathValue("key")), d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *handler) scan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 1000
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	var startAfter []byte
	if s := q.Get("after"); s != "" {
		startAfter = []byte(s)
	}

	entries, err := h.eng.Scan(r.Context(), r.PathValue("bucket"), []byte(q.Get("prefix")), startAfter, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	type item struct {
		Key     string `json:"key"`
		Version string `json:"version"`
		Size    uint64 `json:"size"`
		Digest  string `json:"digest"`
	}
	items := make([]item, len(entries))
	for i, entry := range entries {
		items[i] = item{
			Key:     string(entry.Key),
			Version: entry.Meta.Version.String(),
			Size:    entry.Meta.Size,
			Digest:  hex.EncodeToString(entry.Meta.ContentDigest[:]),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"objects":   items,
		"truncated": len(items) == limit,
	})
}

// batchRequest is the wire form of a coordinator batch.
type batchRequest struct {
	Ops []batchOpRequest `json:"ops"`
}

type batchOpRequest struct {
	// Op is "put", "delete", or "cput".
	Op   string `json:"op"`
	Key  string `json:"key"`
	Body []byte `json:"body,omitempty"`

	// ExpectedVersion gates a cput: the key's current version in ULID
	// text form, or absent to require the key not exist.
	ExpectedVersion string `json:"expected_version,omitempty"`
}

func (h *handler) batch(w http.ResponseWriter, r *http.Request) {
	d, err := durability(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed batch request: " + err.Error()})
		return
	}

	ops := make([]engine.BatchOp, len(req.Ops))
	for i, op := range req.Ops {
		out := engine.BatchOp{Key: []byte(op.Key), Body: op.Body}
		switch op.Op {
		case "put":
			out.Kind = engine.BatchPut
		case "delete":
			out.Kind = engine.BatchDelete
		case "cput":
			out.Kind = engine.BatchConditionalPut
			if op.ExpectedVersion != "" {
				version, err := object.ParseVersion(op.ExpectedVersion)
				if err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("op %d: %v", i, err)})
					return
				}
				out.ExpectedVersion = &version
			}
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("op %d: unknown op %q", i, op.Op)})
			return
		}
		ops[i] = out
	}

	resp, err := h.eng.CommitBatch(r.Context(), r.PathValue("bucket"), ops, d)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	type result struct {
		Key     string `json:"key"`
		Version string `json:"version,omitempty"`
		Deleted bool   `json:"deleted,omitempty"`
	}
	results := make([]result, len(resp.Results))
	for i, res := range resp.Results {
		results[i] = result{Key: string(res.Key), Deleted: res.Deleted}
		if !res.Version.IsZero() {
			results[i].Version = res.Version.String()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *handler) multipart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Has("uploads"):
		uploadID, err := h.eng.CreateMultipart(r.Context(), r.PathValue("bucket"), []byte(r.PathValue("key")))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"upload_id": uploadID})

	case q.Has("uploadId"):
		d, err := durability(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		version, err := h.eng.CompleteMultipart(r.Context(), q.Get("uploadId"), d)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"version": version.String()})

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected ?uploads or ?uploadId"})
	}
}

func (h *handler) uploadPart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	partNumber, err := strconv.ParseUint(q.Get("part"), 10, 32)
	if err != nil || partNumber < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "part must be a positive integer"})
		return
	}
	info, err := h.eng.UploadPart(r.Context(), q.Get("uploadId"), uint32(partNumber), r.Body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"part":   info.Number,
		"size":   info.Size,
		"digest": info.Digest.String(),
	})
}
