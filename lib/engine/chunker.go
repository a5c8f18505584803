// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"io"
)

// chunker splits a body stream into fixed-size chunks. Every chunk is
// exactly size bytes except the last, which is 1..=size bytes. The
// chunker owns a single reusable buffer, so the streaming pipeline
// holds at most one chunk in memory at a time.
type chunker struct {
	r    io.Reader
	buf  []byte
	done bool
}

func newChunker(r io.Reader, size int) *chunker {
	return &chunker{r: r, buf: make([]byte, size)}
}

// next returns the next chunk, or (nil, io.EOF) when the stream is
// exhausted. The returned slice aliases the chunker's internal buffer
// and is only valid until the next call.
func (c *chunker) next() ([]byte, error) {
	if c.done {
		return nil, io.EOF
	}
	n, err := io.ReadFull(c.r, c.buf)
	switch {
	case err == nil:
		return c.buf, nil
	case errors.Is(err, io.EOF):
		c.done = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.done = true
		return c.buf[:n], nil
	default:
		return nil, err
	}
}
