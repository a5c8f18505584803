// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func collectChunks(t *testing.T, r io.Reader, size int) [][]byte {
	t.Helper()
	ck := newChunker(r, size)
	var chunks [][]byte
	for {
		chunk, err := ck.next()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		if err != nil {
			t.Fatalf("chunker failed: %v", err)
		}
		chunks = append(chunks, bytes.Clone(chunk))
	}
}

func TestChunkerExactMultiple(t *testing.T) {
	body := bytes.Repeat([]byte{0x01}, 3*100)
	chunks := collectChunks(t, bytes.NewReader(body), 100)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	for i, c := range chunks {
		if len(c) != 100 {
			t.Errorf("chunk %d is %d bytes", i, len(c))
		}
	}
}

func TestChunkerShortTail(t *testing.T) {
	body := bytes.Repeat([]byte{0x02}, 250)
	chunks := collectChunks(t, bytes.NewReader(body), 100)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[2]) != 50 {
		t.Errorf("tail chunk is %d bytes, want 50", len(chunks[2]))
	}
	if !bytes.Equal(bytes.Join(chunks, nil), body) {
		t.Error("concatenated chunks differ from input")
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	chunks := collectChunks(t, bytes.NewReader(nil), 100)
	if len(chunks) != 0 {
		t.Errorf("empty input produced %d chunks", len(chunks))
	}
}

func TestChunkerSingleByte(t *testing.T) {
	chunks := collectChunks(t, bytes.NewReader([]byte{0xff}), 100)
	if len(chunks) != 1 || len(chunks[0]) != 1 {
		t.Errorf("single byte chunked as %v", chunks)
	}
}

func TestChunkerFragmentedReader(t *testing.T) {
	// A reader delivering one byte per Read must still produce full
	// chunks.
	body := bytes.Repeat([]byte{0x03}, 150)
	chunks := collectChunks(t, iotest.OneByteReader(bytes.NewReader(body)), 100)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != 100 || len(chunks[1]) != 50 {
		t.Errorf("chunk sizes = %d, %d", len(chunks[0]), len(chunks[1]))
	}
}

func TestChunkerPropagatesReadError(t *testing.T) {
	wantErr := errors.New("disk on fire")
	ck := newChunker(iotest.ErrReader(wantErr), 100)
	_, err := ck.next()
	if !errors.Is(err, wantErr) {
		t.Errorf("chunker error = %v, want wrapped read error", err)
	}
}
