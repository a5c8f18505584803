// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package substrate

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/wfldb-foundation/wfldb/lib/object"
)

// Open opens (creating if necessary) a pebble-backed substrate rooted
// at dir. The WAL is enabled; Sync commits fsync it before returning.
func Open(dir string) (Substrate, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: opening pebble at %s: %v", object.ErrSubstrateUnavailable, dir, err)
	}
	return &pebbleStore{db: db}, nil
}

type pebbleStore struct {
	db *pebble.DB
}

// encodeKey prepends the partition's namespace byte.
func encodeKey(p Partition, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, p.prefix())
	out = append(out, key...)
	return out
}

func (s *pebbleStore) Get(p Partition, key []byte) ([]byte, bool, error) {
	value, closer, err := s.db.Get(encodeKey(p, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s get: %v", object.ErrSubstrateUnavailable, p, err)
	}
	// The returned slice aliases pebble's block cache and is only
	// valid until closer.Close; hand the caller a copy.
	out := bytes.Clone(value)
	if err := closer.Close(); err != nil {
		return nil, false, fmt.Errorf("%w: %s get close: %v", object.ErrSubstrateUnavailable, p, err)
	}
	return out, true, nil
}

// keyUpperBound returns the smallest key greater than every key with
// the given prefix, or nil when no finite upper bound exists.
func keyUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *pebbleStore) Scan(p Partition, opts ScanOptions) (Iterator, error) {
	lower := encodeKey(p, opts.Prefix)
	if opts.StartAfter != nil {
		// First key strictly greater than StartAfter: append a zero
		// byte, the smallest possible key extension. A cursor below
		// the prefix range leaves the prefix as the lower bound.
		after := append(encodeKey(p, opts.StartAfter), 0x00)
		if bytes.Compare(after, lower) > 0 {
			lower = after
		}
	}
	upper := keyUpperBound(encodeKey(p, opts.Prefix))
	if upper != nil && bytes.Compare(lower, upper) >= 0 {
		// Cursor past the end of the prefix range: nothing to scan.
		return emptyIterator{}, nil
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s scan: %v", object.ErrSubstrateUnavailable, p, err)
	}
	return &pebbleIterator{iter: iter, partition: p}, nil
}

// emptyIterator is returned when scan bounds exclude every key.
type emptyIterator struct{}

func (emptyIterator) Next() bool    { return false }
func (emptyIterator) Key() []byte   { return nil }
func (emptyIterator) Value() []byte { return nil }
func (emptyIterator) Err() error    { return nil }
func (emptyIterator) Close() error  { return nil }

type pebbleIterator struct {
	iter      *pebble.Iterator
	partition Partition
	started   bool
}

func (it *pebbleIterator) Next() bool {
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

// Key returns the current key with the partition namespace byte
// stripped. Valid only until the next call to Next.
func (it *pebbleIterator) Key() []byte { return it.iter.Key()[1:] }

func (it *pebbleIterator) Value() []byte { return it.iter.Value() }

func (it *pebbleIterator) Err() error {
	if err := it.iter.Error(); err != nil {
		return fmt.Errorf("%w: %s iterator: %v", object.ErrSubstrateUnavailable, it.partition, err)
	}
	return nil
}

func (it *pebbleIterator) Close() error {
	if err := it.iter.Close(); err != nil {
		return fmt.Errorf("%w: %s iterator close: %v", object.ErrSubstrateUnavailable, it.partition, err)
	}
	return nil
}

func (s *pebbleStore) NewBatch() Batch {
	return &pebbleBatch{b: s.db.NewBatch()}
}

type pebbleBatch struct {
	b      *pebble.Batch
	closed bool
}

func (pb *pebbleBatch) Set(p Partition, key, value []byte) error {
	if pb.closed {
		return fmt.Errorf("%w: set on closed batch", object.ErrSubstrateUnavailable)
	}
	if err := pb.b.Set(encodeKey(p, key), value, nil); err != nil {
		return fmt.Errorf("%w: batch set: %v", object.ErrSubstrateUnavailable, err)
	}
	return nil
}

func (pb *pebbleBatch) Delete(p Partition, key []byte) error {
	if pb.closed {
		return fmt.Errorf("%w: delete on closed batch", object.ErrSubstrateUnavailable)
	}
	if err := pb.b.Delete(encodeKey(p, key), nil); err != nil {
		return fmt.Errorf("%w: batch delete: %v", object.ErrSubstrateUnavailable, err)
	}
	return nil
}

func (pb *pebbleBatch) Count() int  { return int(pb.b.Count()) }
func (pb *pebbleBatch) Size() int64 { return int64(pb.b.Len()) }

func (pb *pebbleBatch) Close() error {
	if pb.closed {
		return nil
	}
	pb.closed = true
	if err := pb.b.Close(); err != nil {
		return fmt.Errorf("%w: batch close: %v", object.ErrSubstrateUnavailable, err)
	}
	return nil
}

func (s *pebbleStore) Commit(b Batch, d Durability) error {
	pb, ok := b.(*pebbleBatch)
	if !ok {
		return fmt.Errorf("%w: foreign batch type %T", object.ErrSubstrateUnavailable, b)
	}
	if pb.closed {
		return fmt.Errorf("%w: commit of closed batch", object.ErrSubstrateUnavailable)
	}
	writeOpt := pebble.NoSync
	if d == Sync {
		writeOpt = pebble.Sync
	}
	if err := pb.b.Commit(writeOpt); err != nil {
		pb.Close()
		return fmt.Errorf("%w: batch commit (%s): %v", object.ErrSubstrateUnavailable, d, err)
	}
	return pb.Close()
}

func (s *pebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: closing pebble: %v", object.ErrSubstrateUnavailable, err)
	}
	return nil
}
