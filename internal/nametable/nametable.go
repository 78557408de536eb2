// Package nametable implements the immutable chained hash tables stored in
// a module's index block: name lookups without decoding the whole table.
//
// Blob layout, all offsets relative to the blob start:
//
//	+--------+---------------------------+-----------------------------+
//	| 0x00   |  chains ...               |  header                     |
//	+--------+---------------------------+-----------------------------+
//	                                      ^ tableOff
//
//	header:  bucketCount uint32 LE | entryCount uint32 LE |
//	         bucketCount x chainOff uint32 LE   (0 = empty bucket)
//	chain:   chainLen uvarint, then per entry:
//	         keyLen uvarint | key bytes | pairCount uvarint |
//	         pairCount x (kind uvarint | value uvarint)
//
// The reserved first byte keeps 0 free as the empty-bucket marker. Buckets
// are selected by FNV-1a over the key, masked by the power-of-two bucket
// count. A lookup hashes, probes one bucket, and decodes only the matching
// entry.
package nametable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math/bits"
	"sort"
)

// ErrMalformed is the sentinel every structural table error wraps.
var ErrMalformed = errors.New("nametable: malformed table")

// Pair is one value under a key: a small kind discriminator and a 31-bit ID.
type Pair struct {
	Kind  uint32
	Value uint32
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}

// Builder accumulates key/pair entries and encodes them once.
type Builder struct {
	entries map[string][]Pair
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[string][]Pair)}
}

// Add appends a pair under key, keeping insertion order within the key.
func (b *Builder) Add(key string, p Pair) {
	b.entries[key] = append(b.entries[key], p)
}

// Len returns the number of distinct keys.
func (b *Builder) Len() int { return len(b.entries) }

// Encode serializes the table. It returns the blob and the header offset to
// store alongside it. Output is deterministic: chains are laid out in bucket
// order and keys sorted within each bucket.
func (b *Builder) Encode() ([]byte, uint32) {
	bucketCount := 1
	if n := len(b.entries); n > 1 {
		bucketCount = 1 << bits.Len(uint(n-1))
	}
	mask := uint64(bucketCount - 1)

	buckets := make([][]string, bucketCount)
	for key := range b.entries {
		i := hashKey(key) & mask
		buckets[i] = append(buckets[i], key)
	}
	for _, keys := range buckets {
		sort.Strings(keys)
	}

	blob := []byte{0} // reserve offset 0 as the empty-bucket marker
	chainOffs := make([]uint32, bucketCount)
	for i, keys := range buckets {
		if len(keys) == 0 {
			continue
		}
		chainOffs[i] = uint32(len(blob))
		blob = binary.AppendUvarint(blob, uint64(len(keys)))
		for _, key := range keys {
			blob = binary.AppendUvarint(blob, uint64(len(key)))
			blob = append(blob, key...)
			pairs := b.entries[key]
			blob = binary.AppendUvarint(blob, uint64(len(pairs)))
			for _, p := range pairs {
				blob = binary.AppendUvarint(blob, uint64(p.Kind))
				blob = binary.AppendUvarint(blob, uint64(p.Value))
			}
		}
	}

	tableOff := uint32(len(blob))
	blob = binary.LittleEndian.AppendUint32(blob, uint32(bucketCount))
	blob = binary.LittleEndian.AppendUint32(blob, uint32(len(b.entries)))
	for _, off := range chainOffs {
		blob = binary.LittleEndian.AppendUint32(blob, off)
	}
	return blob, tableOff
}

// Table reads an encoded name table in place; the blob is not copied.
type Table struct {
	blob        []byte
	bucketsOff  uint32
	bucketCount uint32
	entryCount  uint32
}

// Open validates the header and returns a Table over the blob.
func Open(blob []byte, tableOff uint32) (*Table, error) {
	if uint64(tableOff)+8 > uint64(len(blob)) {
		return nil, fmt.Errorf("%w: header at %d past blob end %d", ErrMalformed, tableOff, len(blob))
	}
	bucketCount := binary.LittleEndian.Uint32(blob[tableOff:])
	entryCount := binary.LittleEndian.Uint32(blob[tableOff+4:])
	if bucketCount == 0 || bucketCount&(bucketCount-1) != 0 {
		return nil, fmt.Errorf("%w: bucket count %d not a power of two", ErrMalformed, bucketCount)
	}
	bucketsOff := uint64(tableOff) + 8
	if bucketsOff+4*uint64(bucketCount) > uint64(len(blob)) {
		return nil, fmt.Errorf("%w: %d buckets past blob end", ErrMalformed, bucketCount)
	}
	return &Table{
		blob:        blob,
		bucketsOff:  uint32(bucketsOff),
		bucketCount: bucketCount,
		entryCount:  entryCount,
	}, nil
}

// Len returns the number of distinct keys in the table.
func (t *Table) Len() int { return int(t.entryCount) }

// Lookup returns the pairs stored under key, or nil when absent.
func (t *Table) Lookup(key string) ([]Pair, error) {
	bucket := uint32(hashKey(key) & uint64(t.bucketCount-1))
	chainOff := binary.LittleEndian.Uint32(t.blob[t.bucketsOff+4*bucket:])
	if chainOff == 0 {
		return nil, nil
	}
	if uint64(chainOff) >= uint64(len(t.blob)) {
		return nil, fmt.Errorf("%w: chain offset %d past blob end", ErrMalformed, chainOff)
	}

	d := decoder{blob: t.blob, pos: uint64(chainOff)}
	chainLen, err := d.uvarint()
	if err != nil {
		return nil, err
	}
	for range chainLen {
		entryKey, err := d.key()
		if err != nil {
			return nil, err
		}
		pairCount, err := d.uvarint()
		if err != nil {
			return nil, err
		}
		if entryKey == key {
			return d.pairs(pairCount)
		}
		for range pairCount {
			if _, err := d.pair(); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

// Walk visits every key with its pairs, in table order. The callback's error
// stops the walk and is returned.
func (t *Table) Walk(fn func(key string, pairs []Pair) error) error {
	for bucket := range t.bucketCount {
		chainOff := binary.LittleEndian.Uint32(t.blob[t.bucketsOff+4*bucket:])
		if chainOff == 0 {
			continue
		}
		if uint64(chainOff) >= uint64(len(t.blob)) {
			return fmt.Errorf("%w: chain offset %d past blob end", ErrMalformed, chainOff)
		}
		d := decoder{blob: t.blob, pos: uint64(chainOff)}
		chainLen, err := d.uvarint()
		if err != nil {
			return err
		}
		for range chainLen {
			key, err := d.key()
			if err != nil {
				return err
			}
			pairCount, err := d.uvarint()
			if err != nil {
				return err
			}
			pairs, err := d.pairs(pairCount)
			if err != nil {
				return err
			}
			if err := fn(key, pairs); err != nil {
				return err
			}
		}
	}
	return nil
}

type decoder struct {
	blob []byte
	pos  uint64
}

func (d *decoder) uvarint() (uint64, error) {
	v, n := binary.Uvarint(d.blob[d.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: bad varint at %d", ErrMalformed, d.pos)
	}
	d.pos += uint64(n)
	return v, nil
}

func (d *decoder) key() (string, error) {
	keyLen, err := d.uvarint()
	if err != nil {
		return "", err
	}
	if keyLen > uint64(len(d.blob))-d.pos {
		return "", fmt.Errorf("%w: key of %d bytes at %d past blob end", ErrMalformed, keyLen, d.pos)
	}
	key := string(d.blob[d.pos : d.pos+keyLen])
	d.pos += keyLen
	return key, nil
}

func (d *decoder) pair() (Pair, error) {
	kind, err := d.uvarint()
	if err != nil {
		return Pair{}, err
	}
	value, err := d.uvarint()
	if err != nil {
		return Pair{}, err
	}
	return Pair{Kind: uint32(kind), Value: uint32(value)}, nil
}

// pairs decodes count pairs. A pair occupies at least two bytes, so the
// count is checked against the remaining blob before allocating.
func (d *decoder) pairs(count uint64) ([]Pair, error) {
	if count > (uint64(len(d.blob))-d.pos)/2 {
		return nil, fmt.Errorf("%w: %d pairs at %d past blob end", ErrMalformed, count, d.pos)
	}
	out := make([]Pair, 0, count)
	for range count {
		p, err := d.pair()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
