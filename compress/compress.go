// Package compress rewrites chunk sequences against a pool of already
// stored collections. Compression replaces repeated raw chunks with
// reference chunks pointing into earlier collections; decompression
// resolves references back to their targets. Reference chunks found in
// the input are written through unchanged, and external chunks are
// never rewritten.
package compress

import (
	"errors"
	"fmt"

	"ragstore/chunk"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownSource     = errors.New("unknown source")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrCorruptReference  = errors.New("corrupt reference chain")
)

// Strategy selects how Compress rewrites a sequence. The tags are the
// on-disk values of the dataset file's "compression" field.
type Strategy string

const (
	// None stores sequences verbatim.
	None Strategy = "none"

	// BySource emits RefBySource chunks against keyed pool entries.
	BySource Strategy = "source"

	// ByIndex emits RefByIndex chunks against pool positions. Default.
	ByIndex Strategy = "index"
)

// ParseStrategy maps an on-disk tag to a Strategy.
func ParseStrategy(tag string) (Strategy, error) {
	switch Strategy(tag) {
	case None, BySource, ByIndex:
		return Strategy(tag), nil
	}
	return "", fmt.Errorf("unknown compression strategy %q", tag)
}

// Pool is the set of stored compressed sequences visible to compression
// and decompression. Collections returns ids in a deterministic order;
// stores return insertion order (sorted order for ids loaded from a
// file) so references bias toward earlier-stored collections.
type Pool interface {
	Collections() []string
	Lookup(id string) (chunk.Sequence, bool)
}

// Compress rewrites seq against the pool under the given strategy. If
// the pool already holds a sequence under seq's fingerprint the stored
// sequence is returned unchanged: the incoming data is already
// represented.
func Compress(s Strategy, pool Pool, seq chunk.Sequence) chunk.Sequence {
	if s == None {
		return seq
	}
	if stored, ok := pool.Lookup(chunk.Fingerprint(seq)); ok {
		return stored
	}
	switch s {
	case BySource:
		return compressBySource(pool, seq)
	default:
		return compressByIndex(pool, seq)
	}
}

// compressBySource scans pool collections in order and their entries in
// insertion order; the first keyed raw entry equal to an incoming raw
// chunk becomes its reference target.
func compressBySource(pool Pool, seq chunk.Sequence) chunk.Sequence {
	out := make(chunk.Sequence, 0, len(seq))
	for _, e := range seq {
		if e.Chunk.Kind != chunk.KindRaw {
			out = append(out, e)
			continue
		}
		ref, ok := findSource(pool, e.Chunk)
		if ok {
			out = append(out, chunk.Entry{Source: e.Source, Chunk: ref})
		} else {
			out = append(out, e)
		}
	}
	return out
}

func findSource(pool Pool, c chunk.Chunk) (chunk.Chunk, bool) {
	for _, id := range pool.Collections() {
		stored, ok := pool.Lookup(id)
		if !ok {
			continue
		}
		for _, se := range stored {
			if se.Source == "" || se.Chunk.Kind != chunk.KindRaw {
				continue
			}
			if se.Chunk.Equal(c) {
				return chunk.RefBySource(id, se.Source), true
			}
		}
	}
	return chunk.Chunk{}, false
}

// compressByIndex builds a text-to-position lookup over the whole pool,
// keeping the first occurrence of each text, then substitutes matching
// raw chunks with positional references.
func compressByIndex(pool Pool, seq chunk.Sequence) chunk.Sequence {
	type target struct {
		id  string
		pos int
	}
	lookup := make(map[string]target)
	for _, id := range pool.Collections() {
		stored, ok := pool.Lookup(id)
		if !ok {
			continue
		}
		for pos, se := range stored {
			if se.Chunk.Kind != chunk.KindRaw {
				continue
			}
			if _, seen := lookup[se.Chunk.Text]; !seen {
				lookup[se.Chunk.Text] = target{id: id, pos: pos}
			}
		}
	}

	out := make(chunk.Sequence, 0, len(seq))
	for _, e := range seq {
		if e.Chunk.Kind == chunk.KindRaw {
			if t, ok := lookup[e.Chunk.Text]; ok {
				out = append(out, chunk.Entry{Source: e.Source, Chunk: chunk.RefByIndex(t.id, t.pos)})
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Decompress resolves every reference chunk in seq against the pool.
// RefByIndex resolves in one hop: stored data never chains positional
// references. RefBySource recurses through chained references (imported
// collections may carry them) with cycle detection.
func Decompress(pool Pool, seq chunk.Sequence) (chunk.Sequence, error) {
	out := make(chunk.Sequence, 0, len(seq))
	for _, e := range seq {
		switch e.Chunk.Kind {
		case chunk.KindRefByIndex:
			target, err := resolveIndex(pool, e.Chunk)
			if err != nil {
				return nil, err
			}
			out = append(out, chunk.Entry{Source: e.Source, Chunk: target})
		case chunk.KindRefBySource:
			target, err := resolveSource(pool, e.Chunk, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, chunk.Entry{Source: e.Source, Chunk: target})
		default:
			out = append(out, e)
		}
	}
	return out, nil
}

func resolveIndex(pool Pool, ref chunk.Chunk) (chunk.Chunk, error) {
	stored, ok := pool.Lookup(ref.Collection)
	if !ok {
		return chunk.Chunk{}, fmt.Errorf("%w: %q", ErrUnknownCollection, ref.Collection)
	}
	if ref.Position < 0 || ref.Position >= len(stored) {
		return chunk.Chunk{}, fmt.Errorf("%w: %q[%d] (len %d)", ErrIndexOutOfRange, ref.Collection, ref.Position, len(stored))
	}
	return stored[ref.Position].Chunk, nil
}

type sourceKey struct {
	collection string
	source     string
}

// resolveSource follows a source-reference chain to its raw target. A
// revisited (collection, source) pair means the stored data is corrupt.
func resolveSource(pool Pool, ref chunk.Chunk, visited map[sourceKey]struct{}) (chunk.Chunk, error) {
	key := sourceKey{ref.Collection, ref.Source}
	if _, seen := visited[key]; seen {
		return chunk.Chunk{}, fmt.Errorf("%w: revisited %s/%s", ErrCorruptReference, ref.Collection, ref.Source)
	}
	if visited == nil {
		visited = make(map[sourceKey]struct{})
	}
	visited[key] = struct{}{}

	stored, ok := pool.Lookup(ref.Collection)
	if !ok {
		return chunk.Chunk{}, fmt.Errorf("%w: %q", ErrUnknownCollection, ref.Collection)
	}
	for _, se := range stored {
		if se.Source != ref.Source {
			continue
		}
		switch se.Chunk.Kind {
		case chunk.KindRefBySource:
			return resolveSource(pool, se.Chunk, visited)
		case chunk.KindRefByIndex:
			return resolveIndex(pool, se.Chunk)
		default:
			return se.Chunk, nil
		}
	}
	return chunk.Chunk{}, fmt.Errorf("%w: %s/%s", ErrUnknownSource, ref.Collection, ref.Source)
}
