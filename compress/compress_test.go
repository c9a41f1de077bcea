package compress

import (
	"errors"
	"testing"

	"ragstore/chunk"
)

// testPool is an insertion-ordered in-memory pool.
type testPool struct {
	ids  []string
	seqs map[string]chunk.Sequence
}

func newTestPool() *testPool {
	return &testPool{seqs: make(map[string]chunk.Sequence)}
}

func (p *testPool) add(seq chunk.Sequence) string {
	id := chunk.Fingerprint(seq)
	if _, ok := p.seqs[id]; !ok {
		p.ids = append(p.ids, id)
	}
	p.seqs[id] = seq
	return id
}

func (p *testPool) Collections() []string { return p.ids }

func (p *testPool) Lookup(id string) (chunk.Sequence, bool) {
	s, ok := p.seqs[id]
	return s, ok
}

func TestNoneIsIdentity(t *testing.T) {
	pool := newTestPool()
	pool.add(chunk.Seq("alpha"))

	seq := chunk.Seq("alpha", "beta")
	got := Compress(None, pool, seq)
	if !got.Equal(seq) {
		t.Fatal("None strategy rewrote the sequence")
	}
}

func TestByIndexDedup(t *testing.T) {
	pool := newTestPool()

	s1 := chunk.Seq("alpha", "beta", "gamma")
	id1 := pool.add(Compress(ByIndex, pool, s1))

	// Every chunk of s2 already exists in s1 (but the multisets differ,
	// so the fingerprints do too): the stored form is all references.
	s2 := chunk.Seq("beta", "alpha")
	c2 := Compress(ByIndex, pool, s2)
	for i, e := range c2 {
		if e.Chunk.Kind != chunk.KindRefByIndex {
			t.Fatalf("entry %d: expected ref_index, got %s", i, e.Chunk.Kind)
		}
		if e.Chunk.Collection != id1 {
			t.Fatalf("entry %d: reference points to %q, want %q", i, e.Chunk.Collection, id1)
		}
	}
	if c2[0].Chunk.Position != 1 || c2[1].Chunk.Position != 0 {
		t.Fatalf("positions: got %d,%d", c2[0].Chunk.Position, c2[1].Chunk.Position)
	}
	pool.add(c2)

	// Entirely unique content: no references.
	c3 := Compress(ByIndex, pool, chunk.Seq("delta"))
	if c3[0].Chunk.Kind != chunk.KindRaw {
		t.Fatalf("unique content compressed to %s", c3[0].Chunk.Kind)
	}
}

func TestByIndexRoundTrip(t *testing.T) {
	pool := newTestPool()

	seqs := []chunk.Sequence{
		chunk.Seq("alpha", "beta"),
		chunk.Seq("alpha", "beta"),
		chunk.Seq("beta", "gamma", "alpha"),
		{},
	}
	for _, s := range seqs {
		id := pool.add(Compress(ByIndex, pool, s))
		got, err := Decompress(pool, pool.seqs[id])
		if err != nil {
			t.Fatalf("decompress %s: %v", id, err)
		}
		if !got.Equal(s) {
			t.Fatalf("round trip of %v yielded %v", s, got)
		}
	}
}

func TestByIndexShortCircuit(t *testing.T) {
	pool := newTestPool()
	s1 := chunk.Seq("alpha", "beta")
	id := pool.add(Compress(ByIndex, pool, s1))

	// Re-compressing equivalent content returns the stored form, not a
	// sequence of self-references.
	again := Compress(ByIndex, pool, chunk.Seq("alpha", "beta"))
	if !again.Equal(pool.seqs[id]) {
		t.Fatal("short-circuit did not return the stored sequence")
	}
}

func TestByIndexPrefersEarlierCollections(t *testing.T) {
	pool := newTestPool()
	first := pool.add(chunk.Seq("shared", "one"))
	pool.add(chunk.Seq("shared", "two"))

	c := Compress(ByIndex, pool, chunk.Seq("shared"))
	if c[0].Chunk.Collection != first {
		t.Fatalf("reference points to %q, want earlier collection %q", c[0].Chunk.Collection, first)
	}
}

func TestByIndexIgnoresRefTargets(t *testing.T) {
	pool := newTestPool()
	base := pool.add(chunk.Seq("alpha"))

	// A stored sequence containing a reference: the reference entry must
	// not become a dedup target, but its raw entry still does.
	withRef := chunk.Sequence{
		{Chunk: chunk.RefByIndex(base, 0)},
		{Chunk: chunk.Raw("beta")},
	}
	refID := pool.add(withRef)

	c := Compress(ByIndex, pool, chunk.Seq("beta"))
	if c[0].Chunk.Collection != refID || c[0].Chunk.Position != 1 {
		t.Fatalf("expected ref to %q[1], got %q[%d]", refID, c[0].Chunk.Collection, c[0].Chunk.Position)
	}
}

func TestCompressWritesInputRefsThrough(t *testing.T) {
	pool := newTestPool()
	base := pool.add(chunk.Seq("alpha"))

	in := chunk.Sequence{{Chunk: chunk.RefByIndex(base, 0)}}
	got := Compress(ByIndex, pool, in)
	if !got.Equal(in) {
		t.Fatal("input reference was rewritten")
	}
}

func TestBySourceDedup(t *testing.T) {
	pool := newTestPool()
	s1 := chunk.Keyed("doc1", "alpha", "doc2", "beta")
	id1 := pool.add(Compress(BySource, pool, s1))

	s2 := chunk.Keyed("other1", "alpha", "other2", "gamma")
	c2 := Compress(BySource, pool, s2)

	if c2[0].Chunk.Kind != chunk.KindRefBySource {
		t.Fatalf("expected ref_source, got %s", c2[0].Chunk.Kind)
	}
	if c2[0].Chunk.Collection != id1 || c2[0].Chunk.Source != "doc1" {
		t.Fatalf("reference: got %s/%s", c2[0].Chunk.Collection, c2[0].Chunk.Source)
	}
	if c2[0].Source != "other1" {
		t.Fatalf("entry kept wrong source key %q", c2[0].Source)
	}
	if c2[1].Chunk.Kind != chunk.KindRaw {
		t.Fatalf("unique chunk compressed to %s", c2[1].Chunk.Kind)
	}

	id2 := pool.add(c2)
	got, err := Decompress(pool, pool.seqs[id2])
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !got.Equal(s2) {
		t.Fatalf("round trip yielded %v", got)
	}
}

func TestBySourceChainedReferences(t *testing.T) {
	pool := newTestPool()
	baseID := pool.add(chunk.Keyed("k", "payload"))

	// A collection imported from another store may itself hold a
	// reference under a key; resolution follows the chain.
	mid := chunk.Sequence{{Source: "m", Chunk: chunk.RefBySource(baseID, "k")}}
	midID := pool.add(mid)

	top := chunk.Sequence{{Source: "t", Chunk: chunk.RefBySource(midID, "m")}}
	got, err := Decompress(pool, top)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if got[0].Chunk.Kind != chunk.KindRaw || got[0].Chunk.Text != "payload" {
		t.Fatalf("chain resolved to %+v", got[0].Chunk)
	}
}

func TestBySourceCycleDetection(t *testing.T) {
	pool := newTestPool()

	a := chunk.Sequence{{Source: "x", Chunk: chunk.RefBySource("b", "y")}}
	b := chunk.Sequence{{Source: "y", Chunk: chunk.RefBySource("a", "x")}}
	pool.ids = []string{"a", "b"}
	pool.seqs["a"] = a
	pool.seqs["b"] = b

	_, err := Decompress(pool, chunk.Sequence{{Chunk: chunk.RefBySource("a", "x")}})
	if !errors.Is(err, ErrCorruptReference) {
		t.Fatalf("expected ErrCorruptReference, got %v", err)
	}
}

func TestDecompressFailures(t *testing.T) {
	pool := newTestPool()
	id := pool.add(chunk.Keyed("k", "alpha"))

	tests := []struct {
		name string
		seq  chunk.Sequence
		want error
	}{
		{"unknown collection by index", chunk.Sequence{{Chunk: chunk.RefByIndex("missing", 0)}}, ErrUnknownCollection},
		{"unknown collection by source", chunk.Sequence{{Chunk: chunk.RefBySource("missing", "k")}}, ErrUnknownCollection},
		{"index out of range", chunk.Sequence{{Chunk: chunk.RefByIndex(id, 5)}}, ErrIndexOutOfRange},
		{"negative index", chunk.Sequence{{Chunk: chunk.RefByIndex(id, -1)}}, ErrIndexOutOfRange},
		{"unknown source", chunk.Sequence{{Chunk: chunk.RefBySource(id, "nope")}}, ErrUnknownSource},
	}
	for _, tt := range tests {
		_, err := Decompress(pool, tt.seq)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for _, tag := range []string{"none", "source", "index"} {
		if _, err := ParseStrategy(tag); err != nil {
			t.Fatalf("parse %q: %v", tag, err)
		}
	}
	if _, err := ParseStrategy("bogus"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
