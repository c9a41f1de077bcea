package chunk

import (
	"encoding/json"
	"testing"
)

// testExternal is a minimal External implementation for tests.
type testExternal struct {
	id string
}

func (e testExternal) Projection() string      { return "test:" + e.id }
func (e testExternal) TypeTag() string         { return "test" }
func (e testExternal) Encode() ([]byte, error) { return []byte(e.id), nil }

func TestChunkEquality(t *testing.T) {
	tests := []struct {
		name string
		a, b Chunk
		want bool
	}{
		{"raw equal", Raw("x"), Raw("x"), true},
		{"raw differ", Raw("x"), Raw("y"), false},
		{"kind mismatch", Raw("x"), RefByIndex("c", 0), false},
		{"ref index equal", RefByIndex("c", 2), RefByIndex("c", 2), true},
		{"ref index differ", RefByIndex("c", 2), RefByIndex("c", 3), false},
		{"ref source equal", RefBySource("c", "s"), RefBySource("c", "s"), true},
		{"ref source differ", RefBySource("c", "s"), RefBySource("d", "s"), false},
	}
	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%s: Equal = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExternalEqualityByProjection(t *testing.T) {
	a, err := FromExternal(testExternal{id: "same"})
	if err != nil {
		t.Fatalf("from external: %v", err)
	}
	b, err := FromExternal(testExternal{id: "same"})
	if err != nil {
		t.Fatalf("from external: %v", err)
	}
	if !a.Equal(b) {
		t.Fatal("externals with equal projections are not equal")
	}
}

func TestExternalRoundTrip(t *testing.T) {
	c, err := FromExternal(testExternal{id: "payload"})
	if err != nil {
		t.Fatalf("from external: %v", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Chunk
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !got.Equal(c) {
		t.Fatal("reloaded external chunk not equal to original")
	}

	// Without a decoder the value stays opaque but keeps its identity
	// and payload.
	v, err := got.ExternalValue(nil)
	if err != nil {
		t.Fatalf("external value: %v", err)
	}
	if v.Projection() != "test:payload" {
		t.Fatalf("opaque projection: got %q", v.Projection())
	}
	payload, err := v.Encode()
	if err != nil {
		t.Fatalf("opaque encode: %v", err)
	}
	if string(payload) != "payload" {
		t.Fatalf("opaque payload: got %q", payload)
	}

	// With a decoder the concrete type comes back.
	dec := func(tag string, data []byte) (External, error) {
		return testExternal{id: string(data)}, nil
	}
	v, err = got.ExternalValue(dec)
	if err != nil {
		t.Fatalf("external value with decoder: %v", err)
	}
	if _, ok := v.(testExternal); !ok {
		t.Fatalf("decoder did not restore concrete type: %T", v)
	}
}

func TestSequenceEqual(t *testing.T) {
	a := Seq("x", "y")
	if !a.Equal(Seq("x", "y")) {
		t.Fatal("equal sequences reported unequal")
	}
	if a.Equal(Seq("x")) {
		t.Fatal("length mismatch reported equal")
	}
	if a.Equal(Seq("x", "z")) {
		t.Fatal("content mismatch reported equal")
	}
	if Keyed("a", "x").Equal(Sequence{{Chunk: Raw("x")}}) {
		t.Fatal("source key mismatch reported equal")
	}
}

func TestKeyedPanicsOnOddArgs(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Keyed("only-key")
}
