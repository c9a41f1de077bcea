// Package chunk defines the chunk model for stored indices.
// An index is an ordered sequence of chunks; entries may carry a source
// key so that other collections can refer to them by name. Reference
// chunks are the output of compression and point into previously stored
// collections, either by source key or by position.
package chunk

import (
	"errors"
	"fmt"
)

var ErrExternalEncode = errors.New("external chunk encode failed")

// Kind discriminates the chunk variants. The on-disk tags are stable;
// renaming a constant must not change its string value.
type Kind string

const (
	// KindRaw carries its text payload inline.
	KindRaw Kind = "raw"

	// KindExternal wraps a caller-defined value that the store treats as
	// an atomic blob. It participates in equality and fingerprinting via
	// its string projection but is never rewritten to a reference.
	KindExternal Kind = "external"

	// KindRefBySource points at an entry of another collection by its
	// source key.
	KindRefBySource Kind = "ref_source"

	// KindRefByIndex points at an entry of another collection by its
	// zero-based position.
	KindRefByIndex Kind = "ref_index"
)

// Chunk is a closed tagged union. Only the fields belonging to Kind are
// populated; the rest stay at their zero value so the serialised form
// carries no dead weight.
type Chunk struct {
	Kind Kind   `json:"kind" msgpack:"kind"`
	Text string `json:"text,omitempty" msgpack:"text,omitempty"`

	// External payload, sealed at construction time so persistence never
	// needs the live value.
	ExtType string `json:"ext_type,omitempty" msgpack:"ext_type,omitempty"`
	ExtProj string `json:"ext_proj,omitempty" msgpack:"ext_proj,omitempty"`
	ExtData []byte `json:"ext_data,omitempty" msgpack:"ext_data,omitempty"`

	// Reference coordinates.
	Collection string `json:"collection,omitempty" msgpack:"collection,omitempty"`
	Source     string `json:"source,omitempty" msgpack:"source,omitempty"`
	Position   int    `json:"position,omitempty" msgpack:"position,omitempty"`

	// Live external value, if this chunk was built in-process. Not
	// serialised; reloaded chunks keep the sealed payload instead.
	ext External
}

// External is the capability set a caller-defined chunk value must
// provide: a stable string projection (used for equality and
// fingerprinting), a type tag, and an encoded payload for persistence.
type External interface {
	Projection() string
	TypeTag() string
	Encode() ([]byte, error)
}

// ExternalDecoder restores an External from its persisted tag and
// payload. Decoders are configured per store; there is no global
// registry.
type ExternalDecoder func(typeTag string, data []byte) (External, error)

// Raw returns a chunk carrying text inline.
func Raw(text string) Chunk {
	return Chunk{Kind: KindRaw, Text: text}
}

// FromExternal wraps a caller-defined value. The value is encoded
// immediately so the chunk is self-contained for persistence.
func FromExternal(v External) (Chunk, error) {
	data, err := v.Encode()
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %v", ErrExternalEncode, err)
	}
	return Chunk{
		Kind:    KindExternal,
		ExtType: v.TypeTag(),
		ExtProj: v.Projection(),
		ExtData: data,
		ext:     v,
	}, nil
}

// RefBySource returns a reference chunk resolved by source key within
// the named collection.
func RefBySource(collection, source string) Chunk {
	return Chunk{Kind: KindRefBySource, Collection: collection, Source: source}
}

// RefByIndex returns a reference chunk resolved by position within the
// named collection.
func RefByIndex(collection string, position int) Chunk {
	return Chunk{Kind: KindRefByIndex, Collection: collection, Position: position}
}

// IsRef reports whether the chunk is a reference variant.
func (c Chunk) IsRef() bool {
	return c.Kind == KindRefBySource || c.Kind == KindRefByIndex
}

// ExternalValue returns the live external value for a KindExternal
// chunk. If the chunk was loaded from disk the decoder restores it; a
// nil decoder (or an unknown type tag handled by the caller) yields an
// opaque value that preserves the sealed payload and projection.
func (c Chunk) ExternalValue(dec ExternalDecoder) (External, error) {
	if c.Kind != KindExternal {
		return nil, fmt.Errorf("chunk kind %q has no external value", c.Kind)
	}
	if c.ext != nil {
		return c.ext, nil
	}
	if dec != nil {
		return dec(c.ExtType, c.ExtData)
	}
	return opaqueExternal{typeTag: c.ExtType, proj: c.ExtProj, data: c.ExtData}, nil
}

// opaqueExternal round-trips an external whose concrete type is not
// known to this process.
type opaqueExternal struct {
	typeTag string
	proj    string
	data    []byte
}

func (o opaqueExternal) Projection() string      { return o.proj }
func (o opaqueExternal) TypeTag() string         { return o.typeTag }
func (o opaqueExternal) Encode() ([]byte, error) { return o.data, nil }

// projection is the canonical string identity of a chunk, used for
// equality and fingerprinting. Reference chunks project their
// coordinates; they are never sources for deduplication.
func (c Chunk) projection() string {
	switch c.Kind {
	case KindRaw:
		return c.Text
	case KindExternal:
		return c.ExtProj
	case KindRefBySource:
		return "@" + c.Collection + "/" + c.Source
	case KindRefByIndex:
		return fmt.Sprintf("@%s#%d", c.Collection, c.Position)
	}
	return ""
}

// Equal reports chunk equality: raw text for KindRaw, string projection
// for KindExternal, coordinates for references.
func (c Chunk) Equal(o Chunk) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case KindRaw:
		return c.Text == o.Text
	case KindExternal:
		return c.ExtProj == o.ExtProj
	case KindRefBySource:
		return c.Collection == o.Collection && c.Source == o.Source
	case KindRefByIndex:
		return c.Collection == o.Collection && c.Position == o.Position
	}
	return false
}
