// Package codec provides the pluggable serialisation behind store
// files. JSON is the default for human readability; msgpack is the
// compact alternative. Either can be wrapped with zstd compression at
// rest. The zstd codec's decoder sniffs the zstd magic and also accepts
// uncompressed input; the plain codecs do not decode zstd data. The
// zstd codec adds ".zst" to the file extension, so a store opened with
// a different compression setting reads a different file.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec serialises store envelopes. Ext is the file extension the
// stores append to their base names.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Ext() string
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Ext() string                        { return "json" }

// JSON returns the default store codec.
func JSON() Codec { return jsonCodec{} }

type msgpackCodec struct{}

func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (msgpackCodec) Ext() string                        { return "msgpack" }

// Msgpack returns the compact binary codec.
func Msgpack() Codec { return msgpackCodec{} }

// zstdMagic is the little-endian zstd frame magic, used to sniff
// whether a loaded file is compressed.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Shared zstd coders; both are concurrency-safe in streamless mode.
var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	var err error
	zstdEnc, err = zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		panic("zstd: init encoder: " + err.Error())
	}
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

type zstdCodec struct {
	inner Codec
}

// Zstd wraps a codec with zstd compression at rest.
func Zstd(inner Codec) Codec { return zstdCodec{inner: inner} }

func (c zstdCodec) Marshal(v any) ([]byte, error) {
	data, err := c.inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	return zstdEnc.EncodeAll(data, nil), nil
}

func (c zstdCodec) Unmarshal(data []byte, v any) error {
	if bytes.HasPrefix(data, zstdMagic) {
		plain, err := zstdDec.DecodeAll(data, nil)
		if err != nil {
			return fmt.Errorf("zstd decode: %w", err)
		}
		data = plain
	}
	return c.inner.Unmarshal(data, v)
}

func (c zstdCodec) Ext() string { return c.inner.Ext() + ".zst" }
