// Package store implements the two companion stores behind a RAG
// dataset: DatasetStore maps content fingerprints to compressed chunk
// sequences, TestcaseStore maps fingerprints to the case records logged
// against them. Each store persists to a single file with an atomic
// write-temp-then-rename protocol.
//
// Stores are not safe for concurrent mutation; the façade in package
// ragstore serialises access. Concurrent reads of an unmutated store
// are safe.
package store

import (
	"errors"
	"log/slog"
	"os"

	"ragstore/chunk"
	"ragstore/compress"
	"ragstore/internal/codec"
)

var ErrKeyNotFound = errors.New("key not found")

// Option configures a store. Options that do not apply to a store type
// are ignored by it (a TestcaseStore has no compression strategy).
type Option func(*config)

type config struct {
	codec    codec.Codec
	logger   *slog.Logger
	strategy compress.Strategy
	extDec   chunk.ExternalDecoder
	fileMode os.FileMode
}

func newConfig(opts []Option) config {
	cfg := config{
		codec:    codec.JSON(),
		strategy: compress.ByIndex,
		fileMode: 0o644,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithCodec selects the serialisation codec. Default: codec.JSON().
func WithCodec(c codec.Codec) Option {
	return func(cfg *config) { cfg.codec = c }
}

// WithLogger injects a logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) { cfg.logger = logger }
}

// WithStrategy selects the compression strategy for new dataset stores.
// A loaded store adopts the strategy recorded in its file instead.
// Default: compress.ByIndex.
func WithStrategy(s compress.Strategy) Option {
	return func(cfg *config) { cfg.strategy = s }
}

// WithExternalDecoder configures how persisted external chunks are
// restored to live values. Without a decoder, external chunks stay
// opaque but still round-trip.
func WithExternalDecoder(dec chunk.ExternalDecoder) Option {
	return func(cfg *config) { cfg.extDec = dec }
}

// WithFileMode sets the permission bits for store files. Default 0644.
func WithFileMode(mode os.FileMode) Option {
	return func(cfg *config) { cfg.fileMode = mode }
}
