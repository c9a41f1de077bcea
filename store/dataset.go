package store

import (
	"fmt"
	"os"
	"sort"

	"ragstore/chunk"
	"ragstore/compress"
	"ragstore/internal/fsx"
	"ragstore/internal/logging"
)

// datasetFile is the single top-level mapping persisted per dataset
// store. Writers always emit "chunks"; readers also accept the legacy
// "indexes" key.
type datasetFile struct {
	Chunks       map[string]chunk.Sequence `json:"chunks" msgpack:"chunks"`
	LegacyChunks map[string]chunk.Sequence `json:"indexes,omitempty" msgpack:"indexes,omitempty"`
	Compression  string                    `json:"compression" msgpack:"compression"`
}

// DatasetStore maps content fingerprints to compressed chunk
// sequences. Every key is the fingerprint of the original,
// pre-compression sequence; appends are idempotent.
type DatasetStore struct {
	cfg  config
	path string

	seqs map[string]chunk.Sequence

	// order tracks fingerprints by insertion so compression lookups walk
	// earlier-stored collections first. After a reload it is the sorted
	// key order, which is still deterministic.
	order []string
}

var _ compress.Pool = (*DatasetStore)(nil)

// NewDatasetStore creates an empty store persisting to
// base.<codec ext>. Nothing is written until the first append.
func NewDatasetStore(base string, opts ...Option) *DatasetStore {
	cfg := newConfig(opts)
	cfg.logger = logging.Default(cfg.logger).With("component", "dataset")
	return &DatasetStore{
		cfg:  cfg,
		path: base + "." + cfg.codec.Ext(),
		seqs: make(map[string]chunk.Sequence),
	}
}

// LoadDatasetStore reads the store file for base. A missing file yields
// an empty store. A loaded file's compression tag overrides the
// configured strategy.
func LoadDatasetStore(base string, opts ...Option) (*DatasetStore, error) {
	s := NewDatasetStore(base, opts...)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read dataset file: %w", err)
	}

	var file datasetFile
	if err := s.cfg.codec.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse dataset file %s: %w", s.path, err)
	}
	seqs := file.Chunks
	if seqs == nil {
		seqs = file.LegacyChunks
	}
	if seqs == nil {
		seqs = make(map[string]chunk.Sequence)
	}
	if file.Compression != "" {
		strategy, err := compress.ParseStrategy(file.Compression)
		if err != nil {
			return nil, fmt.Errorf("dataset file %s: %w", s.path, err)
		}
		s.cfg.strategy = strategy
	}

	s.seqs = seqs
	s.order = make([]string, 0, len(seqs))
	for id := range seqs {
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)

	s.cfg.logger.Debug("dataset store loaded", "path", s.path, "collections", len(seqs))
	return s, nil
}

// Path returns the store file path.
func (s *DatasetStore) Path() string { return s.path }

// Strategy returns the compression strategy in effect.
func (s *DatasetStore) Strategy() compress.Strategy { return s.cfg.strategy }

// Collections returns the stored fingerprints in insertion order;
// fingerprints read from the store file come first, in sorted order.
func (s *DatasetStore) Collections() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Lookup returns the compressed sequence stored under id.
func (s *DatasetStore) Lookup(id string) (chunk.Sequence, bool) {
	seq, ok := s.seqs[id]
	return seq, ok
}

// Len returns the number of stored collections.
func (s *DatasetStore) Len() int { return len(s.seqs) }

// Append fingerprints the sequence, compresses it against the existing
// pool, installs it under its fingerprint and saves the dataset file.
// Re-appending an equivalent sequence overwrites the same key, so the
// operation is idempotent.
func (s *DatasetStore) Append(seq chunk.Sequence) (string, error) {
	id := chunk.Fingerprint(seq)
	compressed := compress.Compress(s.cfg.strategy, s, seq)
	if _, exists := s.seqs[id]; !exists {
		s.order = append(s.order, id)
	}
	s.seqs[id] = compressed
	if err := s.save(); err != nil {
		return "", err
	}
	return id, nil
}

// ExternalDecoder returns the configured decoder for restoring
// persisted external chunks, nil if none. Callers pass it to
// chunk.ExternalValue on chunks returned by Get.
func (s *DatasetStore) ExternalDecoder() chunk.ExternalDecoder { return s.cfg.extDec }

// Get returns the fully decompressed sequence stored under id.
func (s *DatasetStore) Get(id string) (chunk.Sequence, error) {
	seq, ok := s.seqs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, id)
	}
	return compress.Decompress(s, seq)
}

func (s *DatasetStore) save() error {
	file := datasetFile{
		Chunks:      s.seqs,
		Compression: string(s.cfg.strategy),
	}
	data, err := s.cfg.codec.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode dataset file: %w", err)
	}
	if err := fsx.WriteFileAtomic(s.path, data, s.cfg.fileMode); err != nil {
		return fmt.Errorf("save dataset file: %w", err)
	}
	return nil
}
