// Package ragstore ties a DatasetStore and a TestcaseStore under one
// lock. Construction is cheap: if both store files exist their loads
// start on background goroutines and the first operation installs the
// results; otherwise empty stores are created. Every public operation
// runs under the store's mutex, and persistence happens synchronously
// inside the critical section.
package ragstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ragstore/chunk"
	"ragstore/internal/logging"
	"ragstore/store"
)

// ErrLoad wraps a failed background store load. It surfaces at the
// first operation after construction and at every operation after
// that; a store that failed to load never mutates its files.
var ErrLoad = errors.New("store load failed")

// Option configures a RAGStore.
type Option func(*RAGStore)

// WithStoreOptions passes options through to both sub-stores.
func WithStoreOptions(opts ...store.Option) Option {
	return func(s *RAGStore) { s.storeOpts = append(s.storeOpts, opts...) }
}

// WithLogger injects a logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(s *RAGStore) { s.logger = logger }
}

// WithClock overrides the timestamp source. Tests use this to pin
// injected case timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *RAGStore) { s.now = now }
}

// loadResult is the outcome of one background load, delivered through
// a one-shot slot: a buffered channel consumed exactly once under the
// lock.
type loadResult[T any] struct {
	v   T
	err error
}

// RAGStore owns one DatasetStore and one TestcaseStore plus their file
// paths. The mutex linearises all operations; nested helpers assume
// the lock is held.
type RAGStore struct {
	name string
	dir  string

	storeOpts []store.Option
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	dataset  *store.DatasetStore
	testcase *store.TestcaseStore
	dsSlot   chan loadResult[*store.DatasetStore]
	tcSlot   chan loadResult[*store.TestcaseStore]
	loadErr  error
}

// New creates a RAGStore persisting under dir as <name>_dataset and
// <name>_testcase. Construction never blocks on I/O: existing files
// start loading in the background, missing files yield empty stores.
func New(name, dir string, opts ...Option) *RAGStore {
	s := &RAGStore{name: name, dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Default(s.logger).With("component", "ragstore", "name", name)
	s.storeOpts = append([]store.Option{store.WithLogger(s.logger)}, s.storeOpts...)

	dsBase := s.datasetBase()
	tcBase := s.testcaseBase()

	// Constructing a store is cheap and does no I/O; building both up
	// front resolves the codec-dependent file paths for the existence
	// check.
	dataset := store.NewDatasetStore(dsBase, s.storeOpts...)
	testcase := store.NewTestcaseStore(tcBase, s.storeOpts...)
	if fileExists(dataset.Path()) && fileExists(testcase.Path()) {
		s.dsSlot = make(chan loadResult[*store.DatasetStore], 1)
		s.tcSlot = make(chan loadResult[*store.TestcaseStore], 1)
		storeOpts := s.storeOpts
		go func() {
			ds, err := store.LoadDatasetStore(dsBase, storeOpts...)
			s.dsSlot <- loadResult[*store.DatasetStore]{v: ds, err: err}
		}()
		go func() {
			tc, err := store.LoadTestcaseStore(tcBase, storeOpts...)
			s.tcSlot <- loadResult[*store.TestcaseStore]{v: tc, err: err}
		}()
	} else {
		s.dataset = dataset
		s.testcase = testcase
	}
	return s
}

func (s *RAGStore) datasetBase() string  { return filepath.Join(s.dir, s.name+"_dataset") }
func (s *RAGStore) testcaseBase() string { return filepath.Join(s.dir, s.name+"_testcase") }

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ensureLoaded consumes any pending load slots. Callers hold the lock.
func (s *RAGStore) ensureLoaded() error {
	if s.loadErr != nil {
		return s.loadErr
	}
	if s.dsSlot != nil {
		r := <-s.dsSlot
		s.dsSlot = nil
		if r.err != nil {
			s.loadErr = fmt.Errorf("%w: %v", ErrLoad, r.err)
			return s.loadErr
		}
		s.dataset = r.v
	}
	if s.tcSlot != nil {
		r := <-s.tcSlot
		s.tcSlot = nil
		if r.err != nil {
			s.loadErr = fmt.Errorf("%w: %v", ErrLoad, r.err)
			return s.loadErr
		}
		s.testcase = r.v
	}
	return nil
}

// Append stores the sequence under its content fingerprint and records
// the case against it. A missing timestamp is injected. If an existing
// case under the same id carries an equal question, the testcase write
// is skipped (logged, not an error) and the id is returned as usual.
func (s *RAGStore) Append(seq chunk.Sequence, c store.Case) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return "", err
	}

	id, err := s.dataset.Append(seq)
	if err != nil {
		return "", err
	}

	cc := c.Clone()
	if cc == nil {
		cc = store.Case{}
	}
	if _, ok := cc.Timestamp(); !ok {
		cc[store.FieldTimestamp] = s.now()
	}

	for _, existing := range s.testcase.Get(id) {
		if existing.Question() == cc.Question() {
			s.logger.Info("duplicate question skipped", "id", id, "question", cc.Question())
			return id, nil
		}
	}
	if err := s.testcase.Append(id, cc); err != nil {
		return id, err
	}
	return id, nil
}

// GetIndex returns the decompressed sequence stored under id.
func (s *RAGStore) GetIndex(id string) (chunk.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return s.dataset.Get(id)
}

// GetQuestions returns the cases recorded against id. Missing ids
// yield an empty list.
func (s *RAGStore) GetQuestions(id string) ([]store.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return s.testcase.Get(id), nil
}

// UpdateLastCase replaces the most recent case under id, typically to
// record an answer after the fact. No-op for unknown ids.
func (s *RAGStore) UpdateLastCase(id string, c store.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	return s.testcase.UpdateLast(id, c)
}

// IDs returns the stored fingerprints in insertion order; fingerprints
// loaded from an existing file come first, in sorted order.
func (s *RAGStore) IDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return s.dataset.Collections(), nil
}

// Cases returns a snapshot of the full fingerprint-to-cases mapping.
func (s *RAGStore) Cases() (map[string][]store.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	return s.testcase.All(), nil
}

// EnsureSaved waits for in-flight work. Persistence happens inside each
// operation's critical section, so this reduces to taking the lock
// (and completing a pending load).
func (s *RAGStore) EnsureSaved() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded()
}

// savedForm is the path-only projection persisted when a RAGStore is
// embedded in a caller's own serialised structures. The sub-stores own
// their files and are never re-serialised.
type savedForm struct {
	Name string `json:"name" msgpack:"name"`
	Dir  string `json:"dir" msgpack:"dir"`
}

// MarshalJSON writes only the store's name and directory.
func (s *RAGStore) MarshalJSON() ([]byte, error) {
	return json.Marshal(savedForm{Name: s.name, Dir: s.dir})
}

// UnmarshalJSON reconstructs a store from its path-only form. The
// result behaves like New: loading is lazy and non-blocking.
func (s *RAGStore) UnmarshalJSON(data []byte) error {
	var f savedForm
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	ns := New(f.Name, f.Dir)
	s.name = ns.name
	s.dir = ns.dir
	s.storeOpts = ns.storeOpts
	s.logger = ns.logger
	s.now = ns.now
	s.dataset = ns.dataset
	s.testcase = ns.testcase
	s.dsSlot = ns.dsSlot
	s.tcSlot = ns.tcSlot
	s.loadErr = nil
	return nil
}
