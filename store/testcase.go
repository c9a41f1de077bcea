package store

import (
	"fmt"
	"os"

	"ragstore/internal/fsx"
	"ragstore/internal/logging"
)

// testcaseFile is the single top-level mapping persisted per testcase
// store. Writers always emit "index_to_cases"; readers also accept the
// legacy "questions" key.
type testcaseFile struct {
	IndexToCases map[string][]Case `json:"index_to_cases" msgpack:"index_to_cases"`
	LegacyCases  map[string][]Case `json:"questions,omitempty" msgpack:"questions,omitempty"`
}

// TestcaseStore maps content fingerprints to the ordered list of case
// records logged against each index. It performs no deduplication;
// the façade decides which cases are worth appending.
type TestcaseStore struct {
	cfg   config
	path  string
	cases map[string][]Case
}

// NewTestcaseStore creates an empty store persisting to
// base.<codec ext>.
func NewTestcaseStore(base string, opts ...Option) *TestcaseStore {
	cfg := newConfig(opts)
	cfg.logger = logging.Default(cfg.logger).With("component", "testcase")
	return &TestcaseStore{
		cfg:   cfg,
		path:  base + "." + cfg.codec.Ext(),
		cases: make(map[string][]Case),
	}
}

// LoadTestcaseStore reads the store file for base. A missing file
// yields an empty store.
func LoadTestcaseStore(base string, opts ...Option) (*TestcaseStore, error) {
	s := NewTestcaseStore(base, opts...)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read testcase file: %w", err)
	}

	var file testcaseFile
	if err := s.cfg.codec.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse testcase file %s: %w", s.path, err)
	}
	cases := file.IndexToCases
	if cases == nil {
		cases = file.LegacyCases
	}
	if cases == nil {
		cases = make(map[string][]Case)
	}
	s.cases = cases

	s.cfg.logger.Debug("testcase store loaded", "path", s.path, "indices", len(cases))
	return s, nil
}

// Path returns the store file path.
func (s *TestcaseStore) Path() string { return s.path }

// Append adds a case to the list under id, creating the list if
// absent, and saves the testcase file.
func (s *TestcaseStore) Append(id string, c Case) error {
	s.cases[id] = append(s.cases[id], c)
	return s.save()
}

// Get returns the case list for id. Missing ids yield an empty list;
// the returned slice is a copy.
func (s *TestcaseStore) Get(id string) []Case {
	cases := s.cases[id]
	out := make([]Case, len(cases))
	copy(out, cases)
	return out
}

// UpdateLast replaces the last case in the list under id and saves.
// No-op if the id is absent or its list is empty.
func (s *TestcaseStore) UpdateLast(id string, c Case) error {
	cases := s.cases[id]
	if len(cases) == 0 {
		return nil
	}
	cases[len(cases)-1] = c
	return s.save()
}

// All returns a snapshot of the full mapping. Case lists are copied;
// cases themselves are shared and treated as immutable.
func (s *TestcaseStore) All() map[string][]Case {
	out := make(map[string][]Case, len(s.cases))
	for id, cases := range s.cases {
		cp := make([]Case, len(cases))
		copy(cp, cases)
		out[id] = cp
	}
	return out
}

func (s *TestcaseStore) save() error {
	file := testcaseFile{IndexToCases: s.cases}
	data, err := s.cfg.codec.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode testcase file: %w", err)
	}
	if err := fsx.WriteFileAtomic(s.path, data, s.cfg.fileMode); err != nil {
		return fmt.Errorf("save testcase file: %w", err)
	}
	return nil
}
