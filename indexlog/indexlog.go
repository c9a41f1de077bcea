// Package indexlog is a thin timestamped-event front over a RAGStore:
// each logged query records the chunk sequence it ran against together
// with the question and, when known, the returned answer. Logs can be
// read back filtered by time window and question text.
package indexlog

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ragstore/chunk"
	"ragstore/internal/logging"
	"ragstore/ragstore"
	"ragstore/store"
)

// Option configures an IndexLogger.
type Option func(*IndexLogger)

// WithLogger injects a diagnostics logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(l *IndexLogger) { l.logger = logger }
}

// WithStoreOptions passes options through to the lazily created
// RAGStore.
func WithStoreOptions(opts ...ragstore.Option) Option {
	return func(l *IndexLogger) { l.storeOpts = append(l.storeOpts, opts...) }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *IndexLogger) { l.now = now }
}

// IndexLogger owns a store path and, lazily, the RAGStore behind it.
// Construction is side-effect-free; the first Log or Logs call
// materialises the store.
type IndexLogger struct {
	path      string
	logger    *slog.Logger
	now       func() time.Time
	storeOpts []ragstore.Option

	mu    sync.Mutex
	store *ragstore.RAGStore
}

// New creates an IndexLogger for path. The path's last element is the
// store's base name; its directory is the cache directory.
func New(path string, opts ...Option) *IndexLogger {
	l := &IndexLogger{path: path, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.Default(l.logger).With("component", "indexlog", "path", path)
	return l
}

// Entry is one query event: the case merged with the id of the index
// it was recorded against.
type Entry struct {
	IndexID string     `json:"index_id"`
	Case    store.Case `json:"case"`
}

// Filter narrows Logs output. Zero values mean: window from the epoch
// to now, any question.
type Filter struct {
	Start time.Time
	End   time.Time

	// Contains retains entries whose question contains the substring.
	Contains string

	// Match, when set, retains entries whose question it accepts.
	// Composes with Contains; both must pass.
	Match func(question string) bool
}

// Log records a query event against the index formed by chunks. Empty
// chunk sequences are silently dropped: logging a chunk-less question
// is not supported. An empty answer leaves the returned_answer field
// unset.
func (l *IndexLogger) Log(chunks chunk.Sequence, question, answer string) error {
	if len(chunks) == 0 {
		l.logger.Debug("no chunks attached, skipping log", "question", question)
		return nil
	}

	c := store.Case{
		store.FieldQuestion:  question,
		store.FieldTimestamp: l.now(),
	}
	if answer != "" {
		c[store.FieldReturnedAnswer] = answer
	}

	_, err := l.ragStore().Append(chunks, c)
	return err
}

// Logs flattens every recorded case, sorts by timestamp and applies
// the filter. Entries predating the timestamp requirement (no parsable
// timestamp) sort first and pass the window check.
func (l *IndexLogger) Logs(f Filter) ([]Entry, error) {
	cases, err := l.ragStore().Cases()
	if err != nil {
		return nil, err
	}

	start := f.Start
	if start.IsZero() {
		start = time.Unix(0, 0)
	}
	end := f.End
	if end.IsZero() {
		end = l.now()
	}

	var out []Entry
	for id, list := range cases {
		for _, c := range list {
			if ts, ok := c.Timestamp(); ok {
				if ts.Before(start) || ts.After(end) {
					continue
				}
			}
			q := c.Question()
			if f.Contains != "" && !strings.Contains(q, f.Contains) {
				continue
			}
			if f.Match != nil && !f.Match(q) {
				continue
			}
			out = append(out, Entry{IndexID: id, Case: c})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].Case.Timestamp()
		tj, _ := out[j].Case.Timestamp()
		return ti.Before(tj)
	})
	return out, nil
}

// EnsureSaved waits for in-flight writes on the underlying store.
func (l *IndexLogger) EnsureSaved() error {
	return l.ragStore().EnsureSaved()
}

// ragStore materialises the underlying store on first use. The path's
// last element becomes the store name, its directory the cache dir.
func (l *IndexLogger) ragStore() *ragstore.RAGStore {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.store == nil {
		opts := append([]ragstore.Option{
			ragstore.WithLogger(l.logger),
			ragstore.WithClock(l.now),
		}, l.storeOpts...)
		l.store = ragstore.New(filepath.Base(l.path), filepath.Dir(l.path), opts...)
	}
	return l.store
}

// savedForm is the path-only projection persisted when an IndexLogger
// is embedded in a caller's serialised structures.
type savedForm struct {
	Path string `json:"path" msgpack:"path"`
}

// MarshalJSON writes only the logger's path; the store owns its files.
func (l *IndexLogger) MarshalJSON() ([]byte, error) {
	return json.Marshal(savedForm{Path: l.path})
}

// UnmarshalJSON reconstructs a logger from its path-only form.
func (l *IndexLogger) UnmarshalJSON(data []byte) error {
	var f savedForm
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	nl := New(f.Path)
	l.path = nl.path
	l.logger = nl.logger
	l.now = nl.now
	l.storeOpts = nil
	l.store = nil
	return nil
}
