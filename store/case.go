package store

import (
	"maps"
	"time"
)

// Recognised case fields. Callers may attach arbitrary extra fields;
// they are preserved verbatim through persistence.
const (
	FieldQuestion       = "question"
	FieldTimestamp      = "timestamp"
	FieldAnswer         = "answer"
	FieldReturnedAnswer = "returned_answer"
	FieldTrueAnswers    = "true_answers"
	FieldWrongAnswers   = "wrong_answers"
)

// Case is a record associated with an index: an unordered bag of named
// fields. Persisted cases always carry a question and a timestamp; the
// engine injects the timestamp at append time if absent.
type Case map[string]any

// NewCase builds a case with just a question.
func NewCase(question string) Case {
	return Case{FieldQuestion: question}
}

// Question returns the question field, or "" if absent or not a string.
func (c Case) Question() string {
	q, _ := c[FieldQuestion].(string)
	return q
}

// Timestamp returns the case timestamp. Values survive persistence as
// RFC3339 strings under the JSON codec and as native times under
// msgpack; both forms are accepted.
func (c Case) Timestamp() (time.Time, bool) {
	switch v := c[FieldTimestamp].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Clone returns a shallow copy of the case. Field values are shared;
// cases are treated as immutable once appended.
func (c Case) Clone() Case {
	if c == nil {
		return nil
	}
	return maps.Clone(c)
}
