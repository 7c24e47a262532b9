package types

import (
	"fmt"
	"strings"
)

// unitSep separates labels inside an encoded RelationHistory.
const unitSep = "\x1f"

// CacheKeyError reports a value that cannot be encoded into a cache key.
type CacheKeyError struct {
	Label  string
	Reason string
}

func (e *CacheKeyError) Error() string {
	return fmt.Sprintf("invalid cache key label %q: %s", e.Label, e.Reason)
}

// RelationHistory is an immutable ordered sequence of relation labels.
// The zero value is the empty history. It is comparable and can be used as a
// map key.
type RelationHistory struct {
	encoded string
	n       int
}

// NewRelationHistory builds a history from labels. The input slice is copied.
func NewRelationHistory(labels ...string) (RelationHistory, error) {
	var h RelationHistory
	for _, l := range labels {
		next, err := h.Append(l)
		if err != nil {
			return RelationHistory{}, err
		}
		h = next
	}
	return h, nil
}

// MustRelationHistory is like NewRelationHistory but panics on error.
func MustRelationHistory(labels ...string) RelationHistory {
	h, err := NewRelationHistory(labels...)
	if err != nil {
		panic(err)
	}
	return h
}

// Append returns a new history with label appended.
func (h RelationHistory) Append(label string) (RelationHistory, error) {
	if strings.Contains(label, unitSep) {
		return RelationHistory{}, &CacheKeyError{Label: label, Reason: "contains unit separator"}
	}
	if h.n == 0 {
		return RelationHistory{encoded: label, n: 1}, nil
	}
	return RelationHistory{encoded: h.encoded + unitSep + label, n: h.n + 1}, nil
}

// Len returns the number of labels.
func (h RelationHistory) Len() int { return h.n }

// Labels returns a fresh copy of the labels.
func (h RelationHistory) Labels() []string {
	if h.n == 0 {
		return []string{}
	}
	return strings.Split(h.encoded, unitSep)
}

// Join joins the labels with sep.
func (h RelationHistory) Join(sep string) string {
	if h.n == 0 {
		return ""
	}
	return strings.ReplaceAll(h.encoded, unitSep, sep)
}

// Encoded returns the canonical encoding.
func (h RelationHistory) Encoded() string { return h.encoded }

func (h RelationHistory) String() string {
	return "[" + h.Join(", ") + "]"
}

// ScoreKey identifies one relation score.
type ScoreKey struct {
	Question string
	History  RelationHistory
	Next     string
}

// NewScoreKey validates the candidate label and builds a key.
func NewScoreKey(question string, history RelationHistory, next string) (ScoreKey, error) {
	if strings.Contains(next, unitSep) {
		return ScoreKey{}, &CacheKeyError{Label: next, Reason: "contains unit separator"}
	}
	return ScoreKey{Question: question, History: history, Next: next}, nil
}

// String returns the canonical encoding used by shared cache stores.
// Every field may contain '|', so each one is length-prefixed.
func (k ScoreKey) String() string {
	return fmt.Sprintf("%d:%s|%d|%d:%s|%d:%s",
		len(k.Question), k.Question,
		k.History.n, len(k.History.encoded), k.History.encoded,
		len(k.Next), k.Next)
}
