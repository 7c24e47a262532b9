package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Validation errors
var (
	ErrEmptyID           = errors.New("id cannot be empty")
	ErrEmptyQuestion     = errors.New("question cannot be empty")
	ErrNoEntities        = errors.New("question_entities cannot be empty")
	ErrNoAnswers         = errors.New("answer_entities cannot be empty")
	ErrInvalidLimit      = errors.New("limit must be positive")
	ErrMalformedTriplet  = errors.New("triplet must be a 3-element array")
	ErrDisconnectedPath  = errors.New("path hops are not connected")
	ErrEndpointsMismatch = errors.New("path endpoints do not match")
)

// ContextKey is the type for values stored on a context by kgpath.
type ContextKey string

const (
	// RunIDKey carries the UUID of the current batch run.
	RunIDKey ContextKey = "kgpath_run_id"
	// SampleIDKey carries the id of the sample being processed.
	SampleIDKey ContextKey = "kgpath_sample_id"
	// RequestIDKey carries the id of an HTTP request.
	RequestIDKey ContextKey = "kgpath_request_id"
)

// known JSON fields of a Sample; everything else is passed through.
var sampleFields = map[string]struct{}{
	"id":                {},
	"question":          {},
	"question_entities": {},
	"answer_entities":   {},
	"paths":             {},
}

// Sample is one question with its linked entities.
type Sample struct {
	ID               string   `json:"id"`
	Question         string   `json:"question"`
	QuestionEntities []Entity `json:"question_entities"`
	AnswerEntities   []Entity `json:"answer_entities"`

	// Paths is nil until enumeration has run. An empty, non-nil slice is
	// written as [].
	Paths []Path `json:"paths,omitempty"`

	// rawID is the id exactly as it was read, so numeric ids are written
	// back as numbers.
	rawID json.RawMessage
	extra map[string]json.RawMessage
}

// Validate checks if the Sample has all required fields set.
func (s *Sample) Validate() error {
	if s.ID == "" {
		return ErrEmptyID
	}
	if s.Question == "" {
		return ErrEmptyQuestion
	}
	if len(s.QuestionEntities) == 0 {
		return ErrNoEntities
	}
	if len(s.AnswerEntities) == 0 {
		return ErrNoAnswers
	}
	return nil
}

// Extra returns the raw value of a passthrough field.
func (s *Sample) Extra(name string) (json.RawMessage, bool) {
	raw, ok := s.extra[name]
	return raw, ok
}

// SetExtra stores a passthrough field. Known field names are rejected.
func (s *Sample) SetExtra(name string, value any) error {
	if _, known := sampleFields[name]; known {
		return fmt.Errorf("field %q is not a passthrough field", name)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode field %q: %w", name, err)
	}
	if s.extra == nil {
		s.extra = make(map[string]json.RawMessage)
	}
	s.extra[name] = raw
	return nil
}

// UnmarshalJSON decodes the known fields and keeps the rest verbatim.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var known struct {
		ID               json.RawMessage `json:"id"`
		Question         string          `json:"question"`
		QuestionEntities []Entity        `json:"question_entities"`
		AnswerEntities   []Entity        `json:"answer_entities"`
		Paths            []Path          `json:"paths"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	*s = Sample{
		Question:         known.Question,
		QuestionEntities: known.QuestionEntities,
		AnswerEntities:   known.AnswerEntities,
		Paths:            known.Paths,
	}
	if len(known.ID) > 0 {
		s.rawID = append(json.RawMessage(nil), known.ID...)
	}
	if len(known.ID) > 0 && string(known.ID) != "null" {
		// ids are sometimes numeric in public datasets
		id, err := decodeID(known.ID)
		if err != nil {
			return err
		}
		s.ID = id
	}

	for k, v := range raw {
		if _, known := sampleFields[k]; known {
			continue
		}
		if s.extra == nil {
			s.extra = make(map[string]json.RawMessage)
		}
		s.extra[k] = v
	}
	return nil
}

// MarshalJSON writes the known fields followed by passthrough fields in
// sorted key order.
func (s *Sample) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.extra)+5)
	for k, v := range s.extra {
		out[k] = v
	}

	set := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}
		out[key] = b
		return nil
	}
	if raw, ok := s.inputID(); ok {
		out["id"] = raw
	} else if err := set("id", s.ID); err != nil {
		return nil, err
	}
	if err := set("question", s.Question); err != nil {
		return nil, err
	}
	if err := set("question_entities", nonNilEntities(s.QuestionEntities)); err != nil {
		return nil, err
	}
	if err := set("answer_entities", nonNilEntities(s.AnswerEntities)); err != nil {
		return nil, err
	}
	if s.Paths != nil {
		if err := set("paths", s.Paths); err != nil {
			return nil, err
		}
	}

	// encoding/json sorts map keys, which keeps output stable across runs.
	return json.Marshal(out)
}

// ExtraKeys returns the passthrough field names in sorted order.
func (s *Sample) ExtraKeys() []string {
	keys := make([]string, 0, len(s.extra))
	for k := range s.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// inputID returns the id as read when ID has not been changed since.
func (s *Sample) inputID() (json.RawMessage, bool) {
	if len(s.rawID) == 0 {
		return nil, false
	}
	if string(s.rawID) == "null" {
		return s.rawID, s.ID == ""
	}
	id, err := decodeID(s.rawID)
	if err != nil || id != s.ID {
		return nil, false
	}
	return s.rawID, true
}

func decodeID(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), nil
	}
	return "", fmt.Errorf("id must be a string or number, got %s", string(raw))
}

func nonNilEntities(e []Entity) []Entity {
	if e == nil {
		return []Entity{}
	}
	return e
}
