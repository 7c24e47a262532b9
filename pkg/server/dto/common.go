package dto

import "errors"

// Field limits that keep a single request bounded.
const (
	MaxQuestionLength = 4096
	MaxLabelLength    = 1024
	MaxCandidates     = 1000
	MaxTriples        = 100000
	MaxHistory        = 16
)

// Validation errors
var (
	ErrEmptyQuestion    = errors.New("question cannot be empty")
	ErrQuestionTooLong  = errors.New("question exceeds maximum length (4096)")
	ErrEmptyRelation    = errors.New("relation label cannot be empty")
	ErrLabelTooLong     = errors.New("relation label exceeds maximum length (1024)")
	ErrNoCandidates     = errors.New("candidates cannot be empty")
	ErrTooManyItems     = errors.New("too many items in request")
	ErrHistoryTooLong   = errors.New("prev_relations exceeds maximum length (16)")
	ErrNothingToIngest  = errors.New("triples and labels cannot both be empty")
	ErrInvalidMaxPath   = errors.New("max_path must be a positive integer")
	ErrNotConfigured    = errors.New("endpoint is not configured on this server")
	ErrMalformedTriplet = errors.New("triplet fields cannot be empty")
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
