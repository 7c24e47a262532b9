package dto

import (
	"github.com/soundprediction/kgpath/pkg/types"
)

// IngestRequest adds triples and labels to a loadable graph.
type IngestRequest struct {
	Triples []types.Triplet   `json:"triples"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// Validate performs validation on IngestRequest
func (r *IngestRequest) Validate() error {
	if len(r.Triples) == 0 && len(r.Labels) == 0 {
		return ErrNothingToIngest
	}
	if len(r.Triples) > MaxTriples || len(r.Labels) > MaxTriples {
		return ErrTooManyItems
	}
	for _, t := range r.Triples {
		if t.Subject.IsZero() || t.Relation.IsZero() || t.Object.IsZero() {
			return ErrMalformedTriplet
		}
	}
	return nil
}

// IngestResponse represents a response from ingest operations
type IngestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Triples int    `json:"triples"`
	Labels  int    `json:"labels"`
}
