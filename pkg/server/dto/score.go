package dto

import (
	"strings"

	"github.com/soundprediction/kgpath/pkg/types"
)

// ScoreRequest scores one candidate relation.
type ScoreRequest struct {
	Question      string   `json:"question" binding:"required"`
	PrevRelations []string `json:"prev_relations"`
	NextRelation  string   `json:"next_relation" binding:"required"`
}

// Validate performs validation on ScoreRequest
func (r *ScoreRequest) Validate() error {
	if err := validateQuestion(r.Question, r.PrevRelations); err != nil {
		return err
	}
	return validateLabel(r.NextRelation)
}

// History returns the previous relations as a cache-safe value.
func (r *ScoreRequest) History() (types.RelationHistory, error) {
	return types.NewRelationHistory(r.PrevRelations...)
}

// ScoreResponse is the result of a ScoreRequest.
type ScoreResponse struct {
	Score float64 `json:"score"`
}

// BatchScoreRequest scores several candidates against one history.
type BatchScoreRequest struct {
	Question      string   `json:"question" binding:"required"`
	PrevRelations []string `json:"prev_relations"`
	Candidates    []string `json:"candidates" binding:"required"`
}

// Validate performs validation on BatchScoreRequest
func (r *BatchScoreRequest) Validate() error {
	if err := validateQuestion(r.Question, r.PrevRelations); err != nil {
		return err
	}
	if len(r.Candidates) == 0 {
		return ErrNoCandidates
	}
	if len(r.Candidates) > MaxCandidates {
		return ErrTooManyItems
	}
	for _, c := range r.Candidates {
		if err := validateLabel(c); err != nil {
			return err
		}
	}
	return nil
}

// History returns the previous relations as a cache-safe value.
func (r *BatchScoreRequest) History() (types.RelationHistory, error) {
	return types.NewRelationHistory(r.PrevRelations...)
}

// RelationScore pairs a candidate with its score.
type RelationScore struct {
	Relation string  `json:"relation"`
	Score    float64 `json:"score"`
}

// BatchScoreResponse keeps the request's candidate order.
type BatchScoreResponse struct {
	Scores []RelationScore `json:"scores"`
}

func validateQuestion(q string, prev []string) error {
	if strings.TrimSpace(q) == "" {
		return ErrEmptyQuestion
	}
	if len(q) > MaxQuestionLength {
		return ErrQuestionTooLong
	}
	if len(prev) > MaxHistory {
		return ErrHistoryTooLong
	}
	for _, p := range prev {
		if err := validateLabel(p); err != nil {
			return err
		}
	}
	return nil
}

func validateLabel(l string) error {
	if strings.TrimSpace(l) == "" {
		return ErrEmptyRelation
	}
	if len(l) > MaxLabelLength {
		return ErrLabelTooLong
	}
	return nil
}
