package trainer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/soundprediction/kgpath/pkg/jsonl"
	"github.com/soundprediction/kgpath/pkg/scorer"
	"github.com/soundprediction/kgpath/pkg/types"
)

var (
	ErrEmptyQuery    = errors.New("query cannot be empty")
	ErrEmptyPositive = errors.New("positive cannot be empty")
	ErrNoExamples    = errors.New("no training examples")
)

// Example is one training record. Query is the rendered question and
// relation history; Positive is the relation label that should score
// highest against it.
type Example struct {
	Query     string   `json:"query"`
	Positive  string   `json:"positive"`
	Negatives []string `json:"negatives"`
}

// Validate checks the required fields.
func (e Example) Validate() error {
	if e.Query == "" {
		return ErrEmptyQuery
	}
	if e.Positive == "" {
		return ErrEmptyPositive
	}
	return nil
}

// Texts returns the anchor followed by the positive and negative
// candidates, in the same form the scorer encodes them.
func (e Example) Texts() []string {
	texts := make([]string, 0, len(e.Negatives)+2)
	texts = append(texts, "query: "+e.Query, scorer.RelationText(e.Positive))
	for _, n := range e.Negatives {
		texts = append(texts, scorer.RelationText(n))
	}
	return texts
}

// NewExample renders a training record for a question, its relation
// history and the candidates of the next hop.
func NewExample(question string, prev types.RelationHistory, positive string, negatives []string) Example {
	return Example{
		Query:     question + " [SEP] " + prev.Join(" # "),
		Positive:  positive,
		Negatives: negatives,
	}
}

// ReadExamples decodes valid examples from r and counts the rest.
func ReadExamples(r io.Reader, logger *slog.Logger) ([]Example, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	lines, err := jsonl.ReadAll[Example](r, true)
	if err != nil {
		return nil, 0, err
	}
	examples := make([]Example, 0, len(lines))
	skipped := 0
	for _, l := range lines {
		err := l.Err
		if err == nil {
			err = l.Value.Validate()
		}
		if err != nil {
			skipped++
			logger.Warn("Skipping training example", "line", l.Number, "error", err)
			continue
		}
		examples = append(examples, l.Value)
	}
	return examples, skipped, nil
}

// LoadExamples reads examples from a JSONL file.
func LoadExamples(path string, logger *slog.Logger) ([]Example, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open training data: %w", err)
	}
	defer f.Close()
	return ReadExamples(f, logger)
}

// Split keeps the first ratio of examples for training and the rest for
// validation. Input order is preserved.
func Split(examples []Example, ratio float64) (train, validation []Example) {
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	n := int(float64(len(examples))*ratio + 1e-9)
	if n == 0 && len(examples) > 0 {
		n = 1
	}
	return examples[:n], examples[n:]
}
