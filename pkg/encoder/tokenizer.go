package encoder

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Reserved vocabulary entries. Every encoded text starts with TokenCLS.
const (
	TokenCLS = "[CLS]"
	TokenUNK = "[UNK]"
)

// DefaultMaxLength matches the sequence length the scorer was trained with.
const DefaultMaxLength = 32

var tokenPattern = regexp.MustCompile(`\[[A-Z]+\]|[\p{L}\p{N}]+|[^\s\p{L}\p{N}]`)

// TokenizerConfig is stored in the artifact manifest.
type TokenizerConfig struct {
	Lowercase bool `yaml:"lowercase"`
	MaxLength int  `yaml:"max_length"`
	// HashBuckets are extra embedding rows shared by out-of-vocabulary
	// tokens. Zero maps every unknown token to [UNK].
	HashBuckets int `yaml:"hash_buckets"`
}

// Tokenizer splits text into words, punctuation and bracketed markers such
// as [SEP], and maps them to embedding rows.
type Tokenizer struct {
	cfg    TokenizerConfig
	vocab  []string
	lookup map[string]int
}

// NewTokenizer builds a tokenizer over vocab. The reserved tokens are
// prepended when missing.
func NewTokenizer(cfg TokenizerConfig, vocab []string) *Tokenizer {
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.HashBuckets < 0 {
		cfg.HashBuckets = 0
	}
	t := &Tokenizer{cfg: cfg, lookup: make(map[string]int, len(vocab)+2)}
	for _, tok := range append([]string{TokenCLS, TokenUNK}, vocab...) {
		if _, ok := t.lookup[tok]; ok || tok == "" {
			continue
		}
		t.lookup[tok] = len(t.vocab)
		t.vocab = append(t.vocab, tok)
	}
	return t
}

// Config returns the tokenizer settings.
func (t *Tokenizer) Config() TokenizerConfig { return t.cfg }

// VocabSize is the number of named tokens.
func (t *Tokenizer) VocabSize() int { return len(t.vocab) }

// Rows is the number of embedding rows the tokenizer can address.
func (t *Tokenizer) Rows() int { return len(t.vocab) + t.cfg.HashBuckets }

// Vocab returns a copy of the named tokens in id order.
func (t *Tokenizer) Vocab() []string {
	return append([]string(nil), t.vocab...)
}

// Split returns the normalized surface tokens of text.
func (t *Tokenizer) Split(text string) []string {
	toks := tokenPattern.FindAllString(text, -1)
	if t.cfg.Lowercase {
		for i, tok := range toks {
			if !isMarker(tok) {
				toks[i] = strings.ToLower(tok)
			}
		}
	}
	return toks
}

// Encode maps text to row ids, starting with [CLS] and truncated to MaxLength.
func (t *Tokenizer) Encode(text string) []int {
	toks := t.Split(text)
	n := min(len(toks)+1, t.cfg.MaxLength)
	ids := make([]int, 0, n)
	ids = append(ids, t.lookup[TokenCLS])
	for _, tok := range toks {
		if len(ids) == n {
			break
		}
		ids = append(ids, t.id(tok))
	}
	return ids
}

func (t *Tokenizer) id(tok string) int {
	if id, ok := t.lookup[tok]; ok {
		return id
	}
	if t.cfg.HashBuckets == 0 {
		return t.lookup[TokenUNK]
	}
	return len(t.vocab) + int(xxhash.Sum64String(tok)%uint64(t.cfg.HashBuckets))
}

func isMarker(tok string) bool {
	return len(tok) > 2 && tok[0] == '[' && tok[len(tok)-1] == ']'
}

// BuildVocab collects the maxSize most frequent tokens seen at least
// minCount times. Ties break alphabetically.
func BuildVocab(cfg TokenizerConfig, texts []string, maxSize, minCount int) []string {
	splitter := NewTokenizer(cfg, nil)
	counts := make(map[string]int)
	for _, text := range texts {
		for _, tok := range splitter.Split(text) {
			counts[tok]++
		}
	}
	vocab := make([]string, 0, len(counts))
	for tok, c := range counts {
		if c >= minCount {
			vocab = append(vocab, tok)
		}
	}
	sort.Slice(vocab, func(i, j int) bool {
		if counts[vocab[i]] != counts[vocab[j]] {
			return counts[vocab[i]] > counts[vocab[j]]
		}
		return vocab[i] < vocab[j]
	})
	if maxSize > 0 && len(vocab) > maxSize {
		vocab = vocab[:maxSize]
	}
	return vocab
}

// ReadVocab reads one token per line.
func ReadVocab(r io.Reader) ([]string, error) {
	var vocab []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		vocab = append(vocab, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return vocab, nil
}

// WriteVocab writes the tokenizer's vocabulary, one token per line.
func (t *Tokenizer) WriteVocab(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, tok := range t.vocab {
		if _, err := bw.WriteString(tok + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
