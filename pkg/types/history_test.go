package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationHistoryValueSemantics(t *testing.T) {
	labels := []string{"author", "place of birth"}
	h, err := NewRelationHistory(labels...)
	require.NoError(t, err)

	labels[0] = "mutated"
	assert.Equal(t, []string{"author", "place of birth"}, h.Labels())
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "author # place of birth", h.Join(" # "))

	same := MustRelationHistory("author", "place of birth")
	assert.Equal(t, h, same)

	m := map[RelationHistory]int{h: 1}
	assert.Equal(t, 1, m[same])
}

func TestRelationHistoryEmptyLabelDiffersFromEmptyHistory(t *testing.T) {
	var empty RelationHistory
	one := MustRelationHistory("")
	assert.NotEqual(t, empty, one)
	assert.Equal(t, []string{}, empty.Labels())
	assert.Equal(t, []string{""}, one.Labels())
}

func TestRelationHistoryRejectsSeparator(t *testing.T) {
	_, err := NewRelationHistory("a\x1fb")
	var keyErr *CacheKeyError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, "a\x1fb", keyErr.Label)

	_, err = NewScoreKey("q", RelationHistory{}, "x\x1f")
	assert.True(t, errors.As(err, &keyErr))
}

func TestScoreKeyString(t *testing.T) {
	k1, err := NewScoreKey("q|1", MustRelationHistory("a"), "b")
	require.NoError(t, err)
	k2, err := NewScoreKey("q", MustRelationHistory("1|a"), "b")
	require.NoError(t, err)
	assert.NotEqual(t, k1.String(), k2.String())
	assert.NotEqual(t, k1, k2)
}

func TestScoreKeyStringSeparatesHistoryAndNext(t *testing.T) {
	tests := []struct {
		name string
		a, b ScoreKey
	}{
		{
			name: "pipe moves between history and next",
			a:    ScoreKey{Question: "q", History: MustRelationHistory("a|b"), Next: "c"},
			b:    ScoreKey{Question: "q", History: MustRelationHistory("a"), Next: "b|c"},
		},
		{
			name: "empty history against empty label",
			a:    ScoreKey{Question: "q", History: RelationHistory{}, Next: "x"},
			b:    ScoreKey{Question: "q", History: MustRelationHistory(""), Next: "x"},
		},
		{
			name: "pipe moves between question and history",
			a:    ScoreKey{Question: "q|1", History: MustRelationHistory("a"), Next: "b"},
			b:    ScoreKey{Question: "q", History: MustRelationHistory("1|a"), Next: "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, tt.a, tt.b)
			assert.NotEqual(t, tt.a.String(), tt.b.String())
		})
	}

	k := ScoreKey{Question: "q", History: MustRelationHistory("a|b"), Next: "c"}
	assert.Equal(t, "1:q|1|3:a|b|1:c", k.String())
}
