package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripletJSON(t *testing.T) {
	tr := NewTriplet("Q1", "P31", "Q5")
	b, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.Equal(t, `["Q1","P31","Q5"]`, string(b))

	var back Triplet
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, tr, back)

	assert.ErrorIs(t, json.Unmarshal([]byte(`["a","b"]`), &back), ErrMalformedTriplet)
	assert.ErrorIs(t, json.Unmarshal([]byte(`{"s":"a"}`), &back), ErrMalformedTriplet)
}

func TestPathHelpers(t *testing.T) {
	p := Path{NewTriplet("A", "r1", "M"), NewTriplet("M", "r2", "B")}

	assert.Equal(t, Entity("A"), p.Source())
	assert.Equal(t, Entity("B"), p.Destination())
	assert.Equal(t, []Relation{"r1", "r2"}, p.Relations())
	assert.Equal(t, []Entity{"A", "M", "B"}, p.Entities())
	assert.True(t, p.Connected())
	assert.True(t, p.Visits("M"))
	assert.NoError(t, p.Validate("A", "B"))
	assert.ErrorIs(t, p.Validate("A", "C"), ErrEndpointsMismatch)

	broken := Path{NewTriplet("A", "r1", "M"), NewTriplet("X", "r2", "B")}
	assert.False(t, broken.Connected())
	assert.ErrorIs(t, broken.Validate("A", "B"), ErrDisconnectedPath)
	assert.False(t, Path{}.Connected())
}

func TestPathExtendDoesNotAlias(t *testing.T) {
	base := make(Path, 1, 4)
	base[0] = NewTriplet("A", "r1", "M")

	left := base.Extend(NewTriplet("M", "r2", "B"))
	right := base.Extend(NewTriplet("M", "r3", "C"))

	assert.Len(t, base, 1)
	assert.Equal(t, Relation("r2"), left[1].Relation)
	assert.Equal(t, Relation("r3"), right[1].Relation)
}

func TestPathKeyDistinguishesPaths(t *testing.T) {
	a := Path{NewTriplet("A", "r", "B")}
	b := Path{NewTriplet("A", "r", "B")}
	c := Path{NewTriplet("A", "rB", "")}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
