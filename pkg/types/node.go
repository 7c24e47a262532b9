package types

import "strings"

// Entity identifies a knowledge-graph node, e.g. "Q42".
type Entity string

// Relation identifies an edge type, e.g. "P31".
type Relation string

// String implements fmt.Stringer.
func (e Entity) String() string { return string(e) }

// String implements fmt.Stringer.
func (r Relation) String() string { return string(r) }

// IsZero reports whether the identifier is empty after trimming whitespace.
func (e Entity) IsZero() bool { return strings.TrimSpace(string(e)) == "" }

// IsZero reports whether the identifier is empty after trimming whitespace.
func (r Relation) IsZero() bool { return strings.TrimSpace(string(r)) == "" }

// Entities converts raw identifiers to entities.
func Entities(ids ...string) []Entity {
	out := make([]Entity, len(ids))
	for i, id := range ids {
		out[i] = Entity(id)
	}
	return out
}

// UniqueEntities returns the entities in their original order with
// duplicates and empty identifiers removed. The first occurrence wins.
func UniqueEntities(entities []Entity) []Entity {
	seen := make(map[Entity]struct{}, len(entities))
	out := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.IsZero() {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// EntitySet is a membership index over entities.
type EntitySet map[Entity]struct{}

// NewEntitySet builds a set from the given entities.
func NewEntitySet(entities []Entity) EntitySet {
	set := make(EntitySet, len(entities))
	for _, e := range entities {
		set[e] = struct{}{}
	}
	return set
}

// Contains reports whether e is in the set.
func (s EntitySet) Contains(e Entity) bool {
	_, ok := s[e]
	return ok
}
