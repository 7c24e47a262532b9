package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Triplet is a single directed edge (subject, relation, object).
type Triplet struct {
	Subject  Entity
	Relation Relation
	Object   Entity
}

// NewTriplet builds a triplet from raw identifiers.
func NewTriplet(subject, relation, object string) Triplet {
	return Triplet{Subject: Entity(subject), Relation: Relation(relation), Object: Entity(object)}
}

// MarshalJSON encodes the triplet as [subject, relation, object].
func (t Triplet) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{string(t.Subject), string(t.Relation), string(t.Object)})
}

// UnmarshalJSON decodes a 3-element array.
func (t *Triplet) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTriplet, err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("%w: got %d elements", ErrMalformedTriplet, len(parts))
	}
	t.Subject, t.Relation, t.Object = Entity(parts[0]), Relation(parts[1]), Entity(parts[2])
	return nil
}

func (t Triplet) String() string {
	return fmt.Sprintf("(%s, %s, %s)", t.Subject, t.Relation, t.Object)
}

// Path is an ordered walk of triplets.
type Path []Triplet

// Source returns the subject of the first hop.
func (p Path) Source() Entity {
	if len(p) == 0 {
		return ""
	}
	return p[0].Subject
}

// Destination returns the object of the last hop.
func (p Path) Destination() Entity {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1].Object
}

// Relations returns the relation ids in hop order.
func (p Path) Relations() []Relation {
	rels := make([]Relation, len(p))
	for i, t := range p {
		rels[i] = t.Relation
	}
	return rels
}

// Entities returns every entity visited, starting with the source.
func (p Path) Entities() []Entity {
	if len(p) == 0 {
		return nil
	}
	out := make([]Entity, 0, len(p)+1)
	out = append(out, p[0].Subject)
	for _, t := range p {
		out = append(out, t.Object)
	}
	return out
}

// Visits reports whether e appears anywhere on the path.
func (p Path) Visits(e Entity) bool {
	for _, t := range p {
		if t.Subject == e || t.Object == e {
			return true
		}
	}
	return false
}

// Connected reports whether the object of each hop is the subject of the next.
// An empty path is not connected.
func (p Path) Connected() bool {
	if len(p) == 0 {
		return false
	}
	for i := 1; i < len(p); i++ {
		if p[i-1].Object != p[i].Subject {
			return false
		}
	}
	return true
}

// Validate checks that the path is connected and runs from src to dst.
func (p Path) Validate(src, dst Entity) error {
	if !p.Connected() {
		return ErrDisconnectedPath
	}
	if p.Source() != src || p.Destination() != dst {
		return fmt.Errorf("%w: want %s -> %s, got %s -> %s",
			ErrEndpointsMismatch, src, dst, p.Source(), p.Destination())
	}
	return nil
}

// Extend returns a new path with t appended. The receiver is not modified.
func (p Path) Extend(t Triplet) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, t)
}

// Key returns a string that identifies the path for deduplication.
func (p Path) Key() string {
	var sb strings.Builder
	for i, t := range p {
		if i > 0 {
			sb.WriteByte('\x1e')
		}
		sb.WriteString(string(t.Subject))
		sb.WriteByte('\x1f')
		sb.WriteString(string(t.Relation))
		sb.WriteByte('\x1f')
		sb.WriteString(string(t.Object))
	}
	return sb.String()
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = t.String()
	}
	return strings.Join(parts, " -> ")
}
