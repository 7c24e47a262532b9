// Package types defines the core data types shared by kgpath packages.
//
// The model is deliberately thin:
//   - Entity and Relation: opaque knowledge-graph identifiers (labels are a driver lookup)
//   - Triplet: a (subject, relation, object) edge, serialized as a 3-element JSON array
//   - Path: an ordered walk of triplets from a source entity to a destination entity
//   - Sample: one question with its linked entities and the paths found for it
//   - RelationHistory and ScoreKey: immutable, comparable values used as scoring cache keys
//
// # JSON Serialization
//
// Sample keeps every incoming field it does not know about and writes it back unchanged,
// so records can flow through a pipeline that only adds the "paths" field:
//
//	var s types.Sample
//	if err := json.Unmarshal(line, &s); err != nil {
//	    // Handle malformed record
//	}
//	s.Paths = paths
//	out, _ := json.Marshal(&s)
package types
