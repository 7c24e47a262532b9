// Package scorer rates candidate next-hop relations against a question.
//
// The score of a relation r for a question q with previously followed
// relations p1..pn is the cosine similarity of the pooled embeddings of
//
//	query: q [SEP] p1 # p2 # ... # pn
//	relation: r
//
// Scores are memoized per (question, history, relation). Encoder calls are
// serialized per scorer, and a key that is already being computed is not
// computed again.
package scorer
