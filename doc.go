// Package kgpath finds relation paths between question entities and answer
// entities in a knowledge graph, and scores candidate relations against a
// question with a learned encoder.
//
// # Basic Usage
//
// Build a client from configuration. The graph backend, retry, circuit
// breaking and label caching are all taken from cfg:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := kgpath.NewClient(ctx, cfg, kgpath.Options{Logger: logger})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// # Finding Paths
//
// A sample carries a question, the entities linked in it and the answer
// entities:
//
//	sample := &types.Sample{
//		ID:               "1",
//		Question:         "who wrote the hitchhiker's guide?",
//		QuestionEntities: types.Entities("Q3107329"),
//		AnswerEntities:   types.Entities("Q42"),
//	}
//	paths, err := client.FindPaths(ctx, sample, 100)
//
// One-hop paths come before two-hop paths, pairs are visited in input
// order, and at most maxPath distinct paths are returned.
//
// # Batch Runs
//
// Client.Run reads JSONL samples, writes each sample back with a "paths"
// field, and skips samples whose search fails:
//
//	summary, err := client.Run(ctx, in, out)
//	fmt.Println(summary) // Processed 2 samples, skipped 1 samples, total 3 samples
//
// # Scoring Relations
//
// With the ranked or beam strategy, or with Options.RequireScorer, the
// client loads the configured encoder and exposes the relation scorer:
//
//	prev := types.MustRelationHistory("instance of")
//	score, err := client.Score(ctx, "who wrote it?", prev, "author")
//
// Scores are cosine similarities in [-1, 1] and are memoized per
// (question, history, relation).
//
// # Training
//
// The trainer package fits the native encoder with a contrastive loss; see
// pkg/trainer and the "kgpath train" command.
package kgpath
