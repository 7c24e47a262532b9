// Package search finds relation paths between question entities and answer
// entities in a knowledge graph.
//
// # Strategies
//
//   - Enumerator: every one-hop and two-hop path for each (source,
//     destination) pair, in input order, capped at maxPath
//   - RankedEnumerator: enumerates a larger pool, ranks paths by their mean
//     relation score and keeps the best maxPath
//   - BeamSearcher: scorer-guided traversal that expands only the most
//     promising relations at each hop
//
// All strategies implement PathFinder.
//
// # Usage
//
//	finder, err := search.New(cfg.Search, graph, relScorer, cfg.Telemetry.Tracing, logger)
//	if err != nil {
//	    return err
//	}
//	paths, err := finder.FindPaths(ctx, sample, cfg.Search.MaxPath)
//
// Every returned path is connected, starts at a question entity, ends at an
// answer entity and appears once.
package search
