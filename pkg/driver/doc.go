// Package driver provides knowledge-graph backends for kgpath.
//
// This package defines the GraphDriver interface and provides implementations
// for the backends path search runs against.
//
// # Supported Backends
//
//   - Wikidata: a SPARQL endpoint over HTTP (the default)
//   - Neo4j: Cypher over Bolt, schema (:Entity {id, label})-[:RELATION {id, label}]->(:Entity)
//   - Ladybug: embedded graph database with the same schema (build tag "ladybug", requires CGO)
//   - Memory: in-process triple store loaded from TSV files, used by tests and small graphs
//
// # Usage
//
// Open the backend named in the configuration and wrap it:
//
//	base, err := driver.Open(ctx, cfg.Database, logger)
//	if err != nil {
//	    return err
//	}
//	d := driver.Wrap(base, driver.WrapOptions{Retry: &retryCfg, Logger: logger})
//	paths, err := d.SearchOneHop(ctx, "Q42", "Q5")
//
// # Wrappers
//
// Retry, circuit breaking, instrumentation and label caching are layered
// around any backend and are themselves GraphDrivers.
//
// # Thread Safety
//
// All driver implementations are safe for concurrent use from multiple goroutines.
package driver
