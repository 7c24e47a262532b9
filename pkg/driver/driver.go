package driver

import (
	"context"

	"github.com/soundprediction/kgpath/pkg/types"
)

// GraphProvider represents the type of graph backend
type GraphProvider string

const (
	GraphProviderWikidata GraphProvider = "wikidata"
	GraphProviderNeo4j    GraphProvider = "neo4j"
	GraphProviderLadybug  GraphProvider = "ladybug"
	GraphProviderMemory   GraphProvider = "memory"
)

// GraphDriver is the read surface path search needs from a knowledge graph.
//
// Search results are returned in a deterministic order for a fixed graph.
// Zero results is an empty slice and a nil error.
type GraphDriver interface {
	// SearchOneHop returns the single-triplet paths src -r-> dst.
	SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error)
	// SearchTwoHop returns the paths src -r1-> m -r2-> dst.
	SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error)
	// Relations returns up to limit distinct relations leaving entity.
	Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error)
	// Objects returns up to limit objects reachable from entity via rel.
	Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error)
	// Label returns the human-readable label of an entity or relation id,
	// or the id itself when the graph has no label for it.
	Label(ctx context.Context, id string) (string, error)

	Provider() GraphProvider
	Close() error
}

// Loader is implemented by backends that can be populated with triples.
type Loader interface {
	AddTriples(ctx context.Context, triples []types.Triplet) error
	SetLabels(ctx context.Context, labels map[string]string) error
}

// DefaultExpansionLimit bounds Relations and Objects when limit <= 0.
const DefaultExpansionLimit = 1000

func expansionLimit(limit int) int {
	if limit <= 0 {
		return DefaultExpansionLimit
	}
	return limit
}
