package driver

import (
	"context"
	"fmt"

	"github.com/soundprediction/kgpath/pkg/types"
)

// Cypher used by the Neo4j and Ladybug backends. Both store the graph as
// (:Entity {id, label})-[:RELATION {id, label}]->(:Entity).
const (
	cypherOneHop = `MATCH (s:Entity {id: $src})-[r:RELATION]->(o:Entity {id: $dst})
RETURN DISTINCT r.id AS rel
ORDER BY rel`

	cypherTwoHop = `MATCH (s:Entity {id: $src})-[r1:RELATION]->(m:Entity)-[r2:RELATION]->(o:Entity {id: $dst})
RETURN DISTINCT r1.id AS r1, m.id AS mid, r2.id AS r2
ORDER BY r1, mid, r2`

	// LIMIT is formatted in; the value is always an int.
	cypherRelations = `MATCH (s:Entity {id: $id})-[r:RELATION]->(:Entity)
RETURN DISTINCT r.id AS rel
ORDER BY rel
LIMIT %d`

	cypherObjects = `MATCH (s:Entity {id: $id})-[r:RELATION {id: $rel}]->(o:Entity)
RETURN DISTINCT o.id AS obj
ORDER BY obj
LIMIT %d`

	cypherEntityLabel = `MATCH (e:Entity {id: $id})
RETURN e.label AS label
LIMIT 1`

	cypherRelationLabel = `MATCH (:Entity)-[r:RELATION {id: $id}]->(:Entity)
RETURN r.label AS label
LIMIT 1`
)

// cypherExecutor runs a read query and returns its rows.
type cypherExecutor interface {
	run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
}

// cypherGraph implements the GraphDriver read operations on top of any
// Cypher executor.
type cypherGraph struct {
	exec cypherExecutor
}

func (g cypherGraph) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	rows, err := g.exec.run(ctx, cypherOneHop, map[string]any{"src": string(src), "dst": string(dst)})
	if err != nil {
		return nil, queryError(OpOneHop, string(src), string(dst), err)
	}
	paths := make([]types.Path, 0, len(rows))
	for _, row := range rows {
		vals, err := rowStrings(row, "rel")
		if err != nil {
			return nil, queryError(OpOneHop, string(src), string(dst), err)
		}
		paths = append(paths, types.Path{{Subject: src, Relation: types.Relation(vals[0]), Object: dst}})
	}
	return paths, nil
}

func (g cypherGraph) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	rows, err := g.exec.run(ctx, cypherTwoHop, map[string]any{"src": string(src), "dst": string(dst)})
	if err != nil {
		return nil, queryError(OpTwoHop, string(src), string(dst), err)
	}
	paths := make([]types.Path, 0, len(rows))
	for _, row := range rows {
		vals, err := rowStrings(row, "r1", "mid", "r2")
		if err != nil {
			return nil, queryError(OpTwoHop, string(src), string(dst), err)
		}
		mid := types.Entity(vals[1])
		paths = append(paths, types.Path{
			{Subject: src, Relation: types.Relation(vals[0]), Object: mid},
			{Subject: mid, Relation: types.Relation(vals[2]), Object: dst},
		})
	}
	return paths, nil
}

func (g cypherGraph) Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error) {
	q := fmt.Sprintf(cypherRelations, expansionLimit(limit))
	rows, err := g.exec.run(ctx, q, map[string]any{"id": string(entity)})
	if err != nil {
		return nil, queryError(OpRelations, string(entity), "", err)
	}
	rels := make([]types.Relation, 0, len(rows))
	for _, row := range rows {
		vals, err := rowStrings(row, "rel")
		if err != nil {
			return nil, queryError(OpRelations, string(entity), "", err)
		}
		rels = append(rels, types.Relation(vals[0]))
	}
	return rels, nil
}

func (g cypherGraph) Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error) {
	q := fmt.Sprintf(cypherObjects, expansionLimit(limit))
	rows, err := g.exec.run(ctx, q, map[string]any{"id": string(entity), "rel": string(rel)})
	if err != nil {
		return nil, queryError(OpObjects, string(entity), string(rel), err)
	}
	objs := make([]types.Entity, 0, len(rows))
	for _, row := range rows {
		vals, err := rowStrings(row, "obj")
		if err != nil {
			return nil, queryError(OpObjects, string(entity), string(rel), err)
		}
		objs = append(objs, types.Entity(vals[0]))
	}
	return objs, nil
}

func (g cypherGraph) Label(ctx context.Context, id string) (string, error) {
	for _, q := range []string{cypherEntityLabel, cypherRelationLabel} {
		rows, err := g.exec.run(ctx, q, map[string]any{"id": id})
		if err != nil {
			return "", queryError(OpLabel, id, "", err)
		}
		if len(rows) == 0 {
			continue
		}
		// A stored null label means unlabeled.
		if label, ok := rows[0]["label"].(string); ok && label != "" {
			return label, nil
		}
	}
	return id, nil
}
