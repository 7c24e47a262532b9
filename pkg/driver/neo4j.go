package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/soundprediction/kgpath/pkg/types"
)

// Neo4jDriver implements the GraphDriver interface for Neo4j databases.
type Neo4jDriver struct {
	cypherGraph
	client   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

var (
	_ GraphDriver = (*Neo4jDriver)(nil)
	_ Loader      = (*Neo4jDriver)(nil)
)

// NewNeo4jDriver creates a new Neo4j driver instance and verifies connectivity.
func NewNeo4jDriver(ctx context.Context, uri, username, password, database string, logger *slog.Logger) (*Neo4jDriver, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", uri, err)
	}

	if database == "" {
		database = "neo4j"
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Neo4jDriver{client: client, database: database, logger: logger}
	n.cypherGraph = cypherGraph{exec: n}
	logger.Info("Connected to neo4j", "uri", uri, "database", database)
	return n, nil
}

func (n *Neo4jDriver) run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	result, err := neo4j.ExecuteQuery(ctx, n.client, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	rows := make([]map[string]any, len(result.Records))
	for i, rec := range result.Records {
		rows[i] = rec.AsMap()
	}
	return rows, nil
}

func (n *Neo4jDriver) write(ctx context.Context, query string, params map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, n.client, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database),
		neo4j.ExecuteQueryWithWritersRouting())
	return err
}

// EnsureSchema creates the uniqueness constraint on entity ids.
func (n *Neo4jDriver) EnsureSchema(ctx context.Context) error {
	q := `CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`
	if err := n.write(ctx, q, nil); err != nil {
		return fmt.Errorf("failed to create entity constraint: %w", err)
	}
	return nil
}

// AddTriples implements Loader.
func (n *Neo4jDriver) AddTriples(ctx context.Context, triples []types.Triplet) error {
	if len(triples) == 0 {
		return nil
	}
	rows := make([]map[string]any, len(triples))
	for i, t := range triples {
		rows[i] = map[string]any{"s": string(t.Subject), "r": string(t.Relation), "o": string(t.Object)}
	}
	q := `UNWIND $rows AS row
MERGE (s:Entity {id: row.s})
MERGE (o:Entity {id: row.o})
MERGE (s)-[:RELATION {id: row.r}]->(o)`
	if err := n.write(ctx, q, map[string]any{"rows": rows}); err != nil {
		return queryError(OpLoad, "", "", err)
	}
	return nil
}

// SetLabels implements Loader. Ids are matched against entities and
// relations alike.
func (n *Neo4jDriver) SetLabels(ctx context.Context, labels map[string]string) error {
	if len(labels) == 0 {
		return nil
	}
	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([]map[string]any, len(ids))
	for i, id := range ids {
		rows[i] = map[string]any{"id": id, "label": labels[id]}
	}

	entities := `UNWIND $rows AS row
MATCH (e:Entity {id: row.id})
SET e.label = row.label`
	relations := `UNWIND $rows AS row
MATCH (:Entity)-[r:RELATION {id: row.id}]->(:Entity)
SET r.label = row.label`
	for _, q := range []string{entities, relations} {
		if err := n.write(ctx, q, map[string]any{"rows": rows}); err != nil {
			return queryError(OpLoad, "", "", err)
		}
	}
	return nil
}

func (n *Neo4jDriver) Provider() GraphProvider { return GraphProviderNeo4j }

// Close closes the Neo4j driver.
func (n *Neo4jDriver) Close() error {
	return n.client.Close(context.Background())
}
