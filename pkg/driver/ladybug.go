//go:build ladybug

package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	ladybug "github.com/LadybugDB/go-ladybug"

	"github.com/soundprediction/kgpath/pkg/types"
)

// ladybugSchemaQueries creates the triple schema. Ladybug requires an
// explicit schema.
var ladybugSchemaQueries = []string{
	`CREATE NODE TABLE IF NOT EXISTS Entity(id STRING PRIMARY KEY, label STRING)`,
	`CREATE REL TABLE IF NOT EXISTS RELATION(FROM Entity TO Entity, id STRING, label STRING)`,
}

// LadybugDriver implements GraphDriver on an embedded Ladybug database.
type LadybugDriver struct {
	cypherGraph

	// the ladybug C++ library is not thread-safe
	mu     sync.Mutex
	db     *ladybug.Database
	client *ladybug.Connection
	path   string
	logger *slog.Logger
	closed bool
}

var (
	_ GraphDriver = (*LadybugDriver)(nil)
	_ Loader      = (*LadybugDriver)(nil)
)

// NewLadybugDriver opens (or creates) the database at path. An empty path
// opens an in-memory database.
func NewLadybugDriver(path string, logger *slog.Logger) (*LadybugDriver, error) {
	if path == "" {
		path = ":memory:"
	}
	if logger == nil {
		logger = slog.Default()
	}

	systemConfig := ladybug.SystemConfig{
		BufferPoolSize:    1024 * 1024 * 1024, // 1GB
		MaxNumThreads:     1,
		EnableCompression: true,
		ReadOnly:          false,
		MaxDbSize:         1 << 43, // 8TB
	}
	database, err := ladybug.OpenDatabase(path, systemConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open ladybug database at %s: %w", path, err)
	}
	client, err := ladybug.OpenConnection(database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open ladybug connection: %w", err)
	}

	d := &LadybugDriver{db: database, client: client, path: path, logger: logger}
	d.cypherGraph = cypherGraph{exec: d}

	for _, q := range ladybugSchemaQueries {
		if _, err := d.execute(q, nil); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to create ladybug schema: %w", err)
		}
	}
	logger.Info("Opened ladybug database", "path", path)
	return d, nil
}

func (d *LadybugDriver) run(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.execute(query, params)
}

func (d *LadybugDriver) execute(query string, params map[string]any) ([]map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDriverClosed
	}

	var results *ladybug.QueryResult
	var err error
	if len(params) > 0 {
		stmt, perr := d.client.Prepare(query)
		if perr != nil {
			d.logger.Debug("Failed to prepare ladybug query", "query", query, "error", perr)
			return nil, perr
		}
		results, err = d.client.Execute(stmt, params)
	} else {
		results, err = d.client.Query(query)
	}
	if err != nil {
		d.logger.Debug("Failed to execute ladybug query", "query", query, "error", err)
		return nil, err
	}
	defer results.Close()

	columns := results.GetColumnNames()
	rows := []map[string]any{}
	for results.HasNext() {
		tuple, err := results.Next()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		values, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		row := make(map[string]any, len(columns))
		for i, v := range values {
			if i < len(columns) {
				row[columns[i]] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AddTriples implements Loader.
func (d *LadybugDriver) AddTriples(ctx context.Context, triples []types.Triplet) error {
	for _, t := range triples {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, id := range []types.Entity{t.Subject, t.Object} {
			if _, err := d.execute(`MERGE (e:Entity {id: $id})`, map[string]any{"id": string(id)}); err != nil {
				return queryError(OpLoad, string(id), "", err)
			}
		}
		q := `MATCH (s:Entity {id: $s}), (o:Entity {id: $o})
MERGE (s)-[:RELATION {id: $r}]->(o)`
		params := map[string]any{"s": string(t.Subject), "r": string(t.Relation), "o": string(t.Object)}
		if _, err := d.execute(q, params); err != nil {
			return queryError(OpLoad, string(t.Subject), string(t.Object), err)
		}
	}
	return nil
}

// SetLabels implements Loader.
func (d *LadybugDriver) SetLabels(ctx context.Context, labels map[string]string) error {
	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := map[string]any{"id": id, "label": labels[id]}
		if _, err := d.execute(`MATCH (e:Entity {id: $id}) SET e.label = $label`, params); err != nil {
			return queryError(OpLoad, id, "", err)
		}
		if _, err := d.execute(`MATCH (:Entity)-[r:RELATION {id: $id}]->(:Entity) SET r.label = $label`, params); err != nil {
			return queryError(OpLoad, id, "", err)
		}
	}
	return nil
}

func (d *LadybugDriver) Provider() GraphProvider { return GraphProviderLadybug }

// Close releases the connection and database. It is safe to call more than once.
func (d *LadybugDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.client != nil {
		d.client.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
	return nil
}
