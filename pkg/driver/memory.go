package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/soundprediction/kgpath/pkg/types"
)

type edge struct {
	rel types.Relation
	obj types.Entity
}

// MemoryDriver is an in-process triple store. Edges keep insertion order, so
// every query is deterministic.
type MemoryDriver struct {
	mu     sync.RWMutex
	out    map[types.Entity][]edge
	seen   map[types.Triplet]struct{}
	labels map[string]string
	closed bool
}

var (
	_ GraphDriver = (*MemoryDriver)(nil)
	_ Loader      = (*MemoryDriver)(nil)
)

// NewMemoryDriver creates an empty store.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		out:    make(map[types.Entity][]edge),
		seen:   make(map[types.Triplet]struct{}),
		labels: make(map[string]string),
	}
}

// NewMemoryDriverFromFiles loads triples and, optionally, labels from TSV
// files.
func NewMemoryDriverFromFiles(triplesPath, labelsPath string) (*MemoryDriver, error) {
	m := NewMemoryDriver()
	if triplesPath == "" {
		return nil, fmt.Errorf("memory driver: triples path is required")
	}
	if err := loadFile(triplesPath, m.LoadTriplesTSV); err != nil {
		return nil, err
	}
	if labelsPath != "" {
		if err := loadFile(labelsPath, m.LoadLabelsTSV); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func loadFile(path string, load func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if err := load(f); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadTriplesTSV reads "subject\trelation\tobject" lines. Blank lines and
// lines starting with # are ignored.
func (m *MemoryDriver) LoadTriplesTSV(r io.Reader) error {
	var triples []types.Triplet
	err := scanTSV(r, 3, func(f []string) error {
		triples = append(triples, types.NewTriplet(f[0], f[1], f[2]))
		return nil
	})
	if err != nil {
		return err
	}
	return m.AddTriples(context.Background(), triples)
}

// LoadLabelsTSV reads "id\tlabel" lines.
func (m *MemoryDriver) LoadLabelsTSV(r io.Reader) error {
	labels := make(map[string]string)
	err := scanTSV(r, 2, func(f []string) error {
		labels[f[0]] = f[1]
		return nil
	})
	if err != nil {
		return err
	}
	return m.SetLabels(context.Background(), labels)
}

func scanTSV(r io.Reader, fields int, emit func([]string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Split(text, "\t")
		if len(parts) != fields {
			return fmt.Errorf("line %d: expected %d tab-separated fields, got %d", line, fields, len(parts))
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := emit(parts); err != nil {
			return err
		}
	}
	return sc.Err()
}

// AddTriples implements Loader. Duplicate triples are ignored.
func (m *MemoryDriver) AddTriples(_ context.Context, triples []types.Triplet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDriverClosed
	}
	for _, t := range triples {
		if t.Subject.IsZero() || t.Relation.IsZero() || t.Object.IsZero() {
			return fmt.Errorf("%w: triple %s has an empty field", ErrInvalidIdentifier, t)
		}
		if _, dup := m.seen[t]; dup {
			continue
		}
		m.seen[t] = struct{}{}
		m.out[t.Subject] = append(m.out[t.Subject], edge{rel: t.Relation, obj: t.Object})
	}
	return nil
}

// SetLabels implements Loader.
func (m *MemoryDriver) SetLabels(_ context.Context, labels map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrDriverClosed
	}
	for id, label := range labels {
		m.labels[id] = label
	}
	return nil
}

func (m *MemoryDriver) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, queryError(OpOneHop, string(src), string(dst), err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, queryError(OpOneHop, string(src), string(dst), ErrDriverClosed)
	}

	paths := []types.Path{}
	for _, e := range m.out[src] {
		if e.obj == dst {
			paths = append(paths, types.Path{{Subject: src, Relation: e.rel, Object: dst}})
		}
	}
	return paths, nil
}

func (m *MemoryDriver) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	if err := ctx.Err(); err != nil {
		return nil, queryError(OpTwoHop, string(src), string(dst), err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, queryError(OpTwoHop, string(src), string(dst), ErrDriverClosed)
	}

	paths := []types.Path{}
	for _, first := range m.out[src] {
		for _, second := range m.out[first.obj] {
			if second.obj != dst {
				continue
			}
			paths = append(paths, types.Path{
				{Subject: src, Relation: first.rel, Object: first.obj},
				{Subject: first.obj, Relation: second.rel, Object: dst},
			})
		}
	}
	return paths, nil
}

func (m *MemoryDriver) Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, queryError(OpRelations, string(entity), "", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, queryError(OpRelations, string(entity), "", ErrDriverClosed)
	}

	limit = expansionLimit(limit)
	seen := make(map[types.Relation]struct{})
	rels := []types.Relation{}
	for _, e := range m.out[entity] {
		if _, ok := seen[e.rel]; ok {
			continue
		}
		seen[e.rel] = struct{}{}
		rels = append(rels, e.rel)
		if len(rels) == limit {
			break
		}
	}
	return rels, nil
}

func (m *MemoryDriver) Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, queryError(OpObjects, string(entity), string(rel), err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, queryError(OpObjects, string(entity), string(rel), ErrDriverClosed)
	}

	limit = expansionLimit(limit)
	objs := []types.Entity{}
	for _, e := range m.out[entity] {
		if e.rel != rel {
			continue
		}
		objs = append(objs, e.obj)
		if len(objs) == limit {
			break
		}
	}
	return objs, nil
}

func (m *MemoryDriver) Label(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", queryError(OpLabel, id, "", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", queryError(OpLabel, id, "", ErrDriverClosed)
	}
	if label, ok := m.labels[id]; ok && label != "" {
		return label, nil
	}
	return id, nil
}

// Len returns the number of distinct triples.
func (m *MemoryDriver) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.seen)
}

func (m *MemoryDriver) Provider() GraphProvider { return GraphProviderMemory }

func (m *MemoryDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
