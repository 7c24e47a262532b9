package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/soundprediction/kgpath/pkg/types"
)

const (
	wdEntityPrefix = "http://www.wikidata.org/entity/"
	wdDirectPrefix = "http://www.wikidata.org/prop/direct/"

	// DefaultWikidataEndpoint is the local qEndpoint address used by the
	// preprocessing scripts.
	DefaultWikidataEndpoint = "http://localhost:1234/api/endpoint/sparql"

	maxErrorBody = 512
)

var (
	entityIDPattern   = regexp.MustCompile(`^Q[1-9][0-9]*$`)
	relationIDPattern = regexp.MustCompile(`^P[1-9][0-9]*$`)
)

const sparqlPrefixes = `PREFIX wd: <http://www.wikidata.org/entity/>
PREFIX wdt: <http://www.wikidata.org/prop/direct/>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
`

// WikidataConfig configures a WikidataDriver.
type WikidataConfig struct {
	Endpoint  string
	Timeout   time.Duration
	Language  string
	UserAgent string
	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// WikidataDriver queries a Wikidata SPARQL endpoint. Only direct ("truthy")
// properties between items are considered.
type WikidataDriver struct {
	endpoint  string
	client    *http.Client
	language  string
	userAgent string
	logger    *slog.Logger
}

var _ GraphDriver = (*WikidataDriver)(nil)

// NewWikidataDriver creates a driver for the configured endpoint.
func NewWikidataDriver(cfg WikidataConfig, logger *slog.Logger) (*WikidataDriver, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultWikidataEndpoint
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid wikidata endpoint %q: %w", endpoint, err)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "kgpath/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WikidataDriver{endpoint: endpoint, client: client, language: lang, userAgent: ua, logger: logger}, nil
}

type sparqlBinding struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sparqlResponse struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]sparqlBinding `json:"bindings"`
	} `json:"results"`
}

func (w *WikidataDriver) SearchOneHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	if err := validateEntities(src, dst); err != nil {
		return nil, queryError(OpOneHop, string(src), string(dst), err)
	}
	q := fmt.Sprintf(`SELECT DISTINCT ?r WHERE {
  wd:%s ?r wd:%s .
  FILTER(STRSTARTS(STR(?r), "%s"))
} ORDER BY ?r`, src, dst, wdDirectPrefix)

	rows, err := w.query(ctx, q)
	if err != nil {
		return nil, queryError(OpOneHop, string(src), string(dst), err)
	}
	paths := make([]types.Path, 0, len(rows))
	for _, row := range rows {
		rel, err := bindingID(row, "r", wdDirectPrefix)
		if err != nil {
			return nil, queryError(OpOneHop, string(src), string(dst), err)
		}
		paths = append(paths, types.Path{{Subject: src, Relation: types.Relation(rel), Object: dst}})
	}
	return paths, nil
}

func (w *WikidataDriver) SearchTwoHop(ctx context.Context, src, dst types.Entity) ([]types.Path, error) {
	if err := validateEntities(src, dst); err != nil {
		return nil, queryError(OpTwoHop, string(src), string(dst), err)
	}
	q := fmt.Sprintf(`SELECT DISTINCT ?r1 ?m ?r2 WHERE {
  wd:%s ?r1 ?m .
  ?m ?r2 wd:%s .
  FILTER(STRSTARTS(STR(?r1), "%s"))
  FILTER(STRSTARTS(STR(?r2), "%s"))
  FILTER(STRSTARTS(STR(?m), "%s"))
} ORDER BY ?r1 ?m ?r2`, src, dst, wdDirectPrefix, wdDirectPrefix, wdEntityPrefix)

	rows, err := w.query(ctx, q)
	if err != nil {
		return nil, queryError(OpTwoHop, string(src), string(dst), err)
	}
	paths := make([]types.Path, 0, len(rows))
	for _, row := range rows {
		r1, err1 := bindingID(row, "r1", wdDirectPrefix)
		mid, err2 := bindingID(row, "m", wdEntityPrefix)
		r2, err3 := bindingID(row, "r2", wdDirectPrefix)
		if err := firstErr(err1, err2, err3); err != nil {
			return nil, queryError(OpTwoHop, string(src), string(dst), err)
		}
		m := types.Entity(mid)
		paths = append(paths, types.Path{
			{Subject: src, Relation: types.Relation(r1), Object: m},
			{Subject: m, Relation: types.Relation(r2), Object: dst},
		})
	}
	return paths, nil
}

func (w *WikidataDriver) Relations(ctx context.Context, entity types.Entity, limit int) ([]types.Relation, error) {
	if err := validateEntities(entity); err != nil {
		return nil, queryError(OpRelations, string(entity), "", err)
	}
	q := fmt.Sprintf(`SELECT DISTINCT ?r WHERE {
  wd:%s ?r ?o .
  FILTER(STRSTARTS(STR(?r), "%s"))
  FILTER(STRSTARTS(STR(?o), "%s"))
} ORDER BY ?r LIMIT %d`, entity, wdDirectPrefix, wdEntityPrefix, expansionLimit(limit))

	rows, err := w.query(ctx, q)
	if err != nil {
		return nil, queryError(OpRelations, string(entity), "", err)
	}
	rels := make([]types.Relation, 0, len(rows))
	for _, row := range rows {
		rel, err := bindingID(row, "r", wdDirectPrefix)
		if err != nil {
			return nil, queryError(OpRelations, string(entity), "", err)
		}
		rels = append(rels, types.Relation(rel))
	}
	return rels, nil
}

func (w *WikidataDriver) Objects(ctx context.Context, entity types.Entity, rel types.Relation, limit int) ([]types.Entity, error) {
	if err := validateEntities(entity); err != nil {
		return nil, queryError(OpObjects, string(entity), string(rel), err)
	}
	if !relationIDPattern.MatchString(string(rel)) {
		return nil, queryError(OpObjects, string(entity), string(rel), fmt.Errorf("%w: relation %q", ErrInvalidIdentifier, rel))
	}
	q := fmt.Sprintf(`SELECT DISTINCT ?o WHERE {
  wd:%s wdt:%s ?o .
  FILTER(STRSTARTS(STR(?o), "%s"))
} ORDER BY ?o LIMIT %d`, entity, rel, wdEntityPrefix, expansionLimit(limit))

	rows, err := w.query(ctx, q)
	if err != nil {
		return nil, queryError(OpObjects, string(entity), string(rel), err)
	}
	objs := make([]types.Entity, 0, len(rows))
	for _, row := range rows {
		obj, err := bindingID(row, "o", wdEntityPrefix)
		if err != nil {
			return nil, queryError(OpObjects, string(entity), string(rel), err)
		}
		objs = append(objs, types.Entity(obj))
	}
	return objs, nil
}

func (w *WikidataDriver) Label(ctx context.Context, id string) (string, error) {
	if !entityIDPattern.MatchString(id) && !relationIDPattern.MatchString(id) {
		return "", queryError(OpLabel, id, "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, id))
	}
	q := fmt.Sprintf(`SELECT ?label WHERE {
  wd:%s rdfs:label ?label .
  FILTER(LANG(?label) = "%s")
} LIMIT 1`, id, w.language)

	rows, err := w.query(ctx, q)
	if err != nil {
		return "", queryError(OpLabel, id, "", err)
	}
	if len(rows) == 0 {
		return id, nil
	}
	b, ok := rows[0]["label"]
	if !ok || b.Value == "" {
		return id, nil
	}
	return b.Value, nil
}

func (w *WikidataDriver) Provider() GraphProvider { return GraphProviderWikidata }

func (w *WikidataDriver) Close() error {
	w.client.CloseIdleConnections()
	return nil
}

// query posts a SELECT query and returns its bindings.
func (w *WikidataDriver) query(ctx context.Context, q string) ([]map[string]sparqlBinding, error) {
	form := url.Values{"query": {sparqlPrefixes + q}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(snippet)}
	}
	if resp.ContentLength > 0 && int64(len(body)) < resp.ContentLength {
		return nil, fmt.Errorf("%w: body truncated at %d of %d bytes", ErrMalformedResponse, len(body), resp.ContentLength)
	}
	return w.decode(body)
}

func (w *WikidataDriver) decode(body []byte) ([]map[string]sparqlBinding, error) {
	var parsed sparqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// A cut-off URI still decodes to a plausible id, so truncated
		// bodies are rejected rather than repaired.
		if truncatedJSON(body, err) {
			return nil, fmt.Errorf("%w: truncated body: %v", ErrMalformedResponse, err)
		}
		repaired, rerr := jsonrepair.JSONRepair(string(body))
		if rerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		parsed = sparqlResponse{}
		if err2 := json.Unmarshal([]byte(repaired), &parsed); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err2)
		}
		w.logger.Warn("Repaired malformed SPARQL response", "bytes", len(body))
	}
	if parsed.Results == nil {
		return nil, fmt.Errorf("%w: missing results", ErrMalformedResponse)
	}
	return parsed.Results.Bindings, nil
}

// truncatedJSON reports whether err is a syntax error at the end of body.
func truncatedJSON(body []byte, err error) bool {
	var syn *json.SyntaxError
	if !errors.As(err, &syn) {
		return false
	}
	return syn.Offset >= int64(len(body)) || strings.Contains(syn.Error(), "unexpected end of JSON input")
}

func bindingID(row map[string]sparqlBinding, name, prefix string) (string, error) {
	b, ok := row[name]
	if !ok {
		return "", fmt.Errorf("%w: binding %q missing", ErrMalformedResponse, name)
	}
	if !strings.HasPrefix(b.Value, prefix) {
		return "", fmt.Errorf("%w: binding %q has unexpected value %q", ErrMalformedResponse, name, b.Value)
	}
	return strings.TrimPrefix(b.Value, prefix), nil
}

func validateEntities(entities ...types.Entity) error {
	for _, e := range entities {
		if !entityIDPattern.MatchString(string(e)) {
			return fmt.Errorf("%w: entity %q", ErrInvalidIdentifier, e)
		}
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
