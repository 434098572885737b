package graphstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const neo4jConstraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

// Neo4jStore keeps the graph in a Neo4j database, one session per operation
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	schema   Schema
}

// NewNeo4j connects to a Neo4j server and verifies connectivity
func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	return NewNeo4jWithDriver(driver, cfg.Database), nil
}

// NewNeo4jWithDriver wraps an existing driver
func NewNeo4jWithDriver(driver neo4j.DriverWithContext, database string) *Neo4jStore {
	return &Neo4jStore{driver: driver, database: database, schema: FractalSchema}
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// EnsureSchema creates id and unique-property constraints for every label
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, ns := range s.schema.Nodes {
		keys := append([]string{PropID}, ns.Unique...)
		for _, key := range keys {
			name := strings.ToLower(fmt.Sprintf("%s_%s_unique", ns.Label, key))
			query := fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
				name, ns.Label, key)
			if err := runAndConsume(ctx, session, query); err != nil {
				return fmt.Errorf("creating constraint %s: %w", name, err)
			}
		}
	}
	return nil
}

// Apply writes every node and edge inside one write transaction
func (s *Neo4jStore) Apply(ctx context.Context, m Mutation) error {
	if err := s.schema.validateMutation(m); err != nil {
		return err
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		now := time.Now().UTC()
		for _, n := range m.Nodes {
			created, updated := stamps(n, now)
			query := fmt.Sprintf(`
				CREATE (n:%s {id: $id})
				SET n += $props, n.created_at = $created, n.updated_at = $updated
			`, n.Label)
			_, err := tx.Run(ctx, query, map[string]any{
				"id":      n.ID.String(),
				"props":   normalizeProps(n.Props),
				"created": created,
				"updated": updated,
			})
			if err != nil {
				return nil, fmt.Errorf("creating %s node: %w", n.Label, err)
			}
		}

		for _, e := range m.Edges {
			if err := s.createEdge(ctx, tx, e); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return translateNeo4jError(err)
}

func (s *Neo4jStore) createEdge(ctx context.Context, tx neo4j.ManagedTransaction, e Edge) error {
	es, err := s.schema.Edge(e.Type)
	if err != nil {
		return err
	}

	same := []string{"true"}
	for _, key := range es.Props {
		same = append(same, fmt.Sprintf("coalesce(existing.%s, '') = coalesce($props.%s, '')", key, key))
	}

	query := fmt.Sprintf(`
		MATCH (a:%s {id: $from}), (b:%s {id: $to})
		OPTIONAL MATCH (a)-[existing:%s]->(b)
		WHERE $merge AND %s
		WITH a, b, count(existing) AS duplicates
		FOREACH (ignored IN CASE WHEN duplicates = 0 THEN [1] ELSE [] END |
			CREATE (a)-[r:%s]->(b) SET r = $props)
		RETURN duplicates
	`, es.From, es.To, es.Type, strings.Join(same, " AND "), es.Type)

	result, err := tx.Run(ctx, query, map[string]any{
		"from":  e.From.String(),
		"to":    e.To.String(),
		"merge": e.Merge,
		"props": edgeProps(es, e.Props),
	})
	if err != nil {
		return fmt.Errorf("creating %s edge: %w", e.Type, err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return fmt.Errorf("creating %s edge: %w", e.Type, err)
		}
		return fmt.Errorf("%w: %s %s -> %s", ErrEndpointNotFound, e.Type, e.From, e.To)
	}
	return nil
}

// FindNodes returns nodes matching m
func (s *Neo4jStore) FindNodes(ctx context.Context, m Match) ([]Node, error) {
	if err := s.schema.validateMatch(m); err != nil {
		return nil, err
	}

	params := map[string]any{}
	where := cypherConditions("n", "p", normalizeProps(m.Props), params)
	query := fmt.Sprintf("MATCH (n:%s) WHERE %s RETURN n", m.Label, where)

	return s.readNodes(ctx, query, params, m.Label)
}

// Traverse matches one path per edge instance and returns its far end
func (s *Neo4jStore) Traverse(ctx context.Context, t Traversal) ([]Node, error) {
	_, target, err := s.schema.validateTraversal(t)
	if err != nil {
		return nil, err
	}

	pattern := "(st:%s)-[e:%s]->(r:%s)"
	if t.Direction == Incoming {
		pattern = "(st:%s)<-[e:%s]-(r:%s)"
	}
	pattern = fmt.Sprintf(pattern, t.Start.Label, t.Edge, target)

	params := map[string]any{}
	conds := []string{
		cypherConditions("st", "s", normalizeProps(t.Start.Props), params),
		cypherConditions("e", "e", normalizeProps(t.EdgeProps), params),
	}
	if t.RequireAll != nil {
		req, _ := s.schema.Edge(t.RequireAll.Edge)
		ids := UniqueIDs(t.RequireAll.TargetIDs)
		required := make([]string, len(ids))
		for i, id := range ids {
			required[i] = id.String()
		}
		params["required"] = required
		conds = append(conds, fmt.Sprintf("ALL(tid IN $required WHERE (r)-[:%s]->(:%s {id: tid}))", req.Type, req.To))
	}

	query := fmt.Sprintf("MATCH %s WHERE %s RETURN r AS n", pattern, strings.Join(conds, " AND "))
	return s.readNodes(ctx, query, params, target)
}

func (s *Neo4jStore) readNodes(ctx context.Context, query string, params map[string]any, label Label) ([]Node, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		nodes := make([]Node, 0, len(records))
		for _, record := range records {
			n, err := nodeFromRecord(record, "n", label)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		return nodes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	nodes := result.([]Node)
	sortNodes(s.schema, nodes)
	return nodes, nil
}

// DetachDelete removes matched nodes and their cascade targets with DETACH DELETE
func (s *Neo4jStore) DetachDelete(ctx context.Context, m Match, cascade ...EdgeType) (bool, error) {
	if err := s.schema.validateMatch(m); err != nil {
		return false, err
	}
	types := make([]string, len(cascade))
	for i, et := range cascade {
		if _, err := s.schema.Edge(et); err != nil {
			return false, err
		}
		types[i] = string(et)
	}

	params := map[string]any{}
	where := cypherConditions("n", "p", normalizeProps(m.Props), params)

	var query string
	if len(types) == 0 {
		query = fmt.Sprintf(`
			MATCH (n:%s) WHERE %s
			WITH collect(DISTINCT n) AS matched
			FOREACH (x IN matched | DETACH DELETE x)
			RETURN size(matched) > 0 AS deleted
		`, m.Label, where)
	} else {
		query = fmt.Sprintf(`
			MATCH (n:%s) WHERE %s
			OPTIONAL MATCH (n)-[:%s]->(owned)
			WITH collect(DISTINCT n) AS matched, collect(DISTINCT owned) AS owned
			FOREACH (x IN owned | DETACH DELETE x)
			FOREACH (x IN matched | DETACH DELETE x)
			RETURN size(matched) > 0 AS deleted
		`, m.Label, where, strings.Join(types, "|"))
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return false, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return false, err
		}
		return getBoolFromRecord(record, "deleted"), nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete nodes: %w", err)
	}
	return deleted.(bool), nil
}

// Purge deletes every node carrying a schema label
func (s *Neo4jStore) Purge(ctx context.Context) error {
	labels := make([]string, len(s.schema.Nodes))
	for i, ns := range s.schema.Nodes {
		labels[i] = "n:" + string(ns.Label)
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (n) WHERE %s DETACH DELETE n", strings.Join(labels, " OR "))
	if err := runAndConsume(ctx, session, query); err != nil {
		return fmt.Errorf("failed to purge graph: %w", err)
	}
	return nil
}

// Ping verifies connectivity to the server
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func runAndConsume(ctx context.Context, session neo4j.SessionWithContext, query string) error {
	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// cypherConditions renders equality filters on variable v, binding values
// under prefixed parameter names
func cypherConditions(v, prefix string, props map[string]any, params map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := []string{"true"}
	for i, key := range keys {
		value := props[key]
		if value == nil {
			conds = append(conds, fmt.Sprintf("%s.%s IS NULL", v, key))
			continue
		}
		param := fmt.Sprintf("%s%d", prefix, i)
		params[param] = value
		conds = append(conds, fmt.Sprintf("%s.%s = $%s", v, key, param))
	}
	return strings.Join(conds, " AND ")
}

// translateNeo4jError maps constraint failures onto the store sentinels
func translateNeo4jError(err error) error {
	if err == nil {
		return nil
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && neoErr.Code == neo4jConstraintViolation {
		return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	}
	return err
}
