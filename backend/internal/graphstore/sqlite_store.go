package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore keeps the graph in an embedded SQLite database
type SQLiteStore struct {
	db     *sql.DB
	schema Schema
}

// NewSQLite opens the database at path, ":memory:" for a private in-memory database
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" databases alive
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	return &SQLiteStore{db: db, schema: FractalSchema}, nil
}

// EnsureSchema creates tables and indexes
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range allSchemaStatements(s.schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Apply writes the mutation in a single transaction
func (s *SQLiteStore) Apply(ctx context.Context, m Mutation) error {
	if err := s.schema.validateMutation(m); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, n := range m.Nodes {
		if err := insertNode(ctx, tx, n, now); err != nil {
			return err
		}
	}
	for _, e := range m.Edges {
		if err := s.insertEdge(ctx, tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertNode(ctx context.Context, tx *sql.Tx, n Node, now time.Time) error {
	props, err := json.Marshal(normalizeProps(n.Props))
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}
	created, updated := stamps(n, now)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO nodes (id, label, properties, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		n.ID.String(), string(n.Label), string(props),
		created.Format(time.RFC3339Nano), updated.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting %s node: %w", n.Label, translateSQLiteError(err))
	}
	return nil
}

func (s *SQLiteStore) insertEdge(ctx context.Context, tx *sql.Tx, e Edge) error {
	es, err := s.schema.Edge(e.Type)
	if err != nil {
		return err
	}
	if err := requireLabel(ctx, tx, e.From, es.From); err != nil {
		return fmt.Errorf("%s from: %w", e.Type, err)
	}
	if err := requireLabel(ctx, tx, e.To, es.To); err != nil {
		return fmt.Errorf("%s to: %w", e.Type, err)
	}

	props := edgeProps(es, e.Props)
	if e.Merge {
		cond, args := propConditions("edges", props)
		query := `SELECT COUNT(*) FROM edges WHERE type = ? AND from_id = ? AND to_id = ?` + cond
		args = append([]any{string(e.Type), e.From.String(), e.To.String()}, args...)

		var count int
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return fmt.Errorf("checking existing edge: %w", err)
		}
		if count > 0 {
			return nil
		}
	}

	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("marshaling edge properties: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO edges (type, from_id, to_id, properties) VALUES (?, ?, ?, ?)`,
		string(e.Type), e.From.String(), e.To.String(), string(raw),
	)
	if err != nil {
		return fmt.Errorf("inserting %s edge: %w", e.Type, translateSQLiteError(err))
	}
	return nil
}

func requireLabel(ctx context.Context, tx *sql.Tx, id uuid.UUID, want Label) error {
	var label string
	err := tx.QueryRowContext(ctx, `SELECT label FROM nodes WHERE id = ?`, id.String()).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && Label(label) != want) {
		return fmt.Errorf("%w: %s %s", ErrEndpointNotFound, want, id)
	}
	if err != nil {
		return fmt.Errorf("looking up endpoint: %w", err)
	}
	return nil
}

// FindNodes returns nodes matching m
func (s *SQLiteStore) FindNodes(ctx context.Context, m Match) ([]Node, error) {
	if err := s.schema.validateMatch(m); err != nil {
		return nil, err
	}

	cond, args := propConditions("n", normalizeProps(m.Props))
	query := `SELECT n.id, n.label, n.properties, n.created_at, n.updated_at FROM nodes n WHERE n.label = ?` + cond
	args = append([]any{string(m.Label)}, args...)

	nodes, err := s.queryNodes(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sortNodes(s.schema, nodes)
	return nodes, nil
}

// Traverse joins start nodes to result nodes through one edge row per result
func (s *SQLiteStore) Traverse(ctx context.Context, t Traversal) ([]Node, error) {
	if _, _, err := s.schema.validateTraversal(t); err != nil {
		return nil, err
	}

	startCol, resultCol := "from_id", "to_id"
	if t.Direction == Incoming {
		startCol, resultCol = "to_id", "from_id"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `SELECT r.id, r.label, r.properties, r.created_at, r.updated_at
		FROM nodes st
		JOIN edges e ON e.%s = st.id AND e.type = ?
		JOIN nodes r ON r.id = e.%s
		WHERE st.label = ?`, startCol, resultCol)
	args := []any{string(t.Edge), string(t.Start.Label)}

	cond, startArgs := propConditions("st", normalizeProps(t.Start.Props))
	b.WriteString(cond)
	args = append(args, startArgs...)

	cond, edgeArgs := propConditions("e", normalizeProps(t.EdgeProps))
	b.WriteString(cond)
	args = append(args, edgeArgs...)

	if t.RequireAll != nil {
		for _, target := range UniqueIDs(t.RequireAll.TargetIDs) {
			b.WriteString(` AND EXISTS (SELECT 1 FROM edges q WHERE q.from_id = r.id AND q.type = ? AND q.to_id = ?)`)
			args = append(args, string(t.RequireAll.Edge), target.String())
		}
	}

	nodes, err := s.queryNodes(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	sortNodes(s.schema, nodes)
	return nodes, nil
}

// DetachDelete removes matched nodes, their cascade targets and every incident edge
func (s *SQLiteStore) DetachDelete(ctx context.Context, m Match, cascade ...EdgeType) (bool, error) {
	if err := s.schema.validateMatch(m); err != nil {
		return false, err
	}
	for _, et := range cascade {
		if _, err := s.schema.Edge(et); err != nil {
			return false, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cond, args := propConditions("n", normalizeProps(m.Props))
	ids, err := queryStrings(ctx, tx, `SELECT n.id FROM nodes n WHERE n.label = ?`+cond,
		append([]any{string(m.Label)}, args...)...)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}

	doomed := append([]string(nil), ids...)
	if len(cascade) > 0 {
		query := fmt.Sprintf(`SELECT DISTINCT to_id FROM edges WHERE from_id IN (%s) AND type IN (%s)`,
			placeholders(len(ids)), placeholders(len(cascade)))
		cascadeArgs := stringArgs(ids)
		for _, et := range cascade {
			cascadeArgs = append(cascadeArgs, string(et))
		}
		owned, err := queryStrings(ctx, tx, query, cascadeArgs...)
		if err != nil {
			return false, err
		}
		doomed = append(doomed, owned...)
	}

	in := placeholders(len(doomed))
	doomedArgs := stringArgs(doomed)
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM edges WHERE from_id IN (%s) OR to_id IN (%s)`, in, in),
		append(doomedArgs, doomedArgs...)...); err != nil {
		return false, fmt.Errorf("deleting edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM nodes WHERE id IN (%s)`, in), doomedArgs...); err != nil {
		return false, fmt.Errorf("deleting nodes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

// Purge deletes all rows
func (s *SQLiteStore) Purge(ctx context.Context) error {
	for _, stmt := range []string{`DELETE FROM edges`, `DELETE FROM nodes`} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("purging: %w", err)
		}
	}
	return nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the SQLite connection
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) queryNodes(ctx context.Context, query string, args ...any) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var (
			id, label, props, created, updated string
		)
		if err := rows.Scan(&id, &label, &props, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n, err := decodeNode(id, label, props, created, updated)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes: %w", err)
	}
	return nodes, nil
}

func decodeNode(id, label, props, created, updated string) (Node, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Node{}, fmt.Errorf("parsing node id %q: %w", id, err)
	}
	n := Node{Label: Label(label), ID: parsed, Props: map[string]any{}}
	if err := json.Unmarshal([]byte(props), &n.Props); err != nil {
		return Node{}, fmt.Errorf("unmarshaling properties of %s: %w", id, err)
	}
	if n.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Node{}, fmt.Errorf("parsing created_at of %s: %w", id, err)
	}
	if n.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Node{}, fmt.Errorf("parsing updated_at of %s: %w", id, err)
	}
	return n, nil
}

// propConditions renders equality filters against a row alias. Keys are
// validated identifiers, values are bound.
func propConditions(alias string, props map[string]any) (string, []any) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		b    strings.Builder
		args []any
	)
	for _, key := range keys {
		value := props[key]
		column := fmt.Sprintf("json_extract(%s.properties, '$.%s')", alias, key)
		if key == PropID {
			column = alias + ".id"
		}
		if value == nil {
			fmt.Fprintf(&b, " AND %s IS NULL", column)
			continue
		}
		fmt.Fprintf(&b, " AND %s = ?", column)
		args = append(args, value)
	}
	return b.String(), args
}

func queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// translateSQLiteError maps constraint failures onto the store sentinels
func translateSQLiteError(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	}
	if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE") {
		return fmt.Errorf("%w: %v", ErrUniqueViolation, err)
	}
	return err
}
