// Package graphstore is the key-addressed graph store the repositories run on.
//
// Nodes and edges are independent records addressed by UUID; the store owns
// the graph and callers only ever hold identifiers. Three adapters implement
// Store: Neo4j (production), SQLite (embedded) and an in-memory map used by
// tests and the memory backend.
package graphstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Label names a node kind
type Label string

const (
	LabelFractal   Label = "Fractal"
	LabelKnowledge Label = "Knowledge"
)

// EdgeType names a directed relationship kind
type EdgeType string

const (
	EdgeHasChild     EdgeType = "HAS_CHILD"
	EdgeHasContext   EdgeType = "HAS_CONTEXT"
	EdgeHasKnowledge EdgeType = "HAS_KNOWLEDGE"
	EdgeInContext    EdgeType = "IN_CONTEXT"
)

// Property keys
const (
	PropID        = "id"
	PropName      = "name"
	PropContent   = "content"
	PropContextID = "context_id"
)

// Direction selects which end of an edge a traversal starts from
type Direction int

const (
	// Outgoing follows (start)-[edge]->(result)
	Outgoing Direction = iota
	// Incoming follows (result)-[edge]->(start)
	Incoming
)

var (
	// ErrUniqueViolation is returned when a node id or a unique property collides
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrEndpointNotFound is returned when an edge endpoint is missing or has the wrong label
	ErrEndpointNotFound = errors.New("edge endpoint not found")
	// ErrUnknownLabel is returned for labels or edge types outside the schema
	ErrUnknownLabel = errors.New("unknown label or edge type")
	// ErrInvalidPattern is returned for malformed matches and traversals
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrClosed is returned by a closed store
	ErrClosed = errors.New("store closed")
)

// Node is a stored node record
type Node struct {
	Label     Label
	ID        uuid.UUID
	Props     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// String returns a string property, or "" when absent
func (n Node) String(key string) string {
	if s, ok := n.Props[key].(string); ok {
		return s
	}
	return ""
}

// Edge is a directed edge record
type Edge struct {
	Type  EdgeType
	From  uuid.UUID
	To    uuid.UUID
	Props map[string]any
	// Merge skips creation when an edge with the same type, endpoints and
	// properties already exists
	Merge bool
}

// Mutation is a set of nodes and edges written as one atomic unit
type Mutation struct {
	Nodes []Node
	Edges []Edge
}

// Match selects nodes of one label by exact property equality. The "id" key
// matches the node identifier.
type Match struct {
	Label Label
	Props map[string]any
}

// ByID matches a single node by identifier
func ByID(label Label, id uuid.UUID) Match {
	return Match{Label: label, Props: map[string]any{PropID: id}}
}

// ByProp matches nodes by one property
func ByProp(label Label, key string, value any) Match {
	return Match{Label: label, Props: map[string]any{key: value}}
}

// Requirement restricts traversal results to nodes that have an outgoing
// Edge to every one of TargetIDs (superset match)
type Requirement struct {
	Edge      EdgeType
	TargetIDs []uuid.UUID
}

// Traversal walks one edge type from every node matching Start
type Traversal struct {
	Start     Match
	Edge      EdgeType
	Direction Direction
	// EdgeProps filters on the traversed edge; a nil value matches a missing property
	EdgeProps  map[string]any
	RequireAll *Requirement
}

// Store is the contract the repositories need from a graph store
type Store interface {
	// EnsureSchema creates constraints, tables and indexes if absent
	EnsureSchema(ctx context.Context) error
	// Apply writes all nodes and edges of m or nothing
	Apply(ctx context.Context, m Mutation) error
	// FindNodes returns nodes matching m, sorted by the label's sort key then id
	FindNodes(ctx context.Context, m Match) ([]Node, error)
	// Traverse returns one result node per matching edge instance
	Traverse(ctx context.Context, t Traversal) ([]Node, error)
	// DetachDelete removes matching nodes, nodes reachable through one outgoing
	// cascade edge, and every incident edge. Reports whether anything matched.
	DetachDelete(ctx context.Context, m Match, cascade ...EdgeType) (bool, error)
	// Purge removes every node and edge
	Purge(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// NodeSchema declares a node label
type NodeSchema struct {
	Label   Label
	Unique  []string
	SortKey string
}

// EdgeSchema declares an edge type and its endpoint labels
type EdgeSchema struct {
	Type  EdgeType
	From  Label
	To    Label
	Props []string
}

// Schema describes every label and edge type a store accepts
type Schema struct {
	Nodes []NodeSchema
	Edges []EdgeSchema
}

// FractalSchema is the knowledge graph layout: two node kinds, four edge kinds
var FractalSchema = Schema{
	Nodes: []NodeSchema{
		{Label: LabelFractal, Unique: []string{PropName}, SortKey: PropName},
		{Label: LabelKnowledge, SortKey: PropContent},
	},
	Edges: []EdgeSchema{
		{Type: EdgeHasChild, From: LabelFractal, To: LabelFractal, Props: []string{PropContextID}},
		{Type: EdgeHasContext, From: LabelFractal, To: LabelFractal},
		{Type: EdgeHasKnowledge, From: LabelFractal, To: LabelKnowledge},
		{Type: EdgeInContext, From: LabelKnowledge, To: LabelFractal},
	},
}

// Node returns the schema of a label
func (s Schema) Node(label Label) (NodeSchema, error) {
	for _, n := range s.Nodes {
		if n.Label == label {
			return n, nil
		}
	}
	return NodeSchema{}, fmt.Errorf("%w: node label %q", ErrUnknownLabel, label)
}

// Edge returns the schema of an edge type
func (s Schema) Edge(edgeType EdgeType) (EdgeSchema, error) {
	for _, e := range s.Edges {
		if e.Type == edgeType {
			return e, nil
		}
	}
	return EdgeSchema{}, fmt.Errorf("%w: edge type %q", ErrUnknownLabel, edgeType)
}

// target returns the label a traversal over edgeType in dir lands on
func (s Schema) target(edgeType EdgeType, dir Direction) (EdgeSchema, Label, Label, error) {
	es, err := s.Edge(edgeType)
	if err != nil {
		return EdgeSchema{}, "", "", err
	}
	switch dir {
	case Outgoing:
		return es, es.From, es.To, nil
	case Incoming:
		return es, es.To, es.From, nil
	default:
		return EdgeSchema{}, "", "", fmt.Errorf("%w: direction %d", ErrInvalidPattern, dir)
	}
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// validateMatch checks the label and property keys, which adapters interpolate into queries
func (s Schema) validateMatch(m Match) error {
	if _, err := s.Node(m.Label); err != nil {
		return err
	}
	return validateKeys(m.Props)
}

func validateKeys(props map[string]any) error {
	for key := range props {
		if !identifier.MatchString(key) {
			return fmt.Errorf("%w: property key %q", ErrInvalidPattern, key)
		}
	}
	return nil
}

func (s Schema) validateTraversal(t Traversal) (EdgeSchema, Label, error) {
	es, startLabel, targetLabel, err := s.target(t.Edge, t.Direction)
	if err != nil {
		return EdgeSchema{}, "", err
	}
	if t.Start.Label != startLabel {
		return EdgeSchema{}, "", fmt.Errorf("%w: %s cannot start a %s traversal", ErrInvalidPattern, t.Start.Label, t.Edge)
	}
	if err := s.validateMatch(t.Start); err != nil {
		return EdgeSchema{}, "", err
	}
	if err := validateKeys(t.EdgeProps); err != nil {
		return EdgeSchema{}, "", err
	}
	if t.RequireAll != nil {
		req, err := s.Edge(t.RequireAll.Edge)
		if err != nil {
			return EdgeSchema{}, "", err
		}
		if req.From != targetLabel {
			return EdgeSchema{}, "", fmt.Errorf("%w: %s does not start at %s", ErrInvalidPattern, req.Type, targetLabel)
		}
	}
	return es, targetLabel, nil
}

func (s Schema) validateMutation(m Mutation) error {
	for _, n := range m.Nodes {
		if _, err := s.Node(n.Label); err != nil {
			return err
		}
		if err := validateKeys(n.Props); err != nil {
			return err
		}
		if _, ok := n.Props[PropID]; ok {
			return fmt.Errorf("%w: id is not a property", ErrInvalidPattern)
		}
	}
	for _, e := range m.Edges {
		es, err := s.Edge(e.Type)
		if err != nil {
			return err
		}
		for key := range e.Props {
			if !contains(es.Props, key) {
				return fmt.Errorf("%w: %s has no property %q", ErrInvalidPattern, e.Type, key)
			}
		}
	}
	return nil
}

// normalize converts property values to their stored representation
func normalize(v any) any {
	switch val := v.(type) {
	case uuid.UUID:
		return val.String()
	case *uuid.UUID:
		if val == nil {
			return nil
		}
		return val.String()
	default:
		return v
	}
}

// normalizeProps returns a copy of props with stored representations
func normalizeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = normalize(v)
	}
	return out
}

// edgeProps returns the schema-declared properties of an edge, nil for missing ones
func edgeProps(es EdgeSchema, props map[string]any) map[string]any {
	out := make(map[string]any, len(es.Props))
	for _, key := range es.Props {
		out[key] = normalize(props[key])
	}
	return out
}

// stamps returns the creation and update times to persist, defaulting to now
func stamps(n Node, now time.Time) (time.Time, time.Time) {
	created := n.CreatedAt
	if created.IsZero() {
		created = now
	}
	updated := n.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	return created.UTC(), updated.UTC()
}

// UniqueIDs drops repeated identifiers, keeping first-seen order
func UniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// sortNodes orders nodes by the sort key of their label, then by id
func sortNodes(s Schema, nodes []Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		ki, kj := sortValue(s, nodes[i]), sortValue(s, nodes[j])
		if ki != kj {
			return ki < kj
		}
		return nodes[i].ID.String() < nodes[j].ID.String()
	})
}

func sortValue(s Schema, n Node) string {
	ns, err := s.Node(n.Label)
	if err != nil || ns.SortKey == "" {
		return ""
	}
	return n.String(ns.SortKey)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
