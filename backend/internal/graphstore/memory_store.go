package graphstore

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps the graph in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	schema Schema
	nodes  map[uuid.UUID]Node
	edges  []Edge
	closed bool
}

// NewMemory creates an empty in-memory store
func NewMemory() *MemoryStore {
	return &MemoryStore{
		schema: FractalSchema,
		nodes:  make(map[uuid.UUID]Node),
	}
}

// EnsureSchema is a no-op, constraints are checked on every Apply
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return s.check(ctx)
}

// Apply stages the mutation against a view of the current graph and commits
// only when every node and edge is valid
func (s *MemoryStore) Apply(ctx context.Context, m Mutation) error {
	if err := s.schema.validateMutation(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	staged := make(map[uuid.UUID]Node, len(m.Nodes))
	lookup := func(id uuid.UUID) (Node, bool) {
		if n, ok := staged[id]; ok {
			return n, true
		}
		n, ok := s.nodes[id]
		return n, ok
	}

	for _, n := range m.Nodes {
		if _, exists := lookup(n.ID); exists {
			return fmt.Errorf("%w: %s id %s", ErrUniqueViolation, n.Label, n.ID)
		}
		ns, _ := s.schema.Node(n.Label)
		for _, key := range ns.Unique {
			value, ok := n.Props[key]
			if !ok {
				continue
			}
			if s.uniqueTaken(staged, n.Label, key, normalize(value)) {
				return fmt.Errorf("%w: %s %s %v", ErrUniqueViolation, n.Label, key, value)
			}
		}
		n.Props = normalizeProps(n.Props)
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		if n.UpdatedAt.IsZero() {
			n.UpdatedAt = n.CreatedAt
		}
		staged[n.ID] = n
	}

	var added []Edge
	for _, e := range m.Edges {
		es, _ := s.schema.Edge(e.Type)
		from, ok := lookup(e.From)
		if !ok || from.Label != es.From {
			return fmt.Errorf("%w: %s from %s", ErrEndpointNotFound, e.Type, e.From)
		}
		to, ok := lookup(e.To)
		if !ok || to.Label != es.To {
			return fmt.Errorf("%w: %s to %s", ErrEndpointNotFound, e.Type, e.To)
		}

		stored := Edge{Type: e.Type, From: e.From, To: e.To, Props: edgeProps(es, e.Props)}
		if e.Merge && (containsEdge(s.edges, stored) || containsEdge(added, stored)) {
			continue
		}
		added = append(added, stored)
	}

	for id, n := range staged {
		s.nodes[id] = n
	}
	s.edges = append(s.edges, added...)
	return nil
}

func (s *MemoryStore) uniqueTaken(staged map[uuid.UUID]Node, label Label, key string, value any) bool {
	for _, set := range []map[uuid.UUID]Node{s.nodes, staged} {
		for _, n := range set {
			if n.Label == label && reflect.DeepEqual(n.Props[key], value) {
				return true
			}
		}
	}
	return false
}

func containsEdge(edges []Edge, e Edge) bool {
	for _, existing := range edges {
		if existing.Type == e.Type && existing.From == e.From && existing.To == e.To &&
			reflect.DeepEqual(existing.Props, e.Props) {
			return true
		}
	}
	return false
}

// FindNodes returns copies of the nodes matching m
func (s *MemoryStore) FindNodes(ctx context.Context, m Match) ([]Node, error) {
	if err := s.schema.validateMatch(m); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkLocked(ctx); err != nil {
		return nil, err
	}

	out := s.matchLocked(m)
	sortNodes(s.schema, out)
	return out, nil
}

func (s *MemoryStore) matchLocked(m Match) []Node {
	want := normalizeProps(m.Props)
	var out []Node
	for _, n := range s.nodes {
		if nodeMatches(n, m.Label, want) {
			out = append(out, copyNode(n))
		}
	}
	return out
}

func nodeMatches(n Node, label Label, want map[string]any) bool {
	if n.Label != label {
		return false
	}
	for key, value := range want {
		if key == PropID {
			if n.ID.String() != value {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(n.Props[key], value) {
			return false
		}
	}
	return true
}

// Traverse walks t.Edge from every start node, one result per edge instance
func (s *MemoryStore) Traverse(ctx context.Context, t Traversal) ([]Node, error) {
	if _, _, err := s.schema.validateTraversal(t); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkLocked(ctx); err != nil {
		return nil, err
	}

	starts := make(map[uuid.UUID]struct{})
	for _, n := range s.matchLocked(t.Start) {
		starts[n.ID] = struct{}{}
	}
	edgeFilter := normalizeProps(t.EdgeProps)

	var out []Node
	for _, e := range s.edges {
		if e.Type != t.Edge {
			continue
		}
		start, result := e.From, e.To
		if t.Direction == Incoming {
			start, result = e.To, e.From
		}
		if _, ok := starts[start]; !ok {
			continue
		}
		if !edgeMatches(e, edgeFilter) {
			continue
		}
		if t.RequireAll != nil && !s.hasAllLocked(result, t.RequireAll) {
			continue
		}
		out = append(out, copyNode(s.nodes[result]))
	}
	sortNodes(s.schema, out)
	return out, nil
}

func edgeMatches(e Edge, want map[string]any) bool {
	for key, value := range want {
		if !reflect.DeepEqual(e.Props[key], value) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) hasAllLocked(id uuid.UUID, req *Requirement) bool {
	for _, target := range UniqueIDs(req.TargetIDs) {
		found := false
		for _, e := range s.edges {
			if e.Type == req.Edge && e.From == id && e.To == target {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// DetachDelete removes matched nodes, their cascade targets and incident edges
func (s *MemoryStore) DetachDelete(ctx context.Context, m Match, cascade ...EdgeType) (bool, error) {
	if err := s.schema.validateMatch(m); err != nil {
		return false, err
	}
	for _, et := range cascade {
		if _, err := s.schema.Edge(et); err != nil {
			return false, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx); err != nil {
		return false, err
	}

	matched := s.matchLocked(m)
	if len(matched) == 0 {
		return false, nil
	}

	doomed := make(map[uuid.UUID]struct{})
	for _, n := range matched {
		doomed[n.ID] = struct{}{}
	}
	for _, e := range s.edges {
		if _, ok := doomed[e.From]; !ok {
			continue
		}
		for _, et := range cascade {
			if e.Type == et {
				doomed[e.To] = struct{}{}
			}
		}
	}

	for id := range doomed {
		delete(s.nodes, id)
	}
	kept := s.edges[:0]
	for _, e := range s.edges {
		_, fromGone := doomed[e.From]
		_, toGone := doomed[e.To]
		if !fromGone && !toGone {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	return true, nil
}

// Purge drops every node and edge
func (s *MemoryStore) Purge(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(ctx); err != nil {
		return err
	}
	s.nodes = make(map[uuid.UUID]Node)
	s.edges = nil
	return nil
}

// Ping reports whether the store is open
func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Close marks the store closed
func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) check(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkLocked(ctx)
}

func (s *MemoryStore) checkLocked(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func copyNode(n Node) Node {
	props := make(map[string]any, len(n.Props))
	for k, v := range n.Props {
		props[k] = v
	}
	n.Props = props
	return n
}
