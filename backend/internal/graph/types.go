package graph

import (
	"time"

	"github.com/google/uuid"

	"fractal-graph/backend/internal/graphstore"
	apperrors "fractal-graph/backend/pkg/errors"
)

// ============================================================================
// Graph Types
// ============================================================================

// Fractal is a named concept node
type Fractal struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Knowledge is an atomic fact owned by one Fractal
type Knowledge struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// RelationKind selects which neighbours of a Fractal to return
type RelationKind string

const (
	RelationParents  RelationKind = "parents"
	RelationChildren RelationKind = "children"
	RelationContexts RelationKind = "contexts"
)

// ParseRelationKind validates a relation name
func ParseRelationKind(s string) (RelationKind, error) {
	switch kind := RelationKind(s); kind {
	case RelationParents, RelationChildren, RelationContexts:
		return kind, nil
	default:
		return "", apperrors.NewInvalidArgument("relation", "must be one of parents, children, contexts; got '"+s+"'")
	}
}

// CreateFractalInput describes a new Fractal and its initial edges
type CreateFractalInput struct {
	// ID fixes the identifier; only bootstrap code sets it
	ID         *uuid.UUID
	Name       string
	ParentIDs  []uuid.UUID
	ContextIDs []uuid.UUID
	// EdgeContextID scopes every parent edge to a context
	EdgeContextID *uuid.UUID
}

func fractalFromNode(n graphstore.Node) Fractal {
	return Fractal{
		ID:        n.ID,
		Name:      n.String(graphstore.PropName),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func knowledgeFromNode(n graphstore.Node) Knowledge {
	return Knowledge{
		ID:        n.ID,
		Content:   n.String(graphstore.PropContent),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func fractalsFromNodes(nodes []graphstore.Node) []Fractal {
	out := make([]Fractal, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, fractalFromNode(n))
	}
	return out
}

func knowledgeFromNodes(nodes []graphstore.Node) []Knowledge {
	out := make([]Knowledge, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, knowledgeFromNode(n))
	}
	return out
}
