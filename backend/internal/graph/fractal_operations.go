package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fractal-graph/backend/internal/constants"
	"fractal-graph/backend/internal/graphstore"
	apperrors "fractal-graph/backend/pkg/errors"
	"fractal-graph/backend/pkg/logger"
)

// ============================================================================
// Fractal Operations
// ============================================================================

// FractalRepository creates, reads, links and deletes Fractal nodes
type FractalRepository struct {
	store  graphstore.Store
	logger *zap.Logger
}

// NewFractalRepository creates a Fractal repository over store
func NewFractalRepository(store graphstore.Store) *FractalRepository {
	return &FractalRepository{
		store:  store,
		logger: logger.Named("fractals"),
	}
}

// Create inserts a Fractal together with its parent and context edges as one
// atomic write. Name uniqueness is enforced by the store; the lookup before
// the write only produces a friendlier error on the common path.
func (r *FractalRepository) Create(ctx context.Context, in CreateFractalInput) (*Fractal, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.NewInvalidArgument("name", "must not be empty")
	}
	if in.EdgeContextID != nil && len(in.ParentIDs) == 0 {
		return nil, apperrors.NewInvalidArgument("context_id", "requires a parent")
	}

	existing, err := r.store.FindNodes(ctx, graphstore.ByProp(graphstore.LabelFractal, graphstore.PropName, in.Name))
	if err != nil {
		return nil, wrapStoreError("create fractal", err)
	}
	if len(existing) > 0 {
		return nil, apperrors.NewAlreadyExists("fractal", in.Name, nil)
	}

	id := uuid.New()
	if in.ID != nil {
		id = *in.ID
	}
	now := time.Now().UTC()

	mutation := graphstore.Mutation{
		Nodes: []graphstore.Node{{
			Label:     graphstore.LabelFractal,
			ID:        id,
			Props:     map[string]any{graphstore.PropName: in.Name},
			CreatedAt: now,
			UpdatedAt: now,
		}},
	}

	parents := graphstore.UniqueIDs(in.ParentIDs)
	for _, parentID := range parents {
		mutation.Edges = append(mutation.Edges, childEdge(parentID, id, in.EdgeContextID))
	}
	contexts := graphstore.UniqueIDs(in.ContextIDs)
	if in.EdgeContextID != nil {
		contexts = graphstore.UniqueIDs(append(contexts, *in.EdgeContextID))
	}
	for _, contextID := range contexts {
		mutation.Edges = append(mutation.Edges, contextEdge(id, contextID))
	}

	if err := r.store.Apply(ctx, mutation); err != nil {
		switch {
		case isUniqueViolation(err):
			return nil, apperrors.NewAlreadyExists("fractal", in.Name, err)
		case isEndpointMissing(err):
			return nil, endpointError(ctx, r.store, "create fractal", err, append(parents, contexts...)...)
		default:
			return nil, wrapStoreError("create fractal", err)
		}
	}

	r.logger.Info("Created fractal",
		zap.String("id", id.String()),
		zap.String("name", in.Name),
		zap.Int("parents", len(parents)),
		zap.Int("contexts", len(contexts)),
	)

	return &Fractal{ID: id, Name: in.Name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetByName returns the Fractal with exactly this name
func (r *FractalRepository) GetByName(ctx context.Context, name string) (*Fractal, error) {
	return r.getOne(ctx, graphstore.ByProp(graphstore.LabelFractal, graphstore.PropName, name), name)
}

// GetByID returns the Fractal with this identifier
func (r *FractalRepository) GetByID(ctx context.Context, id uuid.UUID) (*Fractal, error) {
	return r.getOne(ctx, graphstore.ByID(graphstore.LabelFractal, id), id.String())
}

// Root returns the fixed-identity root Fractal
func (r *FractalRepository) Root(ctx context.Context) (*Fractal, error) {
	return r.GetByID(ctx, constants.RootFractalID)
}

func (r *FractalRepository) getOne(ctx context.Context, match graphstore.Match, key string) (*Fractal, error) {
	nodes, err := r.store.FindNodes(ctx, match)
	if err != nil {
		return nil, wrapStoreError("get fractal", err)
	}
	if len(nodes) == 0 {
		return nil, apperrors.NewNotFound("fractal", key)
	}
	f := fractalFromNode(nodes[0])
	return &f, nil
}

// Relations returns the parents, children or contexts of a Fractal, ignoring
// any context tag on hierarchy edges. An unknown id yields an empty list.
func (r *FractalRepository) Relations(ctx context.Context, id uuid.UUID, kind RelationKind) ([]Fractal, error) {
	t := graphstore.Traversal{Start: graphstore.ByID(graphstore.LabelFractal, id)}

	switch kind {
	case RelationParents:
		t.Edge, t.Direction = graphstore.EdgeHasChild, graphstore.Incoming
	case RelationChildren:
		t.Edge, t.Direction = graphstore.EdgeHasChild, graphstore.Outgoing
	case RelationContexts:
		t.Edge, t.Direction = graphstore.EdgeHasContext, graphstore.Outgoing
	default:
		_, err := ParseRelationKind(string(kind))
		return nil, err
	}

	nodes, err := r.store.Traverse(ctx, t)
	if err != nil {
		return nil, wrapStoreError("get relations", err)
	}
	return fractalsFromNodes(nodes), nil
}

// Children returns the children of a Fractal. A nil contextID returns every
// child; otherwise only children whose edge carries that context.
func (r *FractalRepository) Children(ctx context.Context, id uuid.UUID, contextID *uuid.UUID) ([]Fractal, error) {
	if contextID == nil {
		return r.Relations(ctx, id, RelationChildren)
	}

	nodes, err := r.store.Traverse(ctx, graphstore.Traversal{
		Start:     graphstore.ByID(graphstore.LabelFractal, id),
		Edge:      graphstore.EdgeHasChild,
		EdgeProps: map[string]any{graphstore.PropContextID: *contextID},
	})
	if err != nil {
		return nil, wrapStoreError("get children", err)
	}
	return fractalsFromNodes(nodes), nil
}

// Delete removes a Fractal, its incident edges and the Knowledge it owns.
// Returns false when no such Fractal exists.
func (r *FractalRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := r.store.DetachDelete(ctx,
		graphstore.ByID(graphstore.LabelFractal, id),
		graphstore.EdgeHasKnowledge,
	)
	if err != nil {
		return false, wrapStoreError("delete fractal", err)
	}

	if deleted {
		r.logger.Info("Deleted fractal", zap.String("id", id.String()))
	}
	return deleted, nil
}

// AddChildEdge links parent to child, optionally within a context. Repeating
// the same (parent, child, context) triple is a no-op.
func (r *FractalRepository) AddChildEdge(ctx context.Context, parentID, childID uuid.UUID, contextID *uuid.UUID) error {
	mutation := graphstore.Mutation{Edges: []graphstore.Edge{childEdge(parentID, childID, contextID)}}
	endpoints := []uuid.UUID{parentID, childID}
	if contextID != nil {
		mutation.Edges = append(mutation.Edges, contextEdge(childID, *contextID))
		endpoints = append(endpoints, *contextID)
	}

	if err := r.store.Apply(ctx, mutation); err != nil {
		if isEndpointMissing(err) {
			return endpointError(ctx, r.store, "add child edge", err, endpoints...)
		}
		return wrapStoreError("add child edge", err)
	}

	fields := []zap.Field{
		zap.String("parent_id", parentID.String()),
		zap.String("child_id", childID.String()),
	}
	if contextID != nil {
		fields = append(fields, zap.String("context_id", contextID.String()))
	}
	r.logger.Info("Added child edge", fields...)
	return nil
}

// AddContextEdge tags a Fractal with a context. Idempotent.
func (r *FractalRepository) AddContextEdge(ctx context.Context, fractalID, contextID uuid.UUID) error {
	mutation := graphstore.Mutation{Edges: []graphstore.Edge{contextEdge(fractalID, contextID)}}

	if err := r.store.Apply(ctx, mutation); err != nil {
		if isEndpointMissing(err) {
			return endpointError(ctx, r.store, "add context edge", err, fractalID, contextID)
		}
		return wrapStoreError("add context edge", err)
	}

	r.logger.Info("Added context edge",
		zap.String("fractal_id", fractalID.String()),
		zap.String("context_id", contextID.String()),
	)
	return nil
}

// childEdge builds a HAS_CHILD edge. The context on the edge is the
// authoritative scope; the HAS_CONTEXT tag on the child is derived from it.
func childEdge(parentID, childID uuid.UUID, contextID *uuid.UUID) graphstore.Edge {
	return graphstore.Edge{
		Type:  graphstore.EdgeHasChild,
		From:  parentID,
		To:    childID,
		Props: map[string]any{graphstore.PropContextID: contextID},
		Merge: true,
	}
}

func contextEdge(fractalID, contextID uuid.UUID) graphstore.Edge {
	return graphstore.Edge{
		Type:  graphstore.EdgeHasContext,
		From:  fractalID,
		To:    contextID,
		Merge: true,
	}
}
