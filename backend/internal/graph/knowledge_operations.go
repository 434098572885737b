package graph

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fractal-graph/backend/internal/graphstore"
	apperrors "fractal-graph/backend/pkg/errors"
	"fractal-graph/backend/pkg/logger"
)

// ============================================================================
// Knowledge Operations
// ============================================================================

// KnowledgeRepository attaches facts to Fractals and retrieves them by context
type KnowledgeRepository struct {
	store  graphstore.Store
	logger *zap.Logger
}

// NewKnowledgeRepository creates a Knowledge repository over store
func NewKnowledgeRepository(store graphstore.Store) *KnowledgeRepository {
	return &KnowledgeRepository{
		store:  store,
		logger: logger.Named("knowledge"),
	}
}

// Attach creates a Knowledge node owned by fractalID and scoped to every
// context in contextIDs. Either everything is written or nothing is.
func (r *KnowledgeRepository) Attach(ctx context.Context, fractalID uuid.UUID, content string, contextIDs []uuid.UUID) (*Knowledge, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperrors.NewInvalidArgument("content", "must not be empty")
	}

	id := uuid.New()
	now := time.Now().UTC()
	contexts := graphstore.UniqueIDs(contextIDs)

	mutation := graphstore.Mutation{
		Nodes: []graphstore.Node{{
			Label:     graphstore.LabelKnowledge,
			ID:        id,
			Props:     map[string]any{graphstore.PropContent: content},
			CreatedAt: now,
			UpdatedAt: now,
		}},
		Edges: []graphstore.Edge{{
			Type: graphstore.EdgeHasKnowledge,
			From: fractalID,
			To:   id,
		}},
	}
	for _, contextID := range contexts {
		mutation.Edges = append(mutation.Edges, graphstore.Edge{
			Type: graphstore.EdgeInContext,
			From: id,
			To:   contextID,
		})
	}

	if err := r.store.Apply(ctx, mutation); err != nil {
		if isEndpointMissing(err) {
			return nil, endpointError(ctx, r.store, "attach knowledge", err, append([]uuid.UUID{fractalID}, contexts...)...)
		}
		return nil, wrapStoreError("attach knowledge", err)
	}

	r.logger.Info("Attached knowledge",
		zap.String("id", id.String()),
		zap.String("fractal_id", fractalID.String()),
		zap.Int("contexts", len(contexts)),
	)

	return &Knowledge{ID: id, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// QueryByContext returns the Knowledge owned by the named Fractal that is
// tagged with at least every id in contextIDs. Facts may carry extra tags.
// An empty contextIDs returns all owned facts; no match is an empty slice.
func (r *KnowledgeRepository) QueryByContext(ctx context.Context, fractalName string, contextIDs []uuid.UUID) ([]Knowledge, error) {
	nodes, err := r.store.Traverse(ctx, graphstore.Traversal{
		Start: graphstore.ByProp(graphstore.LabelFractal, graphstore.PropName, fractalName),
		Edge:  graphstore.EdgeHasKnowledge,
		RequireAll: &graphstore.Requirement{
			Edge:      graphstore.EdgeInContext,
			TargetIDs: graphstore.UniqueIDs(contextIDs),
		},
	})
	if err != nil {
		return nil, wrapStoreError("query knowledge", err)
	}
	return knowledgeFromNodes(nodes), nil
}
