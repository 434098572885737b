package graph

import (
	"context"

	"fractal-graph/backend/internal/graphstore"
	"fractal-graph/backend/pkg/logger"
)

// Repository bundles the Fractal and Knowledge repositories over one store
type Repository struct {
	store     graphstore.Store
	Fractals  *FractalRepository
	Knowledge *KnowledgeRepository
}

// NewRepository creates the repositories sharing store
func NewRepository(store graphstore.Store) *Repository {
	return &Repository{
		store:     store,
		Fractals:  NewFractalRepository(store),
		Knowledge: NewKnowledgeRepository(store),
	}
}

// Store returns the underlying graph store
func (r *Repository) Store() graphstore.Store {
	return r.store
}

// Ping checks that the store is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return wrapStoreError("ping", r.store.Ping(ctx))
}

// Close closes the underlying store
func (r *Repository) Close(ctx context.Context) error {
	logger.Named("graph").Debug("Closing graph store")
	return r.store.Close(ctx)
}
