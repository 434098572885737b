package graph

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"fractal-graph/backend/internal/graphstore"
	apperrors "fractal-graph/backend/pkg/errors"
)

// ============================================================================
// Helper Functions
// ============================================================================

// wrapStoreError passes taxonomy errors through and wraps everything else
func wrapStoreError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var typed interface{ ErrorType() apperrors.ErrorType }
	if errors.As(err, &typed) {
		return err
	}
	return apperrors.NewStoreFailure(operation, err)
}

// firstMissingFractal returns the first id with no Fractal behind it, or uuid.Nil
// with ok false when every id exists
func firstMissingFractal(ctx context.Context, store graphstore.Store, ids ...uuid.UUID) (uuid.UUID, bool, error) {
	for _, id := range ids {
		nodes, err := store.FindNodes(ctx, graphstore.ByID(graphstore.LabelFractal, id))
		if err != nil {
			return uuid.Nil, false, err
		}
		if len(nodes) == 0 {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

// endpointError turns an ErrEndpointNotFound from Apply into NotFound naming
// the missing Fractal
func endpointError(ctx context.Context, store graphstore.Store, operation string, cause error, ids ...uuid.UUID) error {
	missing, ok, err := firstMissingFractal(ctx, store, ids...)
	if err != nil {
		return wrapStoreError(operation, err)
	}
	key := "edge endpoint"
	if ok {
		key = missing.String()
	}
	return apperrors.NewNotFoundCause("fractal", key, cause)
}

func isEndpointMissing(err error) bool {
	return errors.Is(err, graphstore.ErrEndpointNotFound)
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, graphstore.ErrUniqueViolation)
}
