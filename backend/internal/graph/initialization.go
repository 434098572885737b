package graph

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fractal-graph/backend/internal/constants"
	"fractal-graph/backend/internal/graphstore"
	apperrors "fractal-graph/backend/pkg/errors"
	"fractal-graph/backend/pkg/logger"
)

// ============================================================================
// Initialization
// ============================================================================

// Initialize ensures the store schema and the root Fractal exist. Safe to run
// against an already initialized store.
func Initialize(ctx context.Context, store graphstore.Store, fractals *FractalRepository) error {
	log := logger.Named("init")

	if err := store.EnsureSchema(ctx); err != nil {
		return apperrors.NewStoreFailure("ensure schema", err)
	}

	rootID := constants.RootFractalID
	_, err := fractals.Create(ctx, CreateFractalInput{ID: &rootID, Name: constants.RootFractalName})
	switch {
	case err == nil:
		log.Info("Created root fractal", zap.String("id", rootID.String()))
	case apperrors.IsAlreadyExists(err):
		if _, rootErr := fractals.Root(ctx); apperrors.IsNotFound(rootErr) {
			log.Warn("A fractal named Root exists but the root identifier is unused",
				zap.String("name", constants.RootFractalName))
		}
		log.Debug("Root fractal already present")
	default:
		return err
	}
	return nil
}

// exampleFractal is one node of the example graph
type exampleFractal struct {
	name    string
	parent  string
	context string
}

// exampleGraph is the programming-language sample: String sits under both
// Python and Rust, and each language scopes its own String children.
var exampleGraph = []exampleFractal{
	{name: "Programming", parent: constants.RootFractalName},
	{name: "Python", parent: "Programming", context: constants.RootFractalName},
	{name: "C", parent: "Programming", context: constants.RootFractalName},
	{name: "Rust", parent: "Programming", context: constants.RootFractalName},
	{name: "String", parent: "Programming", context: constants.RootFractalName},
	{name: ".count()", parent: "String", context: "Python"},
	{name: "String literal", parent: "String", context: "Programming"},
	{name: "&str", parent: "String", context: "Rust"},
}

var exampleLinks = []exampleFractal{
	{name: "String", parent: "Python", context: "Programming"},
	{name: "String", parent: "Rust", context: "Programming"},
}

// SeedExample creates the example graph under the root. Existing names are
// reused and edges are merged, so seeding twice changes nothing.
func SeedExample(ctx context.Context, fractals *FractalRepository) error {
	log := logger.Named("seed")

	ids := map[string]uuid.UUID{}
	resolve := func(name string) (uuid.UUID, error) {
		if id, ok := ids[name]; ok {
			return id, nil
		}
		f, err := fractals.GetByName(ctx, name)
		if err != nil {
			return uuid.Nil, err
		}
		ids[name] = f.ID
		return f.ID, nil
	}

	for _, ex := range exampleGraph {
		parentID, err := resolve(ex.parent)
		if err != nil {
			return err
		}
		var contextID *uuid.UUID
		if ex.context != "" {
			id, err := resolve(ex.context)
			if err != nil {
				return err
			}
			contextID = &id
		}

		created, err := fractals.Create(ctx, CreateFractalInput{
			Name:          ex.name,
			ParentIDs:     []uuid.UUID{parentID},
			EdgeContextID: contextID,
		})
		switch {
		case err == nil:
			ids[ex.name] = created.ID
		case apperrors.IsAlreadyExists(err):
			id, err := resolve(ex.name)
			if err != nil {
				return err
			}
			if err := fractals.AddChildEdge(ctx, parentID, id, contextID); err != nil {
				return err
			}
		default:
			return err
		}
	}

	for _, link := range exampleLinks {
		parentID, err := resolve(link.parent)
		if err != nil {
			return err
		}
		childID, err := resolve(link.name)
		if err != nil {
			return err
		}
		contextID, err := resolve(link.context)
		if err != nil {
			return err
		}
		if err := fractals.AddChildEdge(ctx, parentID, childID, &contextID); err != nil {
			return err
		}
	}

	log.Info("Seeded example graph", zap.Int("fractals", len(exampleGraph)))
	return nil
}
