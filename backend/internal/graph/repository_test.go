package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractal-graph/backend/internal/constants"
	"fractal-graph/backend/internal/graphstore"
	apperrors "fractal-graph/backend/pkg/errors"
)

// forEachBackend runs fn against a fresh in-memory and a fresh SQLite store
func forEachBackend(t *testing.T, fn func(t *testing.T, repo *Repository)) {
	t.Helper()

	backends := map[string]func(t *testing.T) graphstore.Store{
		"memory": func(t *testing.T) graphstore.Store { return graphstore.NewMemory() },
		"sqlite": func(t *testing.T) graphstore.Store {
			store, err := graphstore.NewSQLite(context.Background(), ":memory:")
			require.NoError(t, err)
			return store
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)
			t.Cleanup(func() { _ = store.Close(ctx) })

			repo := NewRepository(store)
			require.NoError(t, Initialize(ctx, store, repo.Fractals))
			fn(t, repo)
		})
	}
}

func mustCreate(t *testing.T, repo *Repository, in CreateFractalInput) *Fractal {
	t.Helper()
	f, err := repo.Fractals.Create(context.Background(), in)
	require.NoError(t, err)
	return f
}

func fractalNames(fractals []Fractal) []string {
	out := make([]string, len(fractals))
	for i, f := range fractals {
		out[i] = f.Name
	}
	return out
}

func contents(facts []Knowledge) []string {
	out := make([]string, len(facts))
	for i, k := range facts {
		out[i] = k.Content
	}
	return out
}

func TestCreate_DuplicateName(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		first := mustCreate(t, repo, CreateFractalInput{Name: "Rust"})

		_, err := repo.Fractals.Create(ctx, CreateFractalInput{Name: "Rust"})
		require.Error(t, err)
		assert.True(t, apperrors.IsAlreadyExists(err))

		got, err := repo.Fractals.GetByName(ctx, "Rust")
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		all, err := repo.Store().FindNodes(ctx, graphstore.ByProp(graphstore.LabelFractal, graphstore.PropName, "Rust"))
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestCreate_StoreLevelUniqueness(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		taken := constants.RootFractalID

		// Same id as the root with a fresh name gets past the name lookup
		_, err := repo.Fractals.Create(ctx, CreateFractalInput{ID: &taken, Name: "Imposter"})
		require.Error(t, err)
		assert.True(t, apperrors.IsAlreadyExists(err))

		_, err = repo.Fractals.GetByName(ctx, "Imposter")
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestCreate_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()

		_, err := repo.Fractals.Create(ctx, CreateFractalInput{Name: "  "})
		assert.True(t, apperrors.IsInvalidArgument(err))

		_, err = repo.Fractals.Create(ctx, CreateFractalInput{Name: "Orphan", ParentIDs: []uuid.UUID{uuid.New()}})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))

		_, err = repo.Fractals.GetByName(ctx, "Orphan")
		assert.True(t, apperrors.IsNotFound(err), "failed create leaves nothing behind")
	})
}

func TestCreate_EdgeContextRequiresParent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		scope := mustCreate(t, repo, CreateFractalInput{Name: "Scope"})

		_, err := repo.Fractals.Create(ctx, CreateFractalInput{Name: "Lonely", EdgeContextID: &scope.ID})
		require.Error(t, err)
		assert.True(t, apperrors.IsInvalidArgument(err))

		_, err = repo.Fractals.GetByName(ctx, "Lonely")
		assert.True(t, apperrors.IsNotFound(err), "rejected create leaves nothing behind")

		parent := mustCreate(t, repo, CreateFractalInput{Name: "Parent"})
		scoped := mustCreate(t, repo, CreateFractalInput{
			Name:          "Scoped",
			ParentIDs:     []uuid.UUID{parent.ID},
			EdgeContextID: &scope.ID,
		})

		contexts, err := repo.Fractals.Relations(ctx, scoped.ID, RelationContexts)
		require.NoError(t, err)
		assert.Equal(t, []string{"Scope"}, fractalNames(contexts))
	})
}

func TestCreate_WithParentsAndContexts(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		root, err := repo.Fractals.Root(ctx)
		require.NoError(t, err)

		lang := mustCreate(t, repo, CreateFractalInput{Name: "Language"})
		tool := mustCreate(t, repo, CreateFractalInput{Name: "Tooling"})
		goLang := mustCreate(t, repo, CreateFractalInput{
			Name:       "Go",
			ParentIDs:  []uuid.UUID{root.ID, lang.ID, lang.ID},
			ContextIDs: []uuid.UUID{tool.ID},
		})

		parents, err := repo.Fractals.Relations(ctx, goLang.ID, RelationParents)
		require.NoError(t, err)
		assert.Equal(t, []string{"Language", "Root"}, fractalNames(parents))

		contexts, err := repo.Fractals.Relations(ctx, goLang.ID, RelationContexts)
		require.NoError(t, err)
		assert.Equal(t, []string{"Tooling"}, fractalNames(contexts))
	})
}

func TestGetByName_CaseSensitive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		mustCreate(t, repo, CreateFractalInput{Name: "Python"})

		_, err := repo.Fractals.GetByName(ctx, "python")
		assert.True(t, apperrors.IsNotFound(err))

		f, err := repo.Fractals.GetByName(ctx, "Python")
		require.NoError(t, err)
		assert.Equal(t, "Python", f.Name)
		assert.False(t, f.CreatedAt.IsZero())
	})
}

func TestAddChildEdge_Relations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		p := mustCreate(t, repo, CreateFractalInput{Name: "P"})
		c := mustCreate(t, repo, CreateFractalInput{Name: "C"})

		require.NoError(t, repo.Fractals.AddChildEdge(ctx, p.ID, c.ID, nil))
		require.NoError(t, repo.Fractals.AddChildEdge(ctx, p.ID, c.ID, nil))

		children, err := repo.Fractals.Relations(ctx, p.ID, RelationChildren)
		require.NoError(t, err)
		assert.Equal(t, []string{"C"}, fractalNames(children), "repeated edge is merged")

		parents, err := repo.Fractals.Relations(ctx, c.ID, RelationParents)
		require.NoError(t, err)
		assert.Equal(t, []string{"P"}, fractalNames(parents))

		err = repo.Fractals.AddChildEdge(ctx, p.ID, uuid.New(), nil)
		assert.True(t, apperrors.IsNotFound(err))

		missing := uuid.New()
		err = repo.Fractals.AddContextEdge(ctx, missing, c.ID)
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.Contains(t, err.Error(), missing.String())
	})
}

func TestChildren_ContextFilter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		p := mustCreate(t, repo, CreateFractalInput{Name: "P"})
		c := mustCreate(t, repo, CreateFractalInput{Name: "C"})
		ctx1 := mustCreate(t, repo, CreateFractalInput{Name: "Ctx1"})
		ctx2 := mustCreate(t, repo, CreateFractalInput{Name: "Ctx2"})

		require.NoError(t, repo.Fractals.AddChildEdge(ctx, p.ID, c.ID, &ctx1.ID))

		in1, err := repo.Fractals.Children(ctx, p.ID, &ctx1.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"C"}, fractalNames(in1))

		in2, err := repo.Fractals.Children(ctx, p.ID, &ctx2.ID)
		require.NoError(t, err)
		assert.Empty(t, in2)

		all, err := repo.Fractals.Children(ctx, p.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"C"}, fractalNames(all))

		// The edge context is mirrored as a context tag on the child
		contexts, err := repo.Fractals.Relations(ctx, c.ID, RelationContexts)
		require.NoError(t, err)
		assert.Equal(t, []string{"Ctx1"}, fractalNames(contexts))
	})
}

func TestRelations_InvalidKind(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		_, err := repo.Fractals.Relations(context.Background(), constants.RootFractalID, RelationKind("siblings"))
		assert.True(t, apperrors.IsInvalidArgument(err))
	})
}

func TestParseRelationKind(t *testing.T) {
	for _, valid := range []string{"parents", "children", "contexts"} {
		kind, err := ParseRelationKind(valid)
		require.NoError(t, err)
		assert.Equal(t, RelationKind(valid), kind)
	}

	_, err := ParseRelationKind("Children")
	assert.True(t, apperrors.IsInvalidArgument(err))
}

func TestDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		p := mustCreate(t, repo, CreateFractalInput{Name: "P"})
		f := mustCreate(t, repo, CreateFractalInput{Name: "F", ParentIDs: []uuid.UUID{p.ID}})
		c := mustCreate(t, repo, CreateFractalInput{Name: "C", ParentIDs: []uuid.UUID{f.ID}, ContextIDs: []uuid.UUID{f.ID}})
		_, err := repo.Knowledge.Attach(ctx, f.ID, "owned fact", []uuid.UUID{p.ID})
		require.NoError(t, err)

		deleted, err := repo.Fractals.Delete(ctx, f.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		children, err := repo.Fractals.Relations(ctx, p.ID, RelationChildren)
		require.NoError(t, err)
		assert.Empty(t, children)

		parents, err := repo.Fractals.Relations(ctx, c.ID, RelationParents)
		require.NoError(t, err)
		assert.Empty(t, parents)

		contexts, err := repo.Fractals.Relations(ctx, c.ID, RelationContexts)
		require.NoError(t, err)
		assert.Empty(t, contexts)

		facts, err := repo.Knowledge.QueryByContext(ctx, "F", nil)
		require.NoError(t, err)
		assert.Empty(t, facts)

		orphans, err := repo.Store().FindNodes(ctx, graphstore.Match{Label: graphstore.LabelKnowledge})
		require.NoError(t, err)
		assert.Empty(t, orphans)

		again, err := repo.Fractals.Delete(ctx, f.ID)
		require.NoError(t, err)
		assert.False(t, again)

		never, err := repo.Fractals.Delete(ctx, uuid.New())
		require.NoError(t, err)
		assert.False(t, never)
	})
}

func TestDelete_ContextOfKnowledge(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		python := mustCreate(t, repo, CreateFractalInput{Name: "Python"})
		str := mustCreate(t, repo, CreateFractalInput{Name: "String"})
		rust := mustCreate(t, repo, CreateFractalInput{Name: "Rust"})

		fact, err := repo.Knowledge.Attach(ctx, python.ID, "slices borrow", []uuid.UUID{str.ID, rust.ID})
		require.NoError(t, err)

		deleted, err := repo.Fractals.Delete(ctx, str.ID)
		require.NoError(t, err)
		require.True(t, deleted)

		all, err := repo.Knowledge.QueryByContext(ctx, "Python", nil)
		require.NoError(t, err)
		require.Len(t, all, 1, "the fact belongs to Python and survives")
		assert.Equal(t, fact.ID, all[0].ID)

		byString, err := repo.Knowledge.QueryByContext(ctx, "Python", []uuid.UUID{str.ID})
		require.NoError(t, err)
		assert.Empty(t, byString)

		byRust, err := repo.Knowledge.QueryByContext(ctx, "Python", []uuid.UUID{rust.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{"slices borrow"}, contents(byRust))
	})
}

func TestQueryByContext_SupersetMatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		f := mustCreate(t, repo, CreateFractalInput{Name: "F"})
		a := mustCreate(t, repo, CreateFractalInput{Name: "A"})
		b := mustCreate(t, repo, CreateFractalInput{Name: "B"})
		c := mustCreate(t, repo, CreateFractalInput{Name: "C"})

		_, err := repo.Knowledge.Attach(ctx, f.ID, "tagged abc", []uuid.UUID{a.ID, b.ID, c.ID})
		require.NoError(t, err)
		_, err = repo.Knowledge.Attach(ctx, f.ID, "tagged a", []uuid.UUID{a.ID})
		require.NoError(t, err)
		_, err = repo.Knowledge.Attach(ctx, f.ID, "untagged", nil)
		require.NoError(t, err)

		all, err := repo.Knowledge.QueryByContext(ctx, "F", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"tagged a", "tagged abc", "untagged"}, contents(all))

		ab, err := repo.Knowledge.QueryByContext(ctx, "F", []uuid.UUID{a.ID, b.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{"tagged abc"}, contents(ab))

		onlyA, err := repo.Knowledge.QueryByContext(ctx, "F", []uuid.UUID{a.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{"tagged a", "tagged abc"}, contents(onlyA))

		unknown, err := repo.Knowledge.QueryByContext(ctx, "Nobody", nil)
		require.NoError(t, err)
		assert.NotNil(t, unknown)
		assert.Empty(t, unknown)
	})
}

func TestAttach_AllOrNothing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		f := mustCreate(t, repo, CreateFractalInput{Name: "F"})
		a := mustCreate(t, repo, CreateFractalInput{Name: "A"})
		missing := uuid.New()

		_, err := repo.Knowledge.Attach(ctx, f.ID, "fact", []uuid.UUID{a.ID, missing})
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
		assert.Contains(t, err.Error(), missing.String())

		facts, err := repo.Knowledge.QueryByContext(ctx, "F", nil)
		require.NoError(t, err)
		assert.Empty(t, facts)

		_, err = repo.Knowledge.Attach(ctx, uuid.New(), "fact", nil)
		assert.True(t, apperrors.IsNotFound(err))

		_, err = repo.Knowledge.Attach(ctx, f.ID, "", nil)
		assert.True(t, apperrors.IsInvalidArgument(err))

		k, err := repo.Knowledge.Attach(ctx, f.ID, "fact", []uuid.UUID{a.ID, a.ID})
		require.NoError(t, err)
		assert.Equal(t, "fact", k.Content)
	})
}

func TestScenario_MultiParentHierarchy(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		root, err := repo.Fractals.Root(ctx)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, root.ID)

		programming := mustCreate(t, repo, CreateFractalInput{Name: "Programming", ParentIDs: []uuid.UUID{root.ID}})
		python := mustCreate(t, repo, CreateFractalInput{
			Name:          "Python",
			ParentIDs:     []uuid.UUID{programming.ID},
			EdgeContextID: &root.ID,
		})
		rust := mustCreate(t, repo, CreateFractalInput{Name: "Rust", ParentIDs: []uuid.UUID{programming.ID}})
		str := mustCreate(t, repo, CreateFractalInput{Name: "String", ParentIDs: []uuid.UUID{python.ID, rust.ID}})

		parents, err := repo.Fractals.Relations(ctx, str.ID, RelationParents)
		require.NoError(t, err)
		assert.Equal(t, []string{"Python", "Rust"}, fractalNames(parents))

		scoped, err := repo.Fractals.Children(ctx, programming.ID, &root.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Python"}, fractalNames(scoped))
	})
}

func TestScenario_ContextScopedKnowledge(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		python := mustCreate(t, repo, CreateFractalInput{Name: "Python"})
		str := mustCreate(t, repo, CreateFractalInput{Name: "String"})
		rust := mustCreate(t, repo, CreateFractalInput{Name: "Rust"})

		_, err := repo.Knowledge.Attach(ctx, python.ID, "x.count() returns length", []uuid.UUID{str.ID})
		require.NoError(t, err)

		facts, err := repo.Knowledge.QueryByContext(ctx, "Python", []uuid.UUID{str.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{"x.count() returns length"}, contents(facts))

		facts, err = repo.Knowledge.QueryByContext(ctx, "Python", []uuid.UUID{rust.ID})
		require.NoError(t, err)
		assert.Empty(t, facts)
	})
}

func TestInitialize_Idempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		require.NoError(t, Initialize(ctx, repo.Store(), repo.Fractals))
		require.NoError(t, Initialize(ctx, repo.Store(), repo.Fractals))

		roots, err := repo.Store().FindNodes(ctx, graphstore.ByProp(graphstore.LabelFractal, graphstore.PropName, constants.RootFractalName))
		require.NoError(t, err)
		require.Len(t, roots, 1)
		assert.Equal(t, constants.RootFractalID, roots[0].ID)
	})
}

func TestInitialize_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	require.NoError(t, store.Close(ctx))

	err := Initialize(ctx, store, NewFractalRepository(store))
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreFailure(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestSeedExample(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()
		require.NoError(t, SeedExample(ctx, repo.Fractals))
		require.NoError(t, SeedExample(ctx, repo.Fractals))

		str, err := repo.Fractals.GetByName(ctx, "String")
		require.NoError(t, err)

		parents, err := repo.Fractals.Relations(ctx, str.ID, RelationParents)
		require.NoError(t, err)
		assert.Equal(t, []string{"Programming", "Python", "Rust"}, fractalNames(parents))

		children, err := repo.Fractals.Relations(ctx, str.ID, RelationChildren)
		require.NoError(t, err)
		assert.Equal(t, []string{"&str", ".count()", "String literal"}, fractalNames(children))

		python, err := repo.Fractals.GetByName(ctx, "Python")
		require.NoError(t, err)
		inPython, err := repo.Fractals.Children(ctx, str.ID, &python.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{".count()"}, fractalNames(inPython))
	})
}

func TestStoreFailureIsWrapped(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemory()
	repo := NewRepository(store)
	require.NoError(t, store.Close(ctx))

	_, err := repo.Fractals.GetByName(ctx, "Root")
	assert.True(t, apperrors.IsStoreFailure(err))

	_, err = repo.Knowledge.QueryByContext(ctx, "Root", nil)
	assert.True(t, apperrors.IsStoreFailure(err))

	assert.True(t, apperrors.IsStoreFailure(repo.Ping(ctx)))
}
