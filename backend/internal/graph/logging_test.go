package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"fractal-graph/backend/internal/graphstore"
	"fractal-graph/backend/pkg/logger"
)

func TestMutationsLogAtInfo(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	previous := logger.Logger
	logger.Logger = zap.New(core)
	t.Cleanup(func() { logger.Logger = previous })

	ctx := context.Background()
	store := graphstore.NewMemory()
	t.Cleanup(func() { _ = store.Close(ctx) })
	repo := NewRepository(store)
	require.NoError(t, Initialize(ctx, store, repo.Fractals))

	p := mustCreate(t, repo, CreateFractalInput{Name: "P"})
	c := mustCreate(t, repo, CreateFractalInput{Name: "C"})
	require.NoError(t, repo.Fractals.AddChildEdge(ctx, p.ID, c.ID, &p.ID))
	require.NoError(t, repo.Fractals.AddContextEdge(ctx, c.ID, p.ID))
	_, err := repo.Knowledge.Attach(ctx, c.ID, "fact", nil)
	require.NoError(t, err)

	for _, msg := range []string{"Created fractal", "Added child edge", "Added context edge", "Attached knowledge"} {
		assert.NotZero(t, logs.FilterMessage(msg).Len(), "missing Info entry %q", msg)
	}

	edge := logs.FilterMessage("Added child edge").All()
	require.Len(t, edge, 1)
	fields := edge[0].ContextMap()
	assert.Equal(t, p.ID.String(), fields["parent_id"])
	assert.Equal(t, c.ID.String(), fields["child_id"])
	assert.Equal(t, p.ID.String(), fields["context_id"])
}
