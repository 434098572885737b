package graphstore

import (
	"context"
	"time"

	"fractal-graph/backend/internal/metrics"
)

type instrumentedStore struct {
	next    Store
	metrics *metrics.Metrics
}

// WithMetrics wraps s so every call is counted and timed. A nil m returns s unchanged.
func WithMetrics(s Store, m *metrics.Metrics) Store {
	if m == nil {
		return s
	}
	return &instrumentedStore{next: s, metrics: m}
}

func (s *instrumentedStore) EnsureSchema(ctx context.Context) (err error) {
	defer s.observe("ensure_schema", time.Now(), &err)
	return s.next.EnsureSchema(ctx)
}

func (s *instrumentedStore) Apply(ctx context.Context, m Mutation) (err error) {
	defer s.observe("apply", time.Now(), &err)
	return s.next.Apply(ctx, m)
}

func (s *instrumentedStore) FindNodes(ctx context.Context, m Match) (nodes []Node, err error) {
	defer s.observe("find_nodes", time.Now(), &err)
	return s.next.FindNodes(ctx, m)
}

func (s *instrumentedStore) Traverse(ctx context.Context, t Traversal) (nodes []Node, err error) {
	defer s.observe("traverse", time.Now(), &err)
	return s.next.Traverse(ctx, t)
}

func (s *instrumentedStore) DetachDelete(ctx context.Context, m Match, cascade ...EdgeType) (deleted bool, err error) {
	defer s.observe("detach_delete", time.Now(), &err)
	return s.next.DetachDelete(ctx, m, cascade...)
}

func (s *instrumentedStore) Purge(ctx context.Context) (err error) {
	defer s.observe("purge", time.Now(), &err)
	return s.next.Purge(ctx)
}

func (s *instrumentedStore) Ping(ctx context.Context) (err error) {
	defer s.observe("ping", time.Now(), &err)
	return s.next.Ping(ctx)
}

func (s *instrumentedStore) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}

func (s *instrumentedStore) observe(operation string, start time.Time, err *error) {
	s.metrics.ObserveStoreOperation(operation, start, *err)
}
