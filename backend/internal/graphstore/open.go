package graphstore

import (
	"context"
	"fmt"
)

// Supported backends
const (
	BackendNeo4j  = "neo4j"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Neo4jConfig holds the connection settings of a Neo4j server
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Options selects and configures a backend
type Options struct {
	Backend    string
	Neo4j      Neo4jConfig
	SQLitePath string
}

// Open connects to the configured backend and ensures its schema exists
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		store Store
		err   error
	)

	switch opts.Backend {
	case BackendNeo4j:
		store, err = NewNeo4j(ctx, opts.Neo4j)
	case BackendSQLite:
		store, err = NewSQLite(ctx, opts.SQLitePath)
	case BackendMemory:
		store = NewMemory()
	default:
		return nil, fmt.Errorf("unknown graph backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return store, nil
}
