// Package cli implements fractalctl, the operator command line for the
// fractal graph.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"fractal-graph/backend/internal/graph"
	"fractal-graph/backend/internal/graphstore"
	"fractal-graph/backend/pkg/config"
	apperrors "fractal-graph/backend/pkg/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitInvalidInput = 2
)

// ValidOutputs defines the allowed output formats.
var ValidOutputs = []string{"json", "yaml"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Output     string
	Backend    string
	SQLitePath string
}

// NewRootCommand creates the root command for fractalctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fractalctl",
		Short: "Manage the fractal knowledge graph",
		Long: `fractalctl inspects and edits the fractal knowledge graph directly
through the configured graph store. Connection settings come from the same
environment variables as the API server; --backend and --sqlite-path
override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidOutputs, opts.Output) {
				return apperrors.NewInvalidArgument("output", fmt.Sprintf("must be one of %v", ValidOutputs))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", "json", "output format (json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "graph backend (neo4j|sqlite|memory); defaults to GRAPH_BACKEND")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", "", "SQLite database file; defaults to SQLITE_PATH")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewRelationsCommand(opts))
	cmd.AddCommand(NewLinkCommand(opts))
	cmd.AddCommand(NewTagCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewAttachCommand(opts))
	cmd.AddCommand(NewKnowledgeCommand(opts))

	return cmd
}

// ExitCode maps a command error to a process exit code
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case apperrors.IsInvalidArgument(err):
		return ExitInvalidInput
	default:
		return ExitFailure
	}
}

// loadConfig loads the environment configuration with flag overrides applied
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.Backend != "" {
		cfg.GraphBackend = o.Backend
	}
	if o.SQLitePath != "" {
		cfg.SQLitePath = o.SQLitePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withRepository opens the store, ensures Root exists and runs fn
func (o *RootOptions) withRepository(cmd *cobra.Command, fn func(ctx context.Context, repo *graph.Repository) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := graphstore.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.GraphBackend, err)
	}
	repo := graph.NewRepository(store)
	defer repo.Close(ctx)

	if err := graph.Initialize(ctx, store, repo.Fractals); err != nil {
		return err
	}
	return fn(ctx, repo)
}

// resolve accepts either a UUID or a Fractal name
func resolve(ctx context.Context, repo *graph.Repository, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	f, err := repo.Fractals.GetByName(ctx, ref)
	if err != nil {
		return uuid.Nil, err
	}
	return f.ID, nil
}

func resolveAll(ctx context.Context, repo *graph.Repository, refs []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		id, err := resolve(ctx, repo, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func resolveOptional(ctx context.Context, repo *graph.Repository, ref string) (*uuid.UUID, error) {
	if ref == "" {
		return nil, nil
	}
	id, err := resolve(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
