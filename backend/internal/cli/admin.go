package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fractal-graph/backend/internal/graph"
	apperrors "fractal-graph/backend/pkg/errors"
	"fractal-graph/backend/pkg/logger"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the store schema and the Root fractal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				root, err := repo.Fractals.Root(ctx)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, map[string]interface{}{"root": root})
			})
		},
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the example programming-language graph",
		Long: `Create the example graph: Programming under Root with Python, C, Rust
and String below it, plus context-scoped String children. Running it again
is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				if err := graph.SeedExample(ctx, repo.Fractals); err != nil {
					return err
				}
				return writeSeeded(ctx, cmd, opts, repo)
			})
		},
	}
}

// NewResetCommand creates the reset command.
func NewResetCommand(opts *RootOptions) *cobra.Command {
	var (
		confirm bool
		noSeed  bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every node and edge, then recreate Root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return apperrors.NewInvalidArgument("yes", "reset deletes the whole graph; pass --yes to confirm")
			}
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				log := logger.Named("reset")

				log.Warn("Purging graph store")
				if err := repo.Store().Purge(ctx); err != nil {
					return fmt.Errorf("purging store: %w", err)
				}
				if err := graph.Initialize(ctx, repo.Store(), repo.Fractals); err != nil {
					return err
				}
				if noSeed {
					log.Info("Graph reset", zap.Bool("seeded", false))
					return write(cmd.OutOrStdout(), opts.Output, map[string]interface{}{"reset": true})
				}

				if err := graph.SeedExample(ctx, repo.Fractals); err != nil {
					return err
				}
				log.Info("Graph reset", zap.Bool("seeded", true))
				return writeSeeded(ctx, cmd, opts, repo)
			})
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm deleting all data")
	cmd.Flags().BoolVar(&noSeed, "no-seed", false, "leave only the Root fractal")

	return cmd
}

func writeSeeded(ctx context.Context, cmd *cobra.Command, opts *RootOptions, repo *graph.Repository) error {
	programming, err := repo.Fractals.GetByName(ctx, "Programming")
	if err != nil {
		return err
	}
	children, err := repo.Fractals.Relations(ctx, programming.ID, graph.RelationChildren)
	if err != nil {
		return err
	}
	return write(cmd.OutOrStdout(), opts.Output, map[string]interface{}{
		"seeded":   true,
		"fractal":  programming,
		"children": children,
	})
}
