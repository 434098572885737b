package cli

import (
	"context"

	"github.com/spf13/cobra"

	"fractal-graph/backend/internal/graph"
)

// NewAttachCommand creates the attach command.
func NewAttachCommand(opts *RootOptions) *cobra.Command {
	var contexts []string

	cmd := &cobra.Command{
		Use:   "attach <fractal> <content>",
		Short: "Attach a knowledge fact to a fractal",
		Long: `Attach a knowledge fact to a fractal, tagged with the given contexts.

Example:
  fractalctl attach Python "x.count() returns length" --context String`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				fractalID, err := resolve(ctx, repo, args[0])
				if err != nil {
					return err
				}
				contextIDs, err := resolveAll(ctx, repo, contexts)
				if err != nil {
					return err
				}

				k, err := repo.Knowledge.Attach(ctx, fractalID, args[1], contextIDs)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, k)
			})
		},
	}

	cmd.Flags().StringSliceVar(&contexts, "context", nil, "context tag (repeatable)")

	return cmd
}

// NewKnowledgeCommand creates the knowledge command.
func NewKnowledgeCommand(opts *RootOptions) *cobra.Command {
	var contexts []string

	cmd := &cobra.Command{
		Use:   "knowledge <fractal-name>",
		Short: "List the knowledge of a fractal tagged with every given context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				contextIDs, err := resolveAll(ctx, repo, contexts)
				if err != nil {
					return err
				}

				facts, err := repo.Knowledge.QueryByContext(ctx, args[0], contextIDs)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, facts)
			})
		},
	}

	cmd.Flags().StringSliceVar(&contexts, "context", nil, "required context (repeatable)")

	return cmd
}
