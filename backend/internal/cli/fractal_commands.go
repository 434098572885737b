package cli

import (
	"context"

	"github.com/spf13/cobra"

	"fractal-graph/backend/internal/constants"
	"fractal-graph/backend/internal/graph"
	apperrors "fractal-graph/backend/pkg/errors"
)

// NewCreateCommand creates the create command.
func NewCreateCommand(opts *RootOptions) *cobra.Command {
	var (
		parents     []string
		contexts    []string
		edgeContext string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a fractal",
		Long: `Create a fractal under zero or more parents.

Example:
  fractalctl create "&str" --parent String --edge-context Rust`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				in := graph.CreateFractalInput{Name: args[0]}

				var err error
				if in.ParentIDs, err = resolveAll(ctx, repo, parents); err != nil {
					return err
				}
				if in.ContextIDs, err = resolveAll(ctx, repo, contexts); err != nil {
					return err
				}
				if in.EdgeContextID, err = resolveOptional(ctx, repo, edgeContext); err != nil {
					return err
				}

				f, err := repo.Fractals.Create(ctx, in)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, f)
			})
		},
	}

	cmd.Flags().StringSliceVar(&parents, "parent", nil, "parent fractal (repeatable)")
	cmd.Flags().StringSliceVar(&contexts, "context", nil, "context of the new fractal itself (repeatable)")
	cmd.Flags().StringVar(&edgeContext, "edge-context", "", "context scoping the parent edges")

	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get [fractal]",
		Short: "Show a fractal, or Root when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				if len(args) == 0 {
					args = []string{constants.RootFractalID.String()}
				}
				id, err := resolve(ctx, repo, args[0])
				if err != nil {
					return err
				}
				f, err := repo.Fractals.GetByID(ctx, id)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, f)
			})
		},
	}
}

// NewRelationsCommand creates the relations command.
func NewRelationsCommand(opts *RootOptions) *cobra.Command {
	var contextRef string

	cmd := &cobra.Command{
		Use:   "relations <fractal> <parents|children|contexts>",
		Short: "List the parents, children or contexts of a fractal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := graph.ParseRelationKind(args[1])
			if err != nil {
				return err
			}
			if contextRef != "" && kind != graph.RelationChildren {
				return apperrors.NewInvalidArgument("context", "only applies to children")
			}

			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				id, err := resolve(ctx, repo, args[0])
				if err != nil {
					return err
				}
				contextID, err := resolveOptional(ctx, repo, contextRef)
				if err != nil {
					return err
				}

				var related []graph.Fractal
				if contextID != nil {
					related, err = repo.Fractals.Children(ctx, id, contextID)
				} else {
					related, err = repo.Fractals.Relations(ctx, id, kind)
				}
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, related)
			})
		},
	}

	cmd.Flags().StringVar(&contextRef, "context", "", "only children whose edge carries this context")

	return cmd
}

// NewLinkCommand creates the link command.
func NewLinkCommand(opts *RootOptions) *cobra.Command {
	var contextRef string

	cmd := &cobra.Command{
		Use:   "link <parent> <child>",
		Short: "Add a parent-child edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				ids, err := resolveAll(ctx, repo, args)
				if err != nil {
					return err
				}
				contextID, err := resolveOptional(ctx, repo, contextRef)
				if err != nil {
					return err
				}
				if err := repo.Fractals.AddChildEdge(ctx, ids[0], ids[1], contextID); err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, map[string]interface{}{"added": true})
			})
		},
	}

	cmd.Flags().StringVar(&contextRef, "context", "", "context scoping the edge")

	return cmd
}

// NewTagCommand creates the tag command.
func NewTagCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <fractal> <context>",
		Short: "Mark a fractal as belonging to a context",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				ids, err := resolveAll(ctx, repo, args)
				if err != nil {
					return err
				}
				if err := repo.Fractals.AddContextEdge(ctx, ids[0], ids[1]); err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, map[string]interface{}{"added": true})
			})
		},
	}
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <fractal>",
		Short: "Delete a fractal, its edges and its knowledge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRepository(cmd, func(ctx context.Context, repo *graph.Repository) error {
				id, err := resolve(ctx, repo, args[0])
				if err != nil {
					return err
				}
				deleted, err := repo.Fractals.Delete(ctx, id)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.Output, map[string]interface{}{"deleted": deleted})
			})
		},
	}
}
