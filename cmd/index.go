package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the policy index from the policy document",
		Long: `Build the policy index when it does not exist yet. With --rebuild the
existing index is replaced, which is the only way to pick up edits to the
policy document.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var a app
			defer a.Close()

			if err := a.openRetriever(ctx); err != nil {
				return err
			}

			path := a.policyCfg.DocumentPath
			out := cmd.OutOrStdout()
			if rebuild {
				if err := a.retriever.Rebuild(ctx, path); err != nil {
					return err
				}
			} else {
				built, err := a.retriever.BuildIndex(ctx, path)
				if err != nil {
					return err
				}
				if !built {
					fmt.Fprintln(out, color.YellowString("Policy index already exists; use --rebuild to replace it."))
				}
			}

			meta, err := a.retriever.Meta(ctx)
			if err != nil {
				return err
			}
			bold := color.New(color.Bold)
			bold.Fprintln(out, "Policy index")
			fmt.Fprintf(out, "  Document:   %s\n", meta.SourcePath)
			fmt.Fprintf(out, "  Backend:    %s\n", a.policyCfg.Backend)
			fmt.Fprintf(out, "  Embedder:   %s (%d dims)\n", meta.Embedder, meta.Dimension)
			fmt.Fprintf(out, "  Chunks:     %d\n", meta.ChunkCount)
			fmt.Fprintf(out, "  Built at:   %s\n", meta.BuiltAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Drop the existing index and build it again")
	return cmd
}
