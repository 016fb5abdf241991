package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newToolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool [name] [json-args]",
		Short: "List the agent's tools, or run one directly",
		Example: `  support-agent tool
  support-agent tool get_order_status '{"order_id": 1001}'
  support-agent tool lookup_policy '{"query": "return window"}'`,
		Args: cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var a app
			defer a.Close()

			if err := a.openOrders(ctx); err != nil {
				return err
			}
			retrieverErr := a.openRetriever(ctx)
			if retrieverErr != nil {
				log.Warn().Err(retrieverErr).Msg("policy retriever unavailable; lookup_policy will fail")
			}

			catalog, err := a.catalog(retrieverErr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				infos, err := catalog.Infos(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(infos))
				for _, info := range infos {
					rows = append(rows, []string{info.Name, info.Desc})
				}
				printTable(out, []string{"NAME", "DESCRIPTION"}, rows)
				return nil
			}

			callArgs := "{}"
			if len(args) == 2 {
				callArgs = args[1]
			}
			result, err := catalog.Execute(ctx, args[0], callArgs)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, color.GreenString(result))
			return nil
		},
	}
	return cmd
}
