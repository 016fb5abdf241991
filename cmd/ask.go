package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/agentic-support/agent/contract"
)

func newAskCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Send one message to the agent and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			query := strings.Join(args, " ")

			var a app
			defer a.Close()

			svc, err := a.bootstrap(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", color.New(color.FgCyan, color.Bold).Sprint("User:"), query)

			resp, err := svc.HandleMessage(ctx, contract.ChatRequest{Query: query, UserID: userID})
			if err != nil {
				color.New(color.FgRed).Fprintf(out, "Agent failed: %v\n", err)
				return err
			}
			fmt.Fprintf(out, "%s %s\n", color.New(color.FgGreen, color.Bold).Sprint("Agent:"), resp.Response)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", contract.DefaultUserID, "User ID sent with the message")
	return cmd
}
