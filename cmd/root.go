package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/agentic-support/pkg/config"
	logx "github.com/tanpawarit/agentic-support/pkg/logger"
)

var envFile string

// NewRootCmd creates the top-level CLI with all subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "support-agent",
		Short: "Customer support agent for order status, cancellations, returns and policy questions",
		Long: `support-agent answers customer questions with a tool-calling language model.
The model can read and change orders and look up the store's policies.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configx.SetEnvFile(envFile)
			logCfg, err := configx.New[logx.Config]("LOG")
			if err != nil {
				return err
			}
			logx.Init(*logCfg)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to a .env file (default ./.env when present)")

	cmd.AddCommand(
		newServeCmd(),
		newAskCmd(),
		newIndexCmd(),
		newToolCmd(),
		newOrdersCmd(),
	)

	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
