package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/agentic-support/agent/policy"
	httpx "github.com/tanpawarit/agentic-support/agent/transport/http"
	configx "github.com/tanpawarit/agentic-support/pkg/config"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  "Open the order store, build the policy index if it is missing, and serve POST /chat and GET /health. A cron job checks the policy document for changes on POLICY_STALE_CHECK.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			httpCfg, err := configx.New[httpx.Config]("HTTP")
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				httpCfg.Addr = addr
			}

			var a app
			defer a.Close()

			svc, err := a.bootstrap(ctx)
			if err != nil {
				return err
			}

			if schedule := a.policyCfg.StaleCheck; schedule != "" {
				watcher, err := policy.NewStaleWatcher(a.retriever, a.policyCfg.DocumentPath, schedule, a.policyCfg.AutoRebuild)
				if err != nil {
					return err
				}
				if err := watcher.Start(); err != nil {
					return err
				}
				defer watcher.Stop()
			}

			srv, err := httpx.NewServer(svc, *httpCfg)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	return cmd
}
