package cmd

import (
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/agentic-support/agent/order"
)

type orderView struct {
	ID     int64  `json:"order_id" yaml:"order_id"`
	User   string `json:"user_name" yaml:"user_name"`
	Status string `json:"status" yaml:"status"`
	Items  string `json:"items" yaml:"items"`
}

func newOrdersCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders in the order store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var a app
			defer a.Close()

			if err := a.openOrders(ctx); err != nil {
				return err
			}
			orders, err := a.orders.List(ctx)
			if err != nil {
				return err
			}

			views := make([]orderView, 0, len(orders))
			for _, o := range orders {
				views = append(views, orderView{ID: o.ID, User: o.UserName, Status: o.Status.String(), Items: o.Items})
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return printJSON(out, views)
			case "yaml":
				return printYAML(out, views)
			case "table", "":
				rows := make([][]string, 0, len(orders))
				for _, o := range orders {
					rows = append(rows, []string{strconv.FormatInt(o.ID, 10), o.UserName, statusColor(o.Status), o.Items})
				}
				printTable(out, []string{"ID", "USER", "STATUS", "ITEMS"}, rows)
				return nil
			default:
				return fmt.Errorf("unknown output format %q (table|json|yaml)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table|json|yaml")
	return cmd
}

func statusColor(s order.Status) string {
	switch s {
	case order.StatusDelivered:
		return color.GreenString(s.String())
	case order.StatusShipped:
		return color.CyanString(s.String())
	case order.StatusProcessing:
		return color.YellowString(s.String())
	case order.StatusCancelled:
		return color.RedString(s.String())
	default:
		return color.HiBlackString(s.String())
	}
}
