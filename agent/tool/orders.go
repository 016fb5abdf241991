package tool

import (
	"context"
	"errors"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/agentic-support/agent/contract"
	"github.com/tanpawarit/agentic-support/agent/order"
)

const (
	NameGetOrderStatus = "get_order_status"
	NameCancelOrder    = "cancel_order"
	NameReturnOrder    = "return_order"
)

// OrderService is the part of the order store the tools need.
type OrderService interface {
	Get(ctx context.Context, id int64) (order.Order, error)
	Cancel(ctx context.Context, id int64) (order.Outcome, error)
	Return(ctx context.Context, id int64) (order.Outcome, error)
}

var orderIDParams = schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
	"order_id": {Type: schema.Integer, Desc: "The Order ID, e.g. 1001.", Required: true},
})

// orderTool adapts one order operation to eino's InvokableTool.
type orderTool struct {
	info *schema.ToolInfo
	run  func(ctx context.Context, id int64) (string, error)
}

var _ einotool.InvokableTool = (*orderTool)(nil)

func (t *orderTool) Info(context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *orderTool) InvokableRun(ctx context.Context, args string, _ ...einotool.Option) (string, error) {
	id, msg := decodeOrderID(args)
	if msg != "" {
		return msg, nil
	}
	return t.run(ctx, id)
}

func newGetOrderStatus(orders OrderService) *orderTool {
	return &orderTool{
		info: &schema.ToolInfo{
			Name:        NameGetOrderStatus,
			Desc:        "Use this tool to fetch the status of an order. Input should be the Order ID (integer). Returns the order status and items.",
			ParamsOneOf: orderIDParams,
		},
		run: func(ctx context.Context, id int64) (string, error) {
			o, err := orders.Get(ctx, id)
			if errors.Is(err, order.ErrOrderNotFound) {
				return fmt.Sprintf("Order #%d not found.", id), nil
			}
			if err != nil {
				return "", fmt.Errorf("%w: %s: %w", contract.ErrUpstream, NameGetOrderStatus, err)
			}
			return fmt.Sprintf("Order #%d is currently %s. Items: %s.", id, o.Status, o.Items), nil
		},
	}
}

func newCancelOrder(orders OrderService) *orderTool {
	return &orderTool{
		info: &schema.ToolInfo{
			Name:        NameCancelOrder,
			Desc:        "Use this tool to cancel an order. Input should be the Order ID (integer). Returns a confirmation message.",
			ParamsOneOf: orderIDParams,
		},
		run: func(ctx context.Context, id int64) (string, error) {
			out, err := orders.Cancel(ctx, id)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %w", contract.ErrUpstream, NameCancelOrder, err)
			}
			return RenderOutcome(out), nil
		},
	}
}

func newReturnOrder(orders OrderService) *orderTool {
	return &orderTool{
		info: &schema.ToolInfo{
			Name:        NameReturnOrder,
			Desc:        "Use this tool to return an order. Input should be the Order ID (integer). Returns a confirmation message.",
			ParamsOneOf: orderIDParams,
		},
		run: func(ctx context.Context, id int64) (string, error) {
			out, err := orders.Return(ctx, id)
			if err != nil {
				return "", fmt.Errorf("%w: %s: %w", contract.ErrUpstream, NameReturnOrder, err)
			}
			return RenderOutcome(out), nil
		},
	}
}

// RenderOutcome turns a transition outcome into the text handed to the model.
func RenderOutcome(o order.Outcome) string {
	switch o.Kind {
	case order.OutcomeNotFound:
		return fmt.Sprintf("Error: Order #%d does not exist.", o.OrderID)
	case order.OutcomeIllegalTransition:
		if o.Action == order.ActionReturn {
			return fmt.Sprintf("Cannot return Order #%d because it is in %s state.", o.OrderID, o.Current)
		}
		return fmt.Sprintf("Cannot cancel Order #%d because it is already %s.", o.OrderID, o.Current)
	default:
		if o.Action == order.ActionReturn {
			return fmt.Sprintf("Success: Order #%d has been returned.", o.OrderID)
		}
		return fmt.Sprintf("Success: Order #%d has been cancelled.", o.OrderID)
	}
}
