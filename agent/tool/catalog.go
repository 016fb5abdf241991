package tool

import (
	"context"
	"errors"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/agentic-support/agent/contract"
	logx "github.com/tanpawarit/agentic-support/pkg/logger"
)

const DefaultPolicyTopK = 2

type Option func(*Catalog)

func WithPolicyTopK(k int) Option {
	return func(c *Catalog) {
		if k > 0 {
			c.topK = k
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// Catalog is the fixed set of tools offered to the agent, in registration order.
type Catalog struct {
	tools  []einotool.InvokableTool
	byName map[string]einotool.InvokableTool
	topK   int
	logger zerolog.Logger
}

func NewCatalog(orders OrderService, policies contract.PolicyLookup, opts ...Option) (*Catalog, error) {
	if orders == nil {
		return nil, errors.New("order service is required")
	}
	if policies == nil {
		return nil, errors.New("policy lookup is required")
	}

	c := &Catalog{
		topK:   DefaultPolicyTopK,
		logger: logx.Component("tool_catalog"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.register(newGetOrderStatus(orders))
	c.register(newCancelOrder(orders))
	c.register(newReturnOrder(orders))
	c.register(&lookupPolicy{policies: policies, topK: c.topK})
	return c, nil
}

func (c *Catalog) register(t einotool.InvokableTool) {
	info, _ := t.Info(context.Background())
	if c.byName == nil {
		c.byName = make(map[string]einotool.InvokableTool)
	}
	logged := &loggedTool{InvokableTool: t, name: info.Name, logger: c.logger}
	c.tools = append(c.tools, logged)
	c.byName[info.Name] = logged
}

// Tools returns the catalog in the form eino's tools node accepts.
func (c *Catalog) Tools() []einotool.BaseTool {
	out := make([]einotool.BaseTool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, t)
	}
	return out
}

func (c *Catalog) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(c.tools))
	for _, t := range c.tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (c *Catalog) Names() []string {
	infos, _ := c.Infos(context.Background())
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names
}

// Execute runs one tool by name with JSON-encoded arguments. Unknown tools
// produce a prose error, not a Go error.
func (c *Catalog) Execute(ctx context.Context, name, args string) (string, error) {
	t, ok := c.byName[name]
	if !ok {
		return fmt.Sprintf("Error: tool %s is not available.", name), nil
	}

	return t.InvokableRun(ctx, args)
}

type loggedTool struct {
	einotool.InvokableTool
	name   string
	logger zerolog.Logger
}

func (t *loggedTool) InvokableRun(ctx context.Context, args string, opts ...einotool.Option) (string, error) {
	out, err := t.InvokableTool.InvokableRun(ctx, args, opts...)
	if err != nil {
		t.logger.Error().Err(err).Str("tool", t.name).Str("args", args).Msg("tool execution failed")
		return "", err
	}
	t.logger.Debug().Str("tool", t.name).Str("args", args).Str("output", out).Msg("tool executed")
	return out, nil
}
