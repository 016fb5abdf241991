package tool

import (
	"context"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/agentic-support/agent/contract"
)

const NameLookupPolicy = "lookup_policy"

type lookupPolicy struct {
	policies contract.PolicyLookup
	topK     int
}

var _ einotool.InvokableTool = (*lookupPolicy)(nil)

func (t *lookupPolicy) Info(context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: NameLookupPolicy,
		Desc: `Use this tool to verify company policies, return rules, refund timelines, or shipping questions. Input should be a specific question (e.g., "return window").`,
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Desc: "A specific policy question.", Required: true},
		}),
	}, nil
}

func (t *lookupPolicy) InvokableRun(ctx context.Context, args string, _ ...einotool.Option) (string, error) {
	query, msg := decodeQuery(args)
	if msg != "" {
		return msg, nil
	}

	chunks, err := t.policies.Query(ctx, query, t.topK)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", contract.ErrUpstream, NameLookupPolicy, err)
	}
	return strings.Join(chunks, "\n\n"), nil
}
