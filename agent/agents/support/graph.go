package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tanpawarit/agentic-support/agent/contract"
)

func (s *Service) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[contract.ChatRequest, contract.ChatResponse], error) {
	graph := compose.NewGraph[contract.ChatRequest, contract.ChatResponse]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in contract.ChatRequest) ([]*schema.Message, error) {
			return s.validateRequest(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("run_agent",
		compose.InvokableLambda(func(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
			return s.runAgent(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_agent: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (contract.ChatResponse, error) {
			return finalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "run_agent"},
		{"run_agent", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("support.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile support graph: %w", err)
	}
	return runner, nil
}

func (s *Service) validateRequest(in contract.ChatRequest) ([]*schema.Message, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	return []*schema.Message{
		schema.SystemMessage(s.systemPrompt),
		schema.UserMessage(query),
	}, nil
}

func (s *Service) runAgent(ctx context.Context, in []*schema.Message) (*schema.Message, error) {
	out, err := s.agent.Generate(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", contract.ErrModelInvoke, err)
	}
	return out, nil
}

func finalizeReply(msg *schema.Message) (contract.ChatResponse, error) {
	if msg == nil {
		return contract.ChatResponse{}, fmt.Errorf("%w: agent returned no message", contract.ErrSchemaViolation)
	}
	reply := strings.TrimSpace(msg.Content)
	if reply == "" {
		return contract.ChatResponse{}, fmt.Errorf("%w: agent reply is empty", contract.ErrSchemaViolation)
	}
	return contract.ChatResponse{Response: reply}, nil
}
