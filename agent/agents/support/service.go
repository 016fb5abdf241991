package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/agentic-support/agent/contract"
	"github.com/tanpawarit/agentic-support/agent/prompt"
	"github.com/tanpawarit/agentic-support/agent/tool"
	logx "github.com/tanpawarit/agentic-support/pkg/logger"
)

var ErrEmptyQuery = fmt.Errorf("%w: query is required", contract.ErrValidation)

// Config is loaded with the AGENT prefix.
type Config struct {
	MaxStep int           `split_words:"true" default:"12"`
	Timeout time.Duration `default:"0s"`
}

type Option func(*Service)

func WithSystemPrompt(p string) Option {
	return func(s *Service) {
		if p = strings.TrimSpace(p); p != "" {
			s.systemPrompt = p
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service answers one customer message by letting the chat model call the
// catalog's tools until it produces a plain reply.
type Service struct {
	agent        *react.Agent
	graphRunner  compose.Runnable[contract.ChatRequest, contract.ChatResponse]
	systemPrompt string
	timeout      time.Duration
	logger       zerolog.Logger
}

var _ contract.Agent = (*Service)(nil)

func New(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	catalog *tool.Catalog,
	cfg Config,
	opts ...Option,
) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	if catalog == nil {
		return nil, errors.New("tool catalog is required")
	}

	s := &Service{
		systemPrompt: prompt.Support(),
		timeout:      cfg.Timeout,
		logger:       logx.Component("support_agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.systemPrompt == "" {
		return nil, contract.ErrPromptMissing
	}

	maxStep := cfg.MaxStep
	if maxStep <= 0 {
		maxStep = 12
	}

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: catalog.Tools(),
			// Tool calls in one model turn run one after another, in order.
			ExecuteSequentially: true,
			UnknownToolsHandler: func(ctx context.Context, name, input string) (string, error) {
				return catalog.Execute(ctx, name, input)
			},
		},
		MaxStep: maxStep,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: build react agent: %w", contract.ErrModelInvoke, err)
	}
	s.agent = agent

	graphRunner, err := s.compileHandleMessageGraph(ctx)
	if err != nil {
		return nil, err
	}
	s.graphRunner = graphRunner

	return s, nil
}

func (s *Service) HandleMessage(ctx context.Context, req contract.ChatRequest) (contract.ChatResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return contract.ChatResponse{}, ErrEmptyQuery
	}
	if req.UserID <= 0 {
		req.UserID = contract.DefaultUserID
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	out, err := s.graphRunner.Invoke(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", req.UserID).Dur("elapsed", time.Since(started)).Msg("support request failed")
		return contract.ChatResponse{}, err
	}

	s.logger.Info().Int64("user_id", req.UserID).Dur("elapsed", time.Since(started)).Msg("support request answered")
	return out, nil
}
