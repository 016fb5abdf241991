package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/tanpawarit/agentic-support/agent/contract"
	logx "github.com/tanpawarit/agentic-support/pkg/logger"
)

// Config is loaded with the HTTP prefix.
type Config struct {
	Addr            string        `default:"0.0.0.0:8000"`
	ReadTimeout     time.Duration `split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `split_words:"true" default:"300s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
}

type chatRequest struct {
	Query  *string `json:"query"`
	UserID *int64  `json:"user_id"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// Server exposes the support agent over HTTP.
type Server struct {
	echo   *echo.Echo
	doc    *openapi3.T
	agent  contract.Agent
	cfg    Config
	logger zerolog.Logger
}

func NewServer(agent contract.Agent, cfg Config) (*Server, error) {
	if agent == nil {
		return nil, errors.New("agent is required")
	}

	doc, err := loadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}

	s := &Server{
		echo:   echo.New(),
		doc:    doc,
		agent:  agent,
		cfg:    cfg,
		logger: logx.Component("http"),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := s.logger.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				evt = s.logger.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	s.echo.Use(s.validateRequest)

	s.echo.POST("/chat", s.chat)
	s.echo.GET("/health", s.health)
	s.echo.GET("/openapi.yaml", s.openapi)

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.echo.Server.ReadTimeout = s.cfg.ReadTimeout
	s.echo.Server.WriteTimeout = s.cfg.WriteTimeout

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info().Dur("timeout", timeout).Msg("http server shutting down")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) chat(c echo.Context) error {
	var body chatRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Detail: "invalid request body"})
	}
	if body.Query == nil || strings.TrimSpace(*body.Query) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Detail: "query is required"})
	}

	req := contract.ChatRequest{Query: *body.Query, UserID: contract.DefaultUserID}
	if body.UserID != nil {
		req.UserID = *body.UserID
	}

	out, err := s.agent.HandleMessage(c.Request().Context(), req)
	if err != nil {
		s.logger.Error().Err(err).
			Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
			Msg("chat request failed")
		if errors.Is(err, contract.ErrValidation) {
			return c.JSON(http.StatusBadRequest, errorResponse{Detail: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Detail: err.Error()})
	}

	return c.JSON(http.StatusOK, out)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "healthy"})
}
