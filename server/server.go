package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/internal/secrets"
	"github.com/driftchat/driftchat/plugin/llm"
	"github.com/driftchat/driftchat/server/auth"
	apiv1 "github.com/driftchat/driftchat/server/router/api/v1"
	"github.com/driftchat/driftchat/server/scheduler"
	"github.com/driftchat/driftchat/server/service/chat"
	"github.com/driftchat/driftchat/store"
)

// maxConcurrentGenerations bounds in-flight provider streams so one busy
// instance cannot exhaust sockets or provider quotas.
const maxConcurrentGenerations = 8

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	scheduler  *scheduler.Scheduler
}

func NewServer(profile *profile.Profile, st *store.Store, logger *slog.Logger) (*Server, error) {
	box, err := secrets.NewBox(profile.EncryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize secrets box")
	}

	sched := scheduler.New(maxConcurrentGenerations)
	chatService := chat.NewService(st, llm.NewRegistry(), sched, profile, box, logger)
	authService := auth.NewService(st, profile.Secret)

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(echomw.Recover())
	echoServer.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE},
	}))

	apiService := apiv1.NewAPIV1Service(profile.Secret, profile, st, authService, chatService, logger)
	apiService.Register(echoServer)

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(200, "Service ready.")
	})

	return &Server{
		Profile:    profile,
		Store:      st,
		echoServer: echoServer,
		scheduler:  sched,
	}, nil
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	slog.Info("server started", "address", address, "version", s.Profile.Version)
	return s.echoServer.Start(address)
}

// Shutdown drains in-flight requests and background generations.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.scheduler.Shutdown(ctx); err != nil {
		slog.Warn("scheduler shutdown timed out", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}
