package v1

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/server/auth"
	"github.com/driftchat/driftchat/server/middleware"
	"github.com/driftchat/driftchat/server/service/chat"
	"github.com/driftchat/driftchat/store"
)

// Submission rate limit per user: sustained one message per 2 seconds,
// short bursts of 5.
const (
	submitRatePerSecond = 0.5
	submitBurst         = 5
)

type APIV1Service struct {
	Secret  string
	Profile *profile.Profile
	Store   *store.Store

	AuthService *auth.Service
	ChatService *chat.Service

	logger      *slog.Logger
	rateLimiter *middleware.RateLimiter
}

func NewAPIV1Service(secret string, prof *profile.Profile, st *store.Store, authService *auth.Service, chatService *chat.Service, logger *slog.Logger) *APIV1Service {
	return &APIV1Service{
		Secret:      secret,
		Profile:     prof,
		Store:       st,
		AuthService: authService,
		ChatService: chatService,
		logger:      logger,
		rateLimiter: middleware.NewRateLimiter(submitRatePerSecond, submitBurst),
	}
}

// Register wires all v1 routes onto the Echo instance. Every route runs
// the auth middleware; handlers that allow anonymous access tolerate a
// nil user in the request context.
func (s *APIV1Service) Register(echoServer *echo.Echo) {
	g := echoServer.Group("/api/v1", s.authMiddleware)

	g.POST("/auth/signup", s.SignUp)
	g.POST("/auth/signin", s.SignIn)

	g.GET("/models", s.ListModels)

	g.POST("/messages", s.SubmitMessage)

	g.GET("/conversations", s.ListConversations)
	g.GET("/conversations/:uid", s.GetConversation)
	g.DELETE("/conversations/:uid", s.DeleteConversation)
	g.GET("/conversations/:uid/messages", s.ListMessages)
	g.PATCH("/conversations/:uid/visibility", s.SetVisibility)
	g.POST("/conversations/:uid/stop", s.StopGeneration)
	g.POST("/conversations/:uid/retry", s.RetryGeneration)

	g.GET("/user/apikey", s.GetAPIKeyState)
	g.PUT("/user/apikey", s.SetAPIKey)
	g.DELETE("/user/apikey", s.DeleteAPIKey)
}

// authMiddleware resolves the bearer token, if any, into a user on the
// request context. Authorization itself is enforced per handler.
func (s *APIV1Service) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		user := s.AuthService.Authenticate(ctx, c.Request().Header.Get(echo.HeaderAuthorization))
		if user != nil {
			c.SetRequest(c.Request().WithContext(auth.WithUser(ctx, user)))
		}
		return next(c)
	}
}

func (s *APIV1Service) currentUser(c echo.Context) *store.User {
	return auth.UserFromContext(c.Request().Context())
}
