package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/driftchat/driftchat/server/internal/errors"
	"github.com/driftchat/driftchat/store"
)

type SignUpRequest struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	Token string        `json:"token"`
	User  *UserResponse `json:"user"`
}

type UserResponse struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
}

func toUserResponse(user *store.User) *UserResponse {
	return &UserResponse{
		UID:      user.UID,
		Email:    user.Email,
		Nickname: user.Nickname,
	}
}

// SignUp registers a new account.
// POST /api/v1/auth/signup
func (s *APIV1Service) SignUp(c echo.Context) error {
	req := &SignUpRequest{}
	if err := c.Bind(req); err != nil {
		return s.writeError(c, apperrors.InvalidArgument("malformed request body"))
	}
	user, token, err := s.AuthService.SignUp(c.Request().Context(), req.Email, req.Nickname, req.Password)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, SessionResponse{Token: token, User: toUserResponse(user)})
}

// SignIn exchanges credentials for a session token.
// POST /api/v1/auth/signin
func (s *APIV1Service) SignIn(c echo.Context) error {
	req := &SignInRequest{}
	if err := c.Bind(req); err != nil {
		return s.writeError(c, apperrors.InvalidArgument("malformed request body"))
	}
	user, token, err := s.AuthService.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, SessionResponse{Token: token, User: toUserResponse(user)})
}
