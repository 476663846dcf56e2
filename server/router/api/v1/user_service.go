package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/driftchat/driftchat/server/internal/errors"
)

type SetAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

type APIKeyStateResponse struct {
	HasKey bool `json:"has_key"`
}

// GetAPIKeyState reports whether the caller has a stored OpenRouter key.
// The key itself is never returned.
// GET /api/v1/user/apikey
func (s *APIV1Service) GetAPIKeyState(c echo.Context) error {
	hasKey, err := s.ChatService.HasAPIKey(c.Request().Context(), s.currentUser(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, APIKeyStateResponse{HasKey: hasKey})
}

// SetAPIKey stores the caller's own OpenRouter key.
// PUT /api/v1/user/apikey
func (s *APIV1Service) SetAPIKey(c echo.Context) error {
	req := &SetAPIKeyRequest{}
	if err := c.Bind(req); err != nil {
		return s.writeError(c, apperrors.InvalidArgument("malformed request body"))
	}
	if err := s.ChatService.SetAPIKey(c.Request().Context(), s.currentUser(c), req.APIKey); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteAPIKey removes the caller's stored OpenRouter key.
// DELETE /api/v1/user/apikey
func (s *APIV1Service) DeleteAPIKey(c echo.Context) error {
	if err := s.ChatService.DeleteAPIKey(c.Request().Context(), s.currentUser(c)); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
