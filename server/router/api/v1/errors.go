package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/driftchat/driftchat/server/internal/errors"
)

// ErrorResponse is the JSON body returned for every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var codeToStatus = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeUnauthenticated:      http.StatusUnauthorized,
	apperrors.ErrCodeUnauthorized:         http.StatusForbidden,
	apperrors.ErrCodeInvalidArgument:      http.StatusBadRequest,
	apperrors.ErrCodeInvalidModel:         http.StatusBadRequest,
	apperrors.ErrCodeNotFound:             http.StatusNotFound,
	apperrors.ErrCodeNothingToRetry:       http.StatusConflict,
	apperrors.ErrCodeGenerationInProgress: http.StatusConflict,
	apperrors.ErrCodeRateLimitExceeded:    http.StatusTooManyRequests,
	apperrors.ErrCodeProviderError:        http.StatusBadGateway,
	apperrors.ErrCodeInternal:             http.StatusInternalServerError,
}

// writeError maps a service error to its HTTP response. Internal causes
// are logged, never serialized.
func (s *APIV1Service) writeError(c echo.Context, err error) error {
	chatErr, ok := err.(*apperrors.ChatError)
	if !ok {
		chatErr = apperrors.Internal("unexpected error", err)
	}
	status, ok := codeToStatus[chatErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", c.Path(),
			"code", string(chatErr.Code),
			"error", chatErr.Error())
	}
	return c.JSON(status, ErrorResponse{
		Code:    string(chatErr.Code),
		Message: chatErr.Message,
	})
}
