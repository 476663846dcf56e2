package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/driftchat/driftchat/server/internal/errors"
	"github.com/driftchat/driftchat/store"
)

type ConversationResponse struct {
	UID        string `json:"uid"`
	Title      string `json:"title"`
	Visibility string `json:"visibility"`
	CreatedTs  int64  `json:"created_ts"`
	UpdatedTs  int64  `json:"updated_ts"`
}

func toConversationResponse(conversation *store.Conversation) *ConversationResponse {
	return &ConversationResponse{
		UID:        conversation.UID,
		Title:      conversation.Title,
		Visibility: string(conversation.Visibility),
		CreatedTs:  conversation.CreatedTs,
		UpdatedTs:  conversation.UpdatedTs,
	}
}

// ListConversations returns the caller's conversations. An optional
// ?limit= caps the page size.
// GET /api/v1/conversations
func (s *APIV1Service) ListConversations(c echo.Context) error {
	var limit *int
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return s.writeError(c, apperrors.InvalidArgument("limit must be a positive integer"))
		}
		limit = &parsed
	}
	conversations, err := s.ChatService.ListConversations(c.Request().Context(), s.currentUser(c), limit)
	if err != nil {
		return s.writeError(c, err)
	}
	resp := make([]*ConversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		resp = append(resp, toConversationResponse(conversation))
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": resp})
}

// GetConversation returns one conversation if the caller may see it.
// GET /api/v1/conversations/:uid
func (s *APIV1Service) GetConversation(c echo.Context) error {
	conversation, err := s.ChatService.GetConversation(c.Request().Context(), s.currentUser(c), c.Param("uid"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(conversation))
}

// DeleteConversation removes a conversation and all its messages.
// DELETE /api/v1/conversations/:uid
func (s *APIV1Service) DeleteConversation(c echo.Context) error {
	if err := s.ChatService.DeleteConversation(c.Request().Context(), s.currentUser(c), c.Param("uid")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListMessages returns a conversation's messages in creation order.
// Public conversations are readable without a session.
// GET /api/v1/conversations/:uid/messages
func (s *APIV1Service) ListMessages(c echo.Context) error {
	conversation, messages, err := s.ChatService.ListMessages(c.Request().Context(), s.currentUser(c), c.Param("uid"))
	if err != nil {
		return s.writeError(c, err)
	}
	resp := make([]*MessageResponse, 0, len(messages))
	for _, message := range messages {
		resp = append(resp, toMessageResponse(message))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversation": toConversationResponse(conversation),
		"messages":     resp,
	})
}

type SetVisibilityRequest struct {
	Visibility string `json:"visibility"`
}

// SetVisibility toggles a conversation between PRIVATE and PUBLIC.
// PATCH /api/v1/conversations/:uid/visibility
func (s *APIV1Service) SetVisibility(c echo.Context) error {
	req := &SetVisibilityRequest{}
	if err := c.Bind(req); err != nil {
		return s.writeError(c, apperrors.InvalidArgument("malformed request body"))
	}
	conversation, err := s.ChatService.SetVisibility(c.Request().Context(), s.currentUser(c), c.Param("uid"), store.Visibility(req.Visibility))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toConversationResponse(conversation))
}

type StopGenerationResponse struct {
	Stopped bool `json:"stopped"`
	// StoppedMessageUID identifies the message that was stopped; empty
	// when nothing was streaming.
	StoppedMessageUID string `json:"stopped_message_uid,omitempty"`
}

// StopGeneration requests cancellation of the in-flight generation.
// Idempotent: stopping with nothing streaming succeeds with stopped=false.
// POST /api/v1/conversations/:uid/stop
func (s *APIV1Service) StopGeneration(c echo.Context) error {
	stoppedUID, err := s.ChatService.StopGeneration(c.Request().Context(), s.currentUser(c), c.Param("uid"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, StopGenerationResponse{
		Stopped:           stoppedUID != "",
		StoppedMessageUID: stoppedUID,
	})
}

// RetryGeneration re-runs the newest failed generation.
// POST /api/v1/conversations/:uid/retry
func (s *APIV1Service) RetryGeneration(c echo.Context) error {
	if err := s.ChatService.RetryGeneration(c.Request().Context(), s.currentUser(c), c.Param("uid")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusAccepted)
}
