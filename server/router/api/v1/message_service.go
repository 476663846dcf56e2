package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apperrors "github.com/driftchat/driftchat/server/internal/errors"
	"github.com/driftchat/driftchat/server/service/chat"
	"github.com/driftchat/driftchat/store"
)

type SubmitMessageRequest struct {
	// ConversationUID is empty when starting a new conversation.
	ConversationUID string `json:"conversation_uid"`
	Text            string `json:"text"`
	// Model is optional; the server default applies when empty.
	Model string `json:"model"`
	// StopSequences optionally terminate the generation early.
	StopSequences []string `json:"stop_sequences,omitempty"`
}

type SubmitMessageResponse struct {
	Conversation *ConversationResponse `json:"conversation"`
	Message      *MessageResponse      `json:"message"`
}

type MessageResponse struct {
	UID       string `json:"uid"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Model     string `json:"model"`
	Status    string `json:"status"`
	CreatedTs int64  `json:"created_ts"`
	UpdatedTs int64  `json:"updated_ts"`
}

func toMessageResponse(message *store.Message) *MessageResponse {
	return &MessageResponse{
		UID:       message.UID,
		Role:      string(message.Role),
		Content:   message.Content,
		Model:     message.Model,
		Status:    string(message.Status),
		CreatedTs: message.CreatedTs,
		UpdatedTs: message.UpdatedTs,
	}
}

// SubmitMessage accepts one user turn and queues the assistant reply.
// Returns 202 because generation continues after the response.
// POST /api/v1/messages
func (s *APIV1Service) SubmitMessage(c echo.Context) error {
	user := s.currentUser(c)
	if user == nil {
		return s.writeError(c, apperrors.Unauthenticated("sign in to send messages"))
	}
	if !s.rateLimiter.Allow(strconv.Itoa(int(user.ID))) {
		return s.writeError(c, apperrors.RateLimitExceeded("too many messages, slow down"))
	}

	req := &SubmitMessageRequest{}
	if err := c.Bind(req); err != nil {
		return s.writeError(c, apperrors.InvalidArgument("malformed request body"))
	}

	resp, err := s.ChatService.SubmitMessage(c.Request().Context(), user, &chat.SubmitMessageRequest{
		ConversationUID: req.ConversationUID,
		Text:            req.Text,
		Model:           req.Model,
		StopSequences:   req.StopSequences,
	})
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, SubmitMessageResponse{
		Conversation: toConversationResponse(resp.Conversation),
		Message:      toMessageResponse(resp.UserMessage),
	})
}

// ListModels returns the selectable model identifiers.
// GET /api/v1/models
func (s *APIV1Service) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"models": s.ChatService.Models()})
}
