package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/internal/secrets"
	"github.com/driftchat/driftchat/plugin/llm"
	apperrors "github.com/driftchat/driftchat/server/internal/errors"
	"github.com/driftchat/driftchat/server/scheduler"
	"github.com/driftchat/driftchat/store"
)

// provisionalTitleLimit caps the placeholder title derived from the first
// user message before the generated one replaces it.
const provisionalTitleLimit = 50

// Store is the persistence surface the chat service needs.
// *store.Store satisfies it; tests substitute an in-memory fake.
type Store interface {
	CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error)
	GetConversation(ctx context.Context, find *store.FindConversation) (*store.Conversation, error)
	ListConversations(ctx context.Context, find *store.FindConversation) ([]*store.Conversation, error)
	UpdateConversation(ctx context.Context, update *store.UpdateConversation) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, delete *store.DeleteConversation) error

	CreateMessage(ctx context.Context, create *store.Message) (*store.Message, error)
	GetMessage(ctx context.Context, find *store.FindMessage) (*store.Message, error)
	ListMessages(ctx context.Context, find *store.FindMessage) ([]*store.Message, error)
	UpdateMessage(ctx context.Context, update *store.UpdateMessage) (*store.Message, error)
	DeleteMessage(ctx context.Context, delete *store.DeleteMessage) error

	GetUser(ctx context.Context, find *store.FindUser) (*store.User, error)
	UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error)
}

// Service implements the conversation and generation operations. All
// generation work runs detached on the scheduler; request handlers return
// as soon as the user message is persisted.
type Service struct {
	store     Store
	registry  *llm.Registry
	scheduler *scheduler.Scheduler
	profile   *profile.Profile
	secrets   *secrets.Box
	factory   llm.Factory
	logger    *slog.Logger
}

// NewService creates the chat service.
func NewService(st Store, registry *llm.Registry, sched *scheduler.Scheduler, prof *profile.Profile, box *secrets.Box, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		registry:  registry,
		scheduler: sched,
		profile:   prof,
		secrets:   box,
		factory:   llm.NewServiceForSpec,
		logger:    logger,
	}
}

// SubmitMessageRequest carries one user turn. An empty ConversationUID
// starts a new conversation; an empty Model selects the default.
// StopSequences are passed through to the provider for this generation.
type SubmitMessageRequest struct {
	ConversationUID string
	Text            string
	Model           string
	StopSequences   []string
}

// SubmitMessageResponse returns the persisted user message and the
// conversation it landed in. The assistant reply streams in later.
type SubmitMessageResponse struct {
	Conversation *store.Conversation
	UserMessage  *store.Message
}

// SubmitMessage validates and persists a user turn, then queues the
// assistant generation. Rejects while a generation is already streaming
// in the target conversation.
func (s *Service) SubmitMessage(ctx context.Context, user *store.User, req *SubmitMessageRequest) (*SubmitMessageResponse, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated("sign in to send messages")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, apperrors.InvalidArgument("message text must not be empty")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = llm.DefaultModelID
	}
	if !s.registry.IsAllowed(modelID) {
		return nil, apperrors.InvalidModel(modelID)
	}

	now := time.Now().Unix()
	var conversation *store.Conversation
	newConversation := false
	if req.ConversationUID == "" {
		created, err := s.store.CreateConversation(ctx, &store.Conversation{
			UID:        shortuuid.New(),
			CreatorID:  user.ID,
			Title:      provisionalTitle(text),
			Visibility: store.VisibilityPrivate,
			CreatedTs:  now,
			UpdatedTs:  now,
		})
		if err != nil {
			return nil, apperrors.Internal("failed to create conversation", err)
		}
		conversation = created
		newConversation = true
	} else {
		found, err := s.findOwnedConversation(ctx, user, req.ConversationUID)
		if err != nil {
			return nil, err
		}
		conversation = found

		streaming, err := s.findStreamingMessage(ctx, conversation.ID)
		if err != nil {
			return nil, err
		}
		if streaming != nil {
			return nil, apperrors.GenerationInProgress()
		}
	}

	userMessage, err := s.store.CreateMessage(ctx, &store.Message{
		UID:            shortuuid.New(),
		ConversationID: conversation.ID,
		Role:           store.MessageRoleUser,
		Content:        text,
		Model:          modelID,
		Status:         store.MessageStatusCompleted,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to create message", err)
	}
	if _, err := s.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:        conversation.ID,
		UpdatedTs: &now,
	}); err != nil {
		return nil, apperrors.Internal("failed to touch conversation", err)
	}

	s.scheduleGeneration(&generationJob{
		ConversationID: conversation.ID,
		CreatorID:      user.ID,
		Model:          modelID,
		StopSequences:  req.StopSequences,
		GenerateTitle:  newConversation,
	})

	return &SubmitMessageResponse{
		Conversation: conversation,
		UserMessage:  userMessage,
	}, nil
}

// StopGeneration requests cancellation of the in-flight generation for a
// conversation. Returns the UID of the stopped message, or empty when
// nothing was streaming; calling stop twice, or with no generation
// running, is a harmless no-op.
func (s *Service) StopGeneration(ctx context.Context, user *store.User, conversationUID string) (string, error) {
	if user == nil {
		return "", apperrors.Unauthenticated("sign in to stop generation")
	}
	conversation, err := s.findOwnedConversation(ctx, user, conversationUID)
	if err != nil {
		return "", err
	}

	streaming, err := s.findStreamingMessage(ctx, conversation.ID)
	if err != nil {
		return "", err
	}
	if streaming == nil {
		return "", nil
	}

	now := time.Now().Unix()
	status := store.MessageStatusStopped
	if _, err := s.store.UpdateMessage(ctx, &store.UpdateMessage{
		ID:        streaming.ID,
		Status:    &status,
		UpdatedTs: &now,
	}); err != nil {
		return "", apperrors.Internal("failed to stop generation", err)
	}
	return streaming.UID, nil
}

// RetryGeneration deletes the newest failed assistant message and queues a
// fresh generation with the same model.
func (s *Service) RetryGeneration(ctx context.Context, user *store.User, conversationUID string) error {
	if user == nil {
		return apperrors.Unauthenticated("sign in to retry generation")
	}
	conversation, err := s.findOwnedConversation(ctx, user, conversationUID)
	if err != nil {
		return err
	}

	streaming, err := s.findStreamingMessage(ctx, conversation.ID)
	if err != nil {
		return err
	}
	if streaming != nil {
		return apperrors.GenerationInProgress()
	}

	messages, err := s.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversation.ID})
	if err != nil {
		return apperrors.Internal("failed to list messages", err)
	}
	var failed *store.Message
	hasCompletedReply := false
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != store.MessageRoleAssistant {
			continue
		}
		if messages[i].Status == store.MessageStatusCompleted {
			hasCompletedReply = true
		}
		if failed == nil && messages[i].Status == store.MessageStatusError {
			failed = messages[i]
		}
	}
	if failed == nil {
		return apperrors.NothingToRetry()
	}

	if err := s.store.DeleteMessage(ctx, &store.DeleteMessage{ID: &failed.ID}); err != nil {
		return apperrors.Internal("failed to delete failed message", err)
	}

	// A conversation whose first exchange never completed still carries its
	// provisional title; a successful retry should replace it.
	s.scheduleGeneration(&generationJob{
		ConversationID: conversation.ID,
		CreatorID:      user.ID,
		Model:          failed.Model,
		GenerateTitle:  !hasCompletedReply,
	})
	return nil
}

// ListMessages returns a conversation's messages in creation order. The
// owner always has access; everyone else only when the conversation is
// public.
func (s *Service) ListMessages(ctx context.Context, user *store.User, conversationUID string) (*store.Conversation, []*store.Message, error) {
	conversation, err := s.store.GetConversation(ctx, &store.FindConversation{UID: &conversationUID})
	if err != nil {
		return nil, nil, apperrors.Internal("failed to find conversation", err)
	}
	if conversation == nil {
		return nil, nil, apperrors.NotFound("conversation not found")
	}
	isOwner := user != nil && user.ID == conversation.CreatorID
	if !isOwner && conversation.Visibility != store.VisibilityPublic {
		return nil, nil, apperrors.Unauthorized("conversation is private")
	}

	messages, err := s.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversation.ID})
	if err != nil {
		return nil, nil, apperrors.Internal("failed to list messages", err)
	}
	return conversation, messages, nil
}

// ListConversations returns the caller's conversations, most recently
// updated first. A nil limit returns everything.
func (s *Service) ListConversations(ctx context.Context, user *store.User, limit *int) ([]*store.Conversation, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated("sign in to list conversations")
	}
	conversations, err := s.store.ListConversations(ctx, &store.FindConversation{CreatorID: &user.ID, Limit: limit})
	if err != nil {
		return nil, apperrors.Internal("failed to list conversations", err)
	}
	return conversations, nil
}

// GetConversation returns one conversation, honoring visibility.
func (s *Service) GetConversation(ctx context.Context, user *store.User, conversationUID string) (*store.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, &store.FindConversation{UID: &conversationUID})
	if err != nil {
		return nil, apperrors.Internal("failed to find conversation", err)
	}
	if conversation == nil {
		return nil, apperrors.NotFound("conversation not found")
	}
	isOwner := user != nil && user.ID == conversation.CreatorID
	if !isOwner && conversation.Visibility != store.VisibilityPublic {
		return nil, apperrors.Unauthorized("conversation is private")
	}
	return conversation, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Service) DeleteConversation(ctx context.Context, user *store.User, conversationUID string) error {
	if user == nil {
		return apperrors.Unauthenticated("sign in to delete conversations")
	}
	conversation, err := s.findOwnedConversation(ctx, user, conversationUID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMessage(ctx, &store.DeleteMessage{ConversationID: &conversation.ID}); err != nil {
		return apperrors.Internal("failed to delete messages", err)
	}
	if err := s.store.DeleteConversation(ctx, &store.DeleteConversation{ID: conversation.ID}); err != nil {
		return apperrors.Internal("failed to delete conversation", err)
	}
	return nil
}

// SetVisibility toggles a conversation between private and public.
func (s *Service) SetVisibility(ctx context.Context, user *store.User, conversationUID string, visibility store.Visibility) (*store.Conversation, error) {
	if user == nil {
		return nil, apperrors.Unauthenticated("sign in to change visibility")
	}
	if visibility != store.VisibilityPrivate && visibility != store.VisibilityPublic {
		return nil, apperrors.InvalidArgument("visibility must be PRIVATE or PUBLIC")
	}
	conversation, err := s.findOwnedConversation(ctx, user, conversationUID)
	if err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	updated, err := s.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:         conversation.ID,
		Visibility: &visibility,
		UpdatedTs:  &now,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to update visibility", err)
	}
	return updated, nil
}

// SetAPIKey stores the caller's own OpenRouter key, encrypted at rest.
func (s *Service) SetAPIKey(ctx context.Context, user *store.User, apiKey string) error {
	if user == nil {
		return apperrors.Unauthenticated("sign in to set an API key")
	}
	apiKey = strings.TrimSpace(apiKey)
	if !strings.HasPrefix(apiKey, "sk-or-") {
		return apperrors.InvalidArgument("API key must be an OpenRouter key starting with sk-or-")
	}
	encrypted, err := s.secrets.Encrypt(apiKey)
	if err != nil {
		return apperrors.Internal("failed to encrypt API key", err)
	}
	if _, err := s.store.UpdateUser(ctx, &store.UpdateUser{
		ID:            user.ID,
		OpenRouterKey: &encrypted,
	}); err != nil {
		return apperrors.Internal("failed to store API key", err)
	}
	return nil
}

// DeleteAPIKey removes the caller's stored OpenRouter key.
func (s *Service) DeleteAPIKey(ctx context.Context, user *store.User) error {
	if user == nil {
		return apperrors.Unauthenticated("sign in to delete an API key")
	}
	empty := ""
	if _, err := s.store.UpdateUser(ctx, &store.UpdateUser{
		ID:            user.ID,
		OpenRouterKey: &empty,
	}); err != nil {
		return apperrors.Internal("failed to delete API key", err)
	}
	return nil
}

// HasAPIKey reports whether the caller has a stored OpenRouter key. The
// key itself is never returned once set.
func (s *Service) HasAPIKey(ctx context.Context, user *store.User) (bool, error) {
	if user == nil {
		return false, apperrors.Unauthenticated("sign in to check API key state")
	}
	stored, err := s.store.GetUser(ctx, &store.FindUser{ID: &user.ID})
	if err != nil {
		return false, apperrors.Internal("failed to load user", err)
	}
	if stored == nil {
		return false, apperrors.NotFound("user not found")
	}
	return stored.OpenRouterKey != "", nil
}

// Models returns the model identifiers users may select.
func (s *Service) Models() []string {
	return s.registry.ModelIDs()
}

func (s *Service) findOwnedConversation(ctx context.Context, user *store.User, conversationUID string) (*store.Conversation, error) {
	conversation, err := s.store.GetConversation(ctx, &store.FindConversation{UID: &conversationUID})
	if err != nil {
		return nil, apperrors.Internal("failed to find conversation", err)
	}
	if conversation == nil {
		return nil, apperrors.NotFound("conversation not found")
	}
	if conversation.CreatorID != user.ID {
		return nil, apperrors.Unauthorized("conversation belongs to another user")
	}
	return conversation, nil
}

func (s *Service) findStreamingMessage(ctx context.Context, conversationID int32) (*store.Message, error) {
	status := store.MessageStatusStreaming
	messages, err := s.store.ListMessages(ctx, &store.FindMessage{
		ConversationID: &conversationID,
		Status:         &status,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to list streaming messages", err)
	}
	if len(messages) == 0 {
		return nil, nil
	}
	// Newest first; creation order is ascending.
	return messages[len(messages)-1], nil
}

func provisionalTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= provisionalTitleLimit {
		return text
	}
	return string(runes[:provisionalTitleLimit])
}
