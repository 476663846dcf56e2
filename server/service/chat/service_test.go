package chat

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/driftchat/internal/profile"
	"github.com/driftchat/driftchat/internal/secrets"
	"github.com/driftchat/driftchat/plugin/llm"
	apperrors "github.com/driftchat/driftchat/server/internal/errors"
	"github.com/driftchat/driftchat/server/scheduler"
	"github.com/driftchat/driftchat/store"
)

var errTest = errors.New("test error")

type fixture struct {
	service *Service
	store   *memoryStore
	llm     *fakeLLM
	user    *store.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := newMemoryStore()
	box, err := secrets.NewBox("test-passphrase")
	require.NoError(t, err)

	sched := scheduler.New(2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Shutdown(ctx)
	})

	fake := &fakeLLM{chunks: []string{"Hello", ", world"}}
	prof := &profile.Profile{
		Mode:             "dev",
		OpenRouterAPIKey: "sk-or-server-key",
		OpenAIAPIKey:     "sk-openai",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := NewService(st, llm.NewRegistry(), sched, prof, box, logger)
	service.factory = fake.factory()

	user := st.addUser(&store.User{UID: "u1", Email: "a@b.c", Nickname: "a"})
	return &fixture{service: service, store: st, llm: fake, user: user}
}

func (f *fixture) seedConversation(t *testing.T, text string) *store.Conversation {
	t.Helper()
	now := time.Now().Unix()
	conversation, err := f.store.CreateConversation(context.Background(), &store.Conversation{
		UID:        "c-" + text,
		CreatorID:  f.user.ID,
		Title:      text,
		Visibility: store.VisibilityPrivate,
		CreatedTs:  now,
		UpdatedTs:  now,
	})
	require.NoError(t, err)
	_, err = f.store.CreateMessage(context.Background(), &store.Message{
		UID:            "m-" + text,
		ConversationID: conversation.ID,
		Role:           store.MessageRoleUser,
		Content:        text,
		Model:          llm.DefaultModelID,
		Status:         store.MessageStatusCompleted,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	require.NoError(t, err)
	return conversation
}

func (f *fixture) messages(t *testing.T, conversationID int32) []*store.Message {
	t.Helper()
	messages, err := f.store.ListMessages(context.Background(), &store.FindMessage{ConversationID: &conversationID})
	require.NoError(t, err)
	return messages
}

func TestSubmitMessageStartsConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.SubmitMessage(ctx, f.user, &SubmitMessageRequest{Text: "What is the capital of France?"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Conversation.UID)
	require.Equal(t, store.VisibilityPrivate, resp.Conversation.Visibility)
	require.Equal(t, "What is the capital of France?", resp.Conversation.Title)
	require.Equal(t, store.MessageRoleUser, resp.UserMessage.Role)
	require.Equal(t, store.MessageStatusCompleted, resp.UserMessage.Status)
	require.Equal(t, llm.DefaultModelID, resp.UserMessage.Model)

	// The generation runs detached; the reply lands shortly after.
	require.Eventually(t, func() bool {
		messages := f.messages(t, resp.Conversation.ID)
		return len(messages) == 2 && messages[1].Status == store.MessageStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	messages := f.messages(t, resp.Conversation.ID)
	require.Equal(t, store.MessageRoleAssistant, messages[1].Role)
	require.Equal(t, "Hello, world", messages[1].Content)
}

func TestSubmitMessageTruncatesProvisionalTitle(t *testing.T) {
	f := newFixture(t)

	long := strings.Repeat("x", 80)
	resp, err := f.service.SubmitMessage(context.Background(), f.user, &SubmitMessageRequest{Text: long})
	require.NoError(t, err)
	require.Len(t, resp.Conversation.Title, provisionalTitleLimit)
}

func TestSubmitMessageRejectsEmptyText(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SubmitMessage(context.Background(), f.user, &SubmitMessageRequest{Text: "   \n\t"})
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))
}

func TestSubmitMessageRejectsUnknownModel(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SubmitMessage(context.Background(), f.user, &SubmitMessageRequest{
		Text:  "hi",
		Model: "acme/imaginary-model",
	})
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidModel))

	conversations, listErr := f.service.ListConversations(context.Background(), f.user, nil)
	require.NoError(t, listErr)
	require.Empty(t, conversations, "rejected submit must not create records")
}

func TestSubmitMessageRejectsWhileStreaming(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "first question")

	now := time.Now().Unix()
	_, err := f.store.CreateMessage(ctx, &store.Message{
		UID:            "streaming",
		ConversationID: conversation.ID,
		Role:           store.MessageRoleAssistant,
		Model:          llm.DefaultModelID,
		Status:         store.MessageStatusStreaming,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	require.NoError(t, err)

	_, err = f.service.SubmitMessage(ctx, f.user, &SubmitMessageRequest{
		ConversationUID: conversation.UID,
		Text:            "impatient follow-up",
	})
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeGenerationInProgress))
}

func TestSubmitMessageRequiresAuth(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.SubmitMessage(context.Background(), nil, &SubmitMessageRequest{Text: "hi"})
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthenticated))
}

func TestGenerationContentGrowsAppendOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "tell me a story")
	f.llm.chunks = []string{"Once", " upon", " a time"}

	var snapshots []string
	f.store.afterMessageUpdate = func(updated *store.Message) {
		if updated.Role == store.MessageRoleAssistant {
			snapshots = append(snapshots, updated.Content)
		}
	}

	err := f.service.runGeneration(ctx, &generationJob{
		ConversationID: conversation.ID,
		CreatorID:      f.user.ID,
		Model:          llm.DefaultModelID,
	})
	require.NoError(t, err)

	require.NotEmpty(t, snapshots)
	for i := 1; i < len(snapshots); i++ {
		require.True(t, strings.HasPrefix(snapshots[i], snapshots[i-1]),
			"content must only grow: %q -> %q", snapshots[i-1], snapshots[i])
	}
	require.Equal(t, "Once upon a time", snapshots[len(snapshots)-1])

	messages := f.messages(t, conversation.ID)
	require.Len(t, messages, 2)
	require.Equal(t, store.MessageStatusCompleted, messages[1].Status)
}

func TestGenerationStopFreezesMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "long answer please")
	f.llm.chunks = []string{"partial", " more", " even more"}

	// Flip the status to STOPPED right after the first chunk lands,
	// simulating the stop endpoint racing the stream.
	stopped := false
	f.store.afterMessageUpdate = func(updated *store.Message) {
		if updated.Role != store.MessageRoleAssistant || stopped || updated.Status != store.MessageStatusStreaming {
			return
		}
		stopped = true
		status := store.MessageStatusStopped
		_, err := f.store.UpdateMessage(ctx, &store.UpdateMessage{ID: updated.ID, Status: &status})
		require.NoError(t, err)
	}

	err := f.service.runGeneration(ctx, &generationJob{
		ConversationID: conversation.ID,
		CreatorID:      f.user.ID,
		Model:          llm.DefaultModelID,
	})
	require.NoError(t, err)

	messages := f.messages(t, conversation.ID)
	require.Len(t, messages, 2)
	require.Equal(t, store.MessageStatusStopped, messages[1].Status)
	require.Equal(t, "partial", messages[1].Content, "no writes may follow an observed stop")
}

func TestGenerationErrorWritesFallbackText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "doomed question")
	f.llm.chunks = []string{"par"}
	f.llm.streamErr = errors.New("upstream exploded")

	err := f.service.runGeneration(ctx, &generationJob{
		ConversationID: conversation.ID,
		CreatorID:      f.user.ID,
		Model:          llm.DefaultModelID,
	})
	require.Error(t, err)

	messages := f.messages(t, conversation.ID)
	require.Len(t, messages, 2)
	require.Equal(t, store.MessageStatusError, messages[1].Status)
	require.Equal(t, assistantErrorText, messages[1].Content)
}

func TestGenerationPromptExcludesFailedTurns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "first")

	now := time.Now().Unix()
	for _, seed := range []struct {
		content string
		status  store.MessageStatus
	}{
		{assistantErrorText, store.MessageStatusError},
		{"half an answer", store.MessageStatusStopped},
		{"a full answer", store.MessageStatusCompleted},
	} {
		_, err := f.store.CreateMessage(ctx, &store.Message{
			UID:            "a-" + string(seed.status),
			ConversationID: conversation.ID,
			Role:           store.MessageRoleAssistant,
			Content:        seed.content,
			Model:          llm.DefaultModelID,
			Status:         seed.status,
			CreatedTs:      now,
			UpdatedTs:      now,
		})
		require.NoError(t, err)
	}

	err := f.service.runGeneration(ctx, &generationJob{
		ConversationID: conversation.ID,
		CreatorID:      f.user.ID,
		Model:          llm.DefaultModelID,
	})
	require.NoError(t, err)

	prompt := f.llm.lastPrompt()
	require.Len(t, prompt, 2)
	require.Equal(t, "first", prompt[0].Content)
	require.Equal(t, "a full answer", prompt[1].Content)
}

func TestStopGenerationIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "stop me")

	now := time.Now().Unix()
	created, err := f.store.CreateMessage(ctx, &store.Message{
		UID:            "streaming",
		ConversationID: conversation.ID,
		Role:           store.MessageRoleAssistant,
		Model:          llm.DefaultModelID,
		Status:         store.MessageStatusStreaming,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	require.NoError(t, err)

	stoppedUID, err := f.service.StopGeneration(ctx, f.user, conversation.UID)
	require.NoError(t, err)
	require.Equal(t, created.UID, stoppedUID, "the stopped message must be identified")

	current, err := f.store.GetMessage(ctx, &store.FindMessage{ID: &created.ID})
	require.NoError(t, err)
	require.Equal(t, store.MessageStatusStopped, current.Status)

	// Second stop has nothing to do and must not fail.
	stoppedUID, err = f.service.StopGeneration(ctx, f.user, conversation.UID)
	require.NoError(t, err)
	require.Empty(t, stoppedUID)
}

func TestStopGenerationWithNothingStreaming(t *testing.T) {
	f := newFixture(t)
	conversation := f.seedConversation(t, "calm conversation")

	stoppedUID, err := f.service.StopGeneration(context.Background(), f.user, conversation.UID)
	require.NoError(t, err)
	require.Empty(t, stoppedUID)
}

func TestRetryGenerationReplacesFailedMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "flaky question")

	now := time.Now().Unix()
	failed, err := f.store.CreateMessage(ctx, &store.Message{
		UID:            "failed",
		ConversationID: conversation.ID,
		Role:           store.MessageRoleAssistant,
		Content:        assistantErrorText,
		Model:          "openai/gpt-4o-mini",
		Status:         store.MessageStatusError,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.RetryGeneration(ctx, f.user, conversation.UID))

	gone, err := f.store.GetMessage(ctx, &store.FindMessage{ID: &failed.ID})
	require.NoError(t, err)
	require.Nil(t, gone, "the failed message must be deleted")

	// The retry re-runs with the failed message's model.
	require.Eventually(t, func() bool {
		messages := f.messages(t, conversation.ID)
		if len(messages) != 2 {
			return false
		}
		last := messages[len(messages)-1]
		return last.Status == store.MessageStatusCompleted && last.Model == "openai/gpt-4o-mini"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitMessagePassesStopSequences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.service.SubmitMessage(ctx, f.user, &SubmitMessageRequest{
		Text:          "count to ten",
		StopSequences: []string{"five"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		messages := f.messages(t, resp.Conversation.ID)
		return len(messages) == 2 && messages[1].Status.IsTerminal()
	}, 5*time.Second, 10*time.Millisecond)

	opts := f.llm.lastStreamOpts()
	require.NotNil(t, opts)
	require.Equal(t, []string{"five"}, opts.StopSequences)
}

func TestRetryGenerationAfterFirstFailureGeneratesTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "what is the capital of france")
	f.llm.completeText = "France Capital"

	now := time.Now().Unix()
	_, err := f.store.CreateMessage(ctx, &store.Message{
		UID:            "failed",
		ConversationID: conversation.ID,
		Role:           store.MessageRoleAssistant,
		Content:        assistantErrorText,
		Model:          llm.DefaultModelID,
		Status:         store.MessageStatusError,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	require.NoError(t, err)

	require.NoError(t, f.service.RetryGeneration(ctx, f.user, conversation.UID))

	// The retry succeeds and, because no exchange had completed before,
	// the title pass replaces the provisional title.
	require.Eventually(t, func() bool {
		updated, err := f.store.GetConversation(ctx, &store.FindConversation{ID: &conversation.ID})
		return err == nil && updated != nil && updated.Title == "France Capital"
	}, 10*time.Second, 20*time.Millisecond)
}

func TestRetryGenerationAfterLaterFailureKeepsTitle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "stable title")
	f.llm.completeText = "Should Not Appear"

	now := time.Now().Unix()
	for _, seed := range []struct {
		uid    string
		status store.MessageStatus
	}{
		{"done", store.MessageStatusCompleted},
		{"failed", store.MessageStatusError},
	} {
		_, err := f.store.CreateMessage(ctx, &store.Message{
			UID:            seed.uid,
			ConversationID: conversation.ID,
			Role:           store.MessageRoleAssistant,
			Content:        "text",
			Model:          llm.DefaultModelID,
			Status:         seed.status,
			CreatedTs:      now,
			UpdatedTs:      now,
		})
		require.NoError(t, err)
	}

	require.NoError(t, f.service.RetryGeneration(ctx, f.user, conversation.UID))

	require.Eventually(t, func() bool {
		messages := f.messages(t, conversation.ID)
		if len(messages) != 3 {
			return false
		}
		last := messages[len(messages)-1]
		return last.Role == store.MessageRoleAssistant && last.Status == store.MessageStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	// No title pass: one exchange had already completed.
	time.Sleep(1500 * time.Millisecond)
	updated, err := f.store.GetConversation(ctx, &store.FindConversation{ID: &conversation.ID})
	require.NoError(t, err)
	require.Equal(t, "stable title", updated.Title)
}

func TestRetryGenerationWithoutFailure(t *testing.T) {
	f := newFixture(t)
	conversation := f.seedConversation(t, "nothing failed here")

	err := f.service.RetryGeneration(context.Background(), f.user, conversation.UID)
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeNothingToRetry))
}

func TestListMessagesVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "secret plans")
	stranger := f.store.addUser(&store.User{UID: "u2", Email: "x@y.z"})

	_, _, err := f.service.ListMessages(ctx, stranger, conversation.UID)
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))

	_, _, err = f.service.ListMessages(ctx, nil, conversation.UID)
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))

	_, err = f.service.SetVisibility(ctx, f.user, conversation.UID, store.VisibilityPublic)
	require.NoError(t, err)

	_, messages, err := f.service.ListMessages(ctx, stranger, conversation.UID)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	_, messages, err = f.service.ListMessages(ctx, nil, conversation.UID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
}

func TestSetVisibilityRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	conversation := f.seedConversation(t, "mine")
	stranger := f.store.addUser(&store.User{UID: "u2", Email: "x@y.z"})

	_, err := f.service.SetVisibility(context.Background(), stranger, conversation.UID, store.VisibilityPublic)
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeUnauthorized))
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conversation := f.seedConversation(t, "throwaway")

	require.NoError(t, f.service.DeleteConversation(ctx, f.user, conversation.UID))

	_, err := f.service.GetConversation(ctx, f.user, conversation.UID)
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
	require.Empty(t, f.messages(t, conversation.ID))
}

func TestAPIKeyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hasKey, err := f.service.HasAPIKey(ctx, f.user)
	require.NoError(t, err)
	require.False(t, hasKey)

	err = f.service.SetAPIKey(ctx, f.user, "sk-wrong-prefix")
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidArgument))

	require.NoError(t, f.service.SetAPIKey(ctx, f.user, "sk-or-v1-abcdef"))

	hasKey, err = f.service.HasAPIKey(ctx, f.user)
	require.NoError(t, err)
	require.True(t, hasKey)

	// Stored encrypted, never as given.
	stored, err := f.store.GetUser(ctx, &store.FindUser{ID: &f.user.ID})
	require.NoError(t, err)
	require.NotEqual(t, "sk-or-v1-abcdef", stored.OpenRouterKey)
	require.NotContains(t, stored.OpenRouterKey, "abcdef")

	// The generation path decrypts the user's key back.
	key, err := f.service.resolveAPIKey(ctx, f.user.ID, llm.DefaultModelID)
	require.NoError(t, err)
	require.Equal(t, "sk-or-v1-abcdef", key)

	require.NoError(t, f.service.DeleteAPIKey(ctx, f.user))
	hasKey, err = f.service.HasAPIKey(ctx, f.user)
	require.NoError(t, err)
	require.False(t, hasKey)
}

func TestResolveAPIKeyFallsBackToServerKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := f.service.resolveAPIKey(ctx, f.user.ID, llm.DefaultModelID)
	require.NoError(t, err)
	require.Equal(t, "sk-or-server-key", key)

	key, err = f.service.resolveAPIKey(ctx, f.user.ID, "openai/gpt-4o-mini")
	require.NoError(t, err)
	require.Equal(t, "sk-openai", key)

	// No key configured for the provider at all.
	_, err = f.service.resolveAPIKey(ctx, f.user.ID, "deepseek/deepseek-chat")
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeProviderError))
}
