package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/plugin/llm"
	"github.com/driftchat/driftchat/server/internal/observability"
	"github.com/driftchat/driftchat/store"
)

// assistantErrorText is the content written to the assistant message when
// a generation fails. Clients render it verbatim.
const assistantErrorText = "Error: Could not get a response from the AI."

// generationJob describes one queued assistant generation.
type generationJob struct {
	ConversationID int32
	CreatorID      int32
	Model          string
	StopSequences  []string
	GenerateTitle  bool
}

func (s *Service) scheduleGeneration(job *generationJob) {
	name := fmt.Sprintf("generate:%d", job.ConversationID)
	s.scheduler.ScheduleAfter(0, name, func(ctx context.Context) error {
		return s.runGeneration(ctx, job)
	})
}

// runGeneration streams one assistant reply into the store. Content is
// persisted chunk by chunk, and the message status is re-read on every
// chunk so a stop request lands between writes. After a stop is observed
// the message is never written again.
func (s *Service) runGeneration(ctx context.Context, job *generationJob) error {
	rc := observability.NewRequestContext(s.logger, job.Model, job.CreatorID)
	rc.Info("generation started",
		slog.Int64(observability.LogFieldConversation, int64(job.ConversationID)))

	history, err := s.store.ListMessages(ctx, &store.FindMessage{ConversationID: &job.ConversationID})
	if err != nil {
		return errors.Wrap(err, "failed to load history")
	}

	now := time.Now().Unix()
	assistant, err := s.store.CreateMessage(ctx, &store.Message{
		UID:            shortuuid.New(),
		ConversationID: job.ConversationID,
		Role:           store.MessageRoleAssistant,
		Content:        "",
		Model:          job.Model,
		Status:         store.MessageStatusStreaming,
		CreatedTs:      now,
		UpdatedTs:      now,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create assistant message")
	}

	content, streamErr := s.streamReply(ctx, rc, job, history, assistant)
	if streamErr != nil {
		if markErr := s.finishMessage(ctx, assistant.ID, assistantErrorText, store.MessageStatusError); markErr != nil {
			rc.Error("failed to mark generation as errored", markErr)
		}
		rc.Error("generation failed", streamErr,
			slog.Int64(observability.LogFieldConversation, int64(job.ConversationID)),
			slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
		return streamErr
	}

	// A stop observed mid-stream already froze the message; leave it alone.
	current, err := s.store.GetMessage(ctx, &store.FindMessage{ID: &assistant.ID})
	if err != nil {
		return errors.Wrap(err, "failed to re-read assistant message")
	}
	if current == nil || current.Status.IsTerminal() {
		rc.Info("generation stopped",
			slog.Int64(observability.LogFieldConversation, int64(job.ConversationID)),
			slog.Int64(observability.LogFieldDuration, rc.DurationMs()))
		return nil
	}

	if err := s.finishMessage(ctx, assistant.ID, content, store.MessageStatusCompleted); err != nil {
		return errors.Wrap(err, "failed to complete assistant message")
	}
	rc.Info("generation completed",
		slog.Int64(observability.LogFieldConversation, int64(job.ConversationID)),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()))

	if job.GenerateTitle {
		s.scheduleTitleGeneration(job.ConversationID, job.CreatorID)
	}
	return nil
}

// streamReply runs the provider stream and persists partial content. It
// returns the accumulated content, or an error when the provider failed.
// When a stop is observed it returns early with whatever was persisted.
func (s *Service) streamReply(ctx context.Context, rc *observability.RequestContext, job *generationJob, history []*store.Message, assistant *store.Message) (string, error) {
	apiKey, err := s.resolveAPIKey(ctx, job.CreatorID, job.Model)
	if err != nil {
		return "", err
	}
	spec, err := s.registry.Resolve(job.Model)
	if err != nil {
		return "", err
	}
	service, err := s.factory(spec, apiKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to create provider client")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var opts *llm.ChatOptions
	if len(job.StopSequences) > 0 {
		opts = &llm.ChatOptions{StopSequences: job.StopSequences}
	}
	contentCh, errCh := service.StreamComplete(streamCtx, historyToPrompt(history), opts)

	var accumulated string
	chunks := 0
	for chunk := range contentCh {
		accumulated += chunk
		chunks++

		// The stop endpoint flips the status row; observing it here is the
		// only cancellation path, so poll before every write. Any terminal
		// status freezes the message.
		current, err := s.store.GetMessage(ctx, &store.FindMessage{ID: &assistant.ID})
		if err != nil {
			return accumulated, errors.Wrap(err, "failed to poll message status")
		}
		if current == nil || current.Status.IsTerminal() {
			cancel()
			rc.Info("stop observed mid-stream",
				slog.Int64(observability.LogFieldConversation, int64(job.ConversationID)),
				slog.Int(observability.LogFieldChunks, chunks))
			return accumulated, nil
		}

		now := time.Now().Unix()
		if _, err := s.store.UpdateMessage(ctx, &store.UpdateMessage{
			ID:        assistant.ID,
			Content:   &accumulated,
			UpdatedTs: &now,
		}); err != nil {
			return accumulated, errors.Wrap(err, "failed to persist chunk")
		}
	}
	if err := <-errCh; err != nil {
		return accumulated, errors.Wrap(err, "provider stream failed")
	}

	rc.Debug("stream drained",
		slog.Int64(observability.LogFieldConversation, int64(job.ConversationID)),
		slog.Int(observability.LogFieldChunks, chunks))
	return accumulated, nil
}

func (s *Service) finishMessage(ctx context.Context, messageID int32, content string, status store.MessageStatus) error {
	now := time.Now().Unix()
	_, err := s.store.UpdateMessage(ctx, &store.UpdateMessage{
		ID:        messageID,
		Content:   &content,
		Status:    &status,
		UpdatedTs: &now,
	})
	return err
}

// historyToPrompt maps stored turns to provider messages. Stopped and
// errored assistant turns are excluded so the model never sees its own
// failure text.
func historyToPrompt(history []*store.Message) []llm.Message {
	prompt := make([]llm.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case store.MessageRoleUser:
			prompt = append(prompt, llm.UserMessage(m.Content))
		case store.MessageRoleAssistant:
			if m.Status == store.MessageStatusCompleted && m.Content != "" {
				prompt = append(prompt, llm.AssistantMessage(m.Content))
			}
		}
	}
	return prompt
}
