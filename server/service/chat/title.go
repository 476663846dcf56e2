package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/driftchat/driftchat/plugin/llm"
	"github.com/driftchat/driftchat/store"
)

const titleMaxLength = 100

const titleSystemPrompt = "Generate a short, descriptive title for this conversation based on the exchange below. " +
	"Respond with the title only: no quotes, no trailing punctuation, at most a few words."

// scheduleTitleGeneration queues a title pass for a freshly completed first
// exchange. Title failures never surface to the user; the provisional
// title simply stays.
func (s *Service) scheduleTitleGeneration(conversationID, creatorID int32) {
	name := fmt.Sprintf("title:%d", conversationID)
	s.scheduler.ScheduleAfter(time.Second, name, func(ctx context.Context) error {
		return s.generateTitle(ctx, conversationID, creatorID)
	})
}

func (s *Service) generateTitle(ctx context.Context, conversationID, creatorID int32) error {
	messages, err := s.store.ListMessages(ctx, &store.FindMessage{ConversationID: &conversationID})
	if err != nil {
		return errors.Wrap(err, "failed to load messages for title")
	}
	prompt := historyToPrompt(messages)
	if len(prompt) == 0 {
		return nil
	}
	if len(prompt) > 2 {
		prompt = prompt[:2]
	}

	apiKey, err := s.resolveAPIKey(ctx, creatorID, llm.DefaultModelID)
	if err != nil {
		return err
	}
	spec, err := s.registry.Resolve(llm.DefaultModelID)
	if err != nil {
		return err
	}
	service, err := s.factory(spec, apiKey)
	if err != nil {
		return errors.Wrap(err, "failed to create provider client")
	}

	raw, err := service.Complete(ctx, append([]llm.Message{llm.SystemPrompt(titleSystemPrompt)}, prompt...))
	if err != nil {
		return errors.Wrap(err, "title completion failed")
	}
	title := cleanTitle(raw)
	if title == "" {
		return nil
	}

	now := time.Now().Unix()
	if _, err := s.store.UpdateConversation(ctx, &store.UpdateConversation{
		ID:        conversationID,
		Title:     &title,
		UpdatedTs: &now,
	}); err != nil {
		return errors.Wrap(err, "failed to save title")
	}
	return nil
}

// cleanTitle normalizes model output into a storable title.
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'")
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	runes := []rune(title)
	if len(runes) > titleMaxLength {
		title = string(runes[:titleMaxLength])
	}
	return title
}
