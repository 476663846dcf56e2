package chat

import (
	"context"

	"github.com/driftchat/driftchat/plugin/llm"
	apperrors "github.com/driftchat/driftchat/server/internal/errors"
	"github.com/driftchat/driftchat/store"
)

// resolveAPIKey picks the credential for a generation. For OpenRouter the
// user's own stored key wins over the server-wide one; other providers
// only have the server-wide key.
func (s *Service) resolveAPIKey(ctx context.Context, creatorID int32, modelID string) (string, error) {
	spec, err := s.registry.Resolve(modelID)
	if err != nil {
		return "", apperrors.InvalidModel(modelID)
	}

	var fallback string
	switch spec.Provider {
	case llm.ProviderOpenRouter:
		user, err := s.store.GetUser(ctx, &store.FindUser{ID: &creatorID})
		if err != nil {
			return "", apperrors.Internal("failed to load user", err)
		}
		if user != nil && user.OpenRouterKey != "" {
			decrypted, err := s.secrets.Decrypt(user.OpenRouterKey)
			if err != nil {
				return "", apperrors.Internal("failed to decrypt stored API key", err)
			}
			return decrypted, nil
		}
		fallback = s.profile.OpenRouterAPIKey
	case llm.ProviderOpenAI:
		fallback = s.profile.OpenAIAPIKey
	case llm.ProviderGemini:
		fallback = s.profile.GeminiAPIKey
	case llm.ProviderDeepSeek:
		fallback = s.profile.DeepSeekAPIKey
	}

	if fallback == "" {
		return "", apperrors.ProviderError("no API key configured for provider "+string(spec.Provider), nil)
	}
	return fallback, nil
}
