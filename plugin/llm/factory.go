package llm

import "fmt"

// Provider endpoint defaults. Every backend in the registry exposes an
// OpenAI-compatible chat completion API at these bases.
const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openAIBaseURL     = "https://api.openai.com/v1"
	geminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai"
	deepSeekBaseURL   = "https://api.deepseek.com"
)

// Factory builds a Service for a resolved model spec and credential.
// Declared as a type so tests can substitute a fake provider.
type Factory func(spec ModelSpec, apiKey string) (Service, error)

// NewServiceForSpec creates the concrete provider adapter for a model spec.
func NewServiceForSpec(spec ModelSpec, apiKey string) (Service, error) {
	baseURL := ""
	switch spec.Provider {
	case ProviderOpenRouter:
		baseURL = openRouterBaseURL
	case ProviderOpenAI:
		baseURL = openAIBaseURL
	case ProviderGemini:
		baseURL = geminiBaseURL
	case ProviderDeepSeek:
		baseURL = deepSeekBaseURL
	default:
		return nil, fmt.Errorf("unsupported provider: %s", spec.Provider)
	}

	return NewService(&ClientConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   spec.Model,
	})
}
