package llm

import (
	"fmt"
	"sort"
)

// Provider identifies a remote text-generation backend.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderGemini     Provider = "gemini"
	ProviderDeepSeek   Provider = "deepseek"
)

// ModelSpec binds an allow-listed model identifier to the provider that
// serves it and the provider-native model name.
type ModelSpec struct {
	// ID is the public model identifier validated at submit time.
	ID string
	// Provider selects the backend adapter.
	Provider Provider
	// Model is the name the provider expects on the wire.
	Model string
}

// DefaultModelID is used when a submit request omits the model.
const DefaultModelID = "openai/gpt-4.1-nano"

// Registry holds the finite set of model identifiers users may select.
// Submitting anything outside this set is rejected before any store write.
type Registry struct {
	specs map[string]ModelSpec
}

// NewRegistry returns the registry with the built-in allow-list.
func NewRegistry() *Registry {
	specs := map[string]ModelSpec{}
	for _, spec := range []ModelSpec{
		{ID: "openai/gpt-4.1-nano", Provider: ProviderOpenRouter, Model: "openai/gpt-4.1-nano"},
		{ID: "openai/gpt-4o-mini", Provider: ProviderOpenAI, Model: "gpt-4o-mini"},
		{ID: "google/gemini-2.5-flash", Provider: ProviderGemini, Model: "gemini-2.5-flash"},
		{ID: "deepseek/deepseek-chat", Provider: ProviderDeepSeek, Model: "deepseek-chat"},
	} {
		specs[spec.ID] = spec
	}
	return &Registry{specs: specs}
}

// Resolve returns the spec for an allow-listed model identifier.
func (r *Registry) Resolve(modelID string) (ModelSpec, error) {
	spec, ok := r.specs[modelID]
	if !ok {
		return ModelSpec{}, fmt.Errorf("unknown model: %s", modelID)
	}
	return spec, nil
}

// IsAllowed reports whether the model identifier is in the allow-list.
func (r *Registry) IsAllowed(modelID string) bool {
	_, ok := r.specs[modelID]
	return ok
}

// ModelIDs returns the allow-listed identifiers in stable order.
func (r *Registry) ModelIDs() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
