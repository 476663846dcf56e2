package llm

import (
	"context"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// ChatOptions carries per-request generation options.
type ChatOptions struct {
	// StopSequences terminate generation early when emitted by the model.
	// Passed through to the provider opaquely.
	StopSequences []string
}

// Service is the text-generation service interface. One implementation
// exists per remote backend; all are interchangeable behind this contract.
type Service interface {
	// Complete performs a synchronous, single-shot completion.
	Complete(ctx context.Context, messages []Message) (string, error)

	// StreamComplete performs a streaming completion. The content channel
	// is closed on stream exhaustion; the error channel yields at most one
	// error and is closed afterwards.
	StreamComplete(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan string, <-chan error)
}

// Helper for creating system prompts
func SystemPrompt(content string) Message {
	return Message{Role: "system", Content: content}
}

// Helper for creating user messages
func UserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// Helper for creating assistant messages
func AssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}
