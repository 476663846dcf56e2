package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
)

// openAIService talks to any OpenAI-compatible chat completion endpoint.
// OpenRouter, Gemini and DeepSeek all expose one, so a single wire client
// covers every provider in the registry.
type openAIService struct {
	client     *openai.Client
	model      string
	maxRetries int
}

// ClientConfig holds the connection settings for one provider endpoint.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
}

// NewService creates a Service backed by an OpenAI-compatible endpoint.
func NewService(cfg *ClientConfig) (Service, error) {
	if cfg == nil {
		return nil, errors.New("client config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &openAIService{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		maxRetries: maxRetries,
	}, nil
}

func (s *openAIService) Complete(ctx context.Context, messages []Message) (string, error) {
	var result string
	err := s.doWithRetry(ctx, func() error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    s.model,
			Messages: convertMessages(messages),
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty chat response")
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete chat: %w", err)
	}
	return result, nil
}

func (s *openAIService) StreamComplete(ctx context.Context, messages []Message, opts *ChatOptions) (<-chan string, <-chan error) {
	contentChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		req := openai.ChatCompletionRequest{
			Model:    s.model,
			Messages: convertMessages(messages),
			Stream:   true,
		}
		if opts != nil && len(opts.StopSequences) > 0 {
			req.Stop = opts.StopSequences
		}

		stream, err := s.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			errChan <- err
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errChan <- err
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			chunk := resp.Choices[0].Delta.Content
			if chunk == "" {
				continue
			}
			select {
			case contentChan <- chunk:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}
	}()

	return contentChan, errChan
}

// doWithRetry executes a function with exponential backoff retry.
func (s *openAIService) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < s.maxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("chat request failed, retrying",
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return converted
}
