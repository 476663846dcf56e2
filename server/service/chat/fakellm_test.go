package chat

import (
	"context"
	"sync"

	"github.com/driftchat/driftchat/plugin/llm"
)

// fakeLLM is a scripted provider. It replays chunks, then optionally
// fails, and records the prompts it was given.
type fakeLLM struct {
	mu sync.Mutex

	chunks    []string
	streamErr error

	completeText string
	completeErr  error

	prompts    [][]llm.Message
	streamOpts []*llm.ChatOptions
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, messages)
	f.mu.Unlock()
	return f.completeText, f.completeErr
}

func (f *fakeLLM) StreamComplete(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, messages)
	f.streamOpts = append(f.streamOpts, opts)
	f.mu.Unlock()

	contentCh := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		defer close(contentCh)
		defer close(errCh)
		for _, chunk := range f.chunks {
			select {
			case contentCh <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if f.streamErr != nil {
			errCh <- f.streamErr
		}
	}()
	return contentCh, errCh
}

func (f *fakeLLM) lastStreamOpts() *llm.ChatOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streamOpts) == 0 {
		return nil
	}
	return f.streamOpts[len(f.streamOpts)-1]
}

func (f *fakeLLM) lastPrompt() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return nil
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeLLM) factory() llm.Factory {
	return func(llm.ModelSpec, string) (llm.Service, error) {
		return f, nil
	}
}
