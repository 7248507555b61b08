package llm

import (
	"context"
	"errors"
	"testing"
)

// MockProvider is a test double that satisfies the Provider interface.
type MockProvider struct {
	CompleteFunc func(ctx context.Context, messages []Message) (*Response, error)
	Received     []Message
}

func (m *MockProvider) Complete(ctx context.Context, messages []Message) (*Response, error) {
	m.Received = messages
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages)
	}
	return &Response{Content: "mock response"}, nil
}

func TestProviderEngineBuildsMessages(t *testing.T) {
	mock := &MockProvider{}
	engine := ProviderEngine{Provider: mock}

	out, err := engine.Generate(context.Background(), "be nice", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if out != "mock response" {
		t.Errorf("expected 'mock response', got %q", out)
	}
	if len(mock.Received) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(mock.Received))
	}
	if mock.Received[0].Role != RoleSystem || mock.Received[0].Content != "be nice" {
		t.Errorf("unexpected system message %+v", mock.Received[0])
	}
	if mock.Received[1].Role != RoleUser || mock.Received[1].Content != "hello" {
		t.Errorf("unexpected user message %+v", mock.Received[1])
	}
}

func TestProviderEngineOmitsBlankSystemPrompt(t *testing.T) {
	mock := &MockProvider{}
	engine := ProviderEngine{Provider: mock}

	if _, err := engine.Generate(context.Background(), "  ", "hello"); err != nil {
		t.Fatal(err)
	}
	if len(mock.Received) != 1 {
		t.Fatalf("expected only the user message, got %d", len(mock.Received))
	}
}

func TestProviderEngineEmptyResponse(t *testing.T) {
	mock := &MockProvider{
		CompleteFunc: func(ctx context.Context, messages []Message) (*Response, error) {
			return &Response{Content: "   "}, nil
		},
	}
	_, err := ProviderEngine{Provider: mock}.Generate(context.Background(), "", "hi")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestProviderEngineError(t *testing.T) {
	boom := errors.New("connection refused")
	mock := &MockProvider{
		CompleteFunc: func(ctx context.Context, messages []Message) (*Response, error) {
			return nil, boom
		},
	}
	_, err := ProviderEngine{Provider: mock}.Generate(context.Background(), "", "hi")
	if !errors.Is(err, boom) {
		t.Errorf("expected provider error, got %v", err)
	}
}
