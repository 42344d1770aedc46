package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp       *openai.ChatCompletion
	err        error
	gotParams  openai.ChatCompletionNewParams
	callsCount int
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.gotParams = params
	m.callsCount++
	return m.resp, m.err
}

func TestSummarize_Success(t *testing.T) {
	mock := &mockChatService{
		resp: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "A short summary."}},
			},
		},
	}
	client := &Client{chat: mock, model: DefaultModel}
	out, err := client.Summarize(context.Background(), "summarize this", "some chat text")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "A short summary." {
		t.Errorf("expected 'A short summary.', got %q", out)
	}
	if mock.gotParams.Model != DefaultModel {
		t.Errorf("expected model %q, got %q", DefaultModel, mock.gotParams.Model)
	}
	if len(mock.gotParams.Messages) != 2 {
		t.Fatalf("expected system and user message, got %d messages", len(mock.gotParams.Messages))
	}
}

func TestSummarize_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: DefaultModel}
	_, err := client.Summarize(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestSummarize_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}, model: DefaultModel}
	_, err := client.Summarize(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.model != DefaultModel {
		t.Errorf("expected default model, got %q", cli.model)
	}
}

func TestNewClient_ModelFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	cli, err := NewClient()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cli.model != openai.ChatModel("gpt-4o") {
		t.Errorf("expected model from environment, got %q", cli.model)
	}
}
