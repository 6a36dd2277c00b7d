package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	coreconfig "github.com/m3rciful/leadbot/core/config"
)

type fakeModel struct {
	messages []llms.MessageContent
	reply    *llms.ContentResponse
	err      error
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return f.reply, f.err
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestCompleteSendsSystemAndConversation(t *testing.T) {
	fm := &fakeModel{reply: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "  Привет! [LINK:https://x]  "}}}}
	r := NewResponderWithModel(fm, "test-model")

	got, err := r.Complete(context.Background(), "system rules", "User: hi\nAssistant:")
	require.NoError(t, err)
	assert.Equal(t, "Привет! [LINK:https://x]", got)

	require.Len(t, fm.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, fm.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fm.messages[1].Role)
	assert.Equal(t, llms.TextContent{Text: "User: hi\nAssistant:"}, fm.messages[1].Parts[0])
}

func TestCompleteErrors(t *testing.T) {
	r := NewResponderWithModel(&fakeModel{err: errors.New("429 rate limited")}, "m")
	_, err := r.Complete(context.Background(), "s", "c")
	assert.ErrorContains(t, err, "429")

	r = NewResponderWithModel(&fakeModel{reply: &llms.ContentResponse{}}, "m")
	_, err = r.Complete(context.Background(), "s", "c")
	assert.ErrorIs(t, err, ErrEmptyReply)

	r = NewResponderWithModel(&fakeModel{reply: &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "   "}}}}, "m")
	_, err = r.Complete(context.Background(), "s", "c")
	assert.ErrorIs(t, err, ErrEmptyReply)
}

func TestNewResponderValidatesProvider(t *testing.T) {
	_, err := NewResponder(coreconfig.AIConfig{Provider: "openai", Model: "gpt-4o"})
	assert.ErrorContains(t, err, "API key required")

	_, err = NewResponder(coreconfig.AIConfig{Provider: "bard"})
	assert.ErrorContains(t, err, "unsupported AI provider")

	r, err := NewResponder(coreconfig.AIConfig{Provider: "ollama", Model: "llama3.1", OllamaHost: "http://localhost:11434", TimeoutSeconds: 5})
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", r.Model())
}
