// Package ai adapts a langchaingo chat model to the conversation Responder.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	coreconfig "github.com/m3rciful/leadbot/core/config"
	"github.com/m3rciful/leadbot/core/logger"
	"github.com/m3rciful/leadbot/core/netx"
)

// ErrEmptyReply is returned when the model answers with no choices or blank text.
var ErrEmptyReply = errors.New("empty model reply")

// Responder generates assistant replies through a langchaingo model.
type Responder struct {
	llm         llms.Model
	provider    string
	modelName   string
	maxTokens   int
	temperature float64
}

// NewResponder creates the provider model selected in cfg.
func NewResponder(cfg coreconfig.AIConfig) (*Responder, error) {
	client := netx.BuildHTTPClient(netx.NoRetryOptions(time.Duration(cfg.TimeoutSeconds) * time.Second))

	var model llms.Model
	var err error
	switch cfg.Provider {
	case coreconfig.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaHost),
			ollama.WithHTTPClient(client),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case coreconfig.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(client),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case coreconfig.ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
			anthropic.WithHTTPClient(client),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}

	r := NewResponderWithModel(model, cfg.Model)
	r.provider = cfg.Provider
	r.maxTokens = cfg.MaxTokens
	r.temperature = cfg.Temperature
	return r, nil
}

// NewResponderWithModel wraps an already constructed model.
func NewResponderWithModel(model llms.Model, modelName string) *Responder {
	return &Responder{llm: model, modelName: modelName}
}

// Complete sends the system prompt and the rendered conversation as one chat exchange.
func (r *Responder) Complete(ctx context.Context, systemPrompt, conversation string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, conversation),
	}

	var opts []llms.CallOption
	if r.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(r.maxTokens))
	}
	if r.temperature > 0 {
		opts = append(opts, llms.WithTemperature(r.temperature))
	}

	start := time.Now()
	response, err := r.llm.GenerateContent(ctx, messages, opts...)
	took := logger.Took(start)
	if err != nil {
		logger.Warn(ctx, "ai", "ai.generate",
			slog.String("status", "fail"),
			slog.String("provider", r.provider),
			slog.String("model", r.modelName),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("generate with system: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices: %w", ErrEmptyReply)
	}
	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyReply
	}

	logger.Debug(ctx, "ai", "ai.generate",
		slog.String("status", "ok"),
		slog.String("provider", r.provider),
		slog.String("model", r.modelName),
		slog.Duration("duration", took),
	)
	return text, nil
}

// Model returns the configured model name.
func (r *Responder) Model() string {
	return r.modelName
}
