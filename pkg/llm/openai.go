package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/parley-ai/parley/pkg/chat"
)

const providerOpenAI = "openai"

// ModelGPT4oMini is the default OpenAI chat model.
const ModelGPT4oMini = "gpt-4o-mini"

// OpenAI implements Provider using the OpenAI chat-completion API.
// Unlike the Gemini backend it does not flatten history: the chat API is
// conversational natively, so messages are mapped role for role.
type OpenAI struct {
	config *Config
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI LLM provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = ModelGPT4oMini
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAI{
		config: cfg,
		client: openai.NewClientWithConfig(clientConfig),
		logger: cfg.Logger.With("component", "llm.openai"),
	}, nil
}

// Generate requests a chat completion for the mapped history.
func (o *OpenAI) Generate(ctx context.Context, history []chat.Message) (string, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == chat.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	var resp openai.ChatCompletionResponse
	err := o.doWithRetry(ctx, func() error {
		var err error
		resp, err = o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       o.config.Model,
			Messages:    messages,
			Temperature: float32(o.config.Temperature),
		})
		return err
	})
	if err != nil {
		return "", WrapError(providerOpenAI, err)
	}

	if len(resp.Choices) == 0 {
		return "", WrapError(providerOpenAI, ErrEmptyCompletion)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", WrapError(providerOpenAI, ErrEmptyCompletion)
	}

	o.logger.Debug("completion generated",
		"model", o.config.Model,
		"history_len", len(history),
		"chars", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return text, nil
}

// Health checks API connectivity and API key validity.
func (o *OpenAI) Health(ctx context.Context) error {
	_, err := o.client.ListModels(ctx)
	if err != nil {
		return WrapError(providerOpenAI, err)
	}
	return nil
}

// Close releases resources held by the provider.
func (o *OpenAI) Close() error {
	return nil
}

// doWithRetry executes fn with fixed-increment backoff.
func (o *OpenAI) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= o.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		o.logger.Warn("retrying request", "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
