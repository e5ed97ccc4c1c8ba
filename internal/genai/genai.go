// Package genai generates assistant replies through the OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cresceapp/cresce/internal/models"
)

// ErrNoChoicesReturned indicates the model responded with an empty choice list.
var ErrNoChoicesReturned = errors.New("no choices returned")

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// ClientInterface is the reply generation surface consumed by the API layer.
type ClientInterface interface {
	GenerateReply(ctx context.Context, contextBlock string, history []models.MemoryEntry, userText string) (string, error)
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// systemPersona frames every generated reply; the per-turn conversation
// context is appended to it.
const systemPersona = "Você é uma assistente virtual acolhedora que apoia mães e pais " +
	"no desenvolvimento dos seus bebês. Responda sempre em português brasileiro, " +
	"de forma breve, empática e prática. Nunca dê diagnósticos médicos; em caso de " +
	"preocupação séria, recomende procurar um pediatra."

// chatService is the minimal surface of the chat completion API; tests
// substitute a mock.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionService adapts the OpenAI SDK's chat completion service to chatService.
type completionService struct {
	svc openai.ChatCompletionService
}

func (c completionService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding the OPENAI_API_KEY variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat  chatService
	model string
}

// NewClient initializes a GenAI client. The API key comes from the options
// or the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: completionService{svc: cli.Chat.Completions}, model: cfg.Model}, nil
}

// GenerateReply produces one assistant turn. contextBlock is the serialized
// conversation context; history is the recent exchange replayed to the model
// in chronological order; userText is the message being answered.
func (c *Client) GenerateReply(ctx context.Context, contextBlock string, history []models.MemoryEntry, userText string) (string, error) {
	system := systemPersona
	if contextBlock != "" {
		system += "\n\n" + contextBlock
	}
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	for _, m := range history {
		if m.Role == models.RoleAssistantResponse {
			messages = append(messages, openai.AssistantMessage(m.Content))
		} else {
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userText))

	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	slog.Debug("GenAI.GenerateReply: reply generated", "model", c.model, "history_messages", len(history), "reply_length", len(reply))
	return reply, nil
}

// GeneratePrompt generates a response from a bare system/user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.chat.Create(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate prompt: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
