package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OpenAIConfig configures an OpenAI-compatible chat completions backend.
// Local servers (ollama, llama.cpp, LM Studio, vLLM) expose the same API, so
// one client covers every provider.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int64
	Temperature *float64

	// OAuth, when set, authenticates through a client-credentials gateway
	// instead of a static API key.
	OAuth *clientcredentials.Config

	HTTPClient *http.Client
}

// OpenAIBackend implements Backend with the openai-go SDK.
type OpenAIBackend struct {
	client openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIBackend builds a backend. SDK-level retries are disabled; the
// coordinator owns retry policy.
func NewOpenAIBackend(ctx context.Context, cfg OpenAIConfig) (*OpenAIBackend, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("inference: openai backend requires a model")
	}
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	httpClient := cfg.HTTPClient
	if cfg.OAuth != nil {
		if httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		}
		httpClient = cfg.OAuth.Client(ctx)
		// The SDK insists on some key; the gateway ignores it.
		opts = append(opts, option.WithAPIKey("oauth2"))
	} else {
		key := cfg.APIKey
		if key == "" {
			key = "none"
		}
		opts = append(opts, option.WithAPIKey(key))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAIBackend{client: openai.NewClient(opts...), cfg: cfg}, nil
}

// Complete implements Backend.
func (b *OpenAIBackend) Complete(ctx context.Context, system, prompt string) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if system != "" {
		msgs = append(msgs, openai.SystemMessage(system))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(b.cfg.Model),
		Messages: msgs,
	}
	if b.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(b.cfg.MaxTokens)
	}
	if b.cfg.Temperature != nil {
		params.Temperature = openai.Float(*b.cfg.Temperature)
	}

	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("inference: %s returned no choices: %w", b.cfg.Model, ErrTransient)
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError marks rate limiting and server-side failures as
// transient.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}
	return err
}
