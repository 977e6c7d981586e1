package llm

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIService implements the completion service using OpenAI.
type OpenAIService struct {
	client openai.Client
	model  string
}

// NewOpenAIService creates a new OpenAI completion service.
func NewOpenAIService(apiKey, model, baseURL string) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIService{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Complete generates a completion for the given messages.
func (s *OpenAIService) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	log.Debug("Requesting completion from OpenAI", "model", s.model)

	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case "system":
			openaiMessages[i] = openai.SystemMessage(m.Content)
		case "assistant":
			openaiMessages[i] = openai.AssistantMessage(m.Content)
		default:
			openaiMessages[i] = openai.UserMessage(m.Content)
		}
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(s.model),
		Messages:    openaiMessages,
		Temperature: openai.Float(opts.Temperature),
		MaxTokens:   openai.Int(int64(opts.MaxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion returned", ErrGeneration)
	}

	return resp.Choices[0].Message.Content, nil
}

// Provider returns the provider name.
func (s *OpenAIService) Provider() Provider {
	return ProviderOpenAI
}

// ModelName returns the model name.
func (s *OpenAIService) ModelName() string {
	return s.model
}
