package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

const anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// AnthropicService implements the completion service using Anthropic Claude.
type AnthropicService struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// anthropicRequest is the request body for the Anthropic API.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the response from the Anthropic API.
type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewAnthropicService creates a new Anthropic completion service.
func NewAnthropicService(apiKey, model string) (*AnthropicService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	return &AnthropicService{
		apiKey:  apiKey,
		model:   model,
		baseURL: anthropicAPIURL,
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}, nil
}

// Complete generates a completion for the given messages.
func (s *AnthropicService) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	log.Debug("Requesting completion from Anthropic", "model", s.model)

	// The messages API takes the system prompt as a top-level field.
	var systemMsg string
	var userMessages []anthropicMessage

	for _, m := range messages {
		if m.Role == "system" {
			systemMsg = m.Content
		} else {
			userMessages = append(userMessages, anthropicMessage{
				Role:    m.Role,
				Content: m.Content,
			})
		}
	}

	reqBody := anthropicRequest{
		Model:       s.model,
		Messages:    userMessages,
		System:      systemMsg,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: anthropic returned status %d: %s", ErrGeneration, resp.StatusCode, string(body))
	}

	var result anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Content) == 0 {
		return "", fmt.Errorf("%w: no content in response", ErrGeneration)
	}

	return result.Content[0].Text, nil
}

// Provider returns the provider name.
func (s *AnthropicService) Provider() Provider {
	return ProviderAnthropic
}

// ModelName returns the model name.
func (s *AnthropicService) ModelName() string {
	return s.model
}
