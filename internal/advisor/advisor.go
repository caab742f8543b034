// Package advisor answers chat messages through an OpenAI-compatible chat
// completion API.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"threadchat/internal/config"
)

// Failure classes of the upstream API.
var (
	ErrUnauthorized = errors.New("upstream rejected the api key")
	ErrRateLimited  = errors.New("upstream rate limit exceeded")
	ErrUpstream     = errors.New("upstream api error")
	ErrEmptyReply   = errors.New("upstream returned no choices")
)

// Service generates one reply per message.
type Service struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// New creates a service from the server config.
func New(cfg config.ServerConfig) *Service {
	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return &Service{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// Generate sends message as a single user turn and returns the trimmed reply.
func (s *Service) Generate(ctx context.Context, message string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// classify wraps err with the failure class matching its HTTP status.
// Transport failures are returned as they are.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return err
	}

	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	default:
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
}
