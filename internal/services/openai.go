package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ModelClient abstracts the chat-completion provider so the loop can be
// exercised against a fake. The model tier is always chosen per call through
// ModelName; implementations hold no per-turn state.
type ModelClient interface {
	ModelName(advanced bool) string
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CompleteStream(ctx context.Context, req openai.ChatCompletionRequest, onDelta func(string)) (string, error)
}

var modelClientInstance ModelClient

// SetModelClient sets the global model client (call from main.go)
func SetModelClient(c ModelClient) {
	modelClientInstance = c
}

// GetModelClient returns the global model client
func GetModelClient() ModelClient {
	return modelClientInstance
}

// OpenAIClient is the production ModelClient
type OpenAIClient struct {
	client        *openai.Client
	baseModel     string
	advancedModel string
}

// NewOpenAIClient creates the client from environment configuration
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}

	baseModel := os.Getenv("OPENAI_MODEL")
	if baseModel == "" {
		baseModel = openai.GPT4oMini
	}
	advancedModel := os.Getenv("OPENAI_MODEL_ADVANCED")
	if advancedModel == "" {
		advancedModel = openai.GPT4o
	}

	return &OpenAIClient{
		client:        openai.NewClient(apiKey),
		baseModel:     baseModel,
		advancedModel: advancedModel,
	}, nil
}

// ModelName resolves the tier for one call
func (c *OpenAIClient) ModelName(advanced bool) string {
	if advanced {
		return c.advancedModel
	}
	return c.baseModel
}

// Complete runs one non-streaming chat completion
func (c *OpenAIClient) Complete(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionResponse{}, fmt.Errorf("openai chat completion: empty choices")
	}
	return resp, nil
}

// CompleteStream runs a streaming completion, pushing each text delta to
// onDelta and returning the assembled reply
func (c *OpenAIClient) CompleteStream(ctx context.Context, req openai.ChatCompletionRequest, onDelta func(string)) (string, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat stream: %w", err)
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return reply.String(), fmt.Errorf("openai chat stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	return reply.String(), nil
}
