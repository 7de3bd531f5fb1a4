// internal/narrator/narrator.go

// Package narrator asks a chat-completion model to narrate the next beat of an adventure.
package narrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jason-s-yu/realms/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

// ErrNoCompletion is returned when the model answers without any usable text.
var ErrNoCompletion = errors.New("narrator returned no completion")

// Turn is one chat message handed to the model.
type Turn struct {
	Role    string
	Content string
}

// Prompt is a system instruction followed by the conversation so far.
type Prompt struct {
	System string
	Turns  []Turn
}

// Client wraps an OpenAI-compatible chat-completion endpoint.
type Client struct {
	api       *openai.Client
	model     string
	maxTokens int
}

func New(cfg config.NarratorConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		api:       openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: cfg.MaxTokens,
	}
}

// Narrate sends p and returns the assistant's reply. There is no retry.
func (c *Client) Narrate(ctx context.Context, p Prompt) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(p.Turns)+1)
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	for _, t := range p.Turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  msgs,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrNoCompletion
	}
	return content, nil
}
