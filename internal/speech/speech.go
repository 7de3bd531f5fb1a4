// internal/speech/speech.go

// Package speech turns narration text into base64 audio with the Google Text-to-Speech API.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/realms/internal/config"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"
)

var (
	ErrEmptyText       = errors.New("text is required")
	ErrSynthesisFailed = errors.New("failed to generate audio")
)

// Client calls text:synthesize with an API key.
type Client struct {
	svc     *texttospeech.Service
	voice   *texttospeech.VoiceSelectionParams
	audio   *texttospeech.AudioConfig
	timeout time.Duration
}

// New builds a client for cfg. An empty endpoint uses Google's default host.
func New(ctx context.Context, cfg config.SpeechConfig, opts ...option.ClientOption) (*Client, error) {
	base := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		base = append(base, option.WithEndpoint(endpoint))
	}

	svc, err := texttospeech.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &Client{
		svc:   svc,
		voice: &texttospeech.VoiceSelectionParams{LanguageCode: cfg.LanguageCode, Name: cfg.Voice},
		audio: &texttospeech.AudioConfig{
			AudioEncoding: cfg.Encoding,
			SpeakingRate:  cfg.SpeakingRate,
			Pitch:         cfg.Pitch,
		},
		timeout: cfg.Timeout,
	}, nil
}

// Synthesize returns the base64 audio for text. Empty text fails without a request.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input:       &texttospeech.SynthesisInput{Text: text},
		Voice:       c.voice,
		AudioConfig: c.audio,
	}).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			return "", fmt.Errorf("%w: status %d", ErrSynthesisFailed, gerr.Code)
		}
		return "", fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	if resp.AudioContent == "" {
		return "", fmt.Errorf("%w: empty audio", ErrSynthesisFailed)
	}
	return resp.AudioContent, nil
}
