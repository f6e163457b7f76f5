// Package anthropic adapts Anthropic's message-stream API to the
// provider-agnostic stream.Provider interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/stream"
)

// Provider implements stream.Provider over Anthropic's message streaming
// endpoint.
type Provider struct {
	apiKey string
}

func New(apiKey string) *Provider { return &Provider{apiKey: apiKey} }

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Stream(ctx context.Context, req stream.Request) (stream.Session, error) {
	if p.apiKey == "" {
		return nil, errs.Configuration("anthropic_api_key", "required")
	}

	client := anthropicsdk.NewClient(option.WithAPIKey(p.apiKey))
	system, messages := splitSystem(req.Messages)

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  messages,
		MaxTokens: 4096,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}

	sdkStream := client.Messages.NewStreaming(ctx, params)
	return &session{sdkStream: sdkStream, model: req.Model}, nil
}

func splitSystem(messages []stream.Message) (string, []anthropicsdk.MessageParam) {
	var system string
	out := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case stream.RoleSystem:
			system = m.Content
		case stream.RoleAssistant:
			out = append(out, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

type sdkStreamer interface {
	Next() bool
	Current() anthropicsdk.MessageStreamEventUnion
	Err() error
	Close() error
}

type session struct {
	sdkStream        sdkStreamer
	model            string
	cumulativeTokens int
	err              error
}

func (s *session) Next(ctx context.Context) (stream.Chunk, bool) {
	if ctx.Err() != nil {
		s.err = ctx.Err()
		return stream.Chunk{}, false
	}
	if !s.sdkStream.Next() {
		if err := s.sdkStream.Err(); err != nil {
			s.err = classify(err)
		}
		return stream.Chunk{}, false
	}

	event := s.sdkStream.Current()

	var content string
	isFinal := false
	finishReason := ""

	switch event.Type {
	case "content_block_delta":
		content = event.Delta.Text
	case "message_delta":
		if event.Delta.StopReason != "" {
			finishReason = string(event.Delta.StopReason)
			isFinal = true
		}
	case "message_stop":
		isFinal = true
	}

	tokenCount := len(content)
	s.cumulativeTokens += tokenCount

	return stream.Chunk{
		Content:          content,
		IsFinal:          isFinal,
		TokenCount:       tokenCount,
		CumulativeTokens: s.cumulativeTokens,
		FinishReason:     finishReason,
		Metadata: stream.StreamMetadata{
			Model: s.model, Provider: "anthropic",
			TokenCount: tokenCount, CumulativeTokens: s.cumulativeTokens,
		},
	}, true
}

func (s *session) Err() error   { return s.err }
func (s *session) Close() error { return s.sdkStream.Close() }

func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return errs.RateLimited(time.Second)
		}
		return errs.External("anthropic", apiErr.StatusCode, apiErr.Error())
	}
	return errs.Transport(errs.TransportNetworkReset, fmt.Sprintf("anthropic: stream error: %v", err))
}
