// Package openai adapts OpenAI's streaming chat completion API to the
// provider-agnostic stream.Provider interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/stream"
)

// Provider implements stream.Provider over OpenAI's server-sent-event
// streaming chat completion endpoint.
type Provider struct {
	apiKey string
}

// New creates a streaming OpenAI provider. apiKey is required; the model
// name travels per-request on stream.Request.
func New(apiKey string) *Provider {
	return &Provider{apiKey: apiKey}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Stream(ctx context.Context, req stream.Request) (stream.Session, error) {
	if p.apiKey == "" {
		return nil, errs.Configuration("openai_api_key", "required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(p.apiKey))
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(req.Model),
		Messages: convertMessages(req.Messages),
	}

	sdkStream := client.Chat.Completions.NewStreaming(ctx, params)
	return &session{sdkStream: sdkStream, model: req.Model}, nil
}

func convertMessages(messages []stream.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, m := range messages {
		switch m.Role {
		case stream.RoleSystem:
			out[i] = openaisdk.SystemMessage(m.Content)
		case stream.RoleAssistant:
			out[i] = openaisdk.AssistantMessage(m.Content)
		default:
			out[i] = openaisdk.UserMessage(m.Content)
		}
	}
	return out
}

// sdkStreamer is the subset of *ssestream.Stream[T] this package relies on,
// isolated behind an interface so tests can substitute a fake SSE stream.
type sdkStreamer interface {
	Next() bool
	Current() openaisdk.ChatCompletionChunk
	Err() error
	Close() error
}

type session struct {
	sdkStream        sdkStreamer
	model            string
	cumulativeTokens int
	lastChunkAt      time.Time
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
	start := time.Now()
	defer func() { s.lastChunkAt = time.Now(); _ = start }()

	var content string
	var finishReason string
	isFinal := false
	if len(event.Choices) > 0 {
		content = event.Choices[0].Delta.Content
		if event.Choices[0].FinishReason != "" {
			finishReason = event.Choices[0].FinishReason
			isFinal = true
		}
	}

	tokenCount := len(content) // SSE deltas don't carry per-chunk token counts; approximate.
	s.cumulativeTokens += tokenCount

	return stream.Chunk{
		Content:          content,
		IsFinal:          isFinal,
		TokenCount:       tokenCount,
		CumulativeTokens: s.cumulativeTokens,
		FinishReason:     finishReason,
		Metadata: stream.StreamMetadata{
			Model: s.model, Provider: "openai",
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
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return errs.RateLimited(time.Second)
		case 500, 502, 503, 504:
			return errs.External("openai", apiErr.StatusCode, apiErr.Error())
		default:
			return errs.External("openai", apiErr.StatusCode, apiErr.Error())
		}
	}
	return errs.Transport(errs.TransportNetworkReset, fmt.Sprintf("openai: stream error: %v", err))
}
