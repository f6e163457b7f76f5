// Package google adapts Google Gemini's GenerateContentStream iterator to
// the provider-agnostic stream.Provider interface.
package google

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/flowcore/wfengine/errs"
	"github.com/flowcore/wfengine/stream"
)

// Provider implements stream.Provider over Gemini's streaming content
// generation endpoint.
type Provider struct {
	apiKey string
}

func New(apiKey string) *Provider { return &Provider{apiKey: apiKey} }

func (p *Provider) Name() string { return "google" }

func (p *Provider) Stream(ctx context.Context, req stream.Request) (stream.Session, error) {
	if p.apiKey == "" {
		return nil, errs.Configuration("google_api_key", "required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, errs.Transport("client_init", fmt.Sprintf("google: client init: %v", err))
	}

	model := client.GenerativeModel(req.Model)
	prompt := flatten(req.Messages)

	iter := model.GenerateContentStream(ctx, genai.Text(prompt))
	return &session{iter: iter, client: client, model: req.Model}, nil
}

func flatten(messages []stream.Message) string {
	out := ""
	for _, m := range messages {
		if out != "" {
			out += "\n"
		}
		out += m.Role + ": " + m.Content
	}
	return out
}

type streamIterator interface {
	Next() (*genai.GenerateContentResponse, error)
}

type session struct {
	iter             streamIterator
	client           *genai.Client
	model            string
	cumulativeTokens int
	err              error
}

func (s *session) Next(ctx context.Context) (stream.Chunk, bool) {
	if ctx.Err() != nil {
		s.err = ctx.Err()
		return stream.Chunk{}, false
	}

	resp, err := s.iter.Next()
	if err == iterator.Done {
		return stream.Chunk{}, false
	}
	if err != nil {
		s.err = classify(err)
		return stream.Chunk{}, false
	}

	var content string
	isFinal := false
	finishReason := ""
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					content += string(text)
				}
			}
		}
		if cand.FinishReason != genai.FinishReasonUnspecified {
			finishReason = cand.FinishReason.String()
			isFinal = true
		}
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
			Model: s.model, Provider: "google",
			TokenCount: tokenCount, CumulativeTokens: s.cumulativeTokens,
		},
	}, true
}

func (s *session) Err() error { return s.err }

func (s *session) Close() error {
	return s.client.Close()
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	return errs.Transport(errs.TransportNetworkReset, fmt.Sprintf("google: stream error: %v", err))
}
