// Package stream provides a provider-agnostic token-by-token streaming
// abstraction over multiple upstream LLM backends, with backpressure and
// mid-stream recovery.
package stream

import "context"

// Chunk is one unit of a streaming response, delivered in arrival order.
// The final chunk of a session has IsFinal set and carries FinishReason and
// a final CumulativeTokens.
type Chunk struct {
	Content          string
	IsFinal          bool
	TokenCount       int
	CumulativeTokens int
	FinishReason     string
	Metadata         StreamMetadata

	// IsRestarted marks a synthetic chunk a RecoveryProvider injects after
	// a clean restart, so consumers can reconcile partial output already
	// delivered before the failure.
	IsRestarted bool
}

// StreamMetadata is the per-chunk accounting every provider adapter fills
// in; it is the sole input to cost throttling decisions.
type StreamMetadata struct {
	Model            string
	Provider         string
	TokenCount       int
	CumulativeTokens int
	ProcessingTimeMS int64
}

// Request is a provider-agnostic streaming chat request.
type Request struct {
	Model    string
	Messages []Message
}

// Message mirrors the teacher's one-shot chat message shape for the
// streaming entry point.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider opens a streaming chat session against one upstream backend.
// The returned sequence is lazy, finite, and non-restartable: closing ctx
// or draining to a final chunk both terminate it.
type Provider interface {
	// Name identifies the provider for metadata and error attribution.
	Name() string
	Stream(ctx context.Context, req Request) (Session, error)
}

// Session is an open streaming response. Next blocks until the next chunk
// is available, returns false once the stream is exhausted (check Err for
// a caused-by-error exhaustion), and Close releases any underlying
// connection if the caller abandons the session early.
type Session interface {
	Next(ctx context.Context) (Chunk, bool)
	Err() error
	Close() error
}
