package stream

import (
	"context"
	"testing"
	"time"
)

func TestRingDeliversAllChunksInOrder(t *testing.T) {
	mock := &MockProvider{Chunks: []Chunk{
		{Content: "a"}, {Content: "b"}, {Content: "c", IsFinal: true},
	}}
	session, err := mock.Stream(context.Background(), Request{Model: "m"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	ctx := context.Background()
	ring := NewRing(ctx, session, 2, 2, 2, BlockProducer, 0)

	var got []string
	for {
		c, ok := ring.Next(ctx)
		if !ok {
			break
		}
		got = append(got, c.Content)
		if c.IsFinal {
			break
		}
	}
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestRingDropOldestEvictsUnderPressure(t *testing.T) {
	chunks := make([]Chunk, 20)
	for i := range chunks {
		chunks[i] = Chunk{Content: "x", IsFinal: i == len(chunks)-1}
	}
	mock := &MockProvider{Chunks: chunks}
	session, _ := mock.Stream(context.Background(), Request{Model: "m"})

	ctx := context.Background()
	ring := NewRing(ctx, session, 2, 2, 2, DropOldest, 0)

	time.Sleep(50 * time.Millisecond)
	for {
		_, ok := ring.Next(ctx)
		if !ok {
			break
		}
	}
	if ring.Dropped() == 0 {
		t.Fatalf("expected some chunks dropped under pressure")
	}
}

func TestRingBlockProducerRespectsCapacity(t *testing.T) {
	chunks := []Chunk{{Content: "a"}, {Content: "b"}, {Content: "c", IsFinal: true}}
	mock := &MockProvider{Chunks: chunks}
	session, _ := mock.Stream(context.Background(), Request{Model: "m"})

	ctx := context.Background()
	ring := NewRing(ctx, session, 1, 1, 1, BlockProducer, 0)

	var got []string
	for {
		c, ok := ring.Next(ctx)
		if !ok {
			break
		}
		got = append(got, c.Content)
		if c.IsFinal {
			break
		}
	}
	if len(got) != 3 {
		t.Fatalf("expected all 3 chunks despite capacity 1, got %v", got)
	}
}
