package chat

import (
	"context"
	"iter"

	"github.com/ashureev/statefultalk/internal/letta"
)

// StreamEvent is one item forwarded from the transport.
type StreamEvent struct {
	Chunk letta.StreamChunk
	Err   error
}

// Pump drains seq on its own goroutine and forwards every item, in order,
// over the returned channel. The channel is closed after the sequence ends,
// after the first error, or when ctx is cancelled.
func Pump(ctx context.Context, seq iter.Seq2[letta.StreamChunk, error]) <-chan StreamEvent {
	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		for chunk, err := range seq {
			select {
			case ch <- StreamEvent{Chunk: chunk, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return ch
}
