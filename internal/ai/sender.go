package ai

import "context"

// Reply is the model's answer to one outbound call
type Reply struct {
	Text  string
	Found bool // False when the response carried no candidate text
}

// ChunkFunc receives incremental text while a reply is streamed. It may be nil.
type ChunkFunc func(delta string)

// Sender issues one outbound call carrying the entire history. The remote API is stateless, so history must be
// replayed on every call. Implementations must honor ctx cancellation.
type Sender interface {
	Send(ctx context.Context, history []Turn, onChunk ChunkFunc) (Reply, error)
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(ctx context.Context, history []Turn, onChunk ChunkFunc) (Reply, error)

func (f SenderFunc) Send(ctx context.Context, history []Turn, onChunk ChunkFunc) (Reply, error) {
	return f(ctx, history, onChunk)
}
