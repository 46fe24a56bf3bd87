package provider

import (
	"context"

	"github.com/rhuss/plauder/pkg/api"
)

// Provider abstracts a chat completion backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "dial", "openaisdk").
	Name() string

	// Complete performs a single non-streaming request. A response without
	// choices is reported as an api empty_response error; a non-success
	// status or connection failure as a request_failed error.
	Complete(ctx context.Context, messages []api.Message) (*Completion, error)

	// Stream opens a streaming request. Errors establishing the connection
	// or a non-success initial status are returned here as request_failed
	// errors. On success the caller owns the returned stream and must
	// close it.
	Stream(ctx context.Context, messages []api.Message) (ChunkStream, error)

	// Close releases provider resources (idle HTTP connections).
	Close() error
}

// ChunkStream yields classified chunks from an open response stream.
type ChunkStream interface {
	// Next blocks until the next chunk is available. It returns io.EOF
	// when the body ends without an end-of-stream sentinel. Any other
	// error means the stream broke mid-way.
	Next() (StreamChunk, error)

	// Close releases the underlying connection. It is safe to call more
	// than once.
	Close() error
}

// Completion is the result of a non-streaming request.
type Completion struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}
