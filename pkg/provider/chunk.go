package provider

// ChunkKind classifies one unit of a response stream.
type ChunkKind int

const (
	// ChunkEmpty carries no usable content; the reader moves on.
	ChunkEmpty ChunkKind = iota

	// ChunkContent carries a non-empty text fragment.
	ChunkContent

	// ChunkEndOfStream marks the end of the stream. Nothing after it is read.
	ChunkEndOfStream
)

// String returns a short name for logs.
func (k ChunkKind) String() string {
	switch k {
	case ChunkEmpty:
		return "empty"
	case ChunkContent:
		return "content"
	case ChunkEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// StreamChunk is the classification of one stream line or parsed chunk.
// Text is set only when Kind is ChunkContent.
type StreamChunk struct {
	Kind ChunkKind
	Text string
}

// Content returns a content chunk. An empty fragment is classified as
// ChunkEmpty so that a content chunk always carries text.
func Content(text string) StreamChunk {
	if text == "" {
		return Empty()
	}
	return StreamChunk{Kind: ChunkContent, Text: text}
}

// EndOfStream returns the end-of-stream chunk.
func EndOfStream() StreamChunk {
	return StreamChunk{Kind: ChunkEndOfStream}
}

// Empty returns a chunk with no usable content.
func Empty() StreamChunk {
	return StreamChunk{Kind: ChunkEmpty}
}
