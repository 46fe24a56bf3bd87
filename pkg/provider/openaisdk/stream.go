package openaisdk

import (
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/observability"
	"github.com/rhuss/plauder/pkg/provider"
)

// Classify maps an SDK-decoded chunk to a StreamChunk. Only the first
// choice's non-empty delta content counts as content. The SDK consumes the
// [DONE] sentinel itself, so Classify never yields EndOfStream.
func Classify(chunk openai.ChatCompletionChunk) provider.StreamChunk {
	if len(chunk.Choices) == 0 {
		return provider.Empty()
	}
	return provider.Content(chunk.Choices[0].Delta.Content)
}

// chunkStream adapts ssestream.Stream to provider.ChunkStream.
type chunkStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]

	primed    bool // a chunk has been read ahead and not yet returned
	done      bool
	closeOnce sync.Once
	closeErr  error
}

// Ensure chunkStream implements provider.ChunkStream at compile time.
var _ provider.ChunkStream = (*chunkStream)(nil)

func newChunkStream(s *ssestream.Stream[openai.ChatCompletionChunk]) *chunkStream {
	observability.ActiveStreams.Inc()
	return &chunkStream{stream: s}
}

// prime reads the first event so request errors surface before any chunk
// is consumed. It returns the stream error, if any.
func (s *chunkStream) prime() error {
	if s.stream.Next() {
		s.primed = true
		return nil
	}
	if err := s.stream.Err(); err != nil {
		return err
	}
	s.done = true
	return nil
}

// Next returns the next classified chunk. When the SDK reports the end of
// the stream Next returns EndOfStream, and keeps doing so.
func (s *chunkStream) Next() (provider.StreamChunk, error) {
	if s.done {
		return provider.EndOfStream(), nil
	}

	if s.primed {
		s.primed = false
	} else if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return provider.Empty(), fmt.Errorf("reading event stream: %w", err)
		}
		s.done = true
		return provider.EndOfStream(), nil
	}

	chunk := s.stream.Current()
	classified := Classify(chunk)
	if classified.Kind == provider.ChunkEmpty {
		observability.StreamSkippedLinesTotal.WithLabelValues(Name, "no_content").Inc()
		debug.Trace(debug.CategoryStreaming, "chunk without content", "id", chunk.ID)
	}
	return classified, nil
}

// Close closes the SDK stream and its response body.
func (s *chunkStream) Close() error {
	s.closeOnce.Do(func() {
		observability.ActiveStreams.Dec()
		s.closeErr = s.stream.Close()
	})
	return s.closeErr
}
