package dial

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/observability"
	"github.com/rhuss/plauder/pkg/provider"
)

// lineStream adapts an event-stream response body to provider.ChunkStream.
// Each call to Next reads exactly one complete line; a partial line stays
// buffered in the reader until its terminator arrives. An unterminated
// last line is still decoded when the body ends.
type lineStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	name   string

	done      bool
	pending   error
	closeOnce sync.Once
	closeErr  error
}

// Ensure lineStream implements provider.ChunkStream at compile time.
var _ provider.ChunkStream = (*lineStream)(nil)

func newLineStream(name string, body io.ReadCloser) *lineStream {
	observability.ActiveStreams.Inc()
	return &lineStream{
		body:   body,
		reader: bufio.NewReader(body),
		name:   name,
	}
}

// Next returns the classification of the next line. After an EndOfStream
// chunk no further data is read and Next keeps returning EndOfStream.
func (s *lineStream) Next() (provider.StreamChunk, error) {
	if s.done {
		return provider.EndOfStream(), nil
	}

	if s.pending != nil {
		return provider.Empty(), s.pending
	}

	line, err := s.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			err = fmt.Errorf("reading event stream: %w", err)
		}
		if line == "" {
			return provider.Empty(), err
		}
		// Decode the unterminated tail now, report the error next time.
		s.pending = err
	}

	debug.Trace(debug.CategoryStreaming, "stream line", "line", debug.Truncate(line, 500))

	chunk, reason := decode(line)
	switch {
	case chunk.Kind == provider.ChunkEndOfStream:
		s.done = true
	case reason != skipNone:
		observability.StreamSkippedLinesTotal.WithLabelValues(s.name, string(reason)).Inc()
		if reason == skipMalformed {
			debug.Log(debug.CategoryStreaming, "skipping malformed stream chunk",
				"data", debug.Truncate(line, 200),
			)
		}
	}
	return chunk, nil
}

// Close closes the response body and releases the connection.
func (s *lineStream) Close() error {
	s.closeOnce.Do(func() {
		observability.ActiveStreams.Dec()
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
