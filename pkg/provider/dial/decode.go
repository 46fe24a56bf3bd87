package dial

import (
	"encoding/json"
	"strings"

	"github.com/rhuss/plauder/pkg/provider"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// skipReason says why a line produced no content. It labels the
// plauder_stream_skipped_lines_total metric.
type skipReason string

const (
	skipNone      skipReason = ""
	skipBlank     skipReason = "blank"
	skipNonData   skipReason = "non_data"
	skipMalformed skipReason = "malformed"
	skipNoContent skipReason = "no_content"
)

// Decode classifies one raw line of a Chat Completions event stream:
//
//   - blank line: Empty
//   - line without the "data: " prefix (comments, event/id fields): Empty
//   - "data: [DONE]": EndOfStream
//   - payload that is not valid JSON: Empty
//   - JSON whose first choice has non-empty delta.content: Content
//   - any other JSON: Empty
//
// Surrounding whitespace, including the line terminator, is ignored.
// Decode is pure: the same line always yields the same chunk.
func Decode(line string) provider.StreamChunk {
	chunk, _ := decode(line)
	return chunk
}

func decode(line string) (provider.StreamChunk, skipReason) {
	line = strings.TrimSpace(line)
	if line == "" {
		return provider.Empty(), skipBlank
	}

	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return provider.Empty(), skipNonData
	}

	if payload == doneSentinel {
		return provider.EndOfStream(), skipNone
	}

	var chunk chatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return provider.Empty(), skipMalformed
	}

	if len(chunk.Choices) == 0 {
		return provider.Empty(), skipNoContent
	}
	content := chunk.Choices[0].Delta.Content
	if content == nil || *content == "" {
		return provider.Empty(), skipNoContent
	}

	return provider.Content(*content), skipNone
}
