package openaisdk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3/option"

	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/observability"
)

const doneSentinel = "[DONE]"

// filterEventStream is client middleware that removes events the SDK
// decoder would stop on: events without data (comments, keep-alives) and
// events whose data is neither JSON nor the [DONE] sentinel.
func filterEventStream(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	resp, err := next(req)
	if err != nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, err
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		return resp, nil
	}
	resp.Body = newEventFilter(resp.Body)
	return resp, nil
}

// eventFilter re-emits the well-formed events of an SSE body. Read errors
// of the underlying body are passed through unchanged.
type eventFilter struct {
	src io.ReadCloser
	r   *bufio.Reader
	out bytes.Buffer // filtered events not yet read
	err error
}

func newEventFilter(body io.ReadCloser) *eventFilter {
	return &eventFilter{src: body, r: bufio.NewReader(body)}
}

func (f *eventFilter) Read(p []byte) (int, error) {
	for f.out.Len() == 0 && f.err == nil {
		f.fill()
	}
	if f.out.Len() > 0 {
		return f.out.Read(p)
	}
	return 0, f.err
}

func (f *eventFilter) Close() error {
	return f.src.Close()
}

// fill reads up to the next blank line and queues the event it ends.
func (f *eventFilter) fill() {
	var lines []string
	for {
		line, err := f.r.ReadString('\n')
		if line != "" {
			line = strings.TrimRight(line, "\r\n")
			if line == "" {
				f.emit(lines)
				return
			}
			lines = append(lines, line)
		}
		if err != nil {
			f.emit(lines)
			f.err = err
			return
		}
	}
}

// emit queues an event unless it has to be dropped.
func (f *eventFilter) emit(lines []string) {
	if len(lines) == 0 {
		return
	}

	var data []string
	for _, line := range lines {
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(payload, " "))
		}
	}
	if len(data) == 0 {
		observability.StreamSkippedLinesTotal.WithLabelValues(Name, "non_data").Inc()
		debug.Trace(debug.CategoryStreaming, "event without data skipped", "lines", len(lines))
		return
	}

	payload := strings.Join(data, "\n")
	if payload != doneSentinel && !json.Valid([]byte(payload)) {
		observability.StreamSkippedLinesTotal.WithLabelValues(Name, "malformed").Inc()
		debug.Log(debug.CategoryStreaming, "malformed chunk skipped",
			"provider", Name,
			"data", debug.Truncate(payload, 200),
		)
		return
	}

	for _, line := range lines {
		f.out.WriteString(line)
		f.out.WriteByte('\n')
	}
	f.out.WriteByte('\n')
}
