package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/rhuss/plauder/pkg/api"
	"github.com/rhuss/plauder/pkg/observability"
	"github.com/rhuss/plauder/pkg/provider"
	"github.com/rhuss/plauder/pkg/provider/dial"
	"github.com/rhuss/plauder/pkg/provider/openaisdk"
)

// fakeStream replays a fixed sequence of chunks, then err (io.EOF if nil).
type fakeStream struct {
	chunks []provider.StreamChunk
	err    error
	pos    int
	closed int

	// onNext runs before every Next call.
	onNext func(pos int)
}

func (s *fakeStream) Next() (provider.StreamChunk, error) {
	if s.onNext != nil {
		s.onNext(s.pos)
	}
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return provider.Empty(), s.err
		}
		return provider.Empty(), io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

func (s *fakeStream) Close() error {
	s.closed++
	return nil
}

// fakeProvider is a scripted provider.Provider.
type fakeProvider struct {
	completion  *provider.Completion
	completeErr error

	stream    *fakeStream
	streamErr error

	calls    int
	messages []api.Message
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(_ context.Context, messages []api.Message) (*provider.Completion, error) {
	p.calls++
	p.messages = messages
	if p.completeErr != nil {
		return nil, p.completeErr
	}
	return p.completion, nil
}

func (p *fakeProvider) Stream(_ context.Context, messages []api.Message) (provider.ChunkStream, error) {
	p.calls++
	p.messages = messages
	if p.streamErr != nil {
		return nil, p.streamErr
	}
	return p.stream, nil
}

func (p *fakeProvider) Close() error { return nil }

func newTestEngine(t *testing.T, p provider.Provider, out io.Writer) *Engine {
	t.Helper()
	e, err := New(p, out, Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func conversation() []api.Message {
	return []api.Message{
		api.SystemMessage("You are a helpful assistant."),
		api.UserMessage("Say hello"),
	}
}

func TestNew_NilProvider(t *testing.T) {
	if _, err := New(nil, io.Discard, Config{}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestProvider(t *testing.T) {
	if got := newTestEngine(t, &fakeProvider{}, nil).Provider(); got != "fake" {
		t.Errorf("Provider() = %q, want %q", got, "fake")
	}
}

func TestGetCompletion(t *testing.T) {
	p := &fakeProvider{completion: &provider.Completion{Content: "Hello there", PromptTokens: 7, CompletionTokens: 2}}
	var out bytes.Buffer
	e := newTestEngine(t, p, &out)

	before := testutil.ToFloat64(observability.CompletionsTotal.WithLabelValues("fake", observability.ModeBlocking, observability.StatusOK))

	msg, err := e.GetCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatalf("GetCompletion: %v", err)
	}
	if msg.Role != api.RoleAssistant || msg.Content != "Hello there" {
		t.Errorf("message = %+v", msg)
	}
	if out.String() != "Hello there" {
		t.Errorf("sink = %q, want content without newline", out.String())
	}
	if p.calls != 1 {
		t.Errorf("provider called %d times, want 1", p.calls)
	}
	if len(p.messages) != 2 {
		t.Errorf("provider got %d messages, want 2", len(p.messages))
	}

	after := testutil.ToFloat64(observability.CompletionsTotal.WithLabelValues("fake", observability.ModeBlocking, observability.StatusOK))
	if after-before != 1 {
		t.Errorf("completions counter moved by %v, want 1", after-before)
	}
}

func TestGetCompletion_Errors(t *testing.T) {
	tests := []struct {
		name       string
		messages   []api.Message
		err        error
		wantStatus string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "empty conversation",
			messages:   nil,
			wantStatus: observability.StatusInvalid,
			check: func(t *testing.T, err error) {
				var apiErr *api.APIError
				if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeInvalidRequest {
					t.Errorf("expected invalid_request, got %v", err)
				}
			},
		},
		{
			name:       "empty response",
			messages:   conversation(),
			err:        api.NewEmptyResponseError(),
			wantStatus: observability.StatusEmptyResponse,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, api.ErrEmptyResponse) {
					t.Errorf("expected ErrEmptyResponse, got %v", err)
				}
			},
		},
		{
			name:       "request failed",
			messages:   conversation(),
			err:        api.NewRequestFailedError(401, `{"error":{"message":"denied"}}`, "denied", nil),
			wantStatus: observability.StatusRequestFailed,
			check: func(t *testing.T, err error) {
				if api.StatusCode(err) != 401 {
					t.Errorf("expected status 401, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{completeErr: tt.err}
			var out bytes.Buffer
			e := newTestEngine(t, p, &out)

			counter := observability.CompletionsTotal.WithLabelValues("fake", observability.ModeBlocking, tt.wantStatus)
			before := testutil.ToFloat64(counter)

			msg, err := e.GetCompletion(context.Background(), tt.messages)
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)
			if msg != (api.Message{}) {
				t.Errorf("expected zero message, got %+v", msg)
			}
			if out.Len() != 0 {
				t.Errorf("sink written on error: %q", out.String())
			}
			if got := testutil.ToFloat64(counter) - before; got != 1 {
				t.Errorf("status %q counted %v times, want 1", tt.wantStatus, got)
			}
		})
	}
}

func TestStreamCompletion_Concatenates(t *testing.T) {
	stream := &fakeStream{chunks: []provider.StreamChunk{
		provider.Empty(),
		provider.Content("He"),
		provider.Empty(),
		provider.Content("llo"),
		provider.EndOfStream(),
	}}
	p := &fakeProvider{stream: stream}
	var out bytes.Buffer

	var seen []string
	e, err := New(p, &out, Config{OnFragment: func(s string) { seen = append(seen, s) }})
	if err != nil {
		t.Fatal(err)
	}

	msg, err := e.StreamCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if msg.Role != api.RoleAssistant || msg.Content != "Hello" {
		t.Errorf("message = %+v", msg)
	}
	if out.String() != "Hello\n" {
		t.Errorf("sink = %q, want %q", out.String(), "Hello\n")
	}
	if strings.Join(seen, "|") != "He|llo" {
		t.Errorf("OnFragment saw %v", seen)
	}
	if stream.closed != 1 {
		t.Errorf("stream closed %d times, want 1", stream.closed)
	}
}

func TestStreamCompletion_StopsAtEndOfStream(t *testing.T) {
	stream := &fakeStream{chunks: []provider.StreamChunk{
		provider.Content("a"),
		provider.EndOfStream(),
		provider.Content("never"),
	}}
	p := &fakeProvider{stream: stream}
	var out bytes.Buffer

	msg, err := newTestEngine(t, p, &out).StreamCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "a" {
		t.Errorf("content = %q, want %q", msg.Content, "a")
	}
	if stream.pos != 2 {
		t.Errorf("read %d chunks, want 2", stream.pos)
	}
	if out.String() != "a\n" {
		t.Errorf("sink = %q", out.String())
	}
}

func TestStreamCompletion_NoFragments(t *testing.T) {
	stream := &fakeStream{chunks: []provider.StreamChunk{provider.Empty(), provider.EndOfStream()}}
	var out bytes.Buffer

	msg, err := newTestEngine(t, &fakeProvider{stream: stream}, &out).StreamCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatal(err)
	}
	if msg.Role != api.RoleAssistant || msg.Content != "" {
		t.Errorf("message = %+v, want empty assistant message", msg)
	}
	if out.String() != "\n" {
		t.Errorf("sink = %q, want a single newline", out.String())
	}
}

func TestStreamCompletion_EndOfBodyWithoutMarker(t *testing.T) {
	stream := &fakeStream{chunks: []provider.StreamChunk{provider.Content("partial")}}
	var out bytes.Buffer

	msg, err := newTestEngine(t, &fakeProvider{stream: stream}, &out).StreamCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "partial" || out.String() != "partial\n" {
		t.Errorf("message = %+v, sink = %q", msg, out.String())
	}
	if stream.closed != 1 {
		t.Errorf("stream not closed")
	}
}

func TestStreamCompletion_MidStreamFailure(t *testing.T) {
	stream := &fakeStream{
		chunks: []provider.StreamChunk{provider.Content("Hel")},
		err:    errors.New("connection reset by peer"),
	}
	var out bytes.Buffer

	msg, err := newTestEngine(t, &fakeProvider{stream: stream}, &out).StreamCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatalf("mid-stream failure must not be returned, got %v", err)
	}
	if msg.Content != "Hel" {
		t.Errorf("content = %q", msg.Content)
	}
	if out.String() != "Hel\n" {
		t.Errorf("sink = %q", out.String())
	}
	if stream.closed != 1 {
		t.Errorf("stream not closed")
	}
}

func TestStreamCompletion_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream := &fakeStream{
		chunks: []provider.StreamChunk{provider.Content("a"), provider.Content("b")},
		err:    errors.New("body closed"),
		onNext: func(pos int) {
			if pos == 2 {
				cancel()
			}
		},
	}

	_, err := newTestEngine(t, &fakeProvider{stream: stream}, io.Discard).StreamCompletion(ctx, conversation())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stream.closed != 1 {
		t.Errorf("stream not closed")
	}
}

func TestStreamCompletion_OpenFailure(t *testing.T) {
	p := &fakeProvider{streamErr: api.NewRequestFailedError(0, "", "connection error: refused", nil)}
	var out bytes.Buffer

	_, err := newTestEngine(t, p, &out).StreamCompletion(context.Background(), conversation())
	if !api.IsRequestFailed(err) {
		t.Fatalf("expected request_failed, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("sink written on open failure: %q", out.String())
	}
}

func TestStreamCompletion_RejectsEmptyConversation(t *testing.T) {
	p := &fakeProvider{stream: &fakeStream{}}
	_, err := newTestEngine(t, p, io.Discard).StreamCompletion(context.Background(), []api.Message{})
	if err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 0 {
		t.Errorf("provider called for an empty conversation")
	}
}

// flushRecorder counts flushes of a buffered sink.
type flushRecorder struct {
	*bufio.Writer
	flushes int
}

func (f *flushRecorder) Flush() error {
	f.flushes++
	return f.Writer.Flush()
}

func TestStreamCompletion_FlushesEachFragment(t *testing.T) {
	stream := &fakeStream{chunks: []provider.StreamChunk{
		provider.Content("a"), provider.Content("b"), provider.EndOfStream(),
	}}
	var buf bytes.Buffer
	sink := &flushRecorder{Writer: bufio.NewWriter(&buf)}

	if _, err := newTestEngine(t, &fakeProvider{stream: stream}, sink).StreamCompletion(context.Background(), conversation()); err != nil {
		t.Fatal(err)
	}
	// Two fragments plus the trailing newline.
	if sink.flushes != 3 {
		t.Errorf("flushes = %d, want 3", sink.flushes)
	}
	if buf.String() != "ab\n" {
		t.Errorf("sink = %q", buf.String())
	}
}

// failingFlusher accepts writes but cannot flush them.
type failingFlusher struct {
	bytes.Buffer
	flushes int
}

func (f *failingFlusher) Flush() error {
	f.flushes++
	return errors.New("broken pipe")
}

func TestStreamCompletion_FlushFailureIsNotFatal(t *testing.T) {
	stream := &fakeStream{chunks: []provider.StreamChunk{
		provider.Content("He"), provider.Content("llo"), provider.EndOfStream(),
	}}
	sink := &failingFlusher{}

	msg, err := newTestEngine(t, &fakeProvider{stream: stream}, sink).StreamCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if msg.Content != "Hello" {
		t.Errorf("content = %q, want %q", msg.Content, "Hello")
	}
	if sink.String() != "Hello\n" {
		t.Errorf("sink = %q, want %q", sink.String(), "Hello\n")
	}
	if sink.flushes != 3 {
		t.Errorf("flushes = %d, want 3", sink.flushes)
	}
}

func TestStreamCompletion_Span(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	stream := &fakeStream{chunks: []provider.StreamChunk{
		provider.Content("He"), provider.Content("llo"), provider.EndOfStream(),
	}}
	if _, err := newTestEngine(t, &fakeProvider{stream: stream}, io.Discard).StreamCompletion(context.Background(), conversation()); err != nil {
		t.Fatal(err)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "chat.stream_completion" {
		t.Errorf("span name = %q", span.Name())
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs["chat.provider"].AsString() != "fake" {
		t.Errorf("chat.provider = %v", attrs["chat.provider"])
	}
	if attrs["chat.fragments"].AsInt64() != 2 {
		t.Errorf("chat.fragments = %v", attrs["chat.fragments"])
	}
	if attrs["chat.content_length"].AsInt64() != 5 {
		t.Errorf("chat.content_length = %v", attrs["chat.content_length"])
	}
	if attrs["chat.status"].AsString() != observability.StatusOK {
		t.Errorf("chat.status = %v", attrs["chat.status"])
	}
}

func TestGetCompletion_SpanRecordsError(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	p := &fakeProvider{completeErr: api.NewEmptyResponseError()}
	if _, err := newTestEngine(t, p, io.Discard).GetCompletion(context.Background(), conversation()); err == nil {
		t.Fatal("expected error")
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if spans[0].Name() != "chat.get_completion" {
		t.Errorf("span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("span status = %v, want error", spans[0].Status().Code)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, observability.StatusOK},
		{api.NewRequestFailedError(500, "", "", nil), observability.StatusRequestFailed},
		{fmt.Errorf("wrapped: %w", api.NewEmptyResponseError()), observability.StatusEmptyResponse},
		{api.NewInvalidRequestError("messages", "empty"), observability.StatusInvalid},
		{errors.New("boom"), observability.StatusError},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.err); got != tt.want {
			t.Errorf("statusLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

// TestStreamCompletion_DIALEndToEnd runs the engine against the raw
// provider and a fake DIAL backend.
func TestStreamCompletion_DIALEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`data: {"choices":[{"delta":{"content":"He"}}]}`,
			`data: {"choices":[{"delta":{"content":"llo"}}]}`,
			`data: [DONE]`,
		} {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p, err := dial.New(dial.DefaultConfig(srv.URL, "k", "gpt-4"))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var out bytes.Buffer
	msg, err := newTestEngine(t, p, &out).StreamCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if msg.Content != "Hello" {
		t.Errorf("content = %q, want %q", msg.Content, "Hello")
	}
	if out.String() != "Hello\n" {
		t.Errorf("sink = %q, want %q", out.String(), "Hello\n")
	}
}

// TestStreamCompletion_SDKEndToEnd runs the engine against the SDK
// provider with unusable events mixed into the stream.
func TestStreamCompletion_SDKEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`data: {"id":"c1","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"He"}}]}`,
			`data: not json`,
			`: keep-alive`,
			`data: {"id":"c1","choices":[]}`,
			`data: {"id":"c1","choices":[{"index":0,"delta":{"content":"llo"}}]}`,
			`data: [DONE]`,
		} {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p, err := openaisdk.New(openaisdk.Config{BaseURL: srv.URL, APIKey: "k", Deployment: "gpt-4"})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var out bytes.Buffer
	msg, err := newTestEngine(t, p, &out).StreamCompletion(context.Background(), conversation())
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if msg.Content != "Hello" {
		t.Errorf("content = %q, want %q", msg.Content, "Hello")
	}
	if out.String() != "Hello\n" {
		t.Errorf("sink = %q, want %q", out.String(), "Hello\n")
	}
}
