package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rhuss/plauder/pkg/api"
	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/observability"
	"github.com/rhuss/plauder/pkg/provider"
)

// Engine sends conversations to a provider and writes answers to an
// output sink.
type Engine struct {
	provider provider.Provider
	out      io.Writer
	cfg      Config
}

// flusher is implemented by buffered sinks such as *bufio.Writer.
type flusher interface {
	Flush() error
}

// New creates a new Engine. The provider must not be nil. A nil out
// discards all output.
func New(p provider.Provider, out io.Writer, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	if out == nil {
		out = io.Discard
	}
	return &Engine{
		provider: p,
		out:      out,
		cfg:      cfg,
	}, nil
}

// Provider returns the provider name, for logs and labels.
func (e *Engine) Provider() string {
	return e.provider.Name()
}

// GetCompletion sends messages in a single non-streaming request, writes
// the first choice's content to the sink and returns it as an assistant
// message. No line ending is written; that is up to the caller.
func (e *Engine) GetCompletion(ctx context.Context, messages []api.Message) (msg api.Message, err error) {
	provName := e.provider.Name()
	ctx, span := e.startSpan(ctx, "chat.get_completion", messages)
	start := time.Now()
	defer func() {
		e.finish(span, observability.ModeBlocking, start, err)
		span.SetAttributes(attribute.Int("chat.content_length", len(msg.Content)))
		span.End()
	}()

	if err := api.ValidateMessages(messages); err != nil {
		return api.Message{}, err
	}

	completion, err := e.provider.Complete(ctx, messages)
	if err != nil {
		return api.Message{}, err
	}

	observability.TokensTotal.WithLabelValues(provName, "input").Add(float64(completion.PromptTokens))
	observability.TokensTotal.WithLabelValues(provName, "output").Add(float64(completion.CompletionTokens))

	e.write(completion.Content)

	return api.AssistantMessage(completion.Content), nil
}

// StreamCompletion sends messages as a streaming request. Every content
// fragment is written to the sink as soon as it arrives and appended to
// the returned message. Reading stops at the end-of-stream marker or when
// the body ends; a single newline is written afterwards.
//
// A stream that breaks after it was opened ends the message early: the
// failure is logged and the fragments received so far are returned. Only
// cancellation of ctx is reported as an error in that case.
func (e *Engine) StreamCompletion(ctx context.Context, messages []api.Message) (msg api.Message, err error) {
	provName := e.provider.Name()
	ctx, span := e.startSpan(ctx, "chat.stream_completion", messages)
	start := time.Now()

	var fragments int
	defer func() {
		e.finish(span, observability.ModeStreaming, start, err)
		span.SetAttributes(
			attribute.Int("chat.fragments", fragments),
			attribute.Int("chat.content_length", len(msg.Content)),
		)
		span.End()
	}()

	if err := api.ValidateMessages(messages); err != nil {
		return api.Message{}, err
	}

	stream, err := e.provider.Stream(ctx, messages)
	if err != nil {
		return api.Message{}, err
	}
	defer stream.Close()

	var sb strings.Builder
	var streamErr error

read:
	for {
		chunk, err := stream.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				streamErr = err
			}
			break
		}

		switch chunk.Kind {
		case provider.ChunkContent:
			fragments++
			observability.StreamFragmentsTotal.WithLabelValues(provName).Inc()
			e.write(chunk.Text)
			sb.WriteString(chunk.Text)
			if e.cfg.OnFragment != nil {
				e.cfg.OnFragment(chunk.Text)
			}
		case provider.ChunkEndOfStream:
			break read
		}
	}

	e.write("\n")
	msg = api.AssistantMessage(sb.String())

	if streamErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return msg, fmt.Errorf("stream interrupted: %w", ctxErr)
		}
		slog.Warn("stream ended early",
			"provider", provName,
			"fragments", fragments,
			"error", streamErr,
		)
		span.AddEvent("stream ended early", trace.WithAttributes(attribute.String("error", streamErr.Error())))
	}

	debug.Log(debug.CategoryStreaming, "stream complete",
		"provider", provName,
		"fragments", fragments,
		"content_length", sb.Len(),
	)

	return msg, nil
}

// write sends text to the sink. A failing sink does not abort the turn:
// the content is still returned to the caller.
func (e *Engine) write(text string) {
	if _, err := io.WriteString(e.out, text); err != nil {
		debug.Log(debug.CategoryStreaming, "output write failed", "error", err)
		return
	}
	if f, ok := e.out.(flusher); ok {
		if err := f.Flush(); err != nil {
			debug.Log(debug.CategoryStreaming, "output flush failed", "error", err)
		}
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, messages []api.Message) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("chat.provider", e.provider.Name()),
			attribute.Int("chat.messages", len(messages)),
		),
	)
}

// finish records the outcome of a completion call in metrics and on span.
func (e *Engine) finish(span trace.Span, mode string, start time.Time, err error) {
	provName := e.provider.Name()
	status := statusLabel(err)

	observability.CompletionsTotal.WithLabelValues(provName, mode, status).Inc()
	observability.CompletionLatency.WithLabelValues(provName, mode).Observe(time.Since(start).Seconds())

	span.SetAttributes(attribute.String("chat.status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		debug.Log(debug.CategoryProviders, "completion failed",
			"provider", provName,
			"mode", mode,
			"status", status,
			"error", err,
		)
	}
}

// statusLabel maps an error to the metrics status label.
func statusLabel(err error) string {
	if err == nil {
		return observability.StatusOK
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case api.ErrorTypeRequestFailed:
			return observability.StatusRequestFailed
		case api.ErrorTypeEmptyResponse:
			return observability.StatusEmptyResponse
		case api.ErrorTypeInvalidRequest:
			return observability.StatusInvalid
		}
	}
	return observability.StatusError
}
