package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/rhuss/plauder/pkg/api"
	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/storage"
)

const (
	systemPromptLabel = "Enter system prompt (or press Enter for default): "
	exitCommand       = "exit"
	goodbye           = "Goodbye!"

	// maxLineSize bounds a single line of user input.
	maxLineSize = 1 << 20
)

// Completer answers a conversation. *engine.Engine implements it.
type Completer interface {
	GetCompletion(ctx context.Context, messages []api.Message) (api.Message, error)
	StreamCompletion(ctx context.Context, messages []api.Message) (api.Message, error)
}

// Config holds conversation loop settings.
type Config struct {
	// Stream selects StreamCompletion over GetCompletion.
	Stream bool

	// DefaultSystemPrompt is used when the user enters an empty system
	// prompt.
	DefaultSystemPrompt string

	// Deployment is recorded with newly created sessions.
	Deployment string

	// ResumeID, when set, continues a stored session instead of starting
	// a new one. It requires a store.
	ResumeID string
}

// Option configures a Session.
type Option func(*Session)

// WithStore persists transcripts in store. Without a store the
// conversation lives in memory only.
func WithStore(store storage.TranscriptStore) Option {
	return func(s *Session) {
		s.store = store
	}
}

// Session is one interactive conversation.
type Session struct {
	completer Completer
	cfg       Config
	store     storage.TranscriptStore
	id        string
	history   *api.Conversation
}

// New creates a session. The completer must not be nil.
func New(c Completer, cfg Config, opts ...Option) (*Session, error) {
	if c == nil {
		return nil, fmt.Errorf("session: completer must not be nil")
	}
	s := &Session{
		completer: c,
		cfg:       cfg,
		history:   api.NewConversation(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.ResumeID != "" {
		if s.store == nil {
			return nil, fmt.Errorf("session: resuming %s requires transcript storage", cfg.ResumeID)
		}
		s.id = cfg.ResumeID
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	return s, nil
}

// ID returns the session ID under which the transcript is stored.
func (s *Session) ID() string {
	return s.id
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []api.Message {
	return s.history.Messages()
}

// Run reads user input from in and writes prompts and answers to out
// until the user types exit, in is exhausted or ctx is cancelled.
//
// A failed turn is reported on out and the loop continues. Run returns
// nil on exit and at end of input, and ctx.Err() after cancellation.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	st := newStyler(out)
	lines := newLineReader(ctx, in)

	if err := s.start(ctx, lines, out, st); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(out, st.userLabel())
		line, err := lines.next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return err
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if strings.EqualFold(input, exitCommand) {
			fmt.Fprintln(out, goodbye)
			return nil
		}

		if err := s.turn(ctx, input, out, st); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				fmt.Fprintln(out)
				return ctxErr
			}
			fmt.Fprintf(out, "%s%s\n", st.errorLabel(), err)
		}
	}
}

// start seeds the conversation, either from the store or with a system
// prompt read from the user.
func (s *Session) start(ctx context.Context, lines *lineReader, out io.Writer, st styler) error {
	if s.cfg.ResumeID != "" {
		messages, err := s.store.LoadMessages(ctx, s.id)
		if err != nil {
			return fmt.Errorf("resuming session %s: %w", s.id, err)
		}
		s.history = api.NewConversation(messages...)
		fmt.Fprintln(out, st.note(fmt.Sprintf("Resumed session %s with %d messages.", s.id, len(messages))))
		debug.Log(debug.CategorySession, "session resumed", "id", s.id, "messages", len(messages))
		return nil
	}

	fmt.Fprint(out, systemPromptLabel)
	line, err := lines.next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
		}
		return err
	}

	prompt := strings.TrimSpace(line)
	if prompt == "" {
		prompt = s.cfg.DefaultSystemPrompt
	}

	if s.store != nil {
		if err := s.store.CreateSession(ctx, s.id, s.cfg.Deployment); err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
	}
	debug.Log(debug.CategorySession, "session started", "id", s.id, "deployment", s.cfg.Deployment)

	s.add(ctx, api.SystemMessage(prompt))
	return nil
}

// turn sends one user message and records the answer. The user message
// stays in the history when the request fails.
func (s *Session) turn(ctx context.Context, input string, out io.Writer, st styler) error {
	s.add(ctx, api.UserMessage(input))

	fmt.Fprint(out, st.assistantLabel())

	var (
		reply api.Message
		err   error
	)
	if s.cfg.Stream {
		reply, err = s.completer.StreamCompletion(ctx, s.history.Messages())
	} else {
		reply, err = s.completer.GetCompletion(ctx, s.history.Messages())
		if err == nil {
			fmt.Fprintln(out)
		}
	}
	if err != nil {
		debug.Log(debug.CategorySession, "turn failed", "id", s.id, "error", err)
		return err
	}

	s.add(ctx, reply)
	return nil
}

// add appends m to the history and the store. Storage failures are
// logged; the conversation continues in memory.
func (s *Session) add(ctx context.Context, m api.Message) {
	s.history.Add(m)
	if s.store == nil {
		return
	}
	if err := s.store.AppendMessage(ctx, s.id, m); err != nil {
		slog.Warn("failed to persist message",
			"session", s.id,
			"role", m.Role,
			"error", err,
		)
	}
}

// lineReader delivers lines from a reader on a channel so that waiting
// for input can be abandoned when the context is cancelled.
type lineReader struct {
	lines chan string
	err   error // set before lines is closed
}

func newLineReader(ctx context.Context, in io.Reader) *lineReader {
	r := &lineReader{lines: make(chan string)}
	go func() {
		defer close(r.lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			select {
			case r.lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		r.err = scanner.Err()
	}()
	return r
}

// next returns the next line, io.EOF at end of input, or the context
// error after cancellation.
func (r *lineReader) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-r.lines:
		if !ok {
			if r.err != nil {
				return "", fmt.Errorf("reading input: %w", r.err)
			}
			return "", io.EOF
		}
		return line, nil
	}
}
