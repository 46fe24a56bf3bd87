package storage

import (
	"context"

	"github.com/rhuss/plauder/pkg/api"
)

// TranscriptStore persists the messages of chat sessions in order.
//
// Implementations must be safe for concurrent use.
type TranscriptStore interface {
	// CreateSession registers a new session. It returns ErrConflict if the
	// ID is already taken.
	CreateSession(ctx context.Context, id, deployment string) error

	// AppendMessage adds msg to the end of the session's transcript. It
	// returns ErrNotFound for an unknown session.
	AppendMessage(ctx context.Context, sessionID string, msg api.Message) error

	// LoadMessages returns the transcript oldest first. It returns
	// ErrNotFound for an unknown session.
	LoadMessages(ctx context.Context, sessionID string) ([]api.Message, error)

	// Close releases resources held by the store.
	Close() error
}
