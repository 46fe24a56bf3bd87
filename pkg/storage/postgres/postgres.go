// Package postgres provides a PostgreSQL implementation of
// storage.TranscriptStore using pgx/v5 connection pooling. Messages are
// stored one row each, numbered per session.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/plauder/pkg/api"
	"github.com/rhuss/plauder/pkg/debug"
	"github.com/rhuss/plauder/pkg/storage"
)

// PostgreSQL error codes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store is a PostgreSQL-backed TranscriptStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.TranscriptStore at compile time.
var _ storage.TranscriptStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Verify connectivity.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// CreateSession inserts a session row.
func (s *Store) CreateSession(ctx context.Context, id, deployment string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO sessions (id, deployment) VALUES ($1, $2)",
		id, deployment,
	)
	if err != nil {
		if hasCode(err, codeUniqueViolation) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	debug.Log(debug.CategoryStorage, "session created", "id", id, "deployment", deployment)
	return nil
}

// AppendMessage inserts a message with the next sequence number of its
// session.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg api.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (session_id, seq, role, content)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3
		FROM messages
		WHERE session_id = $1
	`, sessionID, string(msg.Role), msg.Content)
	if err != nil {
		if hasCode(err, codeForeignKeyViolation) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// LoadMessages returns the transcript of a session ordered by sequence.
func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]api.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM sessions WHERE id = $1)",
		sessionID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	rows, err := s.pool.Query(ctx,
		"SELECT role, content FROM messages WHERE session_id = $1 ORDER BY seq",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}

	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.Message, error) {
		var role, content string
		if err := row.Scan(&role, &content); err != nil {
			return api.Message{}, err
		}
		return api.NewMessage(api.Role(role), content)
	})
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}

	debug.Log(debug.CategoryStorage, "transcript loaded", "id", sessionID, "messages", len(messages))
	return messages, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// hasCode reports whether err is a PostgreSQL error with the given code.
func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
