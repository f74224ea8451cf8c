package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/szaher/versailles/internal/backend"
)

const defaultPostgresTable = "versailles_sessions"

const createSessionsTableSQL = `CREATE TABLE IF NOT EXISTS %s (
    session_id TEXT PRIMARY KEY,
    state      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Querier is the subset of pgx used by PostgresStore. *pgxpool.Pool and
// pgxmock pools satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store with one JSONB row per session.
type PostgresStore struct {
	db    Querier
	table string
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithTable overrides the table name. The name is quoted as an identifier.
func WithTable(name string) PostgresOption {
	return func(s *PostgresStore) {
		s.table = pgx.Identifier{name}.Sanitize()
	}
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(db Querier, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, table: defaultPostgresTable}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSchema creates the sessions table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(createSessionsTableSQL, s.table)); err != nil {
		return classifyPostgres("ensure schema", err)
	}
	return nil
}

// Load returns the stored state or the zero State.
func (s *PostgresStore) Load(ctx context.Context, sessionID string) (State, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE session_id = $1`, s.table)

	var data []byte
	err := s.db.QueryRow(ctx, query, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, classifyPostgres("load", err)
	}
	return decodeState(data)
}

// Save upserts the stored state.
func (s *PostgresStore) Save(ctx context.Context, sessionID string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (session_id, state, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (session_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`, s.table)

	if _, err := s.db.Exec(ctx, query, sessionID, data); err != nil {
		return classifyPostgres("save", err)
	}
	return nil
}

// Clear deletes the stored row.
func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, s.table)
	if _, err := s.db.Exec(ctx, query, sessionID); err != nil {
		return classifyPostgres("clear", err)
	}
	return nil
}

// Sweep deletes rows not updated within olderThan.
func (s *PostgresStore) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE updated_at < $1`, s.table)
	tag, err := s.db.Exec(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return 0, classifyPostgres("sweep", err)
	}
	return int(tag.RowsAffected()), nil
}

// classifyPostgres treats server-side errors (constraint violations, bad
// SQL) as ordinary failures and everything else as unavailability.
func classifyPostgres(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres %s: %w", op, err)
	}
	return backend.Unavailable("postgres", op, err)
}
