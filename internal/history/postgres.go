package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the message_history table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS message_history (
    id           BIGSERIAL PRIMARY KEY,
    message_id   BIGINT NOT NULL,
    client_id    TEXT NOT NULL,
    priority     TEXT NOT NULL,
    kind         TEXT NOT NULL DEFAULT 'text',
    text         TEXT NOT NULL,
    ssml         BOOLEAN NOT NULL DEFAULT FALSE,
    outcome      TEXT NOT NULL,
    submitted_at TIMESTAMPTZ NOT NULL,
    began_at     TIMESTAMPTZ,
    finished_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_history_client ON message_history(client_id);
CREATE INDEX IF NOT EXISTS idx_message_history_finished ON message_history(finished_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pinger is implemented by pgx pools and connections.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// message_history table and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// Append archives one finished message.
func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	const query = `
		INSERT INTO message_history (
			message_id, client_id, priority, kind, text, ssml,
			outcome, submitted_at, began_at, finished_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	var began any
	if !rec.BeganAt.IsZero() {
		began = rec.BeganAt
	}
	_, err := s.db.Exec(ctx, query,
		rec.MessageID, rec.ClientID, rec.Priority, rec.Kind, rec.Text, rec.SSML,
		rec.Outcome, rec.SubmittedAt, began, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("history: append message %d: %w", rec.MessageID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first, optionally filtered by
// client ID.
func (s *PostgresStore) Recent(ctx context.Context, clientID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if clientID == "" {
		const query = `
			SELECT message_id, client_id, priority, kind, text, ssml,
			       outcome, submitted_at, began_at, finished_at
			FROM message_history
			ORDER BY finished_at DESC, id DESC
			LIMIT $1`
		rows, err = s.db.Query(ctx, query, limit)
	} else {
		const query = `
			SELECT message_id, client_id, priority, kind, text, ssml,
			       outcome, submitted_at, began_at, finished_at
			FROM message_history
			WHERE client_id = $1
			ORDER BY finished_at DESC, id DESC
			LIMIT $2`
		rows, err = s.db.Query(ctx, query, clientID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var began *time.Time
		if err := rows.Scan(
			&rec.MessageID, &rec.ClientID, &rec.Priority, &rec.Kind, &rec.Text, &rec.SSML,
			&rec.Outcome, &rec.SubmittedAt, &began, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("history: recent scan: %w", err)
		}
		if began != nil {
			rec.BeganAt = *began
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return recs, nil
}

// Ping verifies the database connection when the underlying DB supports it.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if p, ok := s.db.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close is a no-op; the pool lifecycle belongs to the caller.
func (s *PostgresStore) Close() error { return nil }
