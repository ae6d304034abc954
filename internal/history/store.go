// Package history records every submitted message together with its
// terminal disposition, so users can replay or audit what was (or was not)
// spoken.
package history

import (
	"context"
	"time"
)

// Record is one archived message.
type Record struct {
	// MessageID is the scheduler-assigned message ID.
	MessageID uint64

	// ClientID identifies the submitting connection.
	ClientID string

	// Priority is the message's priority class name ("important", ...).
	Priority string

	// Kind is the payload kind ("text", "char", "key", "icon").
	Kind string

	// Text is the message payload.
	Text string

	// SSML reports whether Text is SSML markup.
	SSML bool

	// Outcome is the terminal disposition ("spoken" or "canceled").
	Outcome string

	// SubmittedAt is when the scheduler accepted the message.
	SubmittedAt time.Time

	// BeganAt is when synthesis first produced audio. Zero when the message
	// never reached the speaking slot.
	BeganAt time.Time

	// FinishedAt is when the terminal disposition was reached.
	FinishedAt time.Time
}

// Store persists history records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append archives one finished message.
	Append(ctx context.Context, rec *Record) error

	// Recent returns up to limit records, newest first, optionally filtered
	// by client ID. An empty clientID returns records for all clients.
	Recent(ctx context.Context, clientID string, limit int) ([]Record, error)

	// Ping reports whether the store is reachable. Used by readiness checks.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
