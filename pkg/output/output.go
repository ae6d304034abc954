// Package output defines the boundary between the speech scheduler and the
// synthesis subsystem that actually produces audio. The scheduler issues
// directives (Speak, Stop, Pause, Resume) and receives asynchronous
// acknowledgements through a [Sink]; it never touches audio itself.
package output

import (
	"context"
	"errors"
)

// ErrBusy is returned by Speak when the module already has an active
// utterance. The scheduler guarantees a single utterance at a time, so
// seeing this error indicates a scheduling bug.
var ErrBusy = errors.New("output: an utterance is already active")

// Utterance is one speech request handed to an output module.
type Utterance struct {
	// ID is the scheduler's message ID. Every Sink callback for this
	// utterance must carry it back.
	ID uint64

	// Text is the payload to synthesize.
	Text string

	// Kind is the payload kind ("text", "char", "key", "icon").
	Kind string

	// SSML reports whether Text is SSML markup rather than plain text.
	SSML bool

	// Voice names the synthesis voice. Empty selects the module default.
	Voice string

	// Cursor is the byte offset into Text at which synthesis should start.
	// Non-zero when a paused or postponed message regains the speaking slot.
	Cursor int
}

// Voice describes one synthesis voice advertised by a module.
type Voice struct {
	// Name is the module-specific voice identifier (e.g. "en-US", "de").
	Name string

	// Language is the BCP-47 language tag, where the module knows it.
	Language string

	// Variant is a module-specific variant label ("male1", "whisper", ...).
	Variant string
}

// Sink receives asynchronous acknowledgements from an output module. The
// scheduler implements it; modules must call each method at most once per
// directive, from at most one goroutine at a time.
type Sink interface {
	// UtteranceBegan acknowledges a Speak directive: audio is flowing.
	UtteranceBegan(id uint64)

	// UtteranceEnded reports natural completion of the active utterance.
	UtteranceEnded(id uint64)

	// UtteranceStopped acknowledges a Stop directive. cursor is the byte
	// offset reached before the stop, or 0 when the module cannot tell.
	UtteranceStopped(id uint64, cursor int)

	// UtterancePaused acknowledges a Pause directive at the given cursor.
	UtterancePaused(id uint64, cursor int)

	// UtteranceResumed acknowledges a Resume directive.
	UtteranceResumed(id uint64)

	// MarkReached reports that synthesis passed a caller-supplied index mark
	// embedded in the utterance text.
	MarkReached(id uint64, mark string, cursor int)
}

// Module is a synthesis backend. Implementations hold at most one active
// utterance; the scheduler serializes directives so that a new Speak is only
// issued after the previous utterance's terminal acknowledgement
// (UtteranceEnded or UtteranceStopped).
//
// Directives must not block on synthesis: Speak returns once the utterance
// has been accepted, and completion is reported through the [Sink].
type Module interface {
	// SetSink binds the acknowledgement receiver. The scheduler calls this
	// once, before any directive; modules must not emit callbacks earlier.
	SetSink(s Sink)

	// Speak starts synthesizing u. A synchronous error means the utterance
	// never started (the scheduler treats the message as canceled); after a
	// nil return the module owes exactly one terminal Sink call.
	Speak(ctx context.Context, u Utterance) error

	// Stop aborts the active utterance. No-op when idle. Acknowledged via
	// UtteranceStopped.
	Stop()

	// Pause suspends the active utterance at the next determinable text
	// boundary. Modules that cannot truly suspend may stop synthesis and
	// report the cursor they reached. Acknowledged via UtterancePaused.
	Pause()

	// Resume continues a paused utterance. Acknowledged via UtteranceResumed.
	Resume()

	// Voices lists the voices this module can synthesize with.
	Voices() []Voice

	// Ping reports whether the module is usable (binary present, device
	// open, ...). Used by readiness checks.
	Ping(ctx context.Context) error

	// Close releases module resources. The module must not call the Sink
	// after Close returns.
	Close() error
}
