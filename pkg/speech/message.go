// Package speech implements a priority-based speech message scheduler.
//
// Clients open connections ([Scheduler.Connect]), submit messages tagged with
// one of five priority classes, and observe an ordered lifecycle event stream
// ([Scheduler.Subscribe]). The scheduler decides which message holds the
// single speaking slot at any instant and drives a pluggable [output.Module]
// that performs the actual synthesis. All queueing, preemption, pause/resume
// and cancellation semantics live here; no audio is produced in this package.
package speech

import "time"

// DataMode declares how a message payload should be interpreted by the
// output module.
type DataMode string

const (
	// DataModePlain marks the payload as plain text.
	DataModePlain DataMode = "plain"

	// DataModeSSML marks the payload as SSML markup.
	DataModeSSML DataMode = "ssml"
)

// PayloadKind identifies what a message payload carries.
type PayloadKind string

const (
	// PayloadText is ordinary text (or SSML, per DataMode).
	PayloadText PayloadKind = "text"

	// PayloadChar is a single character to be spoken by name.
	PayloadChar PayloadKind = "char"

	// PayloadKey is a keyboard key name (e.g. "shift_a").
	PayloadKey PayloadKind = "key"

	// PayloadIcon is a sound-icon reference resolved by the output module.
	PayloadIcon PayloadKind = "icon"
)

// MessageID identifies a submitted message. IDs are unique per [Scheduler]
// and monotonically assigned in submission order.
type MessageID uint64

// Message is the immutable record of a speech request once it has been
// accepted into a queue.
type Message struct {
	// ID is the scheduler-assigned unique identifier.
	ID MessageID

	// ClientID identifies the submitting connection.
	ClientID string

	// Priority is the scheduling class the message was submitted under.
	Priority Priority

	// Payload is the content to speak, interpreted per Kind and DataMode.
	Payload string

	// Kind declares what Payload carries. Defaults to [PayloadText].
	Kind PayloadKind

	// DataMode declares plain text vs SSML. Defaults to [DataModePlain].
	DataMode DataMode

	// Voice is the output voice selected on the submitting connection at
	// submission time. Empty means the output module's default.
	Voice string

	// EnqueueSeq is the global arrival number, used for FIFO tie-breaking
	// within a priority class.
	EnqueueSeq uint64

	// SubmittedAt is the submission timestamp.
	SubmittedAt time.Time
}

// msgState tracks where a message is in its lifecycle. Only the scheduler
// mutates it, always under the scheduler lock.
type msgState int

const (
	msgPending  msgState = iota // sitting in a class queue
	msgStarting                 // Speak issued, begin not yet reported
	msgSpeaking                 // output module reported begin
	msgPausing                  // Pause issued, ack pending
	msgPaused                   // holding a resume cursor
	msgResuming                 // Resume issued, ack pending
	msgStopping                 // Stop issued, ack pending
	msgDone                     // terminal event emitted
)

// trackedMessage is the scheduler's mutable wrapper around an immutable
// [Message].
type trackedMessage struct {
	msg   Message
	owner *client
	state msgState

	// cursor is the number of payload bytes already voiced, maintained from
	// output module acks. A postponed or paused message restarts from here.
	cursor int

	// begun records that a begin event was emitted; a message that regains
	// the speaking slot after pause or postponement must not re-emit it.
	begun bool

	// requeue marks a speaking message that should return to the head of its
	// class queue (rather than be canceled) once the output stop is acked.
	requeue bool

	// park marks a speaking message whose client was paused: once the output
	// pause is acked, the message leaves the speaking slot and waits on its
	// client until the client resumes.
	park bool
}
