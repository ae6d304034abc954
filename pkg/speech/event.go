package speech

import "time"

// EventType identifies a lifecycle transition of a single message.
type EventType string

const (
	// EventBegin fires when a message enters the speaking slot and the
	// output module confirms synthesis has started. Emitted at most once per
	// message; a message resumed after pause does not re-emit it.
	EventBegin EventType = "begin"

	// EventEnd fires on natural completion. Terminal.
	EventEnd EventType = "end"

	// EventCancel fires when a message is removed, whether pending or
	// mid-speech. Terminal. Every message that ever entered a queue receives
	// exactly one terminal event (end or cancel).
	EventCancel EventType = "cancel"

	// EventPause fires when a speaking message is paused.
	EventPause EventType = "pause"

	// EventResume fires when a paused message starts speaking again.
	EventResume EventType = "resume"

	// EventIndexMark fires when the output module reaches a caller-supplied
	// marker inside the payload. Pass-through: the scheduler neither places
	// nor interprets markers.
	EventIndexMark EventType = "index_mark"
)

// Event is one entry of the scheduler's notification stream. Per-message
// ordering is guaranteed for every subscriber: begin precedes any index mark,
// pause/resume pairs nest, and the terminal event comes last.
type Event struct {
	Type      EventType
	MessageID MessageID
	ClientID  string
	Priority  Priority

	// Mark carries the marker string for [EventIndexMark] events.
	Mark string

	// Cursor is the number of payload bytes voiced so far, where known
	// (pause, cancel and index-mark events).
	Cursor int

	// At is when the scheduler recorded the transition.
	At time.Time
}
