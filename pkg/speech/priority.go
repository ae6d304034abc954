package speech

import "fmt"

// Priority classifies a message for scheduling. Higher-ranked classes are
// spoken before lower-ranked ones and may cancel or postpone them; the exact
// interaction rules live in the policy table (see policy.go).
type Priority int

// Priority classes, ordered from highest to lowest rank.
const (
	// PriorityImportant messages are never canceled and, once speaking,
	// never interrupted. Multiple Important messages queue in arrival order.
	PriorityImportant Priority = iota

	// PriorityMessage is the default class for ordinary announcements. A new
	// Message cancels all pending Notification/Progress entries system-wide
	// and postpones a currently speaking Text message.
	PriorityMessage

	// PriorityText is for longer reading content. Self-interrupting per
	// client: a new Text replaces the client's pending Text. Postponed (not
	// canceled) while Important or Message items are active.
	PriorityText

	// PriorityNotification is for short, droppable status lines.
	// Self-interrupting system-wide; canceled outright when anything of
	// higher rank is queued or speaking.
	PriorityNotification

	// PriorityProgress is for rapid-fire progress updates. Canceled outright
	// when anything at all is speaking; otherwise behaves like Notification.
	PriorityProgress
)

// numPriorities is the number of priority classes; used to size queue arrays.
const numPriorities = 5

var priorityNames = [numPriorities]string{
	"important", "message", "text", "notification", "progress",
}

// String returns the lowercase class name ("important", "message", ...).
func (p Priority) String() string {
	if !p.IsValid() {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// IsValid reports whether p is one of the five defined classes.
func (p Priority) IsValid() bool {
	return p >= PriorityImportant && p <= PriorityProgress
}

// Outranks reports whether p is spoken before q when both are pending.
func (p Priority) Outranks(q Priority) bool {
	return p < q
}

// Resumable reports whether a message of this class survives preemption:
// Important, Message and Text are requeued at the head of their class queue,
// Notification and Progress are canceled instead.
func (p Priority) Resumable() bool {
	return p == PriorityImportant || p == PriorityMessage || p == PriorityText
}

// ParsePriority converts a class name to a [Priority]. Accepted values are
// the lowercase names produced by [Priority.String].
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if s == name {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("speech: unknown priority %q; valid values: important, message, text, notification, progress", s)
}
