package speech

// stateView is the read-only snapshot of scheduler state that the priority
// policy decides against.
type stateView struct {
	// speaking is the priority of the message currently holding the speaking
	// slot; only meaningful when hasSpeaking is true.
	speaking    Priority
	hasSpeaking bool

	// pendingImportant/pendingMessage/pendingText report whether any client
	// has a pending entry of that class.
	pendingImportant bool
	pendingMessage   bool
	pendingText      bool
}

// higherClassActive reports whether an Important, Message or Text entry is
// queued or speaking anywhere in the system.
func (v stateView) higherClassActive() bool {
	if v.pendingImportant || v.pendingMessage || v.pendingText {
		return true
	}
	return v.hasSpeaking && v.speaking.Resumable()
}

// action is the outcome of the priority policy for one incoming message. The
// policy performs no mutation itself; the scheduler applies the flags in
// order: drops, replacement, admission, then preemption.
type action struct {
	// admit queues the incoming message. When false the message is canceled
	// on arrival: it receives a cancel event and never a begin.
	admit bool

	// dropNotifyProgress cancels every pending Notification and Progress
	// entry, across all clients.
	dropNotifyProgress bool

	// replaceOwnClass cancels the submitting client's pending entry of the
	// same class, making the incoming message the sole survivor. Implements
	// the self-interruption rule for Text.
	replaceOwnClass bool

	// preempt stops the current utterance so the slot can be re-evaluated.
	// The preempted message is requeued at the head of its class queue when
	// its class is resumable, canceled otherwise.
	preempt bool
}

// decide is the pure priority-policy table of the scheduler. Rules are
// evaluated top to bottom, first match wins:
//
//  1. Important always queues; it preempts anything of lower rank but never
//     another Important.
//  2. Message queues behind pending Important/Message, drops all pending
//     Notification/Progress, and postpones a speaking Text (requeued, not
//     canceled).
//  3. Text replaces the client's own pending Text, drops all pending
//     Notification/Progress, and waits out active Important/Message items.
//  4. Notification is canceled on arrival when anything of higher rank is
//     queued or speaking; otherwise it drops every other pending
//     Notification/Progress and takes over from a speaking one.
//  5. Progress is canceled on arrival when anything at all is speaking;
//     otherwise it behaves like Notification, with the most recently
//     submitted entry retained as the per-client representative.
func decide(incoming Priority, view stateView) action {
	switch incoming {
	case PriorityImportant:
		return action{
			admit:   true,
			preempt: view.hasSpeaking && view.speaking != PriorityImportant,
		}

	case PriorityMessage:
		return action{
			admit:              true,
			dropNotifyProgress: true,
			preempt:            view.hasSpeaking && incoming.Outranks(view.speaking),
		}

	case PriorityText:
		return action{
			admit:              true,
			dropNotifyProgress: true,
			replaceOwnClass:    true,
			preempt:            view.hasSpeaking && incoming.Outranks(view.speaking),
		}

	case PriorityNotification:
		if view.higherClassActive() {
			return action{} // canceled on arrival
		}
		return action{
			admit:              true,
			dropNotifyProgress: true,
			preempt:            view.hasSpeaking && !view.speaking.Resumable(),
		}

	case PriorityProgress:
		if view.hasSpeaking || view.higherClassActive() {
			return action{} // canceled on arrival
		}
		// Dropping every pending Notification/Progress before admission is
		// what makes the newest Progress the surviving representative.
		return action{
			admit:              true,
			dropNotifyProgress: true,
		}
	}
	return action{}
}
