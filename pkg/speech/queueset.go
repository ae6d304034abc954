package speech

// queueSet holds one FIFO queue per priority class for a single client.
// It is a plain data structure: all synchronization is the scheduler's.
// Removal helpers return the removed entries so the caller can emit the
// corresponding cancel events.
type queueSet struct {
	queues [numPriorities][]*trackedMessage
}

// enqueue appends m to the back of its class queue.
func (qs *queueSet) enqueue(m *trackedMessage) {
	p := m.msg.Priority
	qs.queues[p] = append(qs.queues[p], m)
}

// requeueFront puts a postponed or resumed message back at the head of its
// class queue so it is the next of its class to speak.
func (qs *queueSet) requeueFront(m *trackedMessage) {
	p := m.msg.Priority
	qs.queues[p] = append([]*trackedMessage{m}, qs.queues[p]...)
}

// cancelClass empties the queue of the given class and returns the removed
// entries in queue order.
func (qs *queueSet) cancelClass(p Priority) []*trackedMessage {
	removed := qs.queues[p]
	qs.queues[p] = nil
	return removed
}

// cancelAll empties every queue and returns the removed entries, highest
// class first.
func (qs *queueSet) cancelAll() []*trackedMessage {
	var removed []*trackedMessage
	for p := range qs.queues {
		removed = append(removed, qs.queues[p]...)
		qs.queues[p] = nil
	}
	return removed
}

// remove deletes the entry with the given ID from whatever queue holds it.
// Returns the entry, or nil if the ID is not queued here.
func (qs *queueSet) remove(id MessageID) *trackedMessage {
	for p := range qs.queues {
		for i, m := range qs.queues[p] {
			if m.msg.ID == id {
				qs.queues[p] = append(qs.queues[p][:i], qs.queues[p][i+1:]...)
				return m
			}
		}
	}
	return nil
}

// peekHighest returns the next message this client would speak: the head of
// its highest-priority non-empty queue. Returns nil when all queues are empty.
func (qs *queueSet) peekHighest() *trackedMessage {
	for p := range qs.queues {
		if len(qs.queues[p]) > 0 {
			return qs.queues[p][0]
		}
	}
	return nil
}

// pop removes and returns the given entry, which must be the head of its
// class queue (as returned by peekHighest).
func (qs *queueSet) pop(m *trackedMessage) {
	p := m.msg.Priority
	if len(qs.queues[p]) > 0 && qs.queues[p][0] == m {
		qs.queues[p] = qs.queues[p][1:]
	}
}

// hasPending reports whether any entry of class p is queued.
func (qs *queueSet) hasPending(p Priority) bool {
	return len(qs.queues[p]) > 0
}

// dropUnpreserved empties the Notification and Progress queues, returning the
// removed entries. Called when a pause takes effect: only Important, Message
// and Text entries survive a pause.
func (qs *queueSet) dropUnpreserved() []*trackedMessage {
	removed := qs.cancelClass(PriorityNotification)
	return append(removed, qs.cancelClass(PriorityProgress)...)
}

// size returns the total number of queued entries across all classes.
func (qs *queueSet) size() int {
	n := 0
	for p := range qs.queues {
		n += len(qs.queues[p])
	}
	return n
}

// empty reports whether all queues are empty.
func (qs *queueSet) empty() bool {
	for p := range qs.queues {
		if len(qs.queues[p]) > 0 {
			return false
		}
	}
	return true
}
