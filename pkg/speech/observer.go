package speech

import (
	"sync"
	"time"
)

// Outcome is the terminal disposition of a message.
type Outcome string

const (
	// OutcomeSpoken means the message was synthesized to completion.
	OutcomeSpoken Outcome = "spoken"

	// OutcomeCanceled means the message was dropped before completion:
	// canceled on arrival, superseded in queue, explicitly canceled, or
	// interrupted without postponement.
	OutcomeCanceled Outcome = "canceled"
)

// Observer receives message lifecycle notifications carrying the full
// [Message], which the client event stream deliberately does not. History
// recording and metrics hang off this interface.
//
// Notifications arrive in transition order from a single goroutine, so
// implementations may do I/O without stalling the scheduler. A message that
// was submitted gets exactly one MessageFinished.
type Observer interface {
	// MessageSubmitted fires for every submission that was assigned an ID,
	// including ones canceled on arrival.
	MessageSubmitted(m Message)

	// MessageBegan fires when synthesis of m first produces audio. Skipped
	// for messages canceled before they reached the speaking slot.
	MessageBegan(m Message, at time.Time)

	// MessagePostponed fires when a speaking message is interrupted by a
	// higher class and requeued at the head of its own class.
	MessagePostponed(m Message, at time.Time)

	// MessageFinished fires when m reaches its terminal disposition.
	MessageFinished(m Message, outcome Outcome, at time.Time)
}

const (
	noticeSubmitted = iota
	noticeBegan
	noticePostponed
	noticeFinished
)

// notice is one queued observer notification.
type notice struct {
	kind    int
	msg     Message
	outcome Outcome
	at      time.Time
}

// notifier fans scheduler notifications out to observers from a dedicated
// goroutine. publish never blocks; pending notices are drained before close
// returns, so terminal dispositions emitted during shutdown still reach the
// observers.
type notifier struct {
	observers []Observer

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []notice
	closed bool
	done   chan struct{}
}

func newNotifier(observers []Observer) *notifier {
	n := &notifier{
		observers: observers,
		done:      make(chan struct{}),
	}
	n.cond = sync.NewCond(&n.mu)
	go n.deliver()
	return n
}

func (n *notifier) publish(nt notice) {
	n.mu.Lock()
	if !n.closed {
		n.queue = append(n.queue, nt)
		n.cond.Signal()
	}
	n.mu.Unlock()
}

func (n *notifier) deliver() {
	defer close(n.done)
	for {
		n.mu.Lock()
		for len(n.queue) == 0 && !n.closed {
			n.cond.Wait()
		}
		batch := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		for _, nt := range batch {
			for _, o := range n.observers {
				switch nt.kind {
				case noticeSubmitted:
					o.MessageSubmitted(nt.msg)
				case noticeBegan:
					o.MessageBegan(nt.msg, nt.at)
				case noticePostponed:
					o.MessagePostponed(nt.msg, nt.at)
				case noticeFinished:
					o.MessageFinished(nt.msg, nt.outcome, nt.at)
				}
			}
		}
		if closed && len(batch) == 0 {
			return
		}
	}
}

// close stops accepting notices and waits for the queued ones to be
// delivered.
func (n *notifier) close() {
	n.mu.Lock()
	n.closed = true
	n.cond.Signal()
	n.mu.Unlock()
	<-n.done
}
