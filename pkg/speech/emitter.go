package speech

import "sync"

// emitter fans scheduler events out to persistent subscribers. Publication
// is a cheap append under the subscriber's lock, so the scheduler may publish
// while holding its own state lock without risking a stall; delivery to each
// subscriber channel happens on a per-subscriber goroutine that preserves
// publication order.
type emitter struct {
	mu     sync.Mutex
	subs   []*subscriber
	closed bool
}

// subscriber buffers events between publication and channel delivery. The
// buffer is unbounded: a slow consumer delays only itself.
type subscriber struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool

	ch   chan Event
	done chan struct{} // closed alongside closed=true; unblocks channel sends
}

func newEmitter() *emitter {
	return &emitter{}
}

// subscribe registers a new listener and returns its event channel together
// with an unsubscribe function. The channel is closed after unsubscribe (or
// emitter close); events still buffered at that point are discarded, since
// the consumer is gone.
func (e *emitter) subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 16), done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	e.subs = append(e.subs, s)
	e.mu.Unlock()

	go s.deliver()

	return s.ch, func() {
		e.mu.Lock()
		for i, sub := range e.subs {
			if sub == s {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				break
			}
		}
		e.mu.Unlock()
		s.close()
	}
}

// publish appends events to every subscriber's buffer in order. Never blocks.
func (e *emitter) publish(events ...Event) {
	if len(events) == 0 {
		return
	}
	e.mu.Lock()
	subs := e.subs
	e.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		if !s.closed {
			s.pending = append(s.pending, events...)
			s.cond.Signal()
		}
		s.mu.Unlock()
	}
}

// close stops all subscribers and closes their channels.
func (e *emitter) close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// deliver drains the pending buffer into the subscriber channel, preserving
// order, until the subscriber is closed. A consumer that unsubscribed may
// have stopped reading, so remaining events are dropped rather than sent.
func (s *subscriber) deliver() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.pending = nil
			s.mu.Unlock()
			return
		}
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.ch <- ev:
			case <-s.done:
				return
			}
		}
	}
}
