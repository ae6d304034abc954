package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxmux/voxmux/pkg/output"
)

// client is the scheduler-side record of one connection.
type client struct {
	id     string
	name   string
	paused bool
	closed bool
	voice  string
	queues queueSet

	// parked holds this client's mid-speech message while the client is
	// paused. Requeued at the head of its class on resume.
	parked *trackedMessage
}

// Scheduler owns the global speaking slot. It accepts messages from any
// number of connections, applies the priority policy, drives an
// [output.Module], and publishes lifecycle events.
//
// All state transitions are serialized under one mutex; output directives are
// issued outside the lock and acknowledged asynchronously through the
// [output.Sink] adapter, which re-enters the same mutex. All exported methods
// are safe for concurrent use.
type Scheduler struct {
	out   output.Module
	em    *emitter
	notif *notifier
	log   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	observers []Observer

	mu           sync.Mutex
	clients      map[string]*client
	track        map[MessageID]*trackedMessage
	nextID       MessageID
	nextSeq      uint64
	speaking     *trackedMessage
	globalPaused bool
	closed       bool
}

// Option is a functional option for [New].
type Option func(*Scheduler)

// WithLogger sets the logger used for scheduler diagnostics. Defaults to
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithObserver registers a lifecycle observer. May be given multiple times;
// observers are notified in registration order.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, o) }
}

// New creates a Scheduler driving the given output module and binds itself as
// the module's acknowledgement sink. Call [Scheduler.Close] to release the
// module and terminate all event streams.
func New(out output.Module, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		out:     out,
		em:      newEmitter(),
		log:     slog.Default(),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
		track:   make(map[MessageID]*trackedMessage),
	}
	for _, o := range opts {
		o(s)
	}
	if len(s.observers) > 0 {
		s.notif = newNotifier(s.observers)
	}
	out.SetSink(&sinkAdapter{s: s})
	return s
}

// Subscribe registers a persistent listener on the scheduler event stream.
// Events arrive in publication order; per-message ordering (begin before the
// terminal event, exactly one terminal event) is guaranteed. The returned
// function unsubscribes and closes the channel.
func (s *Scheduler) Subscribe() (<-chan Event, func()) {
	return s.em.subscribe()
}

// Stats is a point-in-time snapshot of scheduler occupancy, suitable for
// gauge callbacks.
type Stats struct {
	// Clients is the number of open connections.
	Clients int

	// Queued is the number of pending messages across all clients,
	// including parked ones.
	Queued int

	// Speaking reports whether the speaking slot is occupied.
	Speaking bool

	// Paused reports whether global pause is in effect.
	Paused bool
}

// Stats returns a snapshot of the scheduler's occupancy.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Speaking: s.speaking != nil,
		Paused:   s.globalPaused,
	}
	for _, c := range s.clients {
		if c.closed {
			continue
		}
		st.Clients++
		st.Queued += c.queues.size()
		if c.parked != nil {
			st.Queued++
		}
	}
	return st
}

// Connect opens a new client connection. name identifies the client in logs
// and history ("user:application:component" by convention; may be empty).
func (s *Scheduler) Connect(name string) (*Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}
	c := &client{
		id:   uuid.NewString(),
		name: name,
	}
	s.clients[c.id] = c
	s.log.Debug("client connected", "client_id", c.id, "client_name", name)
	return &Conn{s: s, c: c}, nil
}

// Close shuts the scheduler down: every pending and speaking message is
// canceled, the output module is closed, and all event channels terminate
// after their buffered events. Close is idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	for _, c := range s.clients {
		s.cancelClientLocked(c)
		c.closed = true
	}
	if s.speaking != nil {
		// The module is about to be closed; no stop ack will come.
		s.finishLocked(s.speaking, EventCancel)
		s.speaking = nil
	}
	s.mu.Unlock()

	s.cancel()
	err := s.out.Close()
	s.em.close()
	if s.notif != nil {
		s.notif.close()
	}
	return err
}

// ─── Submission ──────────────────────────────────────────────────────────────

// SubmitRequest carries the optional attributes of a message submission.
type SubmitRequest struct {
	Payload  string
	Priority Priority
	Kind     PayloadKind // defaults to PayloadText
	DataMode DataMode    // defaults to DataModePlain
}

func (s *Scheduler) submit(c *client, req SubmitRequest) (MessageID, error) {
	if !req.Priority.IsValid() {
		return 0, ErrInvalidPriority
	}
	if req.Kind == "" {
		req.Kind = PayloadText
	}
	if req.DataMode == "" {
		req.DataMode = DataModePlain
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSchedulerClosed
	}
	if c.closed {
		s.mu.Unlock()
		return 0, ErrClientClosed
	}

	s.nextID++
	s.nextSeq++
	m := &trackedMessage{
		msg: Message{
			ID:          s.nextID,
			ClientID:    c.id,
			Priority:    req.Priority,
			Payload:     req.Payload,
			Kind:        req.Kind,
			DataMode:    req.DataMode,
			Voice:       c.voice,
			EnqueueSeq:  s.nextSeq,
			SubmittedAt: time.Now(),
		},
		owner: c,
	}
	if s.notif != nil {
		s.notif.publish(notice{kind: noticeSubmitted, msg: m.msg})
	}

	act := decide(req.Priority, s.viewLocked())

	if !act.admit {
		// Canceled on arrival: terminal event, never queued, no begin.
		s.log.Debug("message canceled on arrival",
			"message_id", m.msg.ID, "priority", req.Priority.String(), "client_id", c.id)
		m.state = msgDone
		s.em.publish(s.eventFor(EventCancel, m))
		if s.notif != nil {
			s.notif.publish(notice{kind: noticeFinished, msg: m.msg, outcome: OutcomeCanceled, at: time.Now()})
		}
		s.mu.Unlock()
		return m.msg.ID, nil
	}

	var dirs []func()

	if act.dropNotifyProgress {
		s.dropNotifyProgressLocked()
	}
	if act.replaceOwnClass {
		for _, old := range c.queues.cancelClass(req.Priority) {
			s.finishLocked(old, EventCancel)
		}
	}

	m.state = msgPending
	c.queues.enqueue(m)
	s.track[m.msg.ID] = m

	if act.preempt {
		s.stopSpeakingLocked(s.speaking.msg.Priority.Resumable(), &dirs)
	} else if s.speaking == nil {
		s.startNextLocked(&dirs)
	}
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return m.msg.ID, nil
}

// ─── Locked state helpers ────────────────────────────────────────────────────

// viewLocked snapshots the state the priority policy decides against.
// Paused clients' queues are frozen, so their entries do not count as
// pending.
func (s *Scheduler) viewLocked() stateView {
	v := stateView{}
	if s.speaking != nil {
		v.hasSpeaking = true
		v.speaking = s.speaking.msg.Priority
	}
	for _, c := range s.clients {
		if c.paused || c.closed {
			continue
		}
		v.pendingImportant = v.pendingImportant || c.queues.hasPending(PriorityImportant)
		v.pendingMessage = v.pendingMessage || c.queues.hasPending(PriorityMessage)
		v.pendingText = v.pendingText || c.queues.hasPending(PriorityText)
	}
	return v
}

// eventFor builds an event for m with the scheduler's current knowledge of
// its cursor.
func (s *Scheduler) eventFor(t EventType, m *trackedMessage) Event {
	return Event{
		Type:      t,
		MessageID: m.msg.ID,
		ClientID:  m.msg.ClientID,
		Priority:  m.msg.Priority,
		Cursor:    m.cursor,
		At:        time.Now(),
	}
}

// finishLocked emits the terminal event for m and forgets it.
func (s *Scheduler) finishLocked(m *trackedMessage, t EventType) {
	m.state = msgDone
	s.em.publish(s.eventFor(t, m))
	if s.notif != nil {
		outcome := OutcomeCanceled
		if t == EventEnd {
			outcome = OutcomeSpoken
		}
		s.notif.publish(notice{kind: noticeFinished, msg: m.msg, outcome: outcome, at: time.Now()})
	}
	delete(s.track, m.msg.ID)
}

// dropNotifyProgressLocked cancels every pending Notification and Progress
// entry across all clients.
func (s *Scheduler) dropNotifyProgressLocked() {
	for _, c := range s.clients {
		for _, m := range c.queues.cancelClass(PriorityNotification) {
			s.finishLocked(m, EventCancel)
		}
		for _, m := range c.queues.cancelClass(PriorityProgress) {
			s.finishLocked(m, EventCancel)
		}
	}
}

// bestCandidateLocked returns the highest-ranked pending message across all
// non-paused clients, tie-broken by arrival order. Nil when nothing is
// eligible.
func (s *Scheduler) bestCandidateLocked() *trackedMessage {
	var best *trackedMessage
	for _, c := range s.clients {
		if c.paused || c.closed {
			continue
		}
		m := c.queues.peekHighest()
		if m == nil {
			continue
		}
		if best == nil ||
			m.msg.Priority.Outranks(best.msg.Priority) ||
			(m.msg.Priority == best.msg.Priority && m.msg.EnqueueSeq < best.msg.EnqueueSeq) {
			best = m
		}
	}
	return best
}

// startNextLocked fills an empty speaking slot with the best candidate and
// appends the Speak directive to dirs. No-op while something occupies the
// slot, during global pause, or after Close.
func (s *Scheduler) startNextLocked(dirs *[]func()) {
	if s.closed || s.globalPaused || s.speaking != nil {
		return
	}
	m := s.bestCandidateLocked()
	if m == nil {
		return
	}
	m.owner.queues.pop(m)
	m.state = msgStarting
	s.speaking = m

	u := output.Utterance{
		ID:     uint64(m.msg.ID),
		Text:   m.msg.Payload,
		Kind:   string(m.msg.Kind),
		SSML:   m.msg.DataMode == DataModeSSML,
		Voice:  m.msg.Voice,
		Cursor: m.cursor,
	}
	id := m.msg.ID
	*dirs = append(*dirs, func() {
		if err := s.out.Speak(s.ctx, u); err != nil {
			s.speakFailed(id, err)
		}
	})
}

// stopSpeakingLocked requests the output module to abort the current
// utterance. requeue selects the post-stop fate: back to the head of its
// class queue (postponement) or a cancel event. When a stop or pause is
// already in flight the ack decides, but a cancellation downgrades any
// pending postponement or park; nothing upgrades a cancellation back.
func (s *Scheduler) stopSpeakingLocked(requeue bool, dirs *[]func()) {
	m := s.speaking
	if m == nil {
		return
	}
	switch m.state {
	case msgStopping:
		if !requeue {
			m.requeue = false
			m.park = false
		}
		return
	case msgPausing:
		if !requeue {
			m.park = false
		}
	}
	m.state = msgStopping
	m.requeue = requeue
	*dirs = append(*dirs, s.out.Stop)
}

// reconsiderLocked re-evaluates the speaking slot after queue contents
// changed outside a submission (client resume, client close). It preempts the
// current utterance when a pending message outranks it — except Important,
// which is never interrupted.
func (s *Scheduler) reconsiderLocked(dirs *[]func()) {
	if s.speaking == nil {
		s.startNextLocked(dirs)
		return
	}
	m := s.speaking
	if m.msg.Priority == PriorityImportant {
		return
	}
	if m.state != msgStarting && m.state != msgSpeaking {
		return
	}
	if best := s.bestCandidateLocked(); best != nil && best.msg.Priority.Outranks(m.msg.Priority) {
		s.stopSpeakingLocked(m.msg.Priority.Resumable(), dirs)
	}
}

// cancelClientLocked drops every queued or parked message belonging to c.
// The speaking slot is the caller's business: stopping a speaking message
// needs a directive, which cannot be issued under the lock.
func (s *Scheduler) cancelClientLocked(c *client) {
	for _, m := range c.queues.cancelAll() {
		s.finishLocked(m, EventCancel)
	}
	if c.parked != nil {
		s.finishLocked(c.parked, EventCancel)
		c.parked = nil
	}
}

// speakFailed handles a synchronous Speak error: the message is treated as
// canceled and the slot moves on. No retries.
func (s *Scheduler) speakFailed(id MessageID, err error) {
	s.mu.Lock()
	m, ok := s.track[id]
	if !ok || s.speaking != m {
		s.mu.Unlock()
		return
	}
	s.log.Warn("output module failed to start utterance",
		"message_id", id, "err", err, "cause", ErrOutputUnavailable)
	s.speaking = nil
	s.finishLocked(m, EventCancel)

	var dirs []func()
	s.startNextLocked(&dirs)
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
}

// ─── Output acknowledgements ─────────────────────────────────────────────────

// sinkAdapter implements [output.Sink] against the scheduler without
// exposing the callback methods on the public API.
type sinkAdapter struct {
	s *Scheduler
}

func (a *sinkAdapter) UtteranceBegan(id uint64) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.track[MessageID(id)]
	if !ok || s.speaking != m || m.state != msgStarting {
		return
	}
	m.state = msgSpeaking
	if m.begun {
		// Regained the slot after a pause or postponement.
		s.em.publish(s.eventFor(EventResume, m))
		return
	}
	m.begun = true
	s.em.publish(s.eventFor(EventBegin, m))
	if s.notif != nil {
		s.notif.publish(notice{kind: noticeBegan, msg: m.msg, at: time.Now()})
	}
}

func (a *sinkAdapter) UtteranceEnded(id uint64) {
	s := a.s
	s.mu.Lock()
	m, ok := s.track[MessageID(id)]
	if !ok || s.speaking != m {
		s.mu.Unlock()
		return
	}
	s.speaking = nil
	s.finishLocked(m, EventEnd)

	var dirs []func()
	s.startNextLocked(&dirs)
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
}

func (a *sinkAdapter) UtteranceStopped(id uint64, cursor int) {
	s := a.s
	s.mu.Lock()
	m, ok := s.track[MessageID(id)]
	if !ok || s.speaking != m {
		s.mu.Unlock()
		return
	}
	if cursor > 0 {
		m.cursor = cursor
	}
	s.speaking = nil

	switch {
	case m.park && !m.owner.closed:
		// Client pause: the message waits on its client with the stop
		// cursor. If the client already resumed, rejoin the queue instead.
		m.park = false
		s.em.publish(s.eventFor(EventPause, m))
		if m.owner.paused {
			m.state = msgPaused
			m.owner.parked = m
		} else {
			m.state = msgPending
			m.owner.queues.requeueFront(m)
		}
	case m.requeue && !m.owner.closed:
		// Postponed, not canceled: back to the head of its class so it
		// regains the slot once higher classes clear.
		m.requeue = false
		m.state = msgPending
		m.owner.queues.requeueFront(m)
		if s.notif != nil {
			s.notif.publish(notice{kind: noticePostponed, msg: m.msg, at: time.Now()})
		}
	default:
		m.park = false
		m.requeue = false
		s.finishLocked(m, EventCancel)
	}

	var dirs []func()
	s.startNextLocked(&dirs)
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
}

func (a *sinkAdapter) UtterancePaused(id uint64, cursor int) {
	s := a.s
	s.mu.Lock()
	m, ok := s.track[MessageID(id)]
	if !ok || s.speaking != m || m.state != msgPausing {
		s.mu.Unlock()
		return
	}
	m.cursor = cursor
	m.state = msgPaused
	s.em.publish(s.eventFor(EventPause, m))

	var dirs []func()
	switch {
	case m.park:
		// A client pause landed while the global pause ack was in flight.
		// Park the message and stop the module's held utterance so the
		// slot is usable again; the stale stop ack is ignored.
		m.park = false
		s.speaking = nil
		if m.owner.paused {
			m.owner.parked = m
		} else {
			m.state = msgPending
			m.owner.queues.requeueFront(m)
		}
		dirs = append(dirs, s.out.Stop)
		s.startNextLocked(&dirs)
	case !s.globalPaused:
		// ResumeAll won the race with this ack: resume right away instead
		// of leaving the slot frozen.
		m.state = msgResuming
		dirs = append(dirs, s.out.Resume)
	}
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
}

func (a *sinkAdapter) UtteranceResumed(id uint64) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.track[MessageID(id)]
	if !ok || s.speaking != m || m.state != msgResuming {
		return
	}
	m.state = msgSpeaking
	s.em.publish(s.eventFor(EventResume, m))
}

func (a *sinkAdapter) MarkReached(id uint64, mark string, cursor int) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.track[MessageID(id)]
	if !ok || s.speaking != m {
		return
	}
	m.cursor = cursor
	ev := s.eventFor(EventIndexMark, m)
	ev.Mark = mark
	s.em.publish(ev)
}
