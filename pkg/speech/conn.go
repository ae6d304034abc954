package speech

import (
	"fmt"

	"github.com/voxmux/voxmux/pkg/voices"
)

// Conn is a client-facing handle on the scheduler. Every message submitted
// through a Conn carries the connection's client identity and selected voice.
// All methods are safe for concurrent use; after [Conn.Close] every operation
// returns [ErrClientClosed].
type Conn struct {
	s *Scheduler
	c *client
}

// ID returns the connection's client ID.
func (cn *Conn) ID() string { return cn.c.id }

// Name returns the client name given to [Scheduler.Connect].
func (cn *Conn) Name() string { return cn.c.name }

// Submit queues text for speaking under the given priority class and data
// mode. The returned ID identifies the message in the event stream — also
// when the policy cancels the message on arrival, in which case the cancel
// event is the only one ever emitted for it.
func (cn *Conn) Submit(text string, p Priority, mode DataMode) (MessageID, error) {
	return cn.s.submit(cn.c, SubmitRequest{Payload: text, Priority: p, DataMode: mode})
}

// SpeakChar queues a single character to be spoken by name.
func (cn *Conn) SpeakChar(ch rune, p Priority) (MessageID, error) {
	return cn.s.submit(cn.c, SubmitRequest{Payload: string(ch), Priority: p, Kind: PayloadChar})
}

// SpeakKey queues a keyboard key name (e.g. "shift_a") to be spoken.
func (cn *Conn) SpeakKey(key string, p Priority) (MessageID, error) {
	return cn.s.submit(cn.c, SubmitRequest{Payload: key, Priority: p, Kind: PayloadKey})
}

// SpeakIcon queues a sound-icon reference, resolved by the output module.
func (cn *Conn) SpeakIcon(icon string, p Priority) (MessageID, error) {
	return cn.s.submit(cn.c, SubmitRequest{Payload: icon, Priority: p, Kind: PayloadIcon})
}

// Stop cancels the currently speaking message if it belongs to this client.
// No-op when nothing of this client's is speaking.
func (cn *Conn) Stop() error {
	return cn.s.stopOwned(cn.c)
}

// StopAll cancels the currently speaking message regardless of which client
// submitted it.
func (cn *Conn) StopAll() error {
	return cn.s.stopAny(cn.c)
}

// Cancel stops this client's speaking message and drops its entire queue.
func (cn *Conn) Cancel() error {
	return cn.s.cancelClient(cn.c)
}

// CancelAll stops the speaking message and drops every client's queue.
func (cn *Conn) CancelAll() error {
	return cn.s.cancelEverything(cn.c)
}

// CancelMessage cancels one message by ID, whether pending or speaking.
// Returns [ErrUnknownMessage] (a no-op, not fatal) when the ID is not live.
func (cn *Conn) CancelMessage(id MessageID) error {
	return cn.s.cancelMessage(cn.c, id)
}

// Pause freezes this client: its queues stop being scheduled and a speaking
// message of this client is paused and parked. Pending Notification and
// Progress entries are dropped at the moment the pause takes effect.
func (cn *Conn) Pause() error {
	return cn.s.pauseClient(cn.c)
}

// Resume unfreezes this client. A message parked by [Conn.Pause] returns to
// the head of its class queue and competes for the speaking slot again.
func (cn *Conn) Resume() error {
	return cn.s.resumeClient(cn.c)
}

// PauseAll pauses the whole scheduler: the speaking message (any client's) is
// paused in place and nothing new starts until [Conn.ResumeAll]. Pending
// Notification and Progress entries of all clients are dropped.
func (cn *Conn) PauseAll() error {
	return cn.s.pauseAll(cn.c)
}

// ResumeAll lifts a global pause and resumes the paused message, if any.
// Per-client pauses are not affected.
func (cn *Conn) ResumeAll() error {
	return cn.s.resumeAll(cn.c)
}

// SetVoice selects the synthesis voice for subsequent submissions. The name
// is matched approximately against the output module's advertised voices, so
// "English (America)" resolves to a voice named "english_america".
func (cn *Conn) SetVoice(name string) error {
	available := cn.s.out.Voices()
	v, err := voices.Match(name, available)
	if err != nil {
		return fmt.Errorf("speech: set voice: %w", err)
	}

	cn.s.mu.Lock()
	defer cn.s.mu.Unlock()
	if cn.c.closed {
		return ErrClientClosed
	}
	cn.c.voice = v.Name
	return nil
}

// Voice returns the currently selected voice name. Empty means the output
// module's default voice.
func (cn *Conn) Voice() string {
	cn.s.mu.Lock()
	defer cn.s.mu.Unlock()
	return cn.c.voice
}

// Close tears the connection down: the client's speaking message is stopped,
// all of its queued messages are canceled, and the handle becomes invalid.
// Close is idempotent.
func (cn *Conn) Close() error {
	return cn.s.closeClient(cn.c)
}

// ─── Scheduler-side control operations ───────────────────────────────────────

// checkLocked validates that both the scheduler and the client are usable.
func (s *Scheduler) checkLocked(c *client) error {
	if s.closed {
		return ErrSchedulerClosed
	}
	if c.closed {
		return ErrClientClosed
	}
	return nil
}

func (s *Scheduler) stopOwned(c *client) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	var dirs []func()
	if s.speaking != nil && s.speaking.owner == c {
		s.stopSpeakingLocked(false, &dirs)
	}
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) stopAny(c *client) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	var dirs []func()
	s.stopSpeakingLocked(false, &dirs)
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) cancelClient(c *client) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	var dirs []func()
	s.cancelClientLocked(c)
	if s.speaking != nil && s.speaking.owner == c {
		s.stopSpeakingLocked(false, &dirs)
	}
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) cancelEverything(c *client) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	var dirs []func()
	for _, cl := range s.clients {
		s.cancelClientLocked(cl)
	}
	s.stopSpeakingLocked(false, &dirs)
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) cancelMessage(c *client, id MessageID) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	m, ok := s.track[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownMessage
	}

	var dirs []func()
	switch {
	case s.speaking == m:
		s.stopSpeakingLocked(false, &dirs)
	case m.owner.parked == m:
		m.owner.parked = nil
		s.finishLocked(m, EventCancel)
	default:
		if removed := m.owner.queues.remove(id); removed != nil {
			s.finishLocked(removed, EventCancel)
		}
	}
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) pauseClient(c *client) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	if c.paused {
		s.mu.Unlock()
		return nil
	}
	c.paused = true

	// Notification/Progress entries present when the pause takes effect are
	// dropped; Important/Message/Text are preserved.
	for _, m := range c.queues.dropUnpreserved() {
		s.finishLocked(m, EventCancel)
	}

	var dirs []func()
	if m := s.speaking; m != nil && m.owner == c {
		switch m.state {
		case msgStarting, msgSpeaking, msgResuming:
			// Parking must release the module's slot, and a paused
			// utterance keeps occupying it, so stop instead of pausing;
			// the stop ack carries the cursor and parks the message.
			m.state = msgStopping
			m.park = true
			dirs = append(dirs, s.out.Stop)
		case msgPausing:
			// A global pause ack is in flight; it parks on arrival.
			m.park = true
		case msgPaused:
			// Already paused globally; park it on the client and free
			// the module's held utterance.
			c.parked = m
			s.speaking = nil
			dirs = append(dirs, s.out.Stop)
		}
	}
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) resumeClient(c *client) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	if !c.paused {
		s.mu.Unlock()
		return nil
	}
	c.paused = false

	if m := c.parked; m != nil {
		c.parked = nil
		m.state = msgPending
		c.queues.requeueFront(m)
	}

	var dirs []func()
	s.reconsiderLocked(&dirs)
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) pauseAll(c *client) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.globalPaused {
		s.mu.Unlock()
		return nil
	}
	s.globalPaused = true

	for _, cl := range s.clients {
		for _, m := range cl.queues.dropUnpreserved() {
			s.finishLocked(m, EventCancel)
		}
	}

	var dirs []func()
	if m := s.speaking; m != nil && (m.state == msgStarting || m.state == msgSpeaking || m.state == msgResuming) {
		m.state = msgPausing
		dirs = append(dirs, s.out.Pause)
	}
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) resumeAll(c *client) error {
	s.mu.Lock()
	if err := s.checkLocked(c); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.globalPaused {
		s.mu.Unlock()
		return nil
	}
	s.globalPaused = false

	var dirs []func()
	if m := s.speaking; m != nil && m.state == msgPaused {
		m.state = msgResuming
		dirs = append(dirs, s.out.Resume)
	} else if s.speaking == nil {
		s.startNextLocked(&dirs)
	}
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}

func (s *Scheduler) closeClient(c *client) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	if c.closed {
		s.mu.Unlock()
		return nil
	}
	c.closed = true

	var dirs []func()
	s.cancelClientLocked(c)
	if s.speaking != nil && s.speaking.owner == c {
		s.stopSpeakingLocked(false, &dirs)
	} else {
		s.startNextLocked(&dirs)
	}
	delete(s.clients, c.id)
	s.log.Debug("client disconnected", "client_id", c.id, "client_name", c.name)
	s.mu.Unlock()

	for _, d := range dirs {
		d()
	}
	return nil
}
