package speech_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/voxmux/voxmux/pkg/output/mock"
	"github.com/voxmux/voxmux/pkg/speech"
)

// ── helpers ──────────────────────────────────────────────────────────────────

// autoMock returns a mock module that acknowledges every directive
// immediately but completes utterances only when a test calls End.
func autoMock() *mock.Module {
	return &mock.Module{
		AutoBegin:     true,
		AutoAckStop:   true,
		AutoAckPause:  true,
		AutoAckResume: true,
	}
}

func newTestScheduler(t *testing.T, m *mock.Module, opts ...speech.Option) (*speech.Scheduler, <-chan speech.Event) {
	t.Helper()
	s := speech.New(m, opts...)
	t.Cleanup(func() { s.Close() })
	ch, unsub := s.Subscribe()
	t.Cleanup(unsub)
	return s, ch
}

func connect(t *testing.T, s *speech.Scheduler, name string) *speech.Conn {
	t.Helper()
	conn, err := s.Connect(name)
	if err != nil {
		t.Fatalf("Connect(%q): %v", name, err)
	}
	return conn
}

func nextEvent(t *testing.T, ch <-chan speech.Event) speech.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return speech.Event{}
}

func expectEvent(t *testing.T, ch <-chan speech.Event, typ speech.EventType, id speech.MessageID) speech.Event {
	t.Helper()
	ev := nextEvent(t, ch)
	if ev.Type != typ || ev.MessageID != id {
		t.Fatalf("got event %s for message %d, want %s for message %d",
			ev.Type, ev.MessageID, typ, id)
	}
	return ev
}

// ── basic lifecycle ──────────────────────────────────────────────────────────

func TestSubmitSpeaksToCompletion(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:basic")

	id, err := conn.Submit("hello world", speech.PriorityMessage, speech.DataModePlain)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	expectEvent(t, ch, speech.EventBegin, id)

	m.End()
	expectEvent(t, ch, speech.EventEnd, id)

	if len(m.SpeakCalls) != 1 {
		t.Fatalf("Speak called %d times, want 1", len(m.SpeakCalls))
	}
	u := m.SpeakCalls[0].Utterance
	if u.Text != "hello world" || u.SSML || u.Cursor != 0 {
		t.Errorf("unexpected utterance: %+v", u)
	}
}

func TestFIFOWithinClass(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:fifo")

	var ids []speech.MessageID
	for i := 0; i < 3; i++ {
		id, err := conn.Submit(fmt.Sprintf("announcement %d", i), speech.PriorityMessage, speech.DataModePlain)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	for i, id := range ids {
		expectEvent(t, ch, speech.EventBegin, id)
		m.End()
		expectEvent(t, ch, speech.EventEnd, id)
		_ = i
	}
}

func TestHigherClassSpeaksFirst(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:order")

	imp, _ := conn.Submit("evacuate", speech.PriorityImportant, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, imp)

	// Queued while Important speaks; Message must outrank Text on release.
	text, _ := conn.Submit("chapter one", speech.PriorityText, speech.DataModePlain)
	msg, _ := conn.Submit("battery low", speech.PriorityMessage, speech.DataModePlain)

	m.End()
	expectEvent(t, ch, speech.EventEnd, imp)
	expectEvent(t, ch, speech.EventBegin, msg)
	m.End()
	expectEvent(t, ch, speech.EventEnd, msg)
	expectEvent(t, ch, speech.EventBegin, text)
	m.End()
	expectEvent(t, ch, speech.EventEnd, text)
}

// ── preemption and postponement ──────────────────────────────────────────────

func TestMessagePostponesSpeakingText(t *testing.T) {
	t.Parallel()

	m := autoMock()
	m.StopCursor = 5
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:postpone")

	text, _ := conn.Submit("a long chapter of text", speech.PriorityText, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, text)

	msg, _ := conn.Submit("incoming call", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, msg)

	m.End()
	expectEvent(t, ch, speech.EventEnd, msg)

	// The text resumes from where it was interrupted, without a second
	// begin event.
	expectEvent(t, ch, speech.EventResume, text)
	m.End()
	expectEvent(t, ch, speech.EventEnd, text)

	if len(m.SpeakCalls) != 3 {
		t.Fatalf("Speak called %d times, want 3", len(m.SpeakCalls))
	}
	if got := m.SpeakCalls[2].Utterance.Cursor; got != 5 {
		t.Errorf("resumed utterance cursor = %d, want 5", got)
	}
}

func TestImportantIsNeverInterrupted(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:important")

	first, _ := conn.Submit("fire alarm", speech.PriorityImportant, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, first)

	second, _ := conn.Submit("second alarm", speech.PriorityImportant, speech.DataModePlain)
	msg, _ := conn.Submit("ordinary news", speech.PriorityMessage, speech.DataModePlain)

	if m.StopCalls != 0 {
		t.Fatalf("Stop called %d times while Important speaks, want 0", m.StopCalls)
	}

	m.End()
	expectEvent(t, ch, speech.EventEnd, first)
	expectEvent(t, ch, speech.EventBegin, second)
	m.End()
	expectEvent(t, ch, speech.EventEnd, second)
	expectEvent(t, ch, speech.EventBegin, msg)
}

func TestNotificationCanceledOnArrival(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:notify")

	text, _ := conn.Submit("reading", speech.PriorityText, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, text)

	note, err := conn.Submit("volume 40%", speech.PriorityNotification, speech.DataModePlain)
	if err != nil {
		t.Fatalf("Submit notification: %v", err)
	}
	expectEvent(t, ch, speech.EventCancel, note)

	if len(m.SpeakCalls) != 1 {
		t.Errorf("Speak called %d times, want 1 (notification must never reach the module)", len(m.SpeakCalls))
	}
}

func TestNotificationTakesOverNotification(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:takeover")

	n1, _ := conn.Submit("volume 40%", speech.PriorityNotification, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, n1)

	n2, _ := conn.Submit("volume 50%", speech.PriorityNotification, speech.DataModePlain)
	expectEvent(t, ch, speech.EventCancel, n1)
	expectEvent(t, ch, speech.EventBegin, n2)
}

func TestProgressCanceledWhileAnythingSpeaks(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:progress")

	note, _ := conn.Submit("copying files", speech.PriorityNotification, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, note)

	prog, _ := conn.Submit("10%", speech.PriorityProgress, speech.DataModePlain)
	expectEvent(t, ch, speech.EventCancel, prog)
}

func TestNewestProgressWins(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:progress-latest")

	// Freeze the slot so progress updates pile up instead of speaking.
	if err := conn.PauseAll(); err != nil {
		t.Fatalf("PauseAll: %v", err)
	}
	p1, _ := conn.Submit("10%", speech.PriorityProgress, speech.DataModePlain)
	p2, _ := conn.Submit("20%", speech.PriorityProgress, speech.DataModePlain)

	expectEvent(t, ch, speech.EventCancel, p1)

	if err := conn.ResumeAll(); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	expectEvent(t, ch, speech.EventBegin, p2)
}

func TestTextReplacesOwnPendingText(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:self-interrupt")

	imp, _ := conn.Submit("hold on", speech.PriorityImportant, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, imp)

	t1, _ := conn.Submit("old paragraph", speech.PriorityText, speech.DataModePlain)
	t2, _ := conn.Submit("new paragraph", speech.PriorityText, speech.DataModePlain)
	expectEvent(t, ch, speech.EventCancel, t1)

	m.End()
	expectEvent(t, ch, speech.EventEnd, imp)
	expectEvent(t, ch, speech.EventBegin, t2)
}

// ── cancellation ─────────────────────────────────────────────────────────────

func TestCancelMessage(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:cancel")

	speaking, _ := conn.Submit("first", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, speaking)
	queued, _ := conn.Submit("second", speech.PriorityMessage, speech.DataModePlain)

	if err := conn.CancelMessage(queued); err != nil {
		t.Fatalf("CancelMessage(queued): %v", err)
	}
	expectEvent(t, ch, speech.EventCancel, queued)

	if err := conn.CancelMessage(queued); !errors.Is(err, speech.ErrUnknownMessage) {
		t.Fatalf("CancelMessage of dead ID: got %v, want ErrUnknownMessage", err)
	}

	if err := conn.CancelMessage(speaking); err != nil {
		t.Fatalf("CancelMessage(speaking): %v", err)
	}
	expectEvent(t, ch, speech.EventCancel, speaking)
}

func TestStopAndCancelAll(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	connA := connect(t, s, "test:a")
	connB := connect(t, s, "test:b")

	speaking, _ := connA.Submit("a speaks", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, speaking)
	queuedB, _ := connB.Submit("b waits", speech.PriorityMessage, speech.DataModePlain)

	// Stop only affects the caller's own speaking message.
	if err := connB.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.StopCalls != 0 {
		t.Fatalf("Stop directive issued for a non-owner, StopCalls = %d", m.StopCalls)
	}

	if err := connB.StopAll(); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	expectEvent(t, ch, speech.EventCancel, speaking)
	expectEvent(t, ch, speech.EventBegin, queuedB)

	queuedA, _ := connA.Submit("a waits", speech.PriorityMessage, speech.DataModePlain)
	if err := connA.CancelAll(); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	expectEvent(t, ch, speech.EventCancel, queuedA)
	expectEvent(t, ch, speech.EventCancel, queuedB)
}

func TestCancelOverridesPendingPostponement(t *testing.T) {
	t.Parallel()

	m := &mock.Module{AutoBegin: true} // stop acks driven manually
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:cancel-race")

	text, _ := conn.Submit("a long chapter", speech.PriorityText, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, text)

	// The Message puts a postponement stop in flight; a cancel arriving
	// before the ack must win over the pending requeue.
	msg, _ := conn.Submit("incoming call", speech.PriorityMessage, speech.DataModePlain)
	if m.StopCalls != 1 {
		t.Fatalf("Stop called %d times, want 1", m.StopCalls)
	}
	if err := conn.CancelMessage(text); err != nil {
		t.Fatalf("CancelMessage: %v", err)
	}

	m.StopAt(4)
	expectEvent(t, ch, speech.EventCancel, text)
	expectEvent(t, ch, speech.EventBegin, msg)
	m.End()
	expectEvent(t, ch, speech.EventEnd, msg)

	// The canceled text must not re-enter its queue and speak again.
	if n := len(m.SpeakCalls); n != 2 {
		t.Fatalf("Speak called %d times, want 2", n)
	}
	if st := s.Stats(); st.Queued != 0 || st.Speaking {
		t.Errorf("Stats = %+v, want empty queues and an idle slot", st)
	}
}

func TestCloseDuringPostponementDropsSpeakingMessage(t *testing.T) {
	t.Parallel()

	m := &mock.Module{AutoBegin: true}
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:close-race")

	text, _ := conn.Submit("a long chapter", speech.PriorityText, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, text)
	msg, _ := conn.Submit("incoming call", speech.PriorityMessage, speech.DataModePlain)

	// Close lands while the postponement stop is still unacknowledged. The
	// late ack must cancel the text, not requeue it into a closed client.
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	expectEvent(t, ch, speech.EventCancel, msg)

	m.StopAt(4)
	expectEvent(t, ch, speech.EventCancel, text)

	if st := s.Stats(); st.Clients != 0 || st.Queued != 0 || st.Speaking {
		t.Errorf("Stats = %+v, want no clients, no queue, idle slot", st)
	}
	if n := len(m.SpeakCalls); n != 1 {
		t.Errorf("Speak called %d times, want 1", n)
	}
}

// ── pause and resume ─────────────────────────────────────────────────────────

func TestClientPauseParksSpeakingMessage(t *testing.T) {
	t.Parallel()

	m := autoMock()
	m.StopCursor = 7
	s, ch := newTestScheduler(t, m)
	connA := connect(t, s, "test:paused-client")
	connB := connect(t, s, "test:other-client")

	text, _ := connA.Submit("a long story", speech.PriorityText, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, text)

	if err := connA.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	ev := expectEvent(t, ch, speech.EventPause, text)
	if ev.Cursor != 7 {
		t.Errorf("pause event cursor = %d, want 7", ev.Cursor)
	}

	// The slot is free for other clients while A is paused, and A's own
	// submissions stay frozen.
	frozen, _ := connA.Submit("while paused", speech.PriorityMessage, speech.DataModePlain)
	msgB, _ := connB.Submit("b speaks now", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, msgB)

	if err := connA.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	m.End()
	expectEvent(t, ch, speech.EventEnd, msgB)

	// A's queue thaws: the frozen Message outranks the parked Text.
	expectEvent(t, ch, speech.EventBegin, frozen)
	m.End()
	expectEvent(t, ch, speech.EventEnd, frozen)

	expectEvent(t, ch, speech.EventResume, text)
	last := m.SpeakCalls[len(m.SpeakCalls)-1].Utterance
	if last.Cursor != 7 {
		t.Errorf("parked text resumed at cursor %d, want 7", last.Cursor)
	}
}

func TestGlobalPauseAndResume(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:global-pause")

	msg, _ := conn.Submit("long announcement", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, msg)

	if err := conn.PauseAll(); err != nil {
		t.Fatalf("PauseAll: %v", err)
	}
	expectEvent(t, ch, speech.EventPause, msg)

	// Nothing starts during a global pause.
	queued, _ := conn.Submit("queued during pause", speech.PriorityMessage, speech.DataModePlain)
	if n := len(m.SpeakCalls); n != 1 {
		t.Fatalf("Speak called %d times during global pause, want 1", n)
	}

	if err := conn.ResumeAll(); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	expectEvent(t, ch, speech.EventResume, msg)
	m.End()
	expectEvent(t, ch, speech.EventEnd, msg)
	expectEvent(t, ch, speech.EventBegin, queued)
}

func TestResumeAllBeforePauseAck(t *testing.T) {
	t.Parallel()

	m := &mock.Module{AutoBegin: true, AutoAckResume: true}
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:resume-race")

	msg, _ := conn.Submit("long announcement", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, msg)

	// The resume overtakes the pause acknowledgement; the late ack must not
	// leave the message frozen in the speaking slot.
	if err := conn.PauseAll(); err != nil {
		t.Fatalf("PauseAll: %v", err)
	}
	if err := conn.ResumeAll(); err != nil {
		t.Fatalf("ResumeAll: %v", err)
	}
	m.PauseAt(3)

	expectEvent(t, ch, speech.EventPause, msg)
	expectEvent(t, ch, speech.EventResume, msg)
	if m.ResumeCalls != 1 {
		t.Errorf("Resume called %d times, want 1", m.ResumeCalls)
	}

	m.End()
	expectEvent(t, ch, speech.EventEnd, msg)
}

func TestResumeBeforeClientPauseAck(t *testing.T) {
	t.Parallel()

	m := &mock.Module{AutoBegin: true}
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:client-resume-race")

	text, _ := conn.Submit("a long story", speech.PriorityText, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, text)

	if err := conn.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := conn.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	// The pause ack arrives after the client already resumed: the message
	// rejoins its queue and picks up at the cursor instead of sitting
	// parked on an unpaused client.
	m.StopAt(3)
	expectEvent(t, ch, speech.EventPause, text)
	expectEvent(t, ch, speech.EventResume, text)

	last := m.SpeakCalls[len(m.SpeakCalls)-1].Utterance
	if last.Cursor != 3 {
		t.Errorf("resumed at cursor %d, want 3", last.Cursor)
	}
	m.End()
	expectEvent(t, ch, speech.EventEnd, text)
}

// ── connection lifecycle ─────────────────────────────────────────────────────

func TestConnCloseCancelsEverythingOwned(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:closing")

	speaking, _ := conn.Submit("first", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, speaking)
	queued, _ := conn.Submit("second", speech.PriorityMessage, speech.DataModePlain)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	expectEvent(t, ch, speech.EventCancel, queued)
	expectEvent(t, ch, speech.EventCancel, speaking)

	if _, err := conn.Submit("too late", speech.PriorityMessage, speech.DataModePlain); !errors.Is(err, speech.ErrClientClosed) {
		t.Fatalf("Submit after Close: got %v, want ErrClientClosed", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSchedulerClose(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s := speech.New(m)
	conn, err := s.Connect("test:shutdown")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ch, unsub := s.Subscribe()
	defer unsub()

	id, _ := conn.Submit("interrupted by shutdown", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, id)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.CloseCalls != 1 {
		t.Errorf("module Close called %d times, want 1", m.CloseCalls)
	}
	if _, err := s.Connect("late"); !errors.Is(err, speech.ErrSchedulerClosed) {
		t.Errorf("Connect after Close: got %v, want ErrSchedulerClosed", err)
	}
	if _, err := conn.Submit("late", speech.PriorityMessage, speech.DataModePlain); !errors.Is(err, speech.ErrSchedulerClosed) {
		t.Errorf("Submit after Close: got %v, want ErrSchedulerClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// The event stream terminates.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel not closed after scheduler Close")
		}
	}
}

// ── failures and edge cases ──────────────────────────────────────────────────

func TestSpeakFailureCancelsMessage(t *testing.T) {
	t.Parallel()

	m := autoMock()
	m.SpeakErr = errors.New("synthesizer exploded")
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:failure")

	id, err := conn.Submit("doomed", speech.PriorityMessage, speech.DataModePlain)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	expectEvent(t, ch, speech.EventCancel, id)

	// The scheduler recovers once the module does.
	m.SpeakErr = nil
	ok, _ := conn.Submit("recovered", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, ok)
}

func TestInvalidPriorityRejected(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t, autoMock())
	conn := connect(t, s, "test:invalid")

	if _, err := conn.Submit("x", speech.Priority(42), speech.DataModePlain); !errors.Is(err, speech.ErrInvalidPriority) {
		t.Fatalf("got %v, want ErrInvalidPriority", err)
	}
}

func TestIndexMarkEvents(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	conn := connect(t, s, "test:marks")

	id, _ := conn.Submit("before <mark/> after", speech.PriorityText, speech.DataModeSSML)
	expectEvent(t, ch, speech.EventBegin, id)

	m.Mark("chapter-2", 12)
	ev := expectEvent(t, ch, speech.EventIndexMark, id)
	if ev.Mark != "chapter-2" || ev.Cursor != 12 {
		t.Errorf("mark event = %+v, want mark chapter-2 at cursor 12", ev)
	}

	if !m.SpeakCalls[0].Utterance.SSML {
		t.Error("SSML submission did not reach the module as SSML")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	m := autoMock()
	s, ch := newTestScheduler(t, m)
	connA := connect(t, s, "test:stats-a")
	connB := connect(t, s, "test:stats-b")

	speaking, _ := connA.Submit("speaking", speech.PriorityMessage, speech.DataModePlain)
	expectEvent(t, ch, speech.EventBegin, speaking)
	connB.Submit("queued", speech.PriorityMessage, speech.DataModePlain)

	st := s.Stats()
	if st.Clients != 2 || st.Queued != 1 || !st.Speaking || st.Paused {
		t.Errorf("Stats = %+v, want 2 clients, 1 queued, speaking, not paused", st)
	}
}

// ── observers ────────────────────────────────────────────────────────────────

// recordingObserver appends a line per notification, in delivery order.
type recordingObserver struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingObserver) add(s string) {
	r.mu.Lock()
	r.entries = append(r.entries, s)
	r.mu.Unlock()
}

func (r *recordingObserver) MessageSubmitted(m speech.Message) {
	r.add(fmt.Sprintf("submitted:%d", m.ID))
}

func (r *recordingObserver) MessageBegan(m speech.Message, _ time.Time) {
	r.add(fmt.Sprintf("began:%d", m.ID))
}

func (r *recordingObserver) MessagePostponed(m speech.Message, _ time.Time) {
	r.add(fmt.Sprintf("postponed:%d", m.ID))
}

func (r *recordingObserver) MessageFinished(m speech.Message, outcome speech.Outcome, _ time.Time) {
	r.add(fmt.Sprintf("finished:%d:%s", m.ID, outcome))
}

func TestObserverSequence(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	m := autoMock()
	s := speech.New(m, speech.WithObserver(obs))

	conn, err := s.Connect("test:observer")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	text, _ := conn.Submit("reading", speech.PriorityText, speech.DataModePlain)
	prog, _ := conn.Submit("10%", speech.PriorityProgress, speech.DataModePlain) // canceled on arrival
	msg, _ := conn.Submit("interrupting", speech.PriorityMessage, speech.DataModePlain)
	m.End() // message finishes, text resumes
	m.End() // text finishes

	// Close drains pending observer notifications before returning.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []string{
		fmt.Sprintf("submitted:%d", text),
		fmt.Sprintf("began:%d", text),
		fmt.Sprintf("submitted:%d", prog),
		fmt.Sprintf("finished:%d:canceled", prog),
		fmt.Sprintf("submitted:%d", msg),
		fmt.Sprintf("postponed:%d", text),
		fmt.Sprintf("began:%d", msg),
		fmt.Sprintf("finished:%d:spoken", msg),
		fmt.Sprintf("finished:%d:spoken", text),
	}

	obs.mu.Lock()
	got := obs.entries
	obs.mu.Unlock()

	if len(got) != len(want) {
		t.Fatalf("observer saw %d notifications %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
