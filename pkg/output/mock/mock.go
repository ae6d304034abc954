// Package mock provides a test double for the output.Module interface.
//
// Use Module to script synthesis behaviour from tests and to verify the
// directives the scheduler issues. Acknowledgements can be fired
// automatically (AutoBegin, AutoAckStop, ...) or driven step by step with
// the Begin/End/StopAt/PauseAt/ResumeActive/Mark helpers.
//
// Example:
//
//	m := &mock.Module{AutoBegin: true, AutoAckStop: true}
//	s := speech.New(m)
//	// ... submit messages, then:
//	m.End() // report natural completion of the active utterance
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxmux/voxmux/pkg/output"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Utterance is the utterance passed to Speak.
	Utterance output.Utterance
}

// Module is a mock implementation of output.Module.
//
// The zero value is usable: it accepts every directive, records it, and
// fires no acknowledgements until a test drives them explicitly.
type Module struct {
	mu   sync.Mutex
	sink output.Sink

	active    uint64
	hasActive bool
	paused    bool

	// --- Configurable responses ---

	// SpeakErr, if non-nil, is returned from Speak without accepting the
	// utterance.
	SpeakErr error

	// VoicesResult is returned by Voices.
	VoicesResult []output.Voice

	// PingErr, if non-nil, is returned from Ping.
	PingErr error

	// AutoBegin makes Speak acknowledge with UtteranceBegan before
	// returning.
	AutoBegin bool

	// AutoEndAfter, when positive, makes each accepted utterance end
	// naturally after the given delay (unless stopped or paused first).
	// This turns the mock into a usable silent backend.
	AutoEndAfter time.Duration

	// AutoAckStop makes Stop acknowledge with UtteranceStopped(StopCursor)
	// before returning.
	AutoAckStop bool

	// AutoAckPause makes Pause acknowledge with UtterancePaused(PauseCursor)
	// before returning.
	AutoAckPause bool

	// AutoAckResume makes Resume acknowledge with UtteranceResumed before
	// returning.
	AutoAckResume bool

	// StopCursor is the cursor reported by auto-acknowledged stops.
	StopCursor int

	// PauseCursor is the cursor reported by auto-acknowledged pauses.
	PauseCursor int

	// --- Call records ---

	// SpeakCalls records every call to Speak in order, including ones
	// rejected with SpeakErr or output.ErrBusy.
	SpeakCalls []SpeakCall

	// StopCalls counts calls to Stop.
	StopCalls int

	// PauseCalls counts calls to Pause.
	PauseCalls int

	// ResumeCalls counts calls to Resume.
	ResumeCalls int

	// CloseCalls counts calls to Close.
	CloseCalls int
}

// SetSink binds the acknowledgement receiver.
func (m *Module) SetSink(s output.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = s
}

// Speak records the call and, unless SpeakErr is set or an utterance is
// already active, makes u the active utterance. With AutoBegin set it fires
// UtteranceBegan before returning.
func (m *Module) Speak(ctx context.Context, u output.Utterance) error {
	m.mu.Lock()
	m.SpeakCalls = append(m.SpeakCalls, SpeakCall{Ctx: ctx, Utterance: u})
	if m.SpeakErr != nil {
		err := m.SpeakErr
		m.mu.Unlock()
		return err
	}
	if m.hasActive {
		m.mu.Unlock()
		return output.ErrBusy
	}
	m.active = u.ID
	m.hasActive = true
	m.paused = false
	sink, auto := m.sink, m.AutoBegin
	m.mu.Unlock()

	if auto && sink != nil {
		sink.UtteranceBegan(u.ID)
	}
	if m.AutoEndAfter > 0 {
		time.AfterFunc(m.AutoEndAfter, func() { m.endIf(u.ID) })
	}
	return nil
}

// endIf ends the active utterance only when it is still id; a stop or a
// newer Speak in the meantime wins.
func (m *Module) endIf(id uint64) {
	m.mu.Lock()
	if !m.hasActive || m.active != id || m.paused {
		m.mu.Unlock()
		return
	}
	sink := m.sink
	m.hasActive = false
	m.mu.Unlock()
	if sink != nil {
		sink.UtteranceEnded(id)
	}
}

// Stop records the call. With AutoAckStop set it fires
// UtteranceStopped(StopCursor) for the active utterance. No-op when idle.
func (m *Module) Stop() {
	m.mu.Lock()
	m.StopCalls++
	if !m.hasActive || !m.AutoAckStop {
		m.mu.Unlock()
		return
	}
	id, cursor, sink := m.active, m.StopCursor, m.sink
	m.hasActive = false
	m.paused = false
	m.mu.Unlock()

	if sink != nil {
		sink.UtteranceStopped(id, cursor)
	}
}

// Pause records the call. With AutoAckPause set it fires
// UtterancePaused(PauseCursor) for the active utterance. No-op when idle.
func (m *Module) Pause() {
	m.mu.Lock()
	m.PauseCalls++
	if !m.hasActive || m.paused || !m.AutoAckPause {
		m.mu.Unlock()
		return
	}
	id, cursor, sink := m.active, m.PauseCursor, m.sink
	m.paused = true
	m.mu.Unlock()

	if sink != nil {
		sink.UtterancePaused(id, cursor)
	}
}

// Resume records the call. With AutoAckResume set it fires UtteranceResumed
// for the active utterance. No-op when idle or not paused.
func (m *Module) Resume() {
	m.mu.Lock()
	m.ResumeCalls++
	if !m.hasActive || !m.paused || !m.AutoAckResume {
		m.mu.Unlock()
		return
	}
	id, sink := m.active, m.sink
	m.paused = false
	m.mu.Unlock()

	if sink != nil {
		sink.UtteranceResumed(id)
	}
	if m.AutoEndAfter > 0 {
		time.AfterFunc(m.AutoEndAfter, func() { m.endIf(id) })
	}
}

// Voices returns VoicesResult.
func (m *Module) Voices() []output.Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.VoicesResult
}

// Ping returns PingErr.
func (m *Module) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingErr
}

// Close records the call and drops the active utterance without
// acknowledging it.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	m.hasActive = false
	m.paused = false
	return nil
}

// --- Manual acknowledgement helpers ---

// Begin fires UtteranceBegan for the active utterance. No-op when idle.
func (m *Module) Begin() {
	m.mu.Lock()
	if !m.hasActive {
		m.mu.Unlock()
		return
	}
	id, sink := m.active, m.sink
	m.mu.Unlock()
	if sink != nil {
		sink.UtteranceBegan(id)
	}
}

// End fires UtteranceEnded for the active utterance and clears it. No-op
// when idle.
func (m *Module) End() {
	m.mu.Lock()
	if !m.hasActive {
		m.mu.Unlock()
		return
	}
	id, sink := m.active, m.sink
	m.hasActive = false
	m.paused = false
	m.mu.Unlock()
	if sink != nil {
		sink.UtteranceEnded(id)
	}
}

// StopAt fires UtteranceStopped at the given cursor for the active utterance
// and clears it. No-op when idle.
func (m *Module) StopAt(cursor int) {
	m.mu.Lock()
	if !m.hasActive {
		m.mu.Unlock()
		return
	}
	id, sink := m.active, m.sink
	m.hasActive = false
	m.paused = false
	m.mu.Unlock()
	if sink != nil {
		sink.UtteranceStopped(id, cursor)
	}
}

// PauseAt fires UtterancePaused at the given cursor for the active
// utterance. No-op when idle.
func (m *Module) PauseAt(cursor int) {
	m.mu.Lock()
	if !m.hasActive {
		m.mu.Unlock()
		return
	}
	id, sink := m.active, m.sink
	m.paused = true
	m.mu.Unlock()
	if sink != nil {
		sink.UtterancePaused(id, cursor)
	}
}

// ResumeActive fires UtteranceResumed for the active utterance. No-op when
// idle.
func (m *Module) ResumeActive() {
	m.mu.Lock()
	if !m.hasActive {
		m.mu.Unlock()
		return
	}
	id, sink := m.active, m.sink
	m.paused = false
	m.mu.Unlock()
	if sink != nil {
		sink.UtteranceResumed(id)
	}
}

// Mark fires MarkReached for the active utterance. No-op when idle.
func (m *Module) Mark(mark string, cursor int) {
	m.mu.Lock()
	if !m.hasActive {
		m.mu.Unlock()
		return
	}
	id, sink := m.active, m.sink
	m.mu.Unlock()
	if sink != nil {
		sink.MarkReached(id, mark, cursor)
	}
}

// Active returns the ID of the active utterance and whether one exists.
func (m *Module) Active() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active, m.hasActive
}

// Reset clears all recorded calls and the active utterance. Thread-safe.
func (m *Module) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SpeakCalls = nil
	m.StopCalls = 0
	m.PauseCalls = 0
	m.ResumeCalls = 0
	m.CloseCalls = 0
	m.hasActive = false
	m.paused = false
}

// Ensure Module implements output.Module at compile time.
var _ output.Module = (*Module)(nil)
