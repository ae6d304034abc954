// Package espeakng drives the espeak-ng command line synthesizer as an
// output module. Each utterance runs as its own espeak-ng process reading
// the text from stdin; Stop kills the process.
//
// espeak-ng cannot suspend mid-utterance, so Pause degrades to killing the
// process and remembering the utterance; Resume restarts synthesis from the
// remembered cursor.
package espeakng

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/voxmux/voxmux/pkg/output"
)

// Config holds the espeak-ng invocation parameters.
type Config struct {
	// Binary is the espeak-ng executable. Defaults to "espeak-ng",
	// resolved through PATH.
	Binary string

	// Voice is the default voice passed as -v when an utterance does not
	// name one.
	Voice string

	// Rate is the speaking rate in words per minute (-s). Zero keeps the
	// espeak-ng default.
	Rate int

	// Pitch is the base pitch, 0-99 (-p). Zero keeps the default.
	Pitch int

	// Amplitude is the output volume, 0-200 (-a). Zero keeps the default.
	Amplitude int
}

// Option customizes a Module.
type Option func(*Module)

// WithLogger sets the logger used for process lifecycle messages.
func WithLogger(log *slog.Logger) Option {
	return func(m *Module) { m.log = log }
}

// Module is an output.Module backed by the espeak-ng binary.
type Module struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	sink     output.Sink
	cmd      *exec.Cmd
	done     chan struct{}
	closed   bool
	stopping bool
	pausing  bool

	active    output.Utterance
	hasActive bool
	paused    bool

	voices     []output.Voice
	voicesOnce sync.Once
}

// New validates cfg, resolves the binary and returns a ready Module.
func New(cfg Config, opts ...Option) (*Module, error) {
	if cfg.Binary == "" {
		cfg.Binary = "espeak-ng"
	}
	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, fmt.Errorf("espeak-ng binary %q: %w", cfg.Binary, err)
	}
	cfg.Binary = path
	if cfg.Pitch < 0 || cfg.Pitch > 99 {
		return nil, fmt.Errorf("espeak-ng pitch %d out of range 0-99", cfg.Pitch)
	}
	if cfg.Amplitude < 0 || cfg.Amplitude > 200 {
		return nil, fmt.Errorf("espeak-ng amplitude %d out of range 0-200", cfg.Amplitude)
	}
	m := &Module{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SetSink binds the acknowledgement receiver.
func (m *Module) SetSink(s output.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = s
}

// Speak spawns an espeak-ng process for u and acknowledges with
// UtteranceBegan once it is running. Returns output.ErrBusy while a previous
// utterance (including a paused one) is still held.
func (m *Module) Speak(ctx context.Context, u output.Utterance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("espeak-ng: module closed")
	}
	if m.hasActive {
		return output.ErrBusy
	}
	if err := m.spawnLocked(ctx, u); err != nil {
		return err
	}
	m.active = u
	m.hasActive = true
	m.paused = false

	if m.sink != nil {
		// Directives run outside the scheduler lock, so the synchronous
		// begin acknowledgement cannot deadlock.
		sink := m.sink
		id := u.ID
		m.mu.Unlock()
		sink.UtteranceBegan(id)
		m.mu.Lock()
	}
	return nil
}

// spawnLocked starts an espeak-ng process speaking u from u.Cursor.
func (m *Module) spawnLocked(ctx context.Context, u output.Utterance) error {
	args := []string{"--stdin"}
	voice := u.Voice
	if voice == "" {
		voice = m.cfg.Voice
	}
	if voice != "" {
		args = append(args, "-v", voice)
	}
	if m.cfg.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(m.cfg.Rate))
	}
	if m.cfg.Pitch > 0 {
		args = append(args, "-p", strconv.Itoa(m.cfg.Pitch))
	}
	if m.cfg.Amplitude > 0 {
		args = append(args, "-a", strconv.Itoa(m.cfg.Amplitude))
	}
	if u.SSML {
		args = append(args, "-m")
	}

	text := u.Text
	if u.Cursor > 0 && u.Cursor < len(text) && !u.SSML {
		text = text[u.Cursor:]
	}

	cmd := exec.Command(m.cfg.Binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("espeak-ng stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("espeak-ng start: %w", err)
	}
	go func() {
		io.WriteString(stdin, text)
		stdin.Close()
	}()

	m.cmd = cmd
	m.done = make(chan struct{})
	m.stopping = false
	m.pausing = false
	m.log.Debug("espeak-ng process started",
		slog.Uint64("utterance", u.ID), slog.Int("pid", cmd.Process.Pid))
	go m.wait(cmd, u, m.done)
	return nil
}

// wait reaps the process and fires the terminal acknowledgement for this
// utterance. All state transitions happen under m.mu; the sink callback
// runs outside it.
func (m *Module) wait(cmd *exec.Cmd, u output.Utterance, done chan struct{}) {
	defer close(done)
	err := cmd.Wait()

	m.mu.Lock()
	if m.closed || m.cmd != cmd {
		m.mu.Unlock()
		return
	}
	m.cmd = nil
	sink := m.sink
	switch {
	case m.pausing:
		// The process was killed to pause; the utterance stays held so
		// Resume can restart it. The cursor is the best position we know.
		m.paused = true
		m.mu.Unlock()
		if sink != nil {
			sink.UtterancePaused(u.ID, u.Cursor)
		}
	case m.stopping:
		m.hasActive = false
		m.mu.Unlock()
		if sink != nil {
			sink.UtteranceStopped(u.ID, u.Cursor)
		}
	case err != nil:
		m.hasActive = false
		m.mu.Unlock()
		m.log.Warn("espeak-ng process failed",
			slog.Uint64("utterance", u.ID), slog.String("error", err.Error()))
		if sink != nil {
			sink.UtteranceStopped(u.ID, u.Cursor)
		}
	default:
		m.hasActive = false
		m.mu.Unlock()
		if sink != nil {
			sink.UtteranceEnded(u.ID)
		}
	}
}

// Stop kills the active process. A paused utterance is discarded and
// acknowledged without spawning anything.
func (m *Module) Stop() {
	m.mu.Lock()
	if !m.hasActive || m.closed {
		m.mu.Unlock()
		return
	}
	if m.paused {
		u := m.active
		m.hasActive = false
		m.paused = false
		sink := m.sink
		m.mu.Unlock()
		if sink != nil {
			sink.UtteranceStopped(u.ID, u.Cursor)
		}
		return
	}
	m.stopping = true
	cmd := m.cmd
	m.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// Pause kills the active process but keeps the utterance so Resume can
// restart it. Acknowledged via UtterancePaused by the process reaper.
func (m *Module) Pause() {
	m.mu.Lock()
	if !m.hasActive || m.paused || m.closed {
		m.mu.Unlock()
		return
	}
	m.pausing = true
	cmd := m.cmd
	m.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
}

// Resume respawns a paused utterance from its cursor and acknowledges with
// UtteranceResumed.
func (m *Module) Resume() {
	m.mu.Lock()
	if !m.hasActive || !m.paused || m.closed {
		m.mu.Unlock()
		return
	}
	u := m.active
	if err := m.spawnLocked(context.Background(), u); err != nil {
		m.hasActive = false
		m.paused = false
		sink := m.sink
		m.mu.Unlock()
		m.log.Warn("espeak-ng resume failed",
			slog.Uint64("utterance", u.ID), slog.String("error", err.Error()))
		if sink != nil {
			sink.UtteranceStopped(u.ID, u.Cursor)
		}
		return
	}
	m.paused = false
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		sink.UtteranceResumed(u.ID)
	}
}

// Voices lists the voices reported by `espeak-ng --voices`, cached after the
// first call. Returns nil when the listing fails.
func (m *Module) Voices() []output.Voice {
	m.voicesOnce.Do(func() {
		voices, err := m.listVoices()
		if err != nil {
			m.log.Warn("espeak-ng voice listing failed", slog.String("error", err.Error()))
			return
		}
		m.voices = voices
	})
	return m.voices
}

func (m *Module) listVoices() ([]output.Voice, error) {
	out, err := exec.Command(m.cfg.Binary, "--voices").Output()
	if err != nil {
		return nil, err
	}
	var voices []output.Voice
	sc := bufio.NewScanner(strings.NewReader(string(out)))
	first := true
	for sc.Scan() {
		if first {
			// Header row: Pty Language Age/Gender VoiceName File ...
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		voices = append(voices, output.Voice{
			Name:     fields[3],
			Language: fields[1],
			Variant:  fields[2],
		})
	}
	return voices, sc.Err()
}

// Ping runs `espeak-ng --version` to verify the binary still works.
func (m *Module) Ping(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("espeak-ng: module closed")
	}
	bin := m.cfg.Binary
	m.mu.Unlock()
	if err := exec.CommandContext(ctx, bin, "--version").Run(); err != nil {
		return fmt.Errorf("espeak-ng not responding: %w", err)
	}
	return nil
}

// Close kills any running process and waits for its reaper, guaranteeing no
// sink callbacks after return.
func (m *Module) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cmd := m.cmd
	done := m.done
	m.cmd = nil
	m.hasActive = false
	m.paused = false
	m.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
	if done != nil {
		<-done
	}
	return nil
}

var _ output.Module = (*Module)(nil)
