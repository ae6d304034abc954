package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxmux/voxmux/pkg/speech"
)

// appendTimeout caps how long one store write may take before the recorder
// gives up and logs the loss.
const appendTimeout = 5 * time.Second

// Recorder turns scheduler lifecycle notifications into history records.
// Register it on the scheduler with speech.WithObserver.
type Recorder struct {
	store Store
	log   *slog.Logger

	mu    sync.Mutex
	began map[speech.MessageID]time.Time
}

// Compile-time interface check.
var _ speech.Observer = (*Recorder)(nil)

// NewRecorder creates a Recorder archiving into store.
func NewRecorder(store Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		store: store,
		log:   log,
		began: make(map[speech.MessageID]time.Time),
	}
}

// MessageSubmitted is a no-op; the submission time travels on the message
// itself.
func (r *Recorder) MessageSubmitted(m speech.Message) {}

// MessageBegan remembers when synthesis of m started.
func (r *Recorder) MessageBegan(m speech.Message, at time.Time) {
	r.mu.Lock()
	r.began[m.ID] = at
	r.mu.Unlock()
}

// MessagePostponed is a no-op; a postponed message is still in flight.
func (r *Recorder) MessagePostponed(m speech.Message, at time.Time) {}

// MessageFinished archives m with its disposition. Store failures are logged
// and the record is dropped; history is best-effort and must never push back
// on the scheduler.
func (r *Recorder) MessageFinished(m speech.Message, outcome speech.Outcome, at time.Time) {
	r.mu.Lock()
	beganAt := r.began[m.ID]
	delete(r.began, m.ID)
	r.mu.Unlock()

	rec := &Record{
		MessageID:   uint64(m.ID),
		ClientID:    m.ClientID,
		Priority:    m.Priority.String(),
		Kind:        string(m.Kind),
		Text:        m.Payload,
		SSML:        m.DataMode == speech.DataModeSSML,
		Outcome:     string(outcome),
		SubmittedAt: m.SubmittedAt,
		BeganAt:     beganAt,
		FinishedAt:  at,
	}

	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := r.store.Append(ctx, rec); err != nil {
		r.log.Warn("history append failed",
			"message_id", rec.MessageID, "client_id", rec.ClientID, "err", err)
	}
}
