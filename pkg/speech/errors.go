package speech

import "errors"

var (
	// ErrClientClosed is returned by operations on a connection that has
	// been closed (or a client ID the scheduler does not know). No state is
	// changed.
	ErrClientClosed = errors.New("speech: client connection is closed")

	// ErrUnknownMessage is returned when a cancel or pause references a
	// message ID that is not pending or speaking. The operation is a no-op.
	ErrUnknownMessage = errors.New("speech: unknown message id")

	// ErrOutputUnavailable indicates the output module failed to start an
	// utterance. The affected message is treated as canceled (a cancel event
	// is emitted); the scheduler performs no retries.
	ErrOutputUnavailable = errors.New("speech: output module unavailable")

	// ErrSchedulerClosed is returned by operations on a scheduler after
	// [Scheduler.Close].
	ErrSchedulerClosed = errors.New("speech: scheduler is closed")

	// ErrInvalidPriority is returned by Submit for an unknown priority class.
	ErrInvalidPriority = errors.New("speech: invalid priority class")
)
