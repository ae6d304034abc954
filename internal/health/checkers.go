package health

import (
	"context"

	"github.com/voxmux/voxmux/internal/history"
	"github.com/voxmux/voxmux/pkg/output"
)

// OutputChecker probes the synthesis backend. The daemon is not ready to
// accept speech when the output module cannot produce audio.
func OutputChecker(mod output.Module) Checker {
	return Checker{
		Name:  "output",
		Check: func(ctx context.Context) error { return mod.Ping(ctx) },
	}
}

// HistoryChecker probes the message history store.
func HistoryChecker(store history.Store) Checker {
	return Checker{
		Name:  "history",
		Check: func(ctx context.Context) error { return store.Ping(ctx) },
	}
}
