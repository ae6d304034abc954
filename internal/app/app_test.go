package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxmux/voxmux/internal/app"
	"github.com/voxmux/voxmux/internal/config"
	"github.com/voxmux/voxmux/internal/history"
	"github.com/voxmux/voxmux/pkg/output/mock"
	"github.com/voxmux/voxmux/pkg/speech"
)

// testConfig returns a config that needs no external processes: silent mock
// output, in-memory history, and an unused listen address so Run can bind.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Output: config.OutputConfig{
			Module: config.OutputMock,
		},
		History: config.HistoryConfig{
			Backend:  config.HistoryMemory,
			Capacity: 16,
		},
	}
}

// newTestApp builds an App from testConfig and registers its shutdown.
func newTestApp(t *testing.T, opts ...app.Option) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), testConfig(), opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func TestNewWiresSubsystems(t *testing.T) {
	a := newTestApp(t)
	if a.Scheduler() == nil {
		t.Error("Scheduler() is nil")
	}
	if a.History() == nil {
		t.Error("History() is nil")
	}
}

func TestNewRejectsUnknownOutputModule(t *testing.T) {
	cfg := testConfig()
	cfg.Output.Module = "gramophone"
	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown output module")
	}
}

func TestNewRejectsUnknownHistoryBackend(t *testing.T) {
	cfg := testConfig()
	cfg.History.Backend = "papyrus"
	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown history backend")
	}
}

func TestSubmittedMessageReachesHistory(t *testing.T) {
	out := &mock.Module{
		AutoBegin:    true,
		AutoAckStop:  true,
		AutoEndAfter: 10 * time.Millisecond,
	}
	a := newTestApp(t, app.WithOutputModule(out))

	conn, err := a.Scheduler().Connect("reader")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	id, err := conn.Submit("good evening", speech.PriorityMessage, speech.DataModePlain)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The recorder archives asynchronously; poll for the record.
	deadline := time.Now().Add(2 * time.Second)
	var rec *history.Record
	for time.Now().Before(deadline) {
		recs, err := a.History().Recent(context.Background(), "", 10)
		if err != nil {
			t.Fatalf("Recent: %v", err)
		}
		for i := range recs {
			if recs[i].MessageID == uint64(id) {
				rec = &recs[i]
				break
			}
		}
		if rec != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec == nil {
		t.Fatal("message never reached the history store")
	}
	if rec.Outcome != string(speech.OutcomeSpoken) {
		t.Errorf("outcome = %q, want %q", rec.Outcome, speech.OutcomeSpoken)
	}
	if rec.Text != "good evening" {
		t.Errorf("text = %q, want %q", rec.Text, "good evening")
	}
	if rec.ClientID != conn.ID() {
		t.Errorf("client ID = %q, want %q", rec.ClientID, conn.ID())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Give the server a moment to start before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestShutdownClosesSchedulerAndOutput(t *testing.T) {
	out := &mock.Module{AutoBegin: true, AutoAckStop: true}
	a, err := app.New(context.Background(), testConfig(), app.WithOutputModule(out))
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if out.CloseCalls != 1 {
		t.Errorf("output CloseCalls = %d, want 1", out.CloseCalls)
	}
	if _, err := a.Scheduler().Connect("late"); !errors.Is(err, speech.ErrSchedulerClosed) {
		t.Errorf("Connect after shutdown returned %v, want ErrSchedulerClosed", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	a, err := app.New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
