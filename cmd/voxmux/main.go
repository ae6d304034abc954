// Command voxmux is the speech scheduling daemon: it accepts prioritized
// messages, serializes them onto a single synthesis backend, and exposes
// health and metrics over HTTP.
//
// Messages can be fed interactively on stdin, one per line, with an optional
// priority prefix:
//
//	important: the server room is on fire
//	progress: 42 percent
//	plain text defaults to the text priority
//
// Control commands start with a bang: !pause, !resume, !stop, !cancel,
// !history, !quit.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voxmux/voxmux/internal/app"
	"github.com/voxmux/voxmux/internal/config"
	"github.com/voxmux/voxmux/internal/observe"
	"github.com/voxmux/voxmux/pkg/speech"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	noStdin := flag.Bool("no-stdin", false, "disable the interactive stdin feed")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxmux: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxmux: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxmux starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability providers ───────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxmux",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Compare(old, new)
		if diff.LogLevelChanged {
			logLevel.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "log_level", diff.NewLogLevel)
		}
		if len(diff.RestartNeeded) > 0 {
			slog.Warn("config changes need a restart to take effect", "fields", diff.RestartNeeded)
		}
	})
	if err != nil {
		slog.Error("failed to watch config file", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if !*noStdin {
		go feedStdin(ctx, application)
	}

	slog.Info("daemon ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Stdin feed ──────────────────────────────────────────────────────────────────

// feedStdin reads "priority: text" lines from stdin and submits them through
// one client connection. Bang-prefixed lines are control commands.
func feedStdin(ctx context.Context, application *app.App) {
	conn, err := application.Scheduler().Connect("voxmux:cli:stdin")
	if err != nil {
		slog.Error("stdin feed: connect failed", "err", err)
		return
	}
	defer conn.Close()

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "!") {
			if quit := runCommand(ctx, application, conn, line); quit {
				return
			}
			continue
		}

		priority := speech.PriorityText
		text := line
		if head, rest, ok := strings.Cut(line, ":"); ok {
			if p, err := speech.ParsePriority(strings.TrimSpace(head)); err == nil {
				priority = p
				text = strings.TrimSpace(rest)
			}
		}

		id, err := conn.Submit(text, priority, speech.DataModePlain)
		if err != nil {
			slog.Error("submit failed", "err", err)
			continue
		}
		slog.Debug("submitted", "message_id", id, "priority", priority.String())
	}
	if err := sc.Err(); err != nil {
		slog.Warn("stdin feed ended", "err", err)
	}
}

// runCommand executes one bang command. Returns true when the feed should
// stop.
func runCommand(ctx context.Context, application *app.App, conn *speech.Conn, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "!pause":
		if err := conn.PauseAll(); err != nil {
			slog.Error("pause failed", "err", err)
		}
	case "!resume":
		if err := conn.ResumeAll(); err != nil {
			slog.Error("resume failed", "err", err)
		}
	case "!stop":
		if err := conn.StopAll(); err != nil {
			slog.Error("stop failed", "err", err)
		}
	case "!cancel":
		if err := conn.CancelAll(); err != nil {
			slog.Error("cancel failed", "err", err)
		}
	case "!history":
		recs, err := application.History().Recent(ctx, "", 10)
		if err != nil {
			slog.Error("history failed", "err", err)
			break
		}
		for _, rec := range recs {
			fmt.Printf("%s  [%s] %-8s %q\n",
				rec.FinishedAt.Format(time.TimeOnly), rec.Priority, rec.Outcome, rec.Text)
		}
	case "!quit":
		return true
	default:
		fmt.Println("commands: !pause !resume !stop !cancel !history !quit")
	}
	return false
}

// ── Startup summary ─────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	output := string(cfg.Output.Module)
	if output == "" {
		output = string(config.OutputEspeakNG)
	}
	backend := string(cfg.History.Backend)
	if backend == "" {
		backend = string(config.HistoryMemory)
	}
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = "(default)"
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          voxmux — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Output module   : %-19s║\n", output)
	fmt.Printf("║  History backend : %-19s║\n", backend)
	fmt.Printf("║  Listen addr     : %-19s║\n", addr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the process logger. The returned LevelVar allows config
// reloads to adjust verbosity without rebuilding the handler.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := &slog.LevelVar{}
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
