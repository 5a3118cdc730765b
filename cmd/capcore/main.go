package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/antigravity-dev/capcore/internal/core"
	"github.com/antigravity-dev/capcore/internal/embed"
	"github.com/antigravity-dev/capcore/internal/eventbus"
	"github.com/antigravity-dev/capcore/internal/sandbox"
	"github.com/antigravity-dev/capcore/internal/toolcfg"
)

func configureLogger(dev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if dev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func loadConfig(path string) (*toolcfg.Config, error) {
	if _, err := os.Stat(path); err != nil {
		cfg := toolcfg.Defaults()
		return &cfg, nil
	}
	return toolcfg.Load(path)
}

func main() {
	configPath := flag.String("config", "capcore.toml", "path to config file")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	sweepSchedule := flag.String("sweep", "@every 1h", "cron schedule for the hierarchy-level reliability sweep")
	flag.Parse()

	logger := configureLogger(*dev)
	slog.SetDefault(logger)

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "serve":
		runServe(logger, *configPath, *sweepSchedule)
	case "lint":
		runLint(logger, *configPath)
	case "replay":
		runReplay(logger, *configPath, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want serve|lint|replay)\n", cmd)
		os.Exit(2)
	}
}

func runServe(logger *slog.Logger, configPath, sweepSchedule string) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("capcore: failed to load config", "error", err)
		os.Exit(1)
	}

	c, err := core.Open(cfg, eventbus.Noop{}, embed.Noop{}, logger)
	if err != nil {
		logger.Error("capcore: failed to open store", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	if err := c.Sweep.Start(sweepSchedule); err != nil {
		logger.Error("capcore: failed to schedule reliability sweep", "error", err)
		os.Exit(1)
	}
	c.Sweep.StartAsync()
	defer c.Sweep.Stop()

	logger.Info("capcore serving", "config", configPath, "dsn", cfg.Storage.DSN, "sweep", sweepSchedule)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("capcore shutting down")
}

// runLint surfaces dependency-graph diagnostics (contains cycles) without
// starting the long-running service loop.
func runLint(logger *slog.Logger, configPath string) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("capcore: failed to load config", "error", err)
		os.Exit(1)
	}

	c, err := core.Open(cfg, eventbus.Noop{}, embed.Noop{}, logger)
	if err != nil {
		logger.Error("capcore: failed to open store", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	cycles, err := c.Graph.FindCycles()
	if err != nil {
		logger.Error("capcore: cycle scan failed", "error", err)
		os.Exit(1)
	}
	if len(cycles) == 0 {
		fmt.Println("no contains cycles found")
		return
	}
	for _, cyc := range cycles {
		fmt.Printf("cycle: %s <-> %s\n", cyc.From, cyc.To)
	}
	os.Exit(1)
}

// runReplay runs a stored capability's code snippet inside a disposable
// Docker container, strictly for developer debugging. args[0] is the
// capability id.
func runReplay(logger *slog.Logger, configPath string, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: capcore replay <capability-id> [image]")
		os.Exit(2)
	}
	capID := args[0]
	image := "node:20-slim"
	if len(args) > 1 {
		image = args[1]
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Error("capcore: failed to load config", "error", err)
		os.Exit(1)
	}

	c, err := core.Open(cfg, eventbus.Noop{}, embed.Noop{}, logger)
	if err != nil {
		logger.Error("capcore: failed to open store", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	cap, err := c.Store.FindByID(capID)
	if err != nil {
		logger.Error("capcore: lookup failed", "error", err)
		os.Exit(1)
	}
	if cap == nil {
		fmt.Fprintf(os.Stderr, "capability %s not found\n", capID)
		os.Exit(1)
	}

	runner, err := sandbox.NewDockerRunner()
	if err != nil {
		logger.Error("capcore: docker unavailable", "error", err)
		os.Exit(1)
	}

	output, err := runner.Replay(context.Background(), image, cap.CodeSnippet)
	if err != nil {
		logger.Error("capcore: replay failed", "error", err)
		os.Exit(1)
	}
	fmt.Println(strings.TrimRight(output, "\n"))
}
