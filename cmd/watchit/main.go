package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/watchit/internal/api"
	"github.com/mattjoyce/watchit/internal/app"
	"github.com/mattjoyce/watchit/internal/config"
	"github.com/mattjoyce/watchit/internal/lock"
	"github.com/mattjoyce/watchit/internal/log"
	"github.com/mattjoyce/watchit/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "start":
		if hasHelpFlag(args) {
			printStartHelp()
			return 0
		}
		return runStart(args)
	case "run":
		if hasHelpFlag(args) {
			printRunHelp()
			return 0
		}
		return runOnce(args)
	case "config":
		return runConfigNoun(args)
	case "watch":
		return runWatchNoun(args)
	case "history":
		if hasHelpFlag(args) {
			printHistoryHelp()
			return 0
		}
		return runHistory(args)
	case "glob":
		if hasHelpFlag(args) {
			printGlobHelp()
			return 0
		}
		return runGlob(args)
	case "monitor":
		if hasHelpFlag(args) {
			printMonitorHelp()
			return 0
		}
		return runMonitor(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: watchit version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("watchit %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

// loadConfig loads the file at path, or the discovered config when path is
// empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, err
		}
		path = discovered
	}
	return config.Load(path)
}

// pidLockPath places the lock next to the history database, or in the
// config directory when history is off.
func pidLockPath(cfg *config.Config) string {
	if cfg.History.Enabled && cfg.History.Path != "" {
		return filepath.Join(filepath.Dir(cfg.History.Path), "watchit.pid")
	}
	return filepath.Join(filepath.Dir(cfg.Path), "watchit.pid")
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	withTUI := fs.Bool("tui", false, "Show the interactive monitor")
	logFile := fs.String("log-file", "", "Write logs here instead of stderr (default with --tui: watchit.log next to the lock)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	lockPath := pidLockPath(cfg)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create state directory: %v\n", err)
		return 1
	}

	logPath := *logFile
	if logPath == "" && *withTUI {
		logPath = filepath.Join(filepath.Dir(lockPath), "watchit.log")
	}
	var logOut io.Writer = os.Stderr
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	log.SetupWriter(cfg.Service.LogLevel, logOut)
	logger := log.WithComponent("main")
	logger.Info("watchit starting", "version", currentVersionInfo().Version, "config", cfg.Path, "watches", len(cfg.Watches))

	pidLock, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", lockPath, "error", err)
		if errors.Is(err, lock.ErrLocked) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return 1
	}
	defer func() {
		if err := pidLock.Release(); err != nil {
			logger.Error("failed to release PID lock", "error", err)
		}
	}()

	a, err := app.New(cfg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)
	go func() {
		if err := a.Start(ctx); err != nil {
			errCh <- fmt.Errorf("watcher: %w", err)
		}
	}()

	if cfg.API.Enabled {
		srv := api.New(api.Config{Listen: cfg.API.Listen, AllowedOrigins: cfg.API.CORSOrigins}, a, a.Hub(), log.WithComponent("api"))
		go func() {
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	if *withTUI {
		tuiDone := make(chan error, 1)
		go func() { tuiDone <- tui.Run(a, a.Hub()) }()
		select {
		case err := <-tuiDone:
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
				return 1
			}
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case err := <-errCh:
			cancel()
			logger.Error("component failed", "error", err)
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		logger.Info("watchit stopped")
		return 0
	}

	logger.Info("watchit running (press Ctrl+C to stop)")
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("watchit stopped")
	return 0
}

func runMonitor(args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://"+config.Defaults().API.Listen, "watchit API URL")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	log.SetupWriter("ERROR", io.Discard)
	if err := tui.RunRemote(context.Background(), *apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
