package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/mattjoyce/watchit/internal/config"
	"github.com/mattjoyce/watchit/internal/glob"
	"github.com/mattjoyce/watchit/internal/history"
	"github.com/mattjoyce/watchit/internal/log"
	"github.com/mattjoyce/watchit/internal/runner"
	"github.com/mattjoyce/watchit/internal/storage"
	"github.com/mattjoyce/watchit/internal/watch"
)

// printer writes a run's failures as they are extracted.
type printer struct {
	out  io.Writer
	done chan runner.Completion
}

func (p printer) RunStarted(t runner.Task) {
	fmt.Fprintf(p.out, "running %s in %s\n", t.Watch.Label(), watch.AbbreviateHome(t.Directory))
}

func (p printer) Failure(f runner.Failure) {
	fmt.Fprintln(p.out, formatFailure(f))
}

func (p printer) RunCompleted(c runner.Completion) { p.done <- c }

func formatFailure(f runner.Failure) string {
	loc := fmt.Sprintf("%s:%d", f.Path, f.Line)
	if f.Column > 0 {
		loc = fmt.Sprintf("%s:%d", loc, f.Column)
	}
	return loc + ": " + f.Message
}

// runOnce runs one watch's command in the foreground and exits with its
// exit code.
func runOnce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	showOutput := fs.Bool("output", false, "Print the command's full output")

	var id string
	var rest []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && id == "" {
			id = arg
			continue
		}
		rest = append(rest, arg)
	}
	if err := fs.Parse(rest); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if id == "" {
		fmt.Fprintln(os.Stderr, "Usage: watchit run <watch_id> [--config PATH] [--output]")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	log.SetupWriter(cfg.Service.LogLevel, os.Stderr)

	def, ok := cfg.Watch(id)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown watch: %s\n", id)
		return 1
	}
	if v := watch.Validate(def); !v.OK() {
		fmt.Fprintf(os.Stderr, "Watch %s is invalid: %s\n", id, strings.Join(v.Problems(), ", "))
		return 1
	}

	p := printer{out: os.Stdout, done: make(chan runner.Completion, 1)}
	r := runner.New(runner.Config{
		Shell:        cfg.Service.Shell,
		MatchTimeout: cfg.Service.MatchTimeout,
	}, p)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	r.Trigger(def)

	var c runner.Completion
	select {
	case c = <-p.done:
	case <-sigCh:
		r.Stop(def.ID)
		c = <-p.done
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = r.Close(ctx)

	if *showOutput && c.Output != "" {
		fmt.Println(strings.TrimRight(c.Output, "\n"))
	}
	switch {
	case c.Cancelled:
		fmt.Fprintln(os.Stderr, "cancelled")
		return 130
	case c.Error != "":
		fmt.Fprintf(os.Stderr, "failed to run: %s\n", c.Error)
		return 1
	}
	fmt.Printf("exit %d, %d failure(s) in %s\n", c.ExitCode, c.Failures, c.Duration().Round(time.Millisecond))
	if c.ExitCode < 0 {
		return 1
	}
	return c.ExitCode
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "paths":
		for _, p := range config.DiscoveryPaths() {
			fmt.Println(p)
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		printConfigNounHelp(os.Stderr)
		return 1
	}
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	report := config.Check(cfg)
	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("Config: %s\n", report.Path)
		for i, f := range report.Files {
			if i > 0 {
				fmt.Printf("  include %s\n", f)
			}
		}
		for _, w := range report.Watches {
			status := "ok"
			if !w.Validity.OK() {
				status = "invalid: " + strings.Join(w.Validity.Problems(), ", ")
			}
			line := fmt.Sprintf("  %-20s %s", w.ID, status)
			if w.Preset != "" {
				line += " (preset " + w.Preset + ")"
			}
			fmt.Println(line)
		}
	}

	if !report.OK() {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dryRun := fs.Bool("dry-run", false, "Show what would be written")
	verbose := fs.Bool("v", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path := *configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		path = discovered
	}

	// Loading verifies existing checksums; lock must work when they are stale.
	files, err := config.ResolveFiles(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config files: %v\n", err)
		return 1
	}

	report, err := config.GenerateChecksums(files, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	if *verbose {
		for _, f := range files {
			fmt.Printf("  HASH %s: %s\n", f, report.Files[f])
		}
	}
	for _, target := range report.ChecksumPaths {
		if *dryRun {
			fmt.Printf("DRY-RUN .checksums: %s (not written)\n", target)
		} else {
			fmt.Printf("WROTE .checksums: %s\n", target)
		}
	}
	return 0
}

func runWatchNoun(args []string) int {
	if len(args) < 1 {
		printWatchNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printWatchNounHelp(os.Stdout)
		return 0
	}

	switch args[0] {
	case "list":
		return runWatchList(args[1:])
	case "presets":
		return runWatchPresets(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown watch action: %s\n", args[0])
		printWatchNounHelp(os.Stderr)
		return 1
	}
}

func runWatchList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(cfg.Watches, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDIRECTORY\tGLOB\tCOMMAND")
	for _, w := range cfg.Watches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", w.ID, w.Label(), watch.AbbreviateHome(w.Directory), w.Glob, w.Command)
	}
	_ = tw.Flush()
	return 0
}

func runWatchPresets(args []string) int {
	fs := flag.NewFlagSet("presets", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	// Without a usable config the built-in presets are still worth showing.
	presets := config.BuiltinPresets()
	if cfg, err := loadConfig(*configPath); err == nil {
		presets = cfg.Presets
	} else if *configPath != "" {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGLOB\tCOMMAND")
	for _, p := range presets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Glob, p.Command)
	}
	_ = tw.Flush()
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	watchID := fs.String("watch", "", "Only show runs of this watch")
	limit := fs.Int("limit", 20, "Maximum number of runs")
	runID := fs.String("run", "", "Show the failures of one run")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if !cfg.History.Enabled {
		fmt.Fprintln(os.Stderr, "History is disabled (history.enabled: false)")
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()
	store := history.New(db)

	if *runID != "" {
		failures, err := store.Failures(ctx, *runID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read failures: %v\n", err)
			return 1
		}
		if *jsonOut {
			return printJSON(failures)
		}
		for _, f := range failures {
			fmt.Println(formatFailure(f))
		}
		return 0
	}

	runs, err := store.Recent(ctx, *watchID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}
	if *jsonOut {
		return printJSON(runs)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tWATCH\tSTARTED\tDURATION\tEXIT\tFAILURES")
	for _, r := range runs {
		exit := fmt.Sprintf("%d", r.ExitCode)
		switch {
		case r.Cancelled:
			exit = "cancelled"
		case r.Error != "":
			exit = "error"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.WatchID,
			r.StartedAt.Local().Format(time.DateTime),
			r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond),
			exit, r.Failures)
	}
	_ = tw.Flush()
	return 0
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

// runGlob reports whether path matches pattern: exit 0 on a match, 1
// otherwise and 2 for an invalid pattern.
func runGlob(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: watchit glob <pattern> <path>")
		return 2
	}
	g, err := glob.Compile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pattern: %v\n", err)
		return 2
	}
	if g.Match(args[1]) {
		fmt.Println("match")
		return 0
	}
	fmt.Println("no match")
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `watchit - Run commands when watched files change

Usage:
  watchit <command> [flags]

Commands:
  start             Watch configured directories and run commands (foreground)
  run <id>          Run one watch's command now and print its failures
  monitor           Attach the interactive monitor to a running instance's API
  history           Show recent runs from the history database
  glob <p> <path>   Test a glob pattern against a relative path

Config Commands:
  config check      Validate every watch
  config lock       Update integrity hashes (.checksums)
  config paths      Show where the config is looked for

Watch Commands:
  watch list        Show configured watches
  watch presets     Show available presets

General:
  version           Show version information
  help              Show this help message

Use 'watchit <command> --help' for command flags.
`)
}

func printStartHelp() {
	fmt.Print(`Usage: watchit start [--config PATH] [--tui] [--log-file PATH]

Watches every configured directory and runs each watch's command when a
matching file changes. Runs until interrupted.

Flags:
  --config PATH     Configuration file (default: discovered)
  --tui             Show the interactive monitor; logs go to a file
  --log-file PATH   Write JSON logs to PATH
`)
}

func printRunHelp() {
	fmt.Print(`Usage: watchit run <watch_id> [--config PATH] [--output]

Runs the watch's command once, prints the extracted failures and exits with
the command's exit code.
`)
}

func printHistoryHelp() {
	fmt.Print(`Usage: watchit history [--watch ID] [--limit N] [--run RUN_ID] [--json]

Lists recent runs, newest first. With --run, lists that run's failures.
`)
}

func printGlobHelp() {
	fmt.Print(`Usage: watchit glob <pattern> <path>

Exit status is 0 when path matches, 1 when it does not and 2 when the
pattern is invalid.
`)
}

func printMonitorHelp() {
	fmt.Print(`Usage: watchit monitor [--api-url URL]

Shows watches, runs and failures of a watchit instance started with the API
enabled.
`)
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: watchit config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, paths")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: watchit config check [--config PATH] [--json]")
}

func printConfigLockHelp() {
	fmt.Println("Usage: watchit config lock [--config PATH] [--dry-run] [-v]")
}

func printWatchNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: watchit watch <action> [flags]")
	fmt.Fprintln(w, "Actions: list, presets")
}
