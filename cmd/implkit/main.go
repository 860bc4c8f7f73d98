package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/silver2dream/ai-implement-kit/internal/buildinfo"
	"github.com/silver2dream/ai-implement-kit/internal/engine"
	"github.com/silver2dream/ai-implement-kit/internal/lock"
	"github.com/silver2dream/ai-implement-kit/internal/state"
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

func init() {
	// Disable colors on Windows or when not a terminal
	if runtime.GOOS == "windows" || os.Getenv("NO_COLOR") != "" {
		colorReset = ""
		colorRed = ""
		colorGreen = ""
		colorYellow = ""
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Println(buildinfo.Version)
			return 0
		case "--help", "-h":
			usage()
			return 0
		}
	}

	if len(os.Args) < 2 {
		usage()
		return 2
	}

	switch os.Args[1] {
	case "run":
		return cmdRun(os.Args[2:])
	case "status":
		return cmdStatus(os.Args[2:])
	case "version":
		fmt.Println(buildinfo.Version)
		return 0
	case "help":
		usage()
		return 0
	default:
		errorf("Unknown command: %s\n\n", os.Args[1])
		usage()
		return 2
	}
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	ideaDir := fs.String("idea", "", "idea directory containing the plan (required)")
	modeName := fs.String("mode", "worktree", "execution mode: trunk, worktree or isolate")
	nonInteractive := fs.Bool("non-interactive", false, "capture agent output instead of attaching the terminal")
	setupOnly := fs.Bool("setup-only", false, "isolate mode: stop after provisioning the clone")
	cleanup := fs.Bool("cleanup", false, "isolate mode: remove the clone after completion")
	skipCIWait := fs.Bool("skip-ci-wait", false, "do not block on CI completion")
	ciFixRetries := fs.Int("ci-fix-retries", 0, "CI auto-repair attempt budget (default from config)")
	ciTimeout := fs.Duration("ci-timeout", 0, "CI wait timeout (default from config)")
	dryRun := fs.Bool("dry-run", false, "print the selected mode and exit without side effects")
	ignoreDirty := fs.Bool("ignore-uncommitted-idea-changes", false, "run even when the idea directory has uncommitted changes")
	fs.Parse(args)

	if *ideaDir == "" {
		errorf("--idea is required\n")
		return 2
	}
	if (*setupOnly || *cleanup) && *modeName != "isolate" {
		errorf("--setup-only and --cleanup only apply to --mode isolate\n")
		return 2
	}

	mode, err := engine.ParseMode(*modeName, *setupOnly, *cleanup)
	if err != nil {
		errorf("%v\n", err)
		return 2
	}

	if *dryRun {
		fmt.Printf("Would run idea %s in %s mode\n", *ideaDir, mode.Name())
		return 0
	}

	err = engine.Run(context.Background(), engine.Options{
		IdeaDir:                      *ideaDir,
		Mode:                         mode,
		NonInteractive:               *nonInteractive,
		SkipCIWait:                   *skipCIWait,
		CIFixRetries:                 *ciFixRetries,
		CITimeout:                    *ciTimeout,
		IgnoreUncommittedIdeaChanges: *ignoreDirty,
	})
	if err != nil {
		errorf("%v\n", err)
		return 1
	}
	success("Done.\n")
	return 0
}

func cmdStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	ideaDir := fs.String("idea", "", "idea directory (required)")
	fs.Parse(args)

	if *ideaDir == "" {
		errorf("--idea is required\n")
		return 2
	}

	ideaName := baseName(*ideaDir)
	st, err := state.Load(*ideaDir, ideaName)
	if err != nil {
		errorf("%v\n", err)
		return 1
	}

	fmt.Printf("Idea:            %s\n", ideaName)
	fmt.Printf("Slice:           %d\n", st.SliceNumber)
	fmt.Printf("Processed:       %d comments, %d reviews, %d conversation items\n",
		len(st.ProcessedCommentIDs), len(st.ProcessedReviewIDs), len(st.ProcessedConversationIDs))

	ideaLock := lock.New(lock.Path(*ideaDir))
	if ideaLock.IsStale() {
		warn("Stale lock file present (holder no longer running)\n")
	}
	return 0
}

func baseName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.Base(abs)
}

func usage() {
	fmt.Fprint(os.Stderr, `implkit - Implementation Workflow Engine

Usage:
  implkit <command> [options]

Commands:
  run       Drive the coding agent through an idea's plan
  status    Show workflow progress for an idea
  version   Show version

Examples:
  implkit run --idea ideas/search-cache
  implkit run --idea ideas/search-cache --mode trunk --non-interactive
  implkit run --idea ideas/search-cache --mode isolate --setup-only
  implkit status --idea ideas/search-cache

Run 'implkit run -h' for run options.
`)
}

// Helper functions for colored output
func success(format string, args ...interface{}) {
	fmt.Printf("%s✓%s %s", colorGreen, colorReset, fmt.Sprintf(format, args...))
}

func warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s⚠%s %s", colorYellow, colorReset, fmt.Sprintf(format, args...))
}

func errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%sError:%s %s", colorRed, colorReset, fmt.Sprintf(format, args...))
}
