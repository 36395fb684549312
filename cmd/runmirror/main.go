// Package main provides the runmirror CLI application.
//
// runmirror mirrors a directory of experiment runs into memory and keeps
// the mirror current as files change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/0xmhha/runmirror/pkg/watcher"
)

// version is set during build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, watcher.ErrWatchLimit) {
			fmt.Fprintln(os.Stderr, "Error: the file watch limit is exhausted.")
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are accepted before the command name.
type globalFlags struct {
	configPath  string
	root        string
	showVersion bool
}

// parseGlobalFlags parses the flags preceding the command.
func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	var g globalFlags

	fs := flag.NewFlagSet("runmirror", flag.ContinueOnError)
	fs.StringVar(&g.configPath, "config", "", "path to configuration file")
	fs.StringVar(&g.root, "root", "", "run directory (overrides configuration)")
	fs.BoolVar(&g.showVersion, "version", false, "show version information")

	if err := fs.Parse(args); err != nil {
		return g, nil, err
	}
	return g, fs.Args(), nil
}

// run executes the main application logic.
func run(ctx context.Context, args []string, out io.Writer) error {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	g, rest, err := parseGlobalFlags(args)
	if err != nil {
		return err
	}

	if g.showVersion {
		fmt.Fprintf(out, "runmirror %s\n", version)
		return nil
	}

	if len(rest) == 0 {
		return showUsage(out)
	}

	a := &app{
		configPath: g.configPath,
		root:       g.root,
		out:        out,
	}

	command := rest[0]
	switch command {
	case "scan":
		return a.runScanCommand(ctx, rest[1:])
	case "watch":
		return a.runWatchCommand(ctx, rest[1:])
	case "config":
		cmd := &configCommand{app: a}
		return cmd.Execute(rest[1:])
	case "help":
		return showUsage(out)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// showUsage displays usage information.
func showUsage(out io.Writer) error {
	usage := `runmirror - live mirror of an experiment run directory

Usage:
  runmirror [flags] <command> [command flags]

Commands:
  scan        Scan the run directory and print a summary
  watch       Scan, then print a summary after every change
  config      Configuration management (show, path)
  help        Show this help message

Global Flags:
  -config     Path to configuration file
  -root       Run directory (overrides configuration)
  -version    Show version information

Scan and Watch Flags:
  -format     Output format (table, json, simple)
  -compact    Compact output
  -timestamps Show change times (watch only)

Environment:
  RUNMIRROR_ROOT, RUNMIRROR_CONFIG, RUNMIRROR_CACHE, RUNMIRROR_LOG_LEVEL
  Variables may also be set in a .env file in the working directory.

Examples:
  # Summarize ./logs
  runmirror scan

  # Dump the mirror of another directory as JSON
  runmirror -root /srv/runs scan -format json

  # Follow changes
  runmirror watch -format simple

Version: %s
`

	_, err := fmt.Fprintf(out, usage, version)
	return err
}
