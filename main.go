package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		runServe(args)
	case "mcp":
		runMCP(args)
	case "scan":
		runScan(args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: unknown command %q\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: obsidian-full-calendar COMMAND [flags]

Commands:
  serve    Serve the calendar HTTP API and live-update websocket
  mcp      Run the MCP server on stdio
  scan     Print the vault's events as JSON and exit
  version  Print the version

Run "obsidian-full-calendar COMMAND -h" for command flags.
`)
}

// rootLogger builds the process logger. Everything logs to stderr so
// mcp mode keeps stdout clean for the protocol and scan mode keeps it
// clean for its JSON output.
func rootLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)
}

// checkVaultVersionControl warns on stderr if the vault is not git-controlled.
// Edits rewrite documents in place, so there is no undo without history.
func checkVaultVersionControl(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return
	}
	if _, err := os.Stat(filepath.Join(abs, ".git")); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: WARNING: vault %s is not version controlled\n", abs)
		fmt.Fprintf(os.Stderr, "obsidian-full-calendar: Edits cannot be undone. Consider: cd %s && git init && git add -A && git commit -m 'initial'\n", abs)
	}
}
