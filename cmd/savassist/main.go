package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/hpungsan/sav-assist/internal/app"
	"github.com/hpungsan/sav-assist/internal/config"
	"github.com/hpungsan/sav-assist/internal/db"
	"github.com/hpungsan/sav-assist/internal/logger"
	"github.com/hpungsan/sav-assist/internal/mcp"
	"github.com/hpungsan/sav-assist/internal/store"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"tech": true, "new": true, "summarize": true, "dictate": true,
	"list": true, "show": true, "delete": true, "stats": true,
	"sync": true, "report": true, "guide": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func printBanner() {
	fmt.Println(`
  SAV ASSIST
  Assistant SAV pour techniciens CVC

  Usage: savassist <command> [options]
         savassist --help

  MCP server mode requires piped input.`)
}

// loadEnv reads .env from the base directory, then from the working
// directory. Variables already set in the environment win.
func loadEnv(baseDir string) {
	_ = godotenv.Load(filepath.Join(baseDir, ".env"))
	_ = godotenv.Load()
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	if isHelpOrVersion() {
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		fail("could not determine base directory: %v", err)
	}
	loadEnv(baseDir)

	log := logger.New()

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()

	cfg, err := config.Load(baseDir)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.WithField("tools", unknown).Warn("unknown tools in disabled_tools")
	}

	state, err := app.Open(context.Background(), store.New(database, log), app.Options{
		Fallback: cfg.TechnicianFallback,
		Logger:   log,
	})
	if err != nil {
		fail("failed to load call history: %v", err)
	}

	if isCLIMode() {
		d := newDeps(cfg, state, log, filepath.Join(baseDir, db.ExportsDir))
		if err := newCLIApp(d).Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'savassist --help' for usage.\n")
		os.Exit(1)
	}

	if err := mcp.Run(state, cfg, Version, log); err != nil {
		fail("%v", err)
	}
}
