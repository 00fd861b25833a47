package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/layerdeck/internal/assets"
	"github.com/hpungsan/layerdeck/internal/config"
	"github.com/hpungsan/layerdeck/internal/db"
	"github.com/hpungsan/layerdeck/internal/mcp"
	"github.com/hpungsan/layerdeck/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"import": true, "inspect": true, "render": true,
	"fetch": true, "list": true, "delete": true,
	"backup": true, "restore": true,
	"web": true, "mcp": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
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
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a short usage note when run interactively without args.
func printBanner() {
	fmt.Println(`
  layerdeck: layered designs in, slide templates out

  Usage: layerdeck <command> [options]
         layerdeck --help

  MCP server mode requires piped input.`)
}

// setupLogging sends logrus output to stderr so stdout stays clean for JSON
// and the MCP protocol.
func setupLogging(level string) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// loadConfig merges global and repo config, then .env files and
// LAYERDECK_* variables.
func loadConfig(baseDir string) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return nil, err
	}
	if err := config.LoadEnvFiles(filepath.Join(baseDir, ".env"), ".env"); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(&deps{})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && !isCLIMode() && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'layerdeck --help' for usage.\n")
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory", err)
	}
	baseDir := filepath.Join(homeDir, ".layerdeck")

	cfg, err := loadConfig(baseDir)
	if err != nil {
		fatal("failed to load config", err)
	}
	setupLogging(cfg.LogLevel)

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	store, err := assets.Open(context.Background(), cfg, baseDir)
	if err != nil {
		fatal("failed to open asset store", err)
	}
	renderer, err := ops.NewRenderer(cfg, store)
	if err != nil {
		fatal("failed to set up renderer", err)
	}

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(&deps{db: database, cfg: cfg, store: store, renderer: renderer})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			database.Close()
			os.Exit(1)
		}
		return
	}

	// MCP server mode (default)
	if err := mcp.Run(database, cfg, store, renderer, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		database.Close()
		os.Exit(1)
	}
}
