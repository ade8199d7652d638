package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"pocketsage/internal/infra/config"
	"pocketsage/internal/infra/logger"
	"pocketsage/internal/infra/tracer"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`pocketsage - On-device assistant orchestration core

USAGE:
    pocketsage [FLAGS]

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --offline          Start with network-dependent tools disabled

CONFIGURATION:
    Config file: ./config.yaml
    Environment: POCKETSAGE_* variables override config
    Secrets:     values prefixed "enc:" decrypt with POCKETSAGE_CONFIG_KEY

REPL COMMANDS:
    /tools        Show tool availability and failure counts
    /reminders    List pending reminders
    /online       Re-enable network tools
    /offline      Disable network tools
    /quit         Exit`)
}

type cliFlags struct {
	ConfigPath string
	Offline    bool
}

func parseFlags() cliFlags {
	flags := cliFlags{ConfigPath: "config.yaml"}
	for i := 1; i < len(os.Args); i++ {
		switch {
		case os.Args[i] == "--config" && i+1 < len(os.Args):
			flags.ConfigPath = os.Args[i+1]
			i++
		case strings.HasPrefix(os.Args[i], "--config="):
			flags.ConfigPath = strings.TrimPrefix(os.Args[i], "--config=")
		case os.Args[i] == "--offline":
			flags.Offline = true
		}
	}
	return flags
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if flags.Offline {
		app.registry.SetOnline(false)
		log.Info("starting offline; network tools disabled")
	}

	return repl(ctx, app)
}

func repl(ctx context.Context, app *app) error {
	fmt.Println("pocketsage ready. Type /quit to exit, --help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := app.handleCommand(line); done {
				break
			}
			continue
		}

		app.handleInput(ctx, line)
	}

	fmt.Println("\nbye")
	return scanner.Err()
}
