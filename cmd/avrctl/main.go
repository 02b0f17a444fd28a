// avrctl controls networked A/V receivers over their HTTP interfaces.
//
// It runs as a daemon ("serve") that discovers receivers, keeps the device
// registry current, samples receiver status and accepts remote commands
// over MQTT, or as a one-shot CLI for the same operations:
//
//	avrctl serve
//	avrctl exec -model AVR-X2300W -action volume_set -host 192.168.1.50 level=45
//	avrctl status -host 192.168.1.50
//	avrctl discover -mode both -duration 5s
//	avrctl devices -all
//	avrctl commands -model AVR-X2300W
//	avrctl mute-toggle -model AVR-X2300W -host 192.168.1.50
//	avrctl watch -host 192.168.1.50
//	avrctl -ephemeral discover -mode http
//
// Configuration is read from AVRCTL_CONFIG (default configs/config.yaml),
// after loading a .env file if present.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/avr-control/internal/infrastructure/config"
	"github.com/nerrad567/avr-control/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// dotEnvPath is loaded before the configuration, if it exists.
const dotEnvPath = ".env"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: command line arguments without the program name
//   - stdout: where command results are written
//
// Returns:
//   - error: nil on success, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	if err := config.LoadDotEnv(dotEnvPath); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best effort on exit

	global := flag.NewFlagSet("avrctl", flag.ContinueOnError)
	var opts appOptions
	global.BoolVar(&opts.ephemeral, "ephemeral", false, "keep discovered devices in memory for this run only")
	if err := global.Parse(args); err != nil {
		return err
	}
	args = global.Args()

	name, rest := "serve", args
	if len(args) > 0 {
		name, rest = args[0], args[1:]
	}

	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (commands: %s)", name, commandNames())
	}

	a, err := newApp(ctx, cfg, log, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	return cmd(ctx, a, rest, stdout)
}

// loadConfig reads AVRCTL_CONFIG, or the default path. A missing default
// file falls back to the built-in configuration; a missing explicit file
// is an error.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("AVRCTL_CONFIG")
	if path != "" {
		return config.Load(path)
	}

	cfg, err := config.Load(defaultConfigPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default()
	}
	return cfg, err
}
