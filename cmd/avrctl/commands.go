package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/avr-control/internal/control"
	"github.com/nerrad567/avr-control/internal/discovery"
	"github.com/nerrad567/avr-control/internal/events"
	"github.com/nerrad567/avr-control/internal/executor"
	"github.com/nerrad567/avr-control/internal/infrastructure/influxdb"
	"github.com/nerrad567/avr-control/internal/infrastructure/mqtt"
	"github.com/nerrad567/avr-control/internal/request"
	"github.com/nerrad567/avr-control/internal/status"
)

// command runs one subcommand against a wired app.
type command func(ctx context.Context, a *app, args []string, stdout io.Writer) error

var commands = map[string]command{
	"serve":       serveCommand,
	"exec":        execCommand,
	"status":      statusCommand,
	"discover":    discoverCommand,
	"devices":     devicesCommand,
	"commands":    commandsCommand,
	"mute-toggle": muteToggleCommand,
	"volume":      volumeCommand,
	"input":       inputCommand,
	"power":       powerCommand,
	"watch":       watchCommand,
}

var (
	errCommandFailed = errors.New("command failed")
	errMQTTDisabled  = errors.New("mqtt is disabled (set mqtt.enabled or AVRCTL_MQTT_ENABLED)")
)

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// required reports the first empty flag value by name.
func required(values map[string]string) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.TrimSpace(values[name]) == "" {
			return fmt.Errorf("-%s is required", name)
		}
	}
	return nil
}

// serveCommand runs the daemon until ctx is cancelled.
func serveCommand(ctx context.Context, a *app, args []string, _ io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.log.Info("avrctl starting", "version", version, "commit", commit, "date", date)

	deps := []dependency{{name: "database", check: a.db.HealthCheck}}

	if a.cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(a.cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				a.log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(a.log.With("component", "mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			a.log.Warn("MQTT connection lost", "error", err)
		})
		a.log.Info("MQTT connected", "broker", a.cfg.MQTT.Broker.Host)
		deps = append(deps, dependency{name: "mqtt", check: mqttClient.HealthCheck})

		publisher := events.NewPublisher(mqttClient)
		publisher.SetLogger(a.log.With("component", "events"))
		a.executor.SetNotifier(publisher)
		a.engine.SetNotifier(publisher)
		a.reader.SetNotifier(publisher)

		bridge := events.NewBridge(mqttClient, a.executor, byte(a.cfg.MQTT.QoS)) // #nosec G115 -- QoS validated 0-2
		bridge.SetLogger(a.log.With("component", "bridge"))
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("starting command bridge: %w", err)
		}
		defer func() {
			if stopErr := bridge.Stop(); stopErr != nil {
				a.log.Warn("error stopping command bridge", "error", stopErr)
			}
		}()
	}

	if a.cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(a.cfg.InfluxDB)
		if err != nil {
			// Metrics are optional; the control layer keeps running.
			a.log.Warn("InfluxDB unavailable, recording disabled", "error", err)
		} else {
			defer func() {
				if closeErr := influxClient.Close(); closeErr != nil {
					a.log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			influxClient.SetOnError(func(err error) {
				a.log.Error("InfluxDB write error", "error", err)
			})
			recorder := events.NewRecorder(influxClient)
			a.executor.SetRecorder(recorder)
			a.reader.SetRecorder(recorder)
			a.log.Info("InfluxDB connected", "url", a.cfg.InfluxDB.URL)
			deps = append(deps, dependency{name: "influxdb", check: influxClient.HealthCheck})
		}
	}

	mode, err := discovery.ParseMode(a.cfg.Discovery.Mode)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if interval := a.cfg.Health.Interval; interval > 0 {
		g.Go(func() error {
			every(gctx, interval, func() { a.checkHealth(gctx, deps) })
			return nil
		})
	} else {
		a.checkHealth(ctx, deps)
	}
	if interval := a.cfg.Discovery.Interval; interval > 0 {
		g.Go(func() error {
			every(gctx, interval, func() {
				summary, err := a.engine.Discover(gctx, mode, a.cfg.Discovery.Duration)
				if err != nil {
					a.log.Warn("discovery failed", "error", err)
					return
				}
				a.log.Info("discovery finished",
					"mode", summary.Mode,
					"passive", summary.Passive,
					"active", summary.Active,
					"devices", len(summary.Devices),
				)
			})
			return nil
		})
	}
	if interval := a.cfg.Discovery.SweepInterval; interval > 0 {
		g.Go(func() error {
			every(gctx, interval, func() {
				if _, err := a.engine.ExpireStale(gctx, a.cfg.Discovery.MaxAge); err != nil {
					a.log.Warn("staleness sweep failed", "error", err)
				}
			})
			return nil
		})
	}
	if interval := a.cfg.Status.PollInterval; interval > 0 && len(a.cfg.Status.PollTargets) > 0 {
		g.Go(func() error {
			every(gctx, interval, func() {
				for _, target := range a.cfg.Status.PollTargets {
					a.reader.GetStatus(gctx, target.Host, target.Port, a.cfg.Status.Timeout)
				}
			})
			return nil
		})
	}

	a.log.Info("avrctl started")
	<-ctx.Done()
	a.log.Info("shutdown signal received, stopping")
	return g.Wait()
}

// every calls fn immediately and then each interval until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		fn()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// execCommand runs one catalog command. Trailing name=value arguments
// become the call's parameters, in order.
func execCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	model := fs.String("model", "", "receiver model name")
	action := fs.String("action", "", "catalog action name")
	host := fs.String("host", "", "receiver address")
	port := fs.Int("port", 0, "receiver port (0 uses the model default)")
	timeout := fs.Duration("timeout", 0, "request timeout")
	dryRun := fs.Bool("dry-run", false, "print the request instead of sending it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"model": *model, "action": *action, "host": *host}); err != nil {
		return err
	}

	params, err := parseParams(fs.Args())
	if err != nil {
		return err
	}

	inv := executor.Invocation{
		Model:   *model,
		Action:  *action,
		Host:    *host,
		Port:    *port,
		Params:  params,
		Timeout: *timeout,
	}

	if *dryRun {
		req, err := a.executor.Prepare(ctx, inv)
		if err != nil {
			return err
		}
		return writeJSON(stdout, map[string]any{
			"method": req.Method,
			"url":    req.URL,
			"body":   string(req.Body),
		})
	}

	result, err := a.executor.Run(ctx, inv)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]any{
		"method":      result.Method,
		"url":         result.URL,
		"status_code": result.StatusCode,
		"duration_ms": result.Duration.Milliseconds(),
	})
}

func parseParams(args []string) (request.Params, error) {
	var params request.Params
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: want name=value", arg)
		}
		params = params.Set(name, value)
	}
	return params, nil
}

func statusCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	host := fs.String("host", "", "receiver address")
	port := fs.Int("port", 0, "receiver port")
	timeout := fs.Duration("timeout", a.cfg.Status.Timeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"host": *host}); err != nil {
		return err
	}

	return writeJSON(stdout, a.reader.GetStatus(ctx, *host, *port, *timeout))
}

// watchCommand prints the status samples a running daemon publishes, one
// JSON document per line, until interrupted.
func watchCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	host := fs.String("host", "", "only this receiver (empty follows every receiver)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !a.cfg.MQTT.Enabled {
		return errMQTTDisabled
	}

	mqttClient, err := mqtt.Connect(a.cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer mqttClient.Close() //nolint:errcheck // Close never fails
	mqttClient.SetLogger(a.log.With("component", "mqtt"))

	return printStatus(ctx, mqttClient, byte(a.cfg.MQTT.QoS), *host, stdout) // #nosec G115 -- QoS validated 0-2
}

// printStatus writes each watched sample as a compact JSON line.
func printStatus(ctx context.Context, broker events.Broker, qos byte, host string, stdout io.Writer) error {
	var mu sync.Mutex
	enc := json.NewEncoder(stdout)
	return events.NewStatusWatcher(broker, qos).Watch(ctx, host, func(sample status.Sample) {
		mu.Lock()
		defer mu.Unlock()
		enc.Encode(sample) //nolint:errcheck // Best-effort output
	})
}

func discoverCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("discover", flag.ContinueOnError)
	modeName := fs.String("mode", a.cfg.Discovery.Mode, "both, mdns or http")
	duration := fs.Duration("duration", a.cfg.Discovery.Duration, "advertisement listening window")
	subnet := fs.String("subnet", a.cfg.Discovery.Subnet, "CIDR to scan (empty detects the local /24)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mode, err := discovery.ParseMode(*modeName)
	if err != nil {
		return err
	}

	engine := a.engine
	if *subnet != a.cfg.Discovery.Subnet {
		engine = a.newEngine(*subnet)
	}

	summary, err := engine.Discover(ctx, mode, *duration)
	if err != nil {
		return err
	}
	return writeJSON(stdout, summary)
}

func devicesCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("devices", flag.ContinueOnError)
	all := fs.Bool("all", false, "include inactive devices")
	if err := fs.Parse(args); err != nil {
		return err
	}

	listings, err := a.engine.ListDevices(ctx, !*all)
	if err != nil {
		return err
	}
	if listings == nil {
		listings = []discovery.Listing{}
	}
	return writeJSON(stdout, listings)
}

func commandsCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("commands", flag.ContinueOnError)
	model := fs.String("model", "", "receiver model name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := required(map[string]string{"model": *model}); err != nil {
		return err
	}

	return writeJSON(stdout, a.executor.AvailableCommands(ctx, *model))
}

// targetFlags registers the flags shared by the control subcommands.
func targetFlags(fs *flag.FlagSet) func() (control.Target, error) {
	model := fs.String("model", "", "receiver model name")
	host := fs.String("host", "", "receiver address")
	port := fs.Int("port", 0, "receiver port (0 uses the model default)")
	timeout := fs.Duration("timeout", 0, "request timeout")
	return func() (control.Target, error) {
		if err := required(map[string]string{"model": *model, "host": *host}); err != nil {
			return control.Target{}, err
		}
		return control.Target{Model: *model, Host: *host, Port: *port, Timeout: *timeout}, nil
	}
}

func muteToggleCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("mute-toggle", flag.ContinueOnError)
	target := targetFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := target()
	if err != nil {
		return err
	}

	muted, err := a.control.ToggleMute(ctx, t)
	if err != nil {
		return err
	}
	return writeJSON(stdout, map[string]bool{"muted": muted})
}

func volumeCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("volume", flag.ContinueOnError)
	target := targetFlags(fs)
	db := fs.Float64("db", 0, "absolute volume in dB")
	step := fs.String("step", "", "up or down instead of -db")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := target()
	if err != nil {
		return err
	}

	var ok bool
	switch *step {
	case "":
		ok = a.control.SetVolumeDB(ctx, t, *db)
	case "up", "down":
		ok = a.control.StepVolume(ctx, t, *step == "up")
	default:
		return fmt.Errorf("invalid -step %q: want up or down", *step)
	}
	return reportOutcome(stdout, ok)
}

func inputCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("input", flag.ContinueOnError)
	target := targetFlags(fs)
	source := fs.String("source", "", "input name, e.g. GAME, CBL, BLURAY")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := target()
	if err != nil {
		return err
	}
	if err := required(map[string]string{"source": *source}); err != nil {
		return err
	}

	return reportOutcome(stdout, a.control.ChangeInput(ctx, t, *source))
}

func powerCommand(ctx context.Context, a *app, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("power", flag.ContinueOnError)
	target := targetFlags(fs)
	state := fs.String("state", "", "on or off")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := target()
	if err != nil {
		return err
	}

	switch *state {
	case "on", "off":
		return reportOutcome(stdout, a.control.Power(ctx, t, *state == "on"))
	default:
		return fmt.Errorf("invalid -state %q: want on or off", *state)
	}
}

func reportOutcome(stdout io.Writer, ok bool) error {
	if !ok {
		return errCommandFailed
	}
	return writeJSON(stdout, map[string]bool{"success": true})
}
