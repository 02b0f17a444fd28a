package executor

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/avr-control/internal/catalog"
	"github.com/nerrad567/avr-control/internal/request"
)

// DefaultTimeout applies when neither the invocation nor Options set one.
const DefaultTimeout = 5 * time.Second

// Catalog is the read contract the executor needs from the command catalog.
type Catalog interface {
	FindModelByName(ctx context.Context, name string) (*catalog.ReceiverModel, error)
	FindCommand(ctx context.Context, modelID int64, actionName string) (*catalog.CommandDefinition, error)
	ListCommands(ctx context.Context, modelID int64) ([]catalog.CommandDefinition, error)
}

// Logger defines the logging interface used by the Executor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Notifier is told about every dispatch attempt, successful or not.
type Notifier interface {
	CommandExecuted(event CommandEvent)
}

// Recorder stores command outcomes, e.g. as time-series points.
type Recorder interface {
	RecordCommand(event CommandEvent)
}

// CommandEvent describes one execution attempt.
type CommandEvent struct {
	Model      string        `json:"model"`
	Action     string        `json:"action"`
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Options tune executor behaviour.
type Options struct {
	// Timeout is used when an invocation does not carry its own.
	Timeout time.Duration

	// StrictPlaceholders fails a call whose resolved template still
	// contains placeholders. When false they are sent verbatim and a
	// warning is logged.
	StrictPlaceholders bool

	// ValidateParameters checks parameters against the command's
	// ParameterSpecs before dispatch.
	ValidateParameters bool
}

// Invocation is one request to run a catalog command against a receiver.
type Invocation struct {
	Model  string
	Action string
	Host   string
	Port   int // zero means the model's default port
	Params request.Params

	// Timeout bounds the HTTP exchange. Zero uses Options.Timeout.
	Timeout time.Duration
}

// Result describes a dispatched request.
type Result struct {
	Method     string
	URL        string
	StatusCode int
	Duration   time.Duration
}

// Executor runs catalog commands against receivers.
//
// Thread Safety: an Executor holds no per-call state and is safe for
// concurrent use. Concurrent calls to the same receiver are not
// de-duplicated.
type Executor struct {
	catalog   Catalog
	transport request.Doer
	opts      Options
	logger    Logger
	notifier  Notifier
	recorder  Recorder
	now       func() time.Time
}

// New creates an executor over a catalog and an outbound transport.
func New(cat Catalog, transport request.Doer, opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Executor{
		catalog:   cat,
		transport: transport,
		opts:      opts,
		logger:    noopLogger{},
		now:       time.Now,
	}
}

// SetLogger sets the logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	e.logger = logger
}

// SetNotifier sets the receiver of CommandEvents. Nil disables it.
func (e *Executor) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetRecorder sets where command outcomes are recorded. Nil disables it.
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

// Execute runs an invocation and reports whether the receiver answered
// HTTP 200.
//
// Returns false for an unknown model or action, an unsupported HTTP
// method, a transport failure or any non-200 status. Unknown models and
// unsupported methods never reach the network. The reason is logged.
func (e *Executor) Execute(ctx context.Context, inv Invocation) bool {
	_, err := e.Run(ctx, inv)
	return err == nil
}

// Run runs an invocation and returns the reason for failure.
//
// Returns:
//   - *Result: the dispatched request, also on ErrUnexpectedStatus
//   - error: nil on success, or an error wrapping one of:
//   - catalog.ErrModelNotFound, catalog.ErrCommandNotFound
//   - request.ErrUnsupportedMethod
//   - catalog.ErrInvalidParameter (only with Options.ValidateParameters)
//   - ErrUnresolvedPlaceholder (only with Options.StrictPlaceholders)
//   - request.ErrTransport
//   - ErrUnexpectedStatus
func (e *Executor) Run(ctx context.Context, inv Invocation) (*Result, error) {
	req, port, err := e.prepare(ctx, inv)
	if err != nil {
		e.logger.Warn("command not dispatched",
			"model", inv.Model,
			"action", inv.Action,
			"host", inv.Host,
			"error", err,
		)
		return nil, err
	}

	start := e.now()
	resp, err := e.transport.Do(ctx, req)
	elapsed := e.now().Sub(start)

	result := &Result{Method: req.Method, URL: req.URL, Duration: elapsed}
	if err == nil {
		result.StatusCode = resp.StatusCode
		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
		}
	}

	e.report(inv, port, result, err)

	if err != nil {
		e.logger.Error("command failed",
			"model", inv.Model,
			"action", inv.Action,
			"url", req.URL,
			"status", result.StatusCode,
			"error", err,
		)
		if result.StatusCode != 0 {
			return result, err
		}
		return nil, err
	}

	e.logger.Info("command executed",
		"model", inv.Model,
		"action", inv.Action,
		"url", req.URL,
		"duration", elapsed,
	)
	return result, nil
}

// Prepare resolves an invocation to the request Run would send, without
// sending it.
func (e *Executor) Prepare(ctx context.Context, inv Invocation) (*request.Request, error) {
	req, _, err := e.prepare(ctx, inv)
	return req, err
}

func (e *Executor) prepare(ctx context.Context, inv Invocation) (*request.Request, int, error) {
	if strings.TrimSpace(inv.Host) == "" {
		return nil, 0, ErrMissingHost
	}

	model, err := e.catalog.FindModelByName(ctx, inv.Model)
	if err != nil {
		return nil, 0, err
	}

	cmd, err := e.catalog.FindCommand(ctx, model.ID, inv.Action)
	if err != nil {
		return nil, 0, err
	}

	method, err := request.ValidateMethod(cmd.Method)
	if err != nil {
		return nil, 0, fmt.Errorf("%s/%s: %w", inv.Model, inv.Action, err)
	}

	if e.opts.ValidateParameters {
		if err := catalog.ValidateParameters(cmd, inv.Params); err != nil {
			return nil, 0, err
		}
	}

	suffix := request.Resolve(cmd.Template, inv.Params)
	if unresolved := request.Unresolved(suffix); len(unresolved) > 0 {
		if e.opts.StrictPlaceholders {
			return nil, 0, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, strings.Join(unresolved, ", "))
		}
		e.logger.Warn("sending command with unresolved placeholders",
			"model", inv.Model,
			"action", inv.Action,
			"placeholders", unresolved,
		)
	}

	port := inv.Port
	if port == 0 {
		port = model.DefaultPort
	}
	if port == 0 {
		port = catalog.DefaultPort
	}

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = e.opts.Timeout
	}

	return &request.Request{
		Method:          method,
		URL:             request.BuildURL(model.Protocol, inv.Host, port, cmd.Endpoint, suffix),
		Timeout:         timeout,
		FollowRedirects: true,
	}, port, nil
}

func (e *Executor) report(inv Invocation, port int, result *Result, err error) {
	if e.notifier == nil && e.recorder == nil {
		return
	}

	event := CommandEvent{
		Model:      inv.Model,
		Action:     inv.Action,
		Host:       inv.Host,
		Port:       port,
		Success:    err == nil,
		StatusCode: result.StatusCode,
		Duration:   result.Duration,
		Timestamp:  e.now().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}

	if e.notifier != nil {
		e.notifier.CommandExecuted(event)
	}
	if e.recorder != nil {
		e.recorder.RecordCommand(event)
	}
}

// AvailableCommands lists the commands of a model for API consumers. An
// unknown model, or any catalog failure, yields an empty list.
func (e *Executor) AvailableCommands(ctx context.Context, modelName string) []catalog.CommandInfo {
	infos := []catalog.CommandInfo{}

	model, err := e.catalog.FindModelByName(ctx, modelName)
	if err != nil {
		e.logger.Debug("no commands for model", "model", modelName, "error", err)
		return infos
	}

	cmds, err := e.catalog.ListCommands(ctx, model.ID)
	if err != nil {
		e.logger.Error("listing commands failed", "model", modelName, "error", err)
		return infos
	}

	for i := range cmds {
		infos = append(infos, cmds[i].Info())
	}
	return infos
}
