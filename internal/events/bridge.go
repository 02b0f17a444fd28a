package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/avr-control/internal/executor"
	"github.com/nerrad567/avr-control/internal/infrastructure/mqtt"
	"github.com/nerrad567/avr-control/internal/request"
)

// Runner executes catalog commands. *executor.Executor implements it.
type Runner interface {
	Run(ctx context.Context, inv executor.Invocation) (*executor.Result, error)
}

// CommandRequest is the payload of a remote command. Params keep the
// order of the JSON object, which is the substitution order.
type CommandRequest struct {
	Host      string         `json:"host"`
	Port      int            `json:"port,omitempty"`
	Params    request.Params `json:"params,omitempty"`
	TimeoutMS int            `json:"timeout_ms,omitempty"`
}

// Ack is published in reply to every remote command. It echoes the
// parameters that were sent.
type Ack struct {
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	Params     request.Params `json:"params,omitempty"`
}

// Bridge executes commands received over MQTT.
type Bridge struct {
	broker Broker
	runner Runner
	qos    byte
	topics mqtt.Topics
	logger Logger
	ctx    context.Context
}

// NewBridge creates a Bridge subscribing with qos.
func NewBridge(broker Broker, runner Runner, qos byte) *Bridge {
	return &Bridge{
		broker: broker,
		runner: runner,
		qos:    qos,
		logger: noopLogger{},
		ctx:    context.Background(),
	}
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Start subscribes to every command topic. Commands run under ctx.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx
	if err := b.broker.Subscribe(b.topics.AllCommands(), b.qos, b.handle); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	b.logger.Info("command bridge started", "topic", b.topics.AllCommands())
	return nil
}

// Stop unsubscribes from the command topics. Commands already running
// still finish and are acknowledged.
func (b *Bridge) Stop() error {
	if err := b.broker.Unsubscribe(b.topics.AllCommands()); err != nil {
		return fmt.Errorf("unsubscribing from commands: %w", err)
	}
	b.logger.Info("command bridge stopped")
	return nil
}

// handle runs one command message and acknowledges it. Malformed topics
// are dropped; every other message gets an ack.
func (b *Bridge) handle(topic string, payload []byte) error {
	model, action, ok := mqtt.ParseCommandTopic(topic)
	if !ok {
		b.logger.Warn("ignoring malformed command topic", "topic", topic)
		return nil
	}

	req, err := decodeRequest(payload)
	if err != nil {
		b.ack(model, action, Ack{Error: err.Error()})
		return nil
	}

	inv := executor.Invocation{
		Model:   model,
		Action:  action,
		Host:    req.Host,
		Port:    req.Port,
		Params:  req.Params,
		Timeout: time.Duration(req.TimeoutMS) * time.Millisecond,
	}

	result, err := b.runner.Run(b.ctx, inv)
	a := Ack{Success: err == nil, Params: req.Params}
	if result != nil {
		a.StatusCode = result.StatusCode
	}
	if err != nil {
		a.Error = err.Error()
	}
	b.ack(model, action, a)
	return nil
}

func (b *Bridge) ack(model, action string, a Ack) {
	topic := b.topics.Ack(model, action)
	if err := b.broker.PublishJSON(topic, a, false); err != nil {
		b.logger.Warn("command ack not published", "topic", topic, "error", err)
	}
}

func decodeRequest(payload []byte) (CommandRequest, error) {
	var req CommandRequest
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return CommandRequest{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if req.TimeoutMS < 0 {
		return CommandRequest{}, fmt.Errorf("%w: negative timeout_ms", ErrInvalidPayload)
	}
	return req, nil
}
