package control

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/avr-control/internal/executor"
	"github.com/nerrad567/avr-control/internal/request"
	"github.com/nerrad567/avr-control/internal/status"
)

// ErrStatusUnavailable is returned by ToggleMute when the current mute
// state cannot be read. No command is sent in that case.
var ErrStatusUnavailable = errors.New("control: receiver status unavailable")

// Catalog action names used by the controller.
const (
	ActionPowerOn     = "power_on"
	ActionPowerOff    = "power_off"
	ActionMuteOn      = "mute_on"
	ActionMuteOff     = "mute_off"
	ActionVolumeSet   = "volume_set"
	ActionVolumeUp    = "volume_up"
	ActionVolumeDown  = "volume_down"
	ActionChangeInput = "change_input"
)

// inputAliases maps everyday input names to Denon source codes.
var inputAliases = map[string]string{
	"CBL":    "SAT/CBL",
	"SAT":    "SAT/CBL",
	"USB":    "USB/IPOD",
	"IPOD":   "USB/IPOD",
	"BLURAY": "BD",
	"MEDIA":  "MPLAY",
}

// Runner executes catalog commands. *executor.Executor implements it.
type Runner interface {
	Run(ctx context.Context, inv executor.Invocation) (*executor.Result, error)
}

// StatusSource reads live receiver status. *status.Reader implements it.
type StatusSource interface {
	Fetch(ctx context.Context, host string, port int, timeout time.Duration) (status.Status, error)
}

// Target identifies one receiver.
type Target struct {
	Model   string
	Host    string
	Port    int
	Timeout time.Duration
}

func (t Target) invocation(action string, params request.Params) executor.Invocation {
	return executor.Invocation{
		Model:   t.Model,
		Action:  action,
		Host:    t.Host,
		Port:    t.Port,
		Params:  params,
		Timeout: t.Timeout,
	}
}

// Controller combines the executor with status reads.
type Controller struct {
	exec   Runner
	reader StatusSource
}

// New creates a Controller.
func New(exec Runner, reader StatusSource) *Controller {
	return &Controller{exec: exec, reader: reader}
}

// ToggleMute reads the current mute state and sends the opposite.
//
// Returns:
//   - bool: the mute state after the call
//   - error: wraps ErrStatusUnavailable if the state could not be read,
//     or the executor's error if the command failed
func (c *Controller) ToggleMute(ctx context.Context, t Target) (bool, error) {
	current, err := c.reader.Fetch(ctx, t.Host, t.Port, t.Timeout)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStatusUnavailable, err)
	}
	if !current.Valid {
		return false, ErrStatusUnavailable
	}

	action := ActionMuteOn
	if current.Mute {
		action = ActionMuteOff
	}
	if _, err := c.exec.Run(ctx, t.invocation(action, nil)); err != nil {
		return current.Mute, err
	}
	return !current.Mute, nil
}

// SetMute sends mute_on or mute_off.
func (c *Controller) SetMute(ctx context.Context, t Target, mute bool) bool {
	action := ActionMuteOff
	if mute {
		action = ActionMuteOn
	}
	return c.run(ctx, t, action, nil)
}

// SetVolumeDB sets the master volume in dB, clamped to -80..+18.
func (c *Controller) SetVolumeDB(ctx context.Context, t Target, db float64) bool {
	level := status.LevelFromDB(db)
	return c.run(ctx, t, ActionVolumeSet, request.Params{{Name: "level", Value: strconv.Itoa(level)}})
}

// StepVolume nudges the volume one step up or down.
func (c *Controller) StepVolume(ctx context.Context, t Target, up bool) bool {
	action := ActionVolumeDown
	if up {
		action = ActionVolumeUp
	}
	return c.run(ctx, t, action, nil)
}

// ChangeInput selects an input by source code or alias, case-insensitive.
func (c *Controller) ChangeInput(ctx context.Context, t Target, source string) bool {
	code := InputCode(source)
	if code == "" {
		return false
	}
	return c.run(ctx, t, ActionChangeInput, request.Params{{Name: "input_source", Value: code}})
}

// Power switches the main zone on or off.
func (c *Controller) Power(ctx context.Context, t Target, on bool) bool {
	action := ActionPowerOff
	if on {
		action = ActionPowerOn
	}
	return c.run(ctx, t, action, nil)
}

func (c *Controller) run(ctx context.Context, t Target, action string, params request.Params) bool {
	_, err := c.exec.Run(ctx, t.invocation(action, params))
	return err == nil
}

// InputCode returns the Denon source code for an input name. Unknown names
// are passed through upper-cased.
func InputCode(source string) string {
	code := strings.ToUpper(strings.TrimSpace(source))
	if alias, ok := inputAliases[code]; ok {
		return alias
	}
	return code
}
