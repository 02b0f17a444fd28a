package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Mode selects the discovery strategies of a Discover run.
type Mode string

const (
	ModeMDNS Mode = "mdns"
	ModeHTTP Mode = "http"
	ModeBoth Mode = "both"
)

// ParseMode parses a mode name. Empty means ModeBoth.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeBoth, nil
	case ModeMDNS, ModeHTTP, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Summary is the outcome of a Discover run.
type Summary struct {
	Mode     Mode      `json:"mode"`
	Passive  int       `json:"passive_sightings"`
	Active   int       `json:"active_sightings"`
	Devices  []Listing `json:"devices"`
	Duration string    `json:"duration"`
}

// Discover runs the strategies selected by mode, concurrently for
// ModeBoth, then lists the active devices. The passive window is
// duration; the active scan uses the configured subnet and scan port.
//
// A strategy that fails is logged and skipped. An error is returned only
// when every selected strategy failed.
func (e *Engine) Discover(ctx context.Context, mode Mode, duration time.Duration) (Summary, error) {
	switch mode {
	case ModeMDNS, ModeHTTP, ModeBoth:
	default:
		return Summary{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	start := e.now()
	summary := Summary{Mode: mode}

	var passiveErr, activeErr error
	var g errgroup.Group

	if mode == ModeMDNS || mode == ModeBoth {
		g.Go(func() error {
			summary.Passive, passiveErr = e.StartAdvertisementDiscovery(ctx, duration)
			if passiveErr != nil {
				e.logger.Warn("passive discovery failed", "error", passiveErr)
			}
			return nil
		})
	}
	if mode == ModeHTTP || mode == ModeBoth {
		g.Go(func() error {
			summary.Active, activeErr = e.ScanSubnet(ctx, "", 0)
			if activeErr != nil {
				e.logger.Warn("active discovery failed", "error", activeErr)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // strategies report through passiveErr/activeErr

	var err error
	switch mode {
	case ModeMDNS:
		err = passiveErr
	case ModeHTTP:
		err = activeErr
	case ModeBoth:
		if passiveErr != nil && activeErr != nil {
			err = errors.Join(passiveErr, activeErr)
		}
	}

	devices, listErr := e.ListDevices(ctx, true)
	if listErr != nil && err == nil {
		err = listErr
	}
	summary.Devices = devices
	summary.Duration = e.now().Sub(start).Round(time.Millisecond).String()

	e.logger.Info("discovery finished",
		"mode", mode,
		"passive", summary.Passive,
		"active", summary.Active,
		"devices", len(devices),
	)
	return summary, err
}
