package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/avr-control/internal/catalog"
	"github.com/nerrad567/avr-control/internal/registry"
	"github.com/nerrad567/avr-control/internal/request"
)

// Defaults for Options fields left zero.
const (
	DefaultScanPort        = 80
	DefaultScanTimeout     = 500 * time.Millisecond
	DefaultIdentifyTimeout = 2 * time.Second
	DefaultParallelism     = 32
	DefaultDomain          = "local."
)

// DefaultServiceTypes are the mDNS service types AV receivers advertise.
var DefaultServiceTypes = []string{
	"_http._tcp",
	"_device-info._tcp",
	"_airplay._tcp",
	"_raop._tcp",
}

// Logger defines the logging interface used by the Engine.
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

// ModelLookup is the catalog query identification needs.
type ModelLookup interface {
	FindModel(ctx context.Context, manufacturer, name string) (*catalog.ReceiverModel, error)
}

// Notifier is told about registry changes made by the engine.
type Notifier interface {
	DeviceSighted(device registry.Device, created bool)
	DevicesExpired(count int)
}

// Options configure an Engine.
type Options struct {
	ScanPort        int
	ScanTimeout     time.Duration
	IdentifyTimeout time.Duration
	Parallelism     int

	// Subnet is scanned when ScanSubnet is called without one. Empty
	// means detect from the outbound interface.
	Subnet string

	ServiceTypes []string
	Domain       string
}

func (o *Options) applyDefaults() {
	if o.ScanPort <= 0 {
		o.ScanPort = DefaultScanPort
	}
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = DefaultScanTimeout
	}
	if o.IdentifyTimeout <= 0 {
		o.IdentifyTimeout = DefaultIdentifyTimeout
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	if len(o.ServiceTypes) == 0 {
		o.ServiceTypes = DefaultServiceTypes
	}
	if o.Domain == "" {
		o.Domain = DefaultDomain
	}
}

// Sighting is one observation of a device address.
type Sighting struct {
	Address      string
	Port         int
	Hostname     string
	MAC          string
	FriendlyName string
	Method       registry.Method
}

// Engine runs discovery and owns every registry mutation.
//
// Thread Safety: all methods are safe for concurrent use. Registry writes
// are serialised by a single mutex; network calls happen outside it.
type Engine struct {
	repo   registry.Repository
	models ModelLookup
	opts   Options

	mu sync.Mutex // serialises registry mutation

	doer        request.Doer
	newBrowser  BrowserFactory
	identifiers []Identifier
	arpTable    func() map[string]string
	lookupHost  func(ctx context.Context, ip string) string
	localIP     func() (net.IP, error)
	notifier    Notifier
	logger      Logger
	now         func() time.Time
}

// NewEngine creates a discovery engine writing to repo and identifying
// devices against models.
func NewEngine(repo registry.Repository, models ModelLookup, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		repo:        repo,
		models:      models,
		opts:        opts,
		doer:        request.NewHTTPClient(),
		newBrowser:  NewZeroconfBrowser,
		identifiers: []Identifier{DenonIdentifier{}},
		arpTable:    systemARPTable,
		lookupHost:  reverseLookup,
		localIP:     outboundIP,
		logger:      noopLogger{},
		now:         time.Now,
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetNotifier sets the receiver of registry change events. Nil disables it.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetDoer replaces the HTTP transport used for subnet scans and identification.
func (e *Engine) SetDoer(d request.Doer) {
	e.doer = d
}

// SetBrowserFactory replaces the mDNS browser constructor.
func (e *Engine) SetBrowserFactory(f BrowserFactory) {
	e.newBrowser = f
}

// SetIdentifiers replaces the identification strategies. They run in order
// and the first hint wins.
func (e *Engine) SetIdentifiers(ids ...Identifier) {
	e.identifiers = ids
}

// SetClock replaces time.Now.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// RecordSighting merges one sighting into the registry.
//
// A known address is re-activated and its LastSeen advanced; hostname, MAC
// and port are only replaced by non-empty values. A new address is
// identified and inserted. Identification runs without the lock, so the
// address is looked up again before inserting.
//
// Returns the stored device.
func (e *Engine) RecordSighting(ctx context.Context, s Sighting) (*registry.Device, error) {
	ip := net.ParseIP(s.Address)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: address %q", ErrInvalidSighting, s.Address)
	}
	s.Address = ip.To4().String()

	if d, handled, err := e.mergeExisting(ctx, s, nil); handled || err != nil {
		return d, err
	}

	port := s.Port
	if port == 0 {
		port = e.opts.ScanPort
	}
	model := e.Identify(ctx, s.Address, port)

	e.mu.Lock()
	defer e.mu.Unlock()

	// Another sighting may have inserted the address meanwhile.
	if d, handled, err := e.mergeExistingLocked(ctx, s, model); handled || err != nil {
		return d, err
	}

	now := e.now().UTC()
	d := &registry.Device{
		Address:      s.Address,
		Port:         s.Port,
		Hostname:     s.Hostname,
		MAC:          s.MAC,
		FriendlyName: friendlyName(s),
		Active:       true,
		LastSeen:     now,
		DiscoveredAt: now,
		Method:       s.Method,
	}
	if model != nil {
		d.ModelID = &model.ID
		d.Model = &registry.ModelRef{ID: model.ID, Manufacturer: model.Manufacturer, Name: model.Name}
	}

	if err := e.repo.UpsertDevice(ctx, d); err != nil {
		return nil, fmt.Errorf("recording %s: %w", s.Address, err)
	}

	e.logger.Info("new device discovered",
		"address", d.Address,
		"method", d.Method,
		"identified", model != nil,
	)
	e.notifySighted(d, true)
	return d, nil
}

func (e *Engine) mergeExisting(ctx context.Context, s Sighting, model *catalog.ReceiverModel) (*registry.Device, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergeExistingLocked(ctx, s, model)
}

// mergeExistingLocked updates the stored device for s.Address if there is
// one. handled is false when the address is new. Caller holds e.mu.
func (e *Engine) mergeExistingLocked(ctx context.Context, s Sighting, model *catalog.ReceiverModel) (*registry.Device, bool, error) {
	d, err := e.repo.FindDeviceByAddress(ctx, s.Address)
	if errors.Is(err, registry.ErrDeviceNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("looking up %s: %w", s.Address, err)
	}

	d.Active = true
	d.LastSeen = e.nextSeen(d.LastSeen)
	if s.Hostname != "" {
		d.Hostname = s.Hostname
	}
	if s.MAC != "" {
		d.MAC = s.MAC
	}
	if s.Port != 0 {
		d.Port = s.Port
	}
	if d.ModelID == nil && model != nil {
		d.ModelID = &model.ID
		d.Model = &registry.ModelRef{ID: model.ID, Manufacturer: model.Manufacturer, Name: model.Name}
	}

	if err := e.repo.UpsertDevice(ctx, d); err != nil {
		return nil, true, fmt.Errorf("updating %s: %w", s.Address, err)
	}

	e.logger.Debug("device sighted again", "address", d.Address, "method", s.Method)
	e.notifySighted(d, false)
	return d, true, nil
}

// nextSeen returns now, or just after prev when the clock has not moved
// past it.
func (e *Engine) nextSeen(prev time.Time) time.Time {
	now := e.now().UTC()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func friendlyName(s Sighting) string {
	switch {
	case s.FriendlyName != "":
		return s.FriendlyName
	case s.Hostname != "":
		return s.Hostname
	default:
		return "AVR at " + s.Address
	}
}

func (e *Engine) notifySighted(d *registry.Device, created bool) {
	if e.notifier != nil {
		e.notifier.DeviceSighted(*d.DeepCopy(), created)
	}
}

// ExpireStale marks active devices not seen within maxAge as inactive and
// returns how many changed. Records are never deleted.
func (e *Engine) ExpireStale(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, ErrInvalidMaxAge
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	devices, err := e.repo.ListDevices(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("listing devices: %w", err)
	}

	cutoff := e.now().UTC().Add(-maxAge)
	var stale []string
	for _, d := range devices {
		if d.LastSeen.Before(cutoff) {
			stale = append(stale, d.ID)
		}
	}

	n, err := e.repo.MarkInactive(ctx, stale)
	if err != nil {
		return 0, fmt.Errorf("expiring devices: %w", err)
	}

	if n > 0 {
		e.logger.Info("stale devices marked inactive", "count", n, "max_age", maxAge)
		if e.notifier != nil {
			e.notifier.DevicesExpired(n)
		}
	}
	return n, nil
}

// UnknownModel marks a listing whose device was never identified.
const UnknownModel = "Unknown"

// Listing is the read projection of a discovered device.
type Listing struct {
	ID           string          `json:"id"`
	Address      string          `json:"address"`
	Port         int             `json:"port,omitempty"`
	Hostname     string          `json:"hostname,omitempty"`
	MAC          string          `json:"mac,omitempty"`
	FriendlyName string          `json:"friendly_name"`
	Model        string          `json:"model"`
	Manufacturer string          `json:"manufacturer"`
	Active       bool            `json:"active"`
	LastSeen     time.Time       `json:"last_seen"`
	Method       registry.Method `json:"discovery_method"`
}

// ListDevices returns discovered devices, most recently seen first.
func (e *Engine) ListDevices(ctx context.Context, activeOnly bool) ([]Listing, error) {
	devices, err := e.repo.ListDevices(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	listings := make([]Listing, 0, len(devices))
	for _, d := range devices {
		l := Listing{
			ID:           d.ID,
			Address:      d.Address,
			Port:         d.Port,
			Hostname:     d.Hostname,
			MAC:          d.MAC,
			FriendlyName: d.FriendlyName,
			Model:        UnknownModel,
			Manufacturer: UnknownModel,
			Active:       d.Active,
			LastSeen:     d.LastSeen,
			Method:       d.Method,
		}
		if d.Model != nil {
			l.Model = d.Model.Name
			l.Manufacturer = d.Model.Manufacturer
		}
		listings = append(listings, l)
	}
	return listings, nil
}
