package discovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/nerrad567/avr-control/internal/registry"
)

// Browser browses one mDNS service type. It sends entries until ctx ends
// and then closes the channel, also when Browse itself fails.
// *zeroconf.Resolver implements it.
type Browser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// BrowserFactory creates a Browser. Each service type gets its own, since
// a zeroconf resolver serves one browse at a time.
type BrowserFactory func() (Browser, error)

// advertisementQueue bounds entries waiting to be recorded.
const advertisementQueue = 64

// NewZeroconfBrowser creates a resolver on all multicast interfaces.
func NewZeroconfBrowser() (Browser, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// StartAdvertisementDiscovery listens for mDNS advertisements of the
// configured service types for exactly duration, recording every IPv4
// address advertised as a passive sighting. It returns the number of
// sightings recorded; zero is a normal result. ErrMDNSUnavailable means
// no listener could be started at all.
//
// Entries are recorded from a queue so identification never stalls a
// resolver. Every resolver is drained until it closes its channel, which
// is when it has released its sockets.
func (e *Engine) StartAdvertisementDiscovery(ctx context.Context, duration time.Duration) (int, error) {
	browseCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	queue := make(chan *zeroconf.ServiceEntry, advertisementQueue)
	recorded := make(chan int, 1)
	go func() {
		n := 0
		for entry := range queue {
			n += e.recordAdvertisement(ctx, entry)
		}
		recorded <- n
	}()

	var (
		listeners sync.WaitGroup
		started   int
	)

	for _, service := range e.opts.ServiceTypes {
		browser, err := e.newBrowser()
		if err != nil {
			e.logger.Warn("mdns resolver unavailable", "service", service, "error", err)
			continue
		}

		entries := make(chan *zeroconf.ServiceEntry)
		listeners.Add(1)
		go func() {
			defer listeners.Done()
			drainAdvertisements(browseCtx, entries, queue)
		}()

		if err := browser.Browse(browseCtx, service, e.opts.Domain, entries); err != nil {
			e.logger.Warn("mdns browse failed", "service", service, "error", err)
			continue
		}
		started++
	}

	if started == 0 {
		cancel()
	}
	<-browseCtx.Done()
	listeners.Wait()
	close(queue)
	count := <-recorded

	if started == 0 {
		return 0, ErrMDNSUnavailable
	}

	e.logger.Info("passive discovery finished",
		"duration", duration,
		"services", started,
		"sightings", count,
	)
	return count, nil
}

// drainAdvertisements reads entries until the browser closes them. Entries
// arriving after the window are discarded.
func drainAdvertisements(ctx context.Context, entries <-chan *zeroconf.ServiceEntry, queue chan<- *zeroconf.ServiceEntry) {
	for entry := range entries {
		if ctx.Err() != nil {
			continue
		}
		select {
		case queue <- entry:
		case <-ctx.Done():
		}
	}
}

// recordAdvertisement records each IPv4 address of an entry and returns
// how many were recorded.
func (e *Engine) recordAdvertisement(ctx context.Context, entry *zeroconf.ServiceEntry) int {
	if entry == nil {
		return 0
	}

	hostname := strings.TrimSuffix(entry.HostName, ".")
	recorded := 0
	for _, ip := range entry.AddrIPv4 {
		_, err := e.RecordSighting(ctx, Sighting{
			Address:      ip.String(),
			Port:         entry.Port,
			Hostname:     hostname,
			FriendlyName: unescapeInstance(entry.Instance),
			Method:       registry.MethodPassive,
		})
		if err != nil {
			e.logger.Warn("recording advertisement failed", "address", ip.String(), "error", err)
			continue
		}
		recorded++
	}
	return recorded
}

// unescapeInstance removes DNS-SD escaping ("Living\ Room" -> "Living Room").
func unescapeInstance(instance string) string {
	return strings.ReplaceAll(instance, `\`, "")
}
