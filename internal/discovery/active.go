package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/avr-control/internal/registry"
	"github.com/nerrad567/avr-control/internal/request"
)

// FallbackSubnet is scanned when no subnet is configured and the local
// address cannot be determined.
const FallbackSubnet = "192.168.1.0/24"

// maxScanBits is the largest host part scanned: 8 bits, one /24.
const maxScanBits = 8

// hitStatuses are the answers that mean "something is serving HTTP".
var hitStatuses = map[int]bool{
	http.StatusOK:               true,
	http.StatusMovedPermanently: true,
	http.StatusFound:            true,
	http.StatusUnauthorized:     true,
	http.StatusForbidden:        true,
}

// ScanSubnet tries every host address of subnet on port with GET / and
// records a sighting for each that answers. An empty subnet uses
// Options.Subnet, then the /24 of the outbound interface, then
// FallbackSubnet. A port of zero uses Options.ScanPort.
//
// Networks larger than a /24 are narrowed to the /24 of their network
// address. Returns the number of devices recorded.
func (e *Engine) ScanSubnet(ctx context.Context, subnet string, port int) (int, error) {
	network, err := e.scanTarget(subnet)
	if err != nil {
		return 0, err
	}
	if port <= 0 {
		port = e.opts.ScanPort
	}

	hosts := HostAddresses(network)
	e.logger.Info("active scan started",
		"subnet", network.String(),
		"hosts", len(hosts),
		"port", port,
		"parallelism", e.opts.Parallelism,
	)

	var (
		mu   sync.Mutex
		hits []string
	)

	g := new(errgroup.Group)
	g.SetLimit(e.opts.Parallelism)
	for _, ip := range hosts {
		if ctx.Err() != nil {
			break
		}
		addr := ip.String()
		g.Go(func() error {
			if e.answers(ctx, addr, port) {
				mu.Lock()
				hits = append(hits, addr)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	// The sweep just populated the neighbour table.
	macs := e.arpTable()

	var recorded atomic.Int64
	g = new(errgroup.Group)
	g.SetLimit(e.opts.Parallelism)
	for _, addr := range hits {
		g.Go(func() error {
			_, err := e.RecordSighting(ctx, Sighting{
				Address:  addr,
				Port:     port,
				Hostname: e.lookupHost(ctx, addr),
				MAC:      macs[addr],
				Method:   registry.MethodActiveScan,
			})
			if err != nil {
				e.logger.Warn("recording scan hit failed", "address", addr, "error", err)
				return nil
			}
			recorded.Add(1)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // errors are logged per host

	e.logger.Info("active scan finished",
		"subnet", network.String(),
		"responding", len(hits),
		"recorded", recorded.Load(),
	)
	return int(recorded.Load()), ctx.Err()
}

// answers reports whether ip:port answers GET / with a hit status.
// Transport failures are silent misses.
func (e *Engine) answers(ctx context.Context, ip string, port int) bool {
	resp, err := e.doer.Do(ctx, &request.Request{
		Method:  http.MethodGet,
		URL:     fmt.Sprintf("http://%s/", net.JoinHostPort(ip, strconv.Itoa(port))),
		Timeout: e.opts.ScanTimeout,
	})
	if err != nil {
		return false
	}
	return hitStatuses[resp.StatusCode]
}

// scanTarget picks and clamps the network to scan.
func (e *Engine) scanTarget(subnet string) (*net.IPNet, error) {
	if subnet == "" {
		subnet = e.opts.Subnet
	}
	if subnet == "" {
		ip, err := e.localIP()
		if err != nil {
			e.logger.Warn("local address unknown, using fallback subnet", "subnet", FallbackSubnet, "error", err)
			subnet = FallbackSubnet
		} else {
			subnet = fmt.Sprintf("%s/24", ip.Mask(net.CIDRMask(24, 32)))
		}
	}

	network, err := ResolveSubnet(subnet)
	if err != nil {
		return nil, err
	}
	if network.String() != subnet {
		e.logger.Debug("subnet normalised", "requested", subnet, "scanning", network.String())
	}
	return network, nil
}

// ResolveSubnet parses an IPv4 CIDR and narrows networks with more than
// 256 addresses to the /24 containing the network address.
func ResolveSubnet(subnet string) (*net.IPNet, error) {
	_, network, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSubnet, subnet)
	}
	ip4 := network.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: %q is not IPv4", ErrInvalidSubnet, subnet)
	}

	ones, bits := network.Mask.Size()
	if bits-ones > maxScanBits {
		mask := net.CIDRMask(bits-maxScanBits, bits)
		return &net.IPNet{IP: ip4.Mask(mask), Mask: mask}, nil
	}
	return &net.IPNet{IP: ip4, Mask: network.Mask}, nil
}

// HostAddresses enumerates the usable host addresses of an IPv4 network:
// every address except the network and broadcast addresses, or all of
// them for /31 and /32.
func HostAddresses(network *net.IPNet) []net.IP {
	ip4 := network.IP.To4()
	if ip4 == nil {
		return nil
	}
	ones, bits := network.Mask.Size()
	if bits != 8*net.IPv4len || bits-ones >= 32 {
		return nil
	}
	size := uint32(1) << uint(bits-ones)
	base := binary.BigEndian.Uint32(ip4.Mask(network.Mask))

	first, last := base, base+size-1
	if size > 2 {
		first++
		last--
	}

	hosts := make([]net.IP, 0, last-first+1)
	for n := first; n <= last; n++ {
		ip := make(net.IP, net.IPv4len)
		binary.BigEndian.PutUint32(ip, n)
		hosts = append(hosts, ip)
		if n == last { // avoid wrap at 255.255.255.255
			break
		}
	}
	return hosts
}
