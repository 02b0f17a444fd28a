package discovery

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"runtime"
	"strings"
	"time"
)

// arpTablePath is the Linux kernel's IPv4 neighbour table.
const arpTablePath = "/proc/net/arp"

// incompleteMAC marks ARP entries still being resolved.
const incompleteMAC = "00:00:00:00:00:00"

const reverseLookupTimeout = time.Second

// outboundIP returns the local address used to reach the internet. No
// packet is sent; a UDP dial only selects a route.
func outboundIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return nil, errors.New("no IPv4 outbound address")
	}
	return addr.IP.To4(), nil
}

// reverseLookup returns the first PTR name for ip, or "".
func reverseLookup(ctx context.Context, ip string) string {
	ctx, cancel := context.WithTimeout(ctx, reverseLookupTimeout)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// systemARPTable reads the kernel neighbour table. Only Linux exposes it;
// elsewhere MACs stay unknown.
func systemARPTable() map[string]string {
	if runtime.GOOS != "linux" {
		return nil
	}
	f, err := os.Open(arpTablePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	return parseARPTable(f)
}

// parseARPTable maps IP to MAC from /proc/net/arp content:
//
//	IP address       HW type     Flags       HW address            Mask     Device
//	192.168.1.50     0x1         0x2         00:05:cd:aa:bb:cc     *        eth0
func parseARPTable(r io.Reader) map[string]string {
	table := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || net.ParseIP(fields[0]) == nil {
			continue // header or junk
		}
		mac := strings.ToLower(fields[3])
		if mac == incompleteMAC {
			continue
		}
		table[fields[0]] = mac
	}
	return table
}
