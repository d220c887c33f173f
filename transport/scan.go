package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultScanTimeout = 100 * time.Millisecond
	scanWorkers        = 64
)

// LocalIPv4 returns the address the host would use for outbound traffic. No
// packet is sent.
func LocalIPv4() (net.IP, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.To4() == nil {
		return nil, errors.New("no local IPv4 address")
	}
	return addr.IP.To4(), nil
}

// SubnetHosts lists .1 to .254 of the /24 containing ip.
func SubnetHosts(ip net.IP) ([]string, error) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	hosts := make([]string, 0, 254)
	for i := 1; i < 255; i++ {
		hosts = append(hosts, net.IPv4(v4[0], v4[1], v4[2], byte(i)).String())
	}
	return hosts, nil
}

// ScanHosts returns the hosts accepting TCP connections on port, sorted.
func ScanHosts(ctx context.Context, hosts []string, port int, timeout time.Duration) ([]string, error) {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	var (
		mu    sync.Mutex
		found []string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)

	for _, host := range hosts {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d := net.Dialer{Timeout: timeout}
			conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
			if err != nil {
				return nil
			}
			conn.Close()

			mu.Lock()
			found = append(found, host)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(found)
	return found, nil
}

// ScanSubnet scans the local /24 for devices listening on port.
func ScanSubnet(ctx context.Context, port int, timeout time.Duration) ([]string, error) {
	ip, err := LocalIPv4()
	if err != nil {
		return nil, fmt.Errorf("determine local address: %w", err)
	}
	hosts, err := SubnetHosts(ip)
	if err != nil {
		return nil, err
	}
	slog.Info("Scanning subnet", "local", ip.String(), "port", port, "hosts", len(hosts))
	return ScanHosts(ctx, hosts, port, timeout)
}
