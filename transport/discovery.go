package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/mdns"
)

const DefaultMDNSService = "_qnob._tcp"

// Discovered is one device answering an mDNS query.
type Discovered struct {
	Name string   `json:"name"`
	Host string   `json:"host"`
	Port int      `json:"port"`
	Info []string `json:"info,omitempty"`
}

// Discover browses the local network for service and returns every answer
// received before timeout.
func Discover(ctx context.Context, service string, timeout time.Duration) ([]Discovered, error) {
	if service == "" {
		service = DefaultMDNSService
	}
	if timeout == 0 {
		timeout = 2 * time.Second
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	results := make(chan []Discovered, 1)
	go func() {
		var found []Discovered
		for entry := range entries {
			var host string
			switch {
			case entry.AddrV4 != nil:
				host = entry.AddrV4.String()
			case entry.AddrV6 != nil:
				host = entry.AddrV6.String()
			default:
				continue
			}
			found = append(found, Discovered{Name: entry.Name, Host: host, Port: entry.Port, Info: entry.InfoFields})
			slog.Info("Discovered device", "name", entry.Name, "host", host, "port", entry.Port)
		}
		results <- found
	}()

	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	errCh := make(chan error, 1)
	go func() {
		errCh <- mdns.Query(params)
		close(entries)
	}()

	select {
	case err := <-errCh:
		found := <-results
		if err != nil {
			return found, fmt.Errorf("mdns query %s: %w", service, err)
		}
		return found, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
