package transport

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestSubnetHosts(t *testing.T) {
	hosts, err := SubnetHosts(net.ParseIP("192.168.1.37"))
	if err != nil {
		t.Fatal(err)
	}
	if len(hosts) != 254 {
		t.Fatalf("Expected 254 hosts, got %d", len(hosts))
	}
	if hosts[0] != "192.168.1.1" || hosts[253] != "192.168.1.254" {
		t.Errorf("Unexpected range %s..%s", hosts[0], hosts[253])
	}

	if _, err := SubnetHosts(net.ParseIP("::1")); err == nil {
		t.Error("Expected IPv6 address to be rejected")
	}
}

func TestScanHosts_FindsListener(t *testing.T) {
	l, port := listen(t)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	found, err := ScanHosts(context.Background(), []string{"127.0.0.2", "127.0.0.1"}, port, 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0] != "127.0.0.1" {
		t.Errorf("Expected only 127.0.0.1, got %v", found)
	}
}
