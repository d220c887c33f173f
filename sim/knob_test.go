package sim

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mbocsi/qnob/audio"
	"github.com/mbocsi/qnob/bridge"
	"github.com/mbocsi/qnob/broker"
	"github.com/mbocsi/qnob/transport"
)

func startKnob(t *testing.T) *Knob {
	t.Helper()
	k := NewKnob("127.0.0.1:0", "QNOB-Sim")
	if err := k.Listen(); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go k.Serve()
	t.Cleanup(func() { k.Shutdown() })
	return k
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestKnobCommands(t *testing.T) {
	k := startKnob(t)

	conn, err := net.Dial("tcp", k.ListenAddr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)
	readLine := func() string {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		return strings.TrimSpace(line)
	}

	conn.Write([]byte("getDeviceName\n"))
	if got := readLine(); got != "QNOB-Sim" {
		t.Errorf("Expected device name, got %q", got)
	}

	conn.Write([]byte("setpoint=33\nplay\nsetDeviceName:Desk\nconnectWifi:home:pw:1\n"))
	eventually(t, "commands applied", func() bool { return len(k.Received()) == 5 })
	if k.Setpoint() != 33 || !k.Playing() || k.Name() != "Desk" {
		t.Errorf("Unexpected knob state setpoint=%d playing=%v name=%s", k.Setpoint(), k.Playing(), k.Name())
	}

	conn.Write([]byte("listEEPROMValues\n"))
	want := []string{"deviceName=Desk", "useStaticIP=0", "wifiSSID1=home", dumpEnd}
	for _, w := range want {
		if got := readLine(); got != w {
			t.Errorf("Expected %q, got %q", w, got)
		}
	}

	conn.Write([]byte("bogus\n"))
	if got := readLine(); !strings.HasPrefix(got, "[warn]") {
		t.Errorf("Expected a bracketed warning, got %q", got)
	}
}

func TestKnobTurnRejectsOutOfRange(t *testing.T) {
	k := NewKnob("127.0.0.1:0", "QNOB-Sim")
	if err := k.Turn(101); err == nil {
		t.Error("Expected error for out of range setpoint")
	}
	if k.Setpoint() != 50 {
		t.Errorf("Expected setpoint unchanged, got %d", k.Setpoint())
	}
}

type idleSession struct {
	queue *broker.Queue
}

func (s *idleSession) Connect(context.Context, broker.Settings) error { return nil }
func (s *idleSession) Publish(string, string) error                   { return nil }
func (s *idleSession) Disconnect()                                    {}
func (s *idleSession) Queue() *broker.Queue                           { return s.queue }
func (s *idleSession) Meta() transport.Metadata                       { return transport.Metadata{} }

func TestBridgeAgainstSimulatedKnob(t *testing.T) {
	k := startKnob(t)
	host := audio.NewMemory(40, audio.MediaState{})
	coord := bridge.NewCoordinator(bridge.Settings{VolumePeriod: 10 * time.Millisecond, MediaPeriod: time.Hour},
		host, host, &idleSession{queue: broker.NewQueue()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	addr := k.ListenAddr().(*net.TCPAddr)
	if err := coord.ConnectDevice(ctx, transport.KindTCP, transport.NewTCP("127.0.0.1", addr.Port)); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	eventually(t, "knob connection", func() bool { return k.Connections() == 1 })

	// Knob turn drives the PC volume without being echoed back.
	if err := k.Turn(30); err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	eventually(t, "host volume 30", func() bool {
		v, _ := host.Volume(ctx)
		return v == 30
	})
	// Let the settle check close the suppression window.
	time.Sleep(300 * time.Millisecond)
	for _, line := range k.Received() {
		if line == "setpoint=30" {
			t.Error("Expected the knob's own setpoint not echoed back")
		}
	}

	// A change made on the PC reaches the knob.
	host.Move(55)
	eventually(t, "knob setpoint 55", func() bool { return k.Setpoint() == 55 })
}
