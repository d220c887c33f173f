// Package sim is a stand-in QNOB knob that speaks the device line protocol
// over TCP, for running the bridge without hardware.
package sim

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mbocsi/qnob/proto"
)

const dumpEnd = "=== " + proto.ConfigDumpEnd + " ==="

// Knob accepts bridge connections and keeps the state a real knob would:
// its setpoint, the play/pause indicator and the EEPROM values.
type Knob struct {
	Addr string

	mu       sync.Mutex
	name     string
	setpoint int
	playing  bool
	eeprom   map[string]string
	received []string
	conns    map[string]net.Conn
	listener net.Listener
}

func NewKnob(addr, name string) *Knob {
	return &Knob{
		Addr:     addr,
		name:     name,
		setpoint: 50,
		eeprom: map[string]string{
			"deviceName":  name,
			"useStaticIP": "0",
		},
		conns: make(map[string]net.Conn),
	}
}

// Listen binds the listener without serving, so callers can read the bound
// address before Serve.
func (k *Knob) Listen() error {
	l, err := net.Listen("tcp", k.Addr)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.listener = l
	k.mu.Unlock()
	return nil
}

// ListenAddr is the bound address, or nil before Listen.
func (k *Knob) ListenAddr() net.Addr {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.listener == nil {
		return nil
	}
	return k.listener.Addr()
}

func (k *Knob) Start() error {
	if err := k.Listen(); err != nil {
		return err
	}
	return k.Serve()
}

// Serve accepts connections until Shutdown.
func (k *Knob) Serve() error {
	k.mu.Lock()
	l := k.listener
	k.mu.Unlock()
	if l == nil {
		return fmt.Errorf("knob is not listening")
	}
	slog.Info("Simulated knob listening", "addr", l.Addr().String(), "name", k.Name())

	for {
		conn, err := l.Accept()
		if err != nil {
			return err // listener closed
		}
		go k.handleConnection(conn)
	}
}

func (k *Knob) Shutdown() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id, c := range k.conns {
		c.Close()
		delete(k.conns, id)
	}
	if k.listener == nil {
		return nil
	}
	return k.listener.Close()
}

func (k *Knob) handleConnection(c net.Conn) {
	id := uuid.NewString()[:8]
	slog.Info("Bridge connected to knob", "addr", c.RemoteAddr().String(), "id", id)

	k.mu.Lock()
	k.conns[id] = c
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		delete(k.conns, id)
		k.mu.Unlock()
		c.Close()
		slog.Info("Bridge disconnected from knob", "id", id)
	}()

	reader := bufio.NewScanner(c)
	for reader.Scan() {
		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}
		for _, reply := range k.handle(line) {
			if _, err := c.Write([]byte(proto.FrameLine(reply))); err != nil {
				slog.Warn("Knob write failed", "id", id, "error", err)
				return
			}
		}
	}
	if err := reader.Err(); err != nil {
		slog.Warn("Knob connection error", "id", id, "error", err)
	}
}

// handle applies one command and returns the lines to answer with.
func (k *Knob) handle(line string) []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.received = append(k.received, line)
	slog.Debug("Knob received", "line", line)

	cmd, args, _ := strings.Cut(line, ":")
	switch {
	case line == proto.CmdGetDeviceName:
		return []string{k.name}

	case strings.HasPrefix(line, "setpoint="):
		v, err := proto.ParseSetpoint(strings.TrimPrefix(line, "setpoint="))
		if err != nil {
			return []string{"[warn] " + err.Error()}
		}
		k.setpoint = v

	case line == string(proto.MediaPlay):
		k.playing = true
	case line == string(proto.MediaPause):
		k.playing = false
	case line == string(proto.MediaForward), line == string(proto.MediaRewind):

	case line == proto.CmdListEEPROM:
		keys := make([]string, 0, len(k.eeprom))
		for key := range k.eeprom {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		out := make([]string, 0, len(keys)+1)
		for _, key := range keys {
			out = append(out, key+"="+k.eeprom[key])
		}
		return append(out, dumpEnd)

	case cmd == "setDeviceName":
		k.name = args
		k.eeprom["deviceName"] = args

	case cmd == "connectWifi":
		parts := strings.Split(args, ":")
		if len(parts) != 3 {
			return []string{"[warn] malformed connectWifi"}
		}
		slot, err := strconv.Atoi(parts[2])
		if err != nil || slot < 0 || slot >= proto.WifiSlots {
			return []string{"[warn] bad wifi slot " + parts[2]}
		}
		k.eeprom["wifiSSID"+parts[2]] = parts[0]

	case cmd == "configureStaticIP":
		parts := strings.Split(args, ":")
		if len(parts) != 5 {
			return []string{"[warn] malformed configureStaticIP"}
		}
		for i, key := range []string{"staticIP", "gateway", "subnet", "dns1", "dns2"} {
			k.eeprom[key] = parts[i]
		}

	case line == proto.CmdEnableStaticIP:
		k.eeprom["useStaticIP"] = "1"
	case line == proto.CmdDisableStaticIP:
		k.eeprom["useStaticIP"] = "0"

	case cmd == "configureSoundMQTTServer":
		parts := strings.Split(args, ":")
		if len(parts) != 4 {
			return []string{"[warn] malformed configureSoundMQTTServer"}
		}
		k.eeprom["mqttServer"] = parts[0]
		k.eeprom["mqttPort"] = parts[1]
		k.eeprom["mqttUser"] = parts[2]

	default:
		return []string{"[warn] unknown command " + line}
	}
	return nil
}

// Turn moves the knob and reports the new setpoint to every connected bridge.
func (k *Knob) Turn(v int) error {
	if v < 0 || v > 100 {
		return fmt.Errorf("setpoint %d out of range", v)
	}
	k.mu.Lock()
	k.setpoint = v
	k.mu.Unlock()
	k.Broadcast("setpoint=" + strconv.Itoa(v))
	return nil
}

// Press flips the play/pause indicator and reports it.
func (k *Knob) Press() {
	k.mu.Lock()
	k.playing = !k.playing
	state := "paused"
	if k.playing {
		state = "playing"
	}
	k.mu.Unlock()
	k.Broadcast(state)
}

// Broadcast writes a raw line to every connected bridge.
func (k *Knob) Broadcast(line string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for id, c := range k.conns {
		if _, err := c.Write([]byte(proto.FrameLine(line))); err != nil {
			slog.Warn("Knob broadcast failed", "id", id, "error", err)
		}
	}
}

func (k *Knob) Name() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.name
}

func (k *Knob) Setpoint() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.setpoint
}

func (k *Knob) Playing() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.playing
}

func (k *Knob) Connections() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.conns)
}

// Received returns every command line the knob has seen.
func (k *Knob) Received() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.received...)
}

func (k *Knob) EEPROM() map[string]string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[string]string, len(k.eeprom))
	for key, v := range k.eeprom {
		out[key] = v
	}
	return out
}
