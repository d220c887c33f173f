package audio

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	mprisPrefix     = "org.mpris.MediaPlayer2."
	mprisPath       = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisRoot       = "org.mpris.MediaPlayer2"
	mprisPlayer     = "org.mpris.MediaPlayer2.Player"
	propertiesGet   = "org.freedesktop.DBus.Properties.Get"
	listNamesMethod = "org.freedesktop.DBus.ListNames"
	statusPlaying   = "Playing"
)

// MPRIS drives whichever MPRIS player is active on the session bus. A playing
// player wins over a paused one.
type MPRIS struct {
	conn *dbus.Conn
}

func NewMPRIS() (*MPRIS, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &MPRIS{conn: conn}, nil
}

func (m *MPRIS) Close() error {
	return m.conn.Close()
}

func (m *MPRIS) players(ctx context.Context) ([]string, error) {
	var names []string
	if err := m.conn.BusObject().CallWithContext(ctx, listNamesMethod, 0).Store(&names); err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	var players []string
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			players = append(players, name)
		}
	}
	sort.Strings(players)
	return players, nil
}

func (m *MPRIS) property(ctx context.Context, bus, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := m.conn.Object(bus, mprisPath).CallWithContext(ctx, propertiesGet, 0, iface, prop).Store(&v)
	return v, err
}

type mprisCandidate struct {
	bus     string
	name    string
	playing bool
}

func (m *MPRIS) active(ctx context.Context) (mprisCandidate, error) {
	players, err := m.players(ctx)
	if err != nil {
		return mprisCandidate{}, err
	}
	if len(players) == 0 {
		return mprisCandidate{}, ErrNoPlayer
	}

	var first *mprisCandidate
	for _, bus := range players {
		c := mprisCandidate{bus: bus, name: strings.TrimPrefix(bus, mprisPrefix)}
		if v, err := m.property(ctx, bus, mprisRoot, "Identity"); err == nil {
			if s, ok := v.Value().(string); ok && s != "" {
				c.name = s
			}
		}
		if v, err := m.property(ctx, bus, mprisPlayer, "PlaybackStatus"); err == nil {
			c.playing = v.Value() == statusPlaying
		}
		if c.playing {
			return c, nil
		}
		if first == nil {
			first = &c
		}
	}
	return *first, nil
}

func (m *MPRIS) State(ctx context.Context) (MediaState, error) {
	c, err := m.active(ctx)
	if err == ErrNoPlayer {
		return MediaState{}, nil
	}
	if err != nil {
		return MediaState{}, err
	}
	return MediaState{Playing: c.playing, Player: c.name}, nil
}

func (m *MPRIS) call(ctx context.Context, method string) error {
	c, err := m.active(ctx)
	if err != nil {
		return err
	}
	if call := m.conn.Object(c.bus, mprisPath).CallWithContext(ctx, mprisPlayer+"."+method, 0); call.Err != nil {
		return fmt.Errorf("%s on %s: %w", method, c.name, call.Err)
	}
	return nil
}

func (m *MPRIS) PlayPause(ctx context.Context) error { return m.call(ctx, "PlayPause") }

func (m *MPRIS) Next(ctx context.Context) error { return m.call(ctx, "Next") }

func (m *MPRIS) Previous(ctx context.Context) error { return m.call(ctx, "Previous") }
