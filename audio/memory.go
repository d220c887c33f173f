package audio

import (
	"context"
	"sync"
)

// Memory is an in-process host used by the simulator mode and by tests. Set
// the *Err fields to make the matching calls fail.
type Memory struct {
	mu     sync.Mutex
	volume int
	state  MediaState
	calls  []string

	VolumeErr error
	SetErr    error
	MediaErr  error
	// TogglesIgnored makes PlayPause succeed without changing state, like a
	// player that swallowed the key.
	TogglesIgnored bool
}

func NewMemory(volume int, state MediaState) *Memory {
	return &Memory{volume: clamp(volume), state: state}
}

func (m *Memory) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *Memory) Volume(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.VolumeErr != nil {
		return 0, m.VolumeErr
	}
	return m.volume, nil
}

func (m *Memory) SetVolume(_ context.Context, percent int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("set_volume")
	if m.SetErr != nil {
		return m.SetErr
	}
	m.volume = clamp(percent)
	return nil
}

// Move changes the volume as if the user turned it on the host.
func (m *Memory) Move(percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = clamp(percent)
}

func (m *Memory) State(context.Context) (MediaState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MediaErr != nil {
		return MediaState{}, m.MediaErr
	}
	return m.state, nil
}

// SetState replaces the player state as if it changed on the host.
func (m *Memory) SetState(s MediaState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *Memory) PlayPause(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("play_pause")
	if m.MediaErr != nil {
		return m.MediaErr
	}
	if !m.state.Detected() {
		return ErrNoPlayer
	}
	if !m.TogglesIgnored {
		m.state.Playing = !m.state.Playing
	}
	return nil
}

func (m *Memory) Next(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("next")
	return m.MediaErr
}

func (m *Memory) Previous(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("previous")
	return m.MediaErr
}

// Calls lists the mutating calls made so far.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Count returns how many times call was made.
func (m *Memory) Count(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}
