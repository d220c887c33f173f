// Package audio holds the host collaborators the bridge drives: the system
// output volume and the active media player.
package audio

import (
	"context"
	"errors"
)

// ErrNoPlayer is returned by media controllers when no player is running.
var ErrNoPlayer = errors.New("no media player detected")

type VolumeController interface {
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, percent int) error
}

// MediaState is one sample of the active player.
type MediaState struct {
	Playing bool   `json:"playing"`
	Player  string `json:"player"`
}

func (s MediaState) Detected() bool { return s.Player != "" }

type MediaController interface {
	State(ctx context.Context) (MediaState, error)
	PlayPause(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
