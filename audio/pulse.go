package audio

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

const defaultSink = "@DEFAULT_SINK@"

var percentPattern = regexp.MustCompile(`(\d+)%`)

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Pulse controls the default PulseAudio/PipeWire sink through pactl.
type Pulse struct {
	Sink string
	run  Runner
}

func NewPulse() *Pulse {
	return &Pulse{Sink: defaultSink, run: execRunner}
}

func NewPulseWithRunner(run Runner) *Pulse {
	return &Pulse{Sink: defaultSink, run: run}
}

// Volume reports the first channel's volume of the sink.
func (p *Pulse) Volume(ctx context.Context) (int, error) {
	out, err := p.run(ctx, "pactl", "get-sink-volume", p.Sink)
	if err != nil {
		return 0, fmt.Errorf("pactl get-sink-volume: %w", err)
	}
	m := percentPattern.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("pactl get-sink-volume: no percentage in %q", out)
	}
	v, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return 0, err
	}
	return clamp(v), nil
}

func (p *Pulse) SetVolume(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("volume %d out of range", percent)
	}
	if _, err := p.run(ctx, "pactl", "set-sink-volume", p.Sink, strconv.Itoa(percent)+"%"); err != nil {
		return fmt.Errorf("pactl set-sink-volume: %w", err)
	}
	return nil
}
