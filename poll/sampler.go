// Package poll turns host state into change events with fixed-period samplers.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/qnob/audio"
)

const (
	DefaultVolumePeriod = 100 * time.Millisecond
	DefaultMediaPeriod  = 2 * time.Second
)

// Sampler reads a value every Period and emits it only when it differs from
// the last sample. The last sample is the single authority for "changed".
type Sampler[T comparable] struct {
	Name   string
	Period time.Duration

	sample func(context.Context) (T, error)
	emit   func(T)

	mu      sync.Mutex
	last    T
	have    bool
	failing bool
}

func New[T comparable](name string, period time.Duration, sample func(context.Context) (T, error), emit func(T)) *Sampler[T] {
	return &Sampler[T]{Name: name, Period: period, sample: sample, emit: emit}
}

func NewVolume(vc audio.VolumeController, period time.Duration, emit func(int)) *Sampler[int] {
	if period == 0 {
		period = DefaultVolumePeriod
	}
	return New("volume", period, vc.Volume, emit)
}

func NewMedia(mc audio.MediaController, period time.Duration, emit func(audio.MediaState)) *Sampler[audio.MediaState] {
	if period == 0 {
		period = DefaultMediaPeriod
	}
	return New("media", period, mc.State, emit)
}

// Seed sets the last sample without emitting, so a value already known to the
// consumer is not reported as a change.
func (s *Sampler[T]) Seed(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last, s.have = v, true
}

func (s *Sampler[T]) Last() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.have
}

// Tick takes one sample and reports whether it was emitted.
func (s *Sampler[T]) Tick(ctx context.Context) bool {
	v, err := s.sample(ctx)

	s.mu.Lock()
	if err != nil {
		first := !s.failing
		s.failing = true
		s.mu.Unlock()
		if first {
			slog.Warn("Sampling failed", "source", s.Name, "error", err)
		}
		return false
	}
	if s.failing {
		slog.Info("Sampling recovered", "source", s.Name)
	}
	s.failing = false
	if s.have && v == s.last {
		s.mu.Unlock()
		return false
	}
	s.last, s.have = v, true
	s.mu.Unlock()

	s.emit(v)
	return true
}

// Run samples until ctx is cancelled.
func (s *Sampler[T]) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()
	slog.Debug("Sampler started", "source", s.Name, "period", s.Period)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Sampler stopped", "source", s.Name)
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
