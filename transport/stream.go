package transport

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbocsi/qnob/proto"
)

const defaultJoinTimeout = time.Second

// stream is the read loop and writer shared by the serial and TCP channels.
type stream struct {
	kind Kind

	mu   sync.Mutex
	conn io.ReadWriteCloser

	onLine       func(string)
	onDisconnect func(error)

	stopping  atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// start runs the read loop. pending lines already read from conn are delivered
// first. read must return (0, nil) when its poll timeout expires so the stop
// flag is checked every iteration.
func (s *stream) start(conn io.ReadWriteCloser, split *LineSplitter, pending []string, read func([]byte) (int, error)) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.stopping.Store(false)
	s.done = make(chan struct{})
	s.closeOnce = sync.Once{}
	s.closeErr = nil

	go s.run(split, pending, read)
}

func (s *stream) run(split *LineSplitter, pending []string, read func([]byte) (int, error)) {
	defer close(s.done)
	s.deliver(pending)
	buf := make([]byte, 1024)

	for !s.stopping.Load() {
		n, err := read(buf)
		if n > 0 {
			s.deliver(split.Feed(buf[:n]))
		}
		if err == nil {
			continue
		}
		if s.stopping.Load() {
			return
		}
		slog.Warn("Read loop ended", "transport", s.kind.String(), "error", err)
		if s.onDisconnect != nil {
			msg := "read failed"
			if errors.Is(err, io.EOF) {
				msg = "peer closed the connection"
			}
			s.onDisconnect(proto.NewError(proto.UnexpectedDisconnect, msg, err))
		}
		return
	}
}

func (s *stream) deliver(lines []string) {
	for _, line := range lines {
		slog.Debug("Line received", "transport", s.kind.String(), "line", line)
		if s.onLine != nil {
			s.onLine(line)
		}
	}
}

func (s *stream) send(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return proto.NewError(proto.ConnectionFailure, s.kind.String()+" not connected", nil)
	}
	if _, err := io.WriteString(s.conn, proto.FrameLine(line)); err != nil {
		return proto.NewError(proto.UnexpectedDisconnect, "write failed", err)
	}
	return nil
}

// stop sets the cooperative flag, waits up to join for the loop and closes the
// connection whether or not the loop exited.
func (s *stream) stop(join time.Duration) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	s.closeOnce.Do(func() {
		s.stopping.Store(true)
		select {
		case <-s.done:
		case <-time.After(join):
			slog.Warn("Read loop did not stop in time, forcing close", "transport", s.kind.String())
		}
		s.closeErr = conn.Close()

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	})
	return s.closeErr
}

func (s *stream) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}
