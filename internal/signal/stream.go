package signal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/logging"
)

// maxBuffered caps how many packets a stream keeps while nobody reads.
// Older packets are dropped first.
const maxBuffered = 4096

// StreamOptions configure a CSV stream.
type StreamOptions struct {
	SampleRate int
	PacketSize int
	// Channel is the zero-based column to read from each row.
	Channel int
}

// Stream reads comma-separated sample rows from a reader, one row per
// sample instant and one column per electrode, and groups the selected
// column into packets.
type Stream struct {
	opts   StreamOptions
	rc     io.ReadCloser
	logger *logging.Logger

	mu      sync.Mutex
	packets []Packet
	dropped int
	err     error
	ready   chan struct{}
	done    chan struct{}
}

// Dial connects to a CSV sample server at addr.
func Dial(ctx context.Context, addr string, opts StreamOptions, logger *logging.Logger) (*Stream, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperrors.NewSignalError(fmt.Sprintf("dial %s", addr), err).WithSource("tcp")
	}
	return NewStream(conn, opts, logger), nil
}

// NewStream starts reading rows from rc in the background.
func NewStream(rc io.ReadCloser, opts StreamOptions, logger *logging.Logger) *Stream {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.PacketSize <= 0 {
		opts.PacketSize = 1
	}
	s := &Stream{
		opts:   opts,
		rc:     rc,
		logger: logger,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.read()
	return s
}

func (s *Stream) read() {
	r := csv.NewReader(s.rc)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.TrimLeadingSpace = true

	buf := make([]float64, 0, s.opts.PacketSize)
	line := 0
	for {
		rec, err := r.Read()
		if err != nil {
			s.finish(err)
			return
		}
		line++
		if s.opts.Channel >= len(rec) {
			s.finish(fmt.Errorf("row %d has %d columns, want channel %d", line, len(rec), s.opts.Channel))
			return
		}
		v, err := strconv.ParseFloat(rec[s.opts.Channel], 64)
		if err != nil {
			s.finish(fmt.Errorf("row %d: %w", line, err))
			return
		}
		buf = append(buf, v)
		if len(buf) == s.opts.PacketSize {
			s.push(Packet{Samples: buf, At: time.Now()})
			buf = make([]float64, 0, s.opts.PacketSize)
		}
	}
}

func (s *Stream) push(p Packet) {
	s.mu.Lock()
	if len(s.packets) == maxBuffered {
		s.packets = s.packets[1:]
		s.dropped++
	}
	s.packets = append(s.packets, p)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *Stream) finish(err error) {
	if errors.Is(err, io.EOF) {
		err = io.EOF
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.done)
	if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("signal stream stopped", "error", err)
	}
}

func (s *Stream) pop() (Packet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.packets) == 0 {
		return Packet{}, false
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, true
}

// Next implements Source. Once the underlying reader fails, buffered packets
// are still returned before the error.
func (s *Stream) Next(ctx context.Context) (Packet, error) {
	for {
		if p, ok := s.pop(); ok {
			return p, nil
		}
		select {
		case <-s.ready:
		case <-s.done:
			if p, ok := s.pop(); ok {
				return p, nil
			}
			s.mu.Lock()
			err := s.err
			s.mu.Unlock()
			return Packet{}, apperrors.NewSignalError("stream ended", err).WithSource("tcp")
		case <-ctx.Done():
			return Packet{}, ctx.Err()
		}
	}
}

// SampleRate implements Source.
func (s *Stream) SampleRate() int { return s.opts.SampleRate }

// Flush implements Source.
func (s *Stream) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = nil
}

// Dropped returns how many packets were discarded because nobody read them.
func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops the stream.
func (s *Stream) Close() error {
	return s.rc.Close()
}
