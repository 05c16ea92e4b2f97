package signal

import (
	"context"
	"io"
	"math"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/testutil"
)

func TestStream_Packets(t *testing.T) {
	data := "1,10\n2,20\n3,30\n4,40\n5,50\n"
	s := NewStream(io.NopCloser(strings.NewReader(data)), StreamOptions{SampleRate: 250, PacketSize: 2, Channel: 1}, nil)
	defer s.Close()

	ctx := context.Background()
	p, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 20}, p.Samples)

	p, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 40}, p.Samples)

	// The trailing half packet is never emitted.
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 250, s.SampleRate())
}

func TestStream_BadRows(t *testing.T) {
	tests := []struct {
		name string
		data string
		opts StreamOptions
	}{
		{"not a number", "1,abc\n", StreamOptions{PacketSize: 1, Channel: 1}},
		{"missing channel", "1\n", StreamOptions{PacketSize: 1, Channel: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStream(io.NopCloser(strings.NewReader(tt.data)), tt.opts, nil)
			_, err := s.Next(context.Background())
			require.Error(t, err)
			var sigErr *apperrors.SignalError
			assert.ErrorAs(t, err, &sigErr)
		})
	}
}

func TestStream_Flush(t *testing.T) {
	s := NewStream(io.NopCloser(strings.NewReader("1\n2\n3\n")), StreamOptions{PacketSize: 1}, nil)

	require.Eventually(t, func() bool {
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	s.Flush()
	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF, "flushed packets must not be returned")
}

func TestStream_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewStream(pr, StreamOptions{PacketSize: 1}, nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = io.WriteString(conn, "0.5\n0.25\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, ln.Addr().String(), StreamOptions{SampleRate: 250, PacketSize: 2}, nil)
	require.NoError(t, err)
	defer s.Close()

	p, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.25}, p.Samples)
}

func TestSynthetic(t *testing.T) {
	clock := testutil.NewFakeClock()
	s := NewSynthetic(SyntheticOptions{SampleRate: 250, PacketSize: 10, Freq: 15}, clock)

	ctx := context.Background()
	var all []float64
	for i := 0; i < 25; i++ {
		p, err := s.Next(ctx)
		require.NoError(t, err)
		require.Len(t, p.Samples, 10)
		all = append(all, p.Samples...)
	}

	assert.Equal(t, time.Second, clock.Elapsed(), "25 packets of 10 samples at 250 Hz")
	for i, v := range all {
		want := math.Sin(2 * math.Pi * 15 * float64(i) / 250)
		assert.InDelta(t, want, v, 1e-9)
	}
}
