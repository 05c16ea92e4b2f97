// Package signal provides blocking sources of single-channel biosignal
// packets for the live classifier.
package signal

import (
	"context"
	"time"
)

// Packet is a fixed-size run of consecutive samples from one channel.
type Packet struct {
	Samples []float64
	// At is when the packet was received.
	At time.Time
}

// Source yields packets in acquisition order.
type Source interface {
	// Next blocks until the next packet is available.
	Next(ctx context.Context) (Packet, error)
	// SampleRate is the sampling frequency in Hz.
	SampleRate() int
	// Flush discards every packet buffered so far.
	Flush()
	Close() error
}
