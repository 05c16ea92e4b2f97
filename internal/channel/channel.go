// Package channel provides the addressed, ordered, blocking message transport
// between the coordinator and its two peers.
//
// A [Channel] addresses remote nodes by peer ID. The coordinator reaches "c1"
// and "c2"; each peer reaches [Coordinator]. Every direction of every link
// stamps a sequence number on outgoing envelopes, and the receiving side
// rejects a gap or duplicate with ErrSequence. There is no retry: every
// failure is reported to the caller, which treats it as fatal.
//
// Three implementations are provided: [Hub] (the coordinator's websocket
// endpoint), [Client] (a peer's websocket connection) and [Local] (an
// in-process network used by tests and the demo mode).
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// Coordinator is the peer ID under which peers address the coordinator.
const Coordinator = "coordinator"

// inboxSize bounds how many undelivered envelopes a link buffers. The round
// protocol never has more than a handful in flight.
const inboxSize = 64

// Channel is an addressed, ordered, blocking message transport.
type Channel interface {
	// Connected reports whether peer currently has a live link. It never blocks.
	Connected(peer string) bool
	// Send delivers env to peer. It fails with ErrPeerUnreachable if the peer
	// is not connected.
	Send(ctx context.Context, peer string, env wire.Envelope) error
	// Receive blocks until the next envelope from peer arrives. It fails with
	// ErrChannelClosed if the peer disconnects, ErrSequence on a lost or
	// duplicated envelope and ErrReceiveTimeout when a receive timeout is
	// configured and expires.
	Receive(ctx context.Context, peer string) (wire.Envelope, error)
	// Close tears down every link.
	Close() error
}

// Options configure a channel implementation.
type Options struct {
	// ReceiveTimeout bounds every Receive. Zero blocks until a message arrives.
	ReceiveTimeout time.Duration
}

// link is one peer-to-peer connection with per-direction sequencing.
type link struct {
	peer      string
	write     func(wire.Envelope) error
	closeConn func() error

	inbox    chan wire.Envelope
	done     chan struct{}
	doneOnce sync.Once

	sendMu  sync.Mutex
	sendSeq uint64

	recvMu  sync.Mutex
	recvSeq uint64
}

func newLink(peer string, write func(wire.Envelope) error, closeConn func() error) *link {
	return &link{
		peer:      peer,
		write:     write,
		closeConn: closeConn,
		inbox:     make(chan wire.Envelope, inboxSize),
		done:      make(chan struct{}),
	}
}

func (l *link) connected() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// disconnect marks the link closed and closes the underlying connection.
// Pending receives fail with ErrChannelClosed once buffered envelopes have
// been consumed.
func (l *link) disconnect() {
	first := false
	l.doneOnce.Do(func() {
		close(l.done)
		first = true
	})
	if first && l.closeConn != nil {
		_ = l.closeConn()
	}
}

// deliver queues an envelope read from the remote side.
func (l *link) deliver(env wire.Envelope) {
	select {
	case l.inbox <- env:
	case <-l.done:
	}
}

func (l *link) send(env wire.Envelope) error {
	if !l.connected() {
		return apperrors.NewProtocolError("send "+string(env.Kind), apperrors.ErrPeerUnreachable).WithPeer(l.peer)
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	l.sendSeq++
	env.Seq = l.sendSeq
	if err := l.write(env); err != nil {
		l.disconnect()
		return apperrors.NewProtocolError(fmt.Sprintf("send %s: %v", env.Kind, err), apperrors.ErrPeerUnreachable).WithPeer(l.peer)
	}
	return nil
}

func (l *link) receive(ctx context.Context, timeout time.Duration) (wire.Envelope, error) {
	l.recvMu.Lock()
	defer l.recvMu.Unlock()

	env, err := l.next(ctx, timeout)
	if err != nil {
		return wire.Envelope{}, err
	}
	if err := env.Validate(); err != nil {
		return wire.Envelope{}, err
	}
	if env.Seq != l.recvSeq+1 {
		return wire.Envelope{}, apperrors.NewProtocolError(
			fmt.Sprintf("expected seq %d, got %d", l.recvSeq+1, env.Seq),
			apperrors.ErrSequence,
		).WithPeer(l.peer)
	}
	l.recvSeq = env.Seq
	return env, nil
}

func (l *link) next(ctx context.Context, timeout time.Duration) (wire.Envelope, error) {
	// Buffered envelopes are delivered even after the peer has gone away.
	select {
	case env := <-l.inbox:
		return env, nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case env := <-l.inbox:
		return env, nil
	case <-l.done:
		select {
		case env := <-l.inbox:
			return env, nil
		default:
		}
		return wire.Envelope{}, apperrors.NewProtocolError("receive", apperrors.ErrChannelClosed).WithPeer(l.peer)
	case <-expired:
		return wire.Envelope{}, apperrors.NewProtocolError(fmt.Sprintf("nothing received in %s", timeout), apperrors.ErrReceiveTimeout).WithPeer(l.peer)
	case <-ctx.Done():
		return wire.Envelope{}, ctx.Err()
	}
}

// isDecodeError reports whether err came from decoding a frame rather than
// from the connection.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return apperrors.As(err, &syntaxErr) || apperrors.As(err, &typeErr)
}

// undecodable stands in for a frame that could not be decoded so that the
// receiver reports it as malformed in sequence.
func undecodable(err error) wire.Envelope {
	return wire.Envelope{Kind: wire.Kind(fmt.Sprintf("<undecodable: %v>", err))}
}

func unreachable(peer, op string) error {
	return apperrors.NewProtocolError(op, apperrors.ErrPeerUnreachable).WithPeer(peer)
}
