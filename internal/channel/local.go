package channel

import (
	"context"
	"sync"

	"github.com/Iron-Ham/brainnet/internal/wire"
)

// Local is an in-process endpoint. Endpoints created by [NewLocalNetwork]
// are wired to each other through buffered channels and share the sequencing
// rules of the websocket transport.
type Local struct {
	opts Options

	mu    sync.Mutex
	links map[string]*link
}

// NewLocalNetwork returns a coordinator endpoint and one endpoint per peer.
func NewLocalNetwork(opts Options, peers ...string) (*Local, map[string]*Local) {
	coord := &Local{opts: opts, links: make(map[string]*link)}
	ends := make(map[string]*Local, len(peers))

	for _, peer := range peers {
		end := &Local{opts: opts, links: make(map[string]*link)}

		var toPeer, toCoord *link
		toPeer = newLink(peer, func(env wire.Envelope) error {
			toCoord.deliver(env)
			return nil
		}, nil)
		toCoord = newLink(Coordinator, func(env wire.Envelope) error {
			toPeer.deliver(env)
			return nil
		}, nil)

		// Closing either side closes both.
		toPeer.closeConn = func() error { toCoord.disconnect(); return nil }
		toCoord.closeConn = func() error { toPeer.disconnect(); return nil }

		coord.links[peer] = toPeer
		end.links[Coordinator] = toCoord
		ends[peer] = end
	}
	return coord, ends
}

// Disconnect drops the link to peer, as if the remote side went away.
func (l *Local) Disconnect(peer string) {
	if lk, ok := l.get(peer); ok {
		lk.disconnect()
	}
}

func (l *Local) get(peer string) (*link, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk, ok := l.links[peer]
	return lk, ok
}

// Connected implements Channel.
func (l *Local) Connected(peer string) bool {
	lk, ok := l.get(peer)
	return ok && lk.connected()
}

// Send implements Channel.
func (l *Local) Send(_ context.Context, peer string, env wire.Envelope) error {
	lk, ok := l.get(peer)
	if !ok {
		return unreachable(peer, "send "+string(env.Kind))
	}
	return lk.send(env)
}

// Receive implements Channel.
func (l *Local) Receive(ctx context.Context, peer string) (wire.Envelope, error) {
	lk, ok := l.get(peer)
	if !ok {
		return wire.Envelope{}, unreachable(peer, "receive")
	}
	return lk.receive(ctx, l.opts.ReceiveTimeout)
}

// Close disconnects every link of this endpoint.
func (l *Local) Close() error {
	l.mu.Lock()
	links := make([]*link, 0, len(l.links))
	for _, lk := range l.links {
		links = append(links, lk)
	}
	l.mu.Unlock()

	for _, lk := range links {
		lk.disconnect()
	}
	return nil
}

var (
	_ Channel = (*Local)(nil)
	_ Channel = (*Hub)(nil)
	_ Channel = (*Client)(nil)
)
