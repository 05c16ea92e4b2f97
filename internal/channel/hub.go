package channel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"

	"golang.org/x/net/websocket"

	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/logging"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// PeerPath is the websocket endpoint peers dial, with ?id=<peer>.
const PeerPath = "/peer"

// Hub is the coordinator side of the websocket transport. All peers connect
// to one listener; each holds exactly one logical link.
type Hub struct {
	opts   Options
	peers  []string
	logger *logging.Logger

	mu      sync.Mutex
	links   map[string]*link
	changed chan struct{} // closed and replaced whenever a peer connects

	server *http.Server
}

// NewHub creates a hub that accepts the given peer IDs.
func NewHub(peers []string, opts Options, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Hub{
		opts:    opts,
		peers:   slices.Clone(peers),
		logger:  logger,
		links:   make(map[string]*link),
		changed: make(chan struct{}),
	}
}

// Handler returns the HTTP handler serving PeerPath.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(PeerPath, websocket.Handler(h.serve))
	return mux
}

// Serve accepts peer connections on ln until Close is called.
func (h *Hub) Serve(ln net.Listener) error {
	h.mu.Lock()
	h.server = &http.Server{Handler: h.Handler()}
	srv := h.server
	h.mu.Unlock()

	h.logger.Info("hub listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Hub) serve(ws *websocket.Conn) {
	defer func() { _ = ws.Close() }()

	peer := ws.Request().URL.Query().Get("id")
	if !slices.Contains(h.peers, peer) {
		h.logger.Warn("rejected connection from unknown peer", "peer", peer, "remote", ws.Request().RemoteAddr)
		return
	}

	l := newLink(peer, func(env wire.Envelope) error {
		return websocket.JSON.Send(ws, env)
	}, ws.Close)

	h.mu.Lock()
	if _, exists := h.links[peer]; exists {
		h.mu.Unlock()
		h.logger.Warn("rejected second connection", "peer", peer)
		return
	}
	h.links[peer] = l
	close(h.changed)
	h.changed = make(chan struct{})
	h.mu.Unlock()

	h.logger.Info("peer connected", "peer", peer, "remote", ws.Request().RemoteAddr)
	readLoop(ws, l)
	h.logger.Info("peer disconnected", "peer", peer)
}

// readLoop pumps frames from ws into l until the connection fails.
func readLoop(ws *websocket.Conn, l *link) {
	defer l.disconnect()
	for {
		var env wire.Envelope
		if err := websocket.JSON.Receive(ws, &env); err != nil {
			if isDecodeError(err) {
				l.deliver(undecodable(err))
				continue
			}
			return
		}
		l.deliver(env)
	}
}

func (h *Hub) link(peer string) (*link, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.links[peer]
	return l, ok
}

// WaitConnected blocks until peer has connected.
func (h *Hub) WaitConnected(ctx context.Context, peer string) error {
	if !slices.Contains(h.peers, peer) {
		return unreachable(peer, "wait for unknown peer")
	}
	for {
		h.mu.Lock()
		_, ok := h.links[peer]
		changed := h.changed
		h.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Connected implements Channel.
func (h *Hub) Connected(peer string) bool {
	l, ok := h.link(peer)
	return ok && l.connected()
}

// Send implements Channel.
func (h *Hub) Send(_ context.Context, peer string, env wire.Envelope) error {
	l, ok := h.link(peer)
	if !ok {
		return unreachable(peer, "send "+string(env.Kind))
	}
	return l.send(env)
}

// Receive implements Channel.
func (h *Hub) Receive(ctx context.Context, peer string) (wire.Envelope, error) {
	l, ok := h.link(peer)
	if !ok {
		return wire.Envelope{}, unreachable(peer, "receive")
	}
	return l.receive(ctx, h.opts.ReceiveTimeout)
}

// Close disconnects every peer and stops the listener.
func (h *Hub) Close() error {
	h.mu.Lock()
	links := make([]*link, 0, len(h.links))
	for _, l := range h.links {
		links = append(links, l)
	}
	srv := h.server
	h.mu.Unlock()

	for _, l := range links {
		l.disconnect()
	}
	if srv != nil {
		if err := srv.Close(); err != nil {
			return apperrors.Wrap(err, "close hub")
		}
	}
	return nil
}
