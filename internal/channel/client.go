package channel

import (
	"context"
	"fmt"
	"net/url"

	"golang.org/x/net/websocket"

	"github.com/Iron-Ham/brainnet/internal/logging"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// Client is a peer's connection to the coordinator hub. The only reachable
// peer is [Coordinator].
type Client struct {
	opts   Options
	link   *link
	logger *logging.Logger
}

// Dial connects to the hub at hubURL (a ws:// URL ending in PeerPath) as peer.
func Dial(ctx context.Context, hubURL, peer string, opts Options, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	u, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("parse coordinator url: %w", err)
	}
	q := u.Query()
	q.Set("id", peer)
	u.RawQuery = q.Encode()

	origin := "http://" + u.Host
	cfg, err := websocket.NewConfig(u.String(), origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, unreachable(Coordinator, fmt.Sprintf("dial %s: %v", u.Redacted(), err))
	}

	l := newLink(Coordinator, func(env wire.Envelope) error {
		return websocket.JSON.Send(ws, env)
	}, ws.Close)
	go readLoop(ws, l)

	logger.Info("connected to coordinator", "url", u.Redacted(), "peer", peer)
	return &Client{opts: opts, link: l, logger: logger}, nil
}

// Connected implements Channel.
func (c *Client) Connected(peer string) bool {
	return peer == Coordinator && c.link.connected()
}

// Send implements Channel.
func (c *Client) Send(_ context.Context, peer string, env wire.Envelope) error {
	if peer != Coordinator {
		return unreachable(peer, "send "+string(env.Kind))
	}
	return c.link.send(env)
}

// Receive implements Channel.
func (c *Client) Receive(ctx context.Context, peer string) (wire.Envelope, error) {
	if peer != Coordinator {
		return wire.Envelope{}, unreachable(peer, "receive")
	}
	return c.link.receive(ctx, c.opts.ReceiveTimeout)
}

// Close disconnects from the coordinator.
func (c *Client) Close() error {
	c.link.disconnect()
	return nil
}
