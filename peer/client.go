package peer

import (
	"context"
	"time"

	"github.com/progrium/qpipe-go/codec"
	"github.com/progrium/qpipe-go/pipe"
)

// Client exchanges values of type T with a Server.
type Client[T any] struct {
	*Peer[T]
	client *pipe.ClientPipe
}

// NewClient returns an unconnected client for the endpoint name on
// server. A nil codec selects CBOR.
func NewClient[T any](server, name string, c codec.Codec, opts *pipe.Options) *Client[T] {
	p := newPeer[T](c, opts)
	cp := pipe.NewClientPipe(server, name, events[T]{p}, opts)
	p.pipe = cp.Pipe
	return &Client[T]{Peer: p, client: cp}
}

// Connect dials the server until it answers or ctx is done.
func (c *Client[T]) Connect(ctx context.Context) error {
	return c.client.Connect(ctx)
}

// ConnectTimeout is Connect bounded by d.
func (c *Client[T]) ConnectTimeout(d time.Duration) error {
	return c.client.ConnectTimeout(d)
}

// ConnectAsync runs Connect in the background.
func (c *Client[T]) ConnectAsync(ctx context.Context) *pipe.Future {
	return c.client.ConnectAsync(ctx)
}

// ConnectTimeoutAsync runs ConnectTimeout in the background.
func (c *Client[T]) ConnectTimeoutAsync(d time.Duration) *pipe.Future {
	return c.client.ConnectTimeoutAsync(d)
}

func (c *Client[T]) String() string {
	return "C" + c.Peer.String()
}
