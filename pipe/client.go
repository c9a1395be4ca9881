package pipe

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/containerd/errdefs"
)

// ClientPipe connects to a named endpoint.
type ClientPipe struct {
	*Pipe
	server string
}

// NewClientPipe returns an unconnected pipe for the endpoint name on
// server. Only the local machine is supported as server.
func NewClientPipe(server, name string, h Handler, opts *Options) *ClientPipe {
	if server == "" {
		server = "."
	}
	return &ClientPipe{
		Pipe:   newPipe(name, Unconnected, h, opts),
		server: server,
	}
}

// Server returns the server the pipe connects to.
func (c *ClientPipe) Server() string {
	return c.server
}

// Connect dials the endpoint until it answers or ctx is done. A context
// deadline yields ErrTimeout; cancellation yields context.Canceled.
func (c *ClientPipe) Connect(ctx context.Context) error {
	if err := c.beginConnect(); err != nil {
		return err
	}
	addr, err := Address(c.server, c.name, &c.opts)
	if err != nil {
		c.abortConnect()
		return err
	}
	conn, err := c.dialRetry(ctx, addr)
	if err != nil {
		c.abortConnect()
		return err
	}
	if !c.attach(conn) {
		conn.Close()
		return ErrClosed
	}
	return nil
}

// ConnectTimeout is Connect bounded by d.
func (c *ClientPipe) ConnectTimeout(d time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Connect(ctx)
}

// ConnectAsync runs Connect in the background.
func (c *ClientPipe) ConnectAsync(ctx context.Context) *Future {
	f := newFuture()
	go func() {
		f.resolve(c.Connect(ctx))
	}()
	return f
}

// ConnectTimeoutAsync runs ConnectTimeout in the background.
func (c *ClientPipe) ConnectTimeoutAsync(d time.Duration) *Future {
	f := newFuture()
	go func() {
		f.resolve(c.ConnectTimeout(d))
	}()
	return f
}

func (c *ClientPipe) beginConnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrClosed
	}
	if c.state != Unconnected {
		return ErrAlreadyConnected
	}
	c.state = Connecting
	return nil
}

func (c *ClientPipe) abortConnect() {
	c.mu.Lock()
	if c.state == Connecting {
		c.state = Unconnected
	}
	c.mu.Unlock()
}

func (c *ClientPipe) dialRetry(ctx context.Context, addr string) (net.Conn, error) {
	var timer *time.Timer
	for {
		conn, err := dial(ctx, addr)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, connectError(ctx)
		}
		if errdefs.IsInvalidArgument(err) {
			return nil, err
		}
		if timer == nil {
			c.log.WithError(err).Debug("endpoint unavailable, retrying")
			timer = time.NewTimer(c.opts.RetryInterval)
			defer timer.Stop()
		} else {
			timer.Reset(c.opts.RetryInterval)
		}
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, connectError(ctx)
		case <-c.done:
			return nil, ErrClosed
		}
	}
}

func connectError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
