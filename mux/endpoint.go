// Package mux serves many clients on one endpoint name.
//
// An Endpoint keeps exactly one server pipe listening. Each time a client
// connects, the pipe that accepted it is registered and a fresh server
// pipe is armed for the next client.
package mux

import (
	"fmt"
	"sort"
	"sync"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
	"github.com/progrium/qpipe-go/frame"
	"github.com/progrium/qpipe-go/pipe"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownConnection is returned when addressing a connection that is
// not registered with the endpoint.
var ErrUnknownConnection = fmt.Errorf("mux: unknown connection: %w", errdefs.ErrNotFound)

// Endpoint accepts any number of clients on one endpoint name and tracks
// the connected ones by pipe ID.
type Endpoint struct {
	name    string
	opts    pipe.Options
	handler pipe.Handler
	log     logrus.FieldLogger

	mu       sync.Mutex
	conns    map[uint64]*pipe.Pipe
	listener *pipe.ServerPipe
	closed   bool
}

// Listen arms the first server pipe for name. The events of every
// connection are passed to h once the endpoint has updated its registry.
func Listen(name string, h pipe.Handler, opts *pipe.Options) (*Endpoint, error) {
	if h == nil {
		h = pipe.Funcs{}
	}
	e := &Endpoint{
		name:    name,
		handler: h,
		conns:   make(map[uint64]*pipe.Pipe),
	}
	if opts != nil {
		e.opts = *opts
	}
	if e.opts.Logger == nil {
		e.opts.Logger = logrus.StandardLogger()
	}
	e.log = e.opts.Logger.WithField("endpoint", name)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.arm(); err != nil {
		return nil, err
	}
	return e, nil
}

// arm requires e.mu to be held.
func (e *Endpoint) arm() error {
	sp, err := pipe.NewServerPipe(e.name, tracker{e}, &e.opts)
	if err != nil {
		e.listener = nil
		return err
	}
	e.listener = sp
	return nil
}

// Name returns the endpoint name.
func (e *Endpoint) Name() string {
	return e.name
}

// Listening reports whether a server pipe is waiting for the next client.
func (e *Endpoint) Listening() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listener != nil && e.listener.State() == pipe.Listening
}

// Count returns the number of connected clients.
func (e *Endpoint) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.conns)
}

// IDs returns the IDs of the connected pipes in ascending order.
func (e *Endpoint) IDs() []uint64 {
	e.mu.Lock()
	ids := make([]uint64, 0, len(e.conns))
	for id := range e.conns {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Get returns the connected pipe with the given ID.
func (e *Endpoint) Get(id uint64) (*pipe.Pipe, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.conns[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownConnection, "pipe %d", id)
	}
	return p, nil
}

func (e *Endpoint) snapshot() []*pipe.Pipe {
	e.mu.Lock()
	defer e.mu.Unlock()
	pipes := make([]*pipe.Pipe, 0, len(e.conns))
	for _, p := range e.conns {
		pipes = append(pipes, p)
	}
	return pipes
}

// Send writes b to every connected client and returns the first error.
func (e *Endpoint) Send(b []byte) error {
	return e.broadcast(frame.Bytes(b))
}

// SendText writes s to every connected client and returns the first error.
func (e *Endpoint) SendText(s string) error {
	return e.broadcast(frame.Text(s))
}

func (e *Endpoint) broadcast(msg frame.Message) error {
	if msg.IsEmpty() {
		return pipe.ErrZeroLength
	}
	var g errgroup.Group
	for _, p := range e.snapshot() {
		p := p
		g.Go(func() error {
			f, err := p.WriteAsync(msg)
			if err != nil {
				return err
			}
			return f.Wait()
		})
	}
	return g.Wait()
}

// SendTo writes b to the client connected on pipe id.
func (e *Endpoint) SendTo(id uint64, b []byte) error {
	p, err := e.Get(id)
	if err != nil {
		return err
	}
	return p.WriteBytes(b)
}

// SendTextTo writes s to the client connected on pipe id.
func (e *Endpoint) SendTextTo(id uint64, s string) error {
	p, err := e.Get(id)
	if err != nil {
		return err
	}
	return p.WriteText(s)
}

// Close stops listening and closes every connection. Clients arriving
// afterwards are disconnected immediately.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	listener := e.listener
	e.listener = nil
	e.mu.Unlock()

	var err error
	if listener != nil {
		err = multierr.Append(err, listener.Close())
	}
	for _, p := range e.snapshot() {
		err = multierr.Append(err, p.Close())
	}
	e.log.Debug("endpoint closed")
	return err
}

// tracker maintains the registry from the events of the endpoint's pipes.
type tracker struct {
	e *Endpoint
}

func (t tracker) PipeConnected(p *pipe.Pipe) {
	e := t.e
	e.mu.Lock()
	if e.closed {
		p.SetHandler(nil)
		e.mu.Unlock()
		p.Close()
		return
	}
	e.conns[p.ID()] = p
	if err := e.arm(); err != nil {
		e.log.WithError(err).Warn("no server pipe listening")
	}
	e.mu.Unlock()

	e.log.WithField("pipe", p.ID()).Debug("client connected")
	e.handler.PipeConnected(p)
}

func (t tracker) PipeClosed(p *pipe.Pipe) {
	e := t.e
	e.mu.Lock()
	p.SetHandler(nil)
	_, tracked := e.conns[p.ID()]
	delete(e.conns, p.ID())
	failed := e.listener != nil && e.listener.Pipe == p
	if failed {
		e.listener = nil
	}
	closed := e.closed
	e.mu.Unlock()

	if failed {
		e.log.Warn("server pipe stopped listening")
		return
	}
	if !tracked && !closed {
		return
	}
	p.Close()
	e.log.WithField("pipe", p.ID()).Debug("client disconnected")
	e.handler.PipeClosed(p)
}

func (t tracker) MessageReceived(p *pipe.Pipe, msg frame.Message) {
	t.e.handler.MessageReceived(p, msg)
}
