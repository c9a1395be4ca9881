package pipe

import (
	"net"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Address resolves an endpoint on server to the address of its transport.
// Only the local machine is reachable, named ".", "localhost" or "".
func Address(server, name string, opts *Options) (string, error) {
	switch strings.ToLower(server) {
	case "", ".", "localhost":
	default:
		return "", errors.Wrapf(ErrRemoteServer, "server %q", server)
	}
	if name == "" {
		return "", ErrEmptyName
	}
	return pipePath(name, opts.withDefaults()), nil
}

// endpoint is the process-wide listener of one address. Server pipes
// waiting on the same address share it, and every accepted connection is
// handed to exactly one of them.
type endpoint struct {
	addr string
	l    net.Listener
	log  logrus.FieldLogger
	refs int

	// max caps live, the accepted connections not yet closed.
	max  int
	live atomic.Int64

	accepted chan net.Conn
	failed   chan struct{}
	err      error

	done      chan struct{}
	closeOnce sync.Once
}

var endpoints = struct {
	sync.Mutex
	m map[string]*endpoint
}{m: make(map[string]*endpoint)}

func acquireEndpoint(name string, opts Options) (*endpoint, error) {
	addr, err := Address(".", name, &opts)
	if err != nil {
		return nil, err
	}

	endpoints.Lock()
	defer endpoints.Unlock()
	if ep, ok := endpoints.m[addr]; ok {
		ep.refs++
		return ep, nil
	}
	l, err := listen(addr, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "pipe: listen %s", addr)
	}
	ep := &endpoint{
		addr:     addr,
		l:        l,
		log:      opts.Logger.WithField("endpoint", name),
		refs:     1,
		max:      opts.MaxInstances,
		accepted: make(chan net.Conn),
		failed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	endpoints.m[addr] = ep
	ep.log.WithField("addr", addr).Debug("listening")
	go ep.acceptLoop()
	return ep, nil
}

func (ep *endpoint) release() {
	endpoints.Lock()
	ep.refs--
	if ep.refs > 0 {
		endpoints.Unlock()
		return
	}
	ep.unregister()
	endpoints.Unlock()
	ep.close()
}

// unregister requires endpoints to be locked.
func (ep *endpoint) unregister() {
	if endpoints.m[ep.addr] == ep {
		delete(endpoints.m, ep.addr)
	}
}

func (ep *endpoint) close() {
	ep.closeOnce.Do(func() {
		close(ep.done)
		ep.l.Close()
		ep.log.Debug("stopped listening")
	})
}

func (ep *endpoint) acceptLoop() {
	for {
		conn, err := ep.l.Accept()
		if err != nil {
			select {
			case <-ep.done:
			default:
				ep.log.WithError(err).Warn("accept failed")
				ep.err = err
				close(ep.failed)
				endpoints.Lock()
				ep.unregister()
				endpoints.Unlock()
				ep.close()
			}
			return
		}
		if ep.max > 0 {
			// The client's dial has already completed, so a connection over
			// the cap is closed rather than left unread in the backlog.
			if ep.live.Load() >= int64(ep.max) {
				ep.log.WithField("max", ep.max).Debug("instance limit reached, dropping connection")
				conn.Close()
				continue
			}
			ep.live.Inc()
			conn = &instanceConn{Conn: conn, live: &ep.live}
		}
		ep.handoff(conn)
	}
}

// instanceConn gives its slot back to the endpoint when closed.
type instanceConn struct {
	net.Conn
	live *atomic.Int64
	once sync.Once
}

func (c *instanceConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { c.live.Dec() })
	return err
}

// handoff blocks until a waiting server pipe takes conn or the endpoint
// stops listening.
func (ep *endpoint) handoff(conn net.Conn) {
	select {
	case ep.accepted <- conn:
	case <-ep.done:
		conn.Close()
	}
}
