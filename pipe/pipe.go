// Package pipe implements framed message channels over local named pipes.
//
// A pipe carries discrete binary messages, each written to the wire as a
// 4 byte little endian length followed by the payload. ServerPipe waits
// for a single client on a named endpoint; ClientPipe dials one. Both are
// Pipes once connected.
package pipe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/progrium/qpipe-go/frame"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// State is the lifecycle stage of a pipe.
type State int32

const (
	Unconnected State = iota
	Connecting
	Listening
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var lastID atomic.Uint64

// Pipe is one end of a framed message channel.
type Pipe struct {
	id   uint64
	name string
	opts Options
	log  logrus.FieldLogger

	mu         sync.RWMutex
	state      State
	handler    Handler
	conn       net.Conn
	writes     chan *write
	writerDone chan struct{}
	released   bool

	done chan struct{}
}

type write struct {
	data   []byte
	future *Future
}

type nopHandler struct{}

func (nopHandler) PipeConnected(*Pipe)                  {}
func (nopHandler) PipeClosed(*Pipe)                     {}
func (nopHandler) MessageReceived(*Pipe, frame.Message) {}

func newPipe(name string, state State, h Handler, opts *Options) *Pipe {
	o := opts.withDefaults()
	id := lastID.Inc()
	if h == nil {
		h = nopHandler{}
	}
	return &Pipe{
		id:      id,
		name:    name,
		opts:    o,
		log:     o.Logger.WithFields(logrus.Fields{"pipe": id, "endpoint": name}),
		state:   state,
		handler: h,
		done:    make(chan struct{}),
	}
}

// ID returns the process-wide unique identity of the pipe. IDs start at 1
// and increase in creation order.
func (p *Pipe) ID() uint64 {
	return p.id
}

// Name returns the endpoint name the pipe was created for.
func (p *Pipe) Name() string {
	return p.name
}

func (p *Pipe) String() string {
	return fmt.Sprintf("Pipe %d", p.id)
}

// State returns the current lifecycle stage.
func (p *Pipe) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// IsConnected reports whether the pipe currently has a live peer.
func (p *Pipe) IsConnected() bool {
	return p.State() == Connected
}

// SetHandler replaces the event handler. A nil handler detaches the
// current one; events after the call are dropped.
func (p *Pipe) SetHandler(h Handler) {
	if h == nil {
		h = nopHandler{}
	}
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *Pipe) currentHandler() Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.handler
}

// attach makes conn the transport of the pipe, fires the connected event
// and starts reading. It reports false if the pipe was closed first.
func (p *Pipe) attach(conn net.Conn) bool {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return false
	}
	p.conn = conn
	p.state = Connected
	p.writes = make(chan *write, p.opts.WriteQueueSize)
	p.writerDone = make(chan struct{})
	go p.writeLoop(frame.NewEncoder(conn), p.writes, p.writerDone)
	p.mu.Unlock()

	p.log.Debug("pipe connected")
	p.currentHandler().PipeConnected(p)
	go p.readLoop(conn)
	return true
}

func (p *Pipe) readLoop(conn net.Conn) {
	dec := frame.NewDecoder(conn)
	dec.SetMaxSize(p.opts.MaxMessageSize)
	var err error
	for {
		var payload []byte
		payload, err = dec.Decode()
		if err != nil {
			break
		}
		p.currentHandler().MessageReceived(p, frame.Bytes(payload))
	}

	p.mu.Lock()
	if p.state == Connected {
		p.state = Closed
	}
	held, writes := p.conn, p.writes
	p.conn, p.writes = nil, nil
	p.mu.Unlock()

	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		p.log.Debug("pipe closed")
	case errors.Is(err, frame.ErrLimitExceeded):
		p.log.WithError(err).Warn("closing pipe")
	default:
		p.log.WithError(err).Warn("pipe read failed")
	}
	// Nil when Close got here first.
	if held != nil {
		close(writes)
		held.Close()
	}
	p.currentHandler().PipeClosed(p)
}

func (p *Pipe) writeLoop(enc *frame.Encoder, writes <-chan *write, done chan<- struct{}) {
	defer close(done)
	for w := range writes {
		if w.data == nil {
			w.future.resolve(nil)
			continue
		}
		err := enc.Encode(w.data)
		if err != nil {
			p.log.WithError(err).Warn("pipe write failed")
		}
		w.future.resolve(err)
	}
}

func (p *Pipe) enqueue(data []byte) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.released {
		return nil, ErrClosed
	}
	if p.state != Connected {
		return nil, ErrNotConnected
	}
	w := &write{data: data, future: newFuture()}
	p.writes <- w
	return w.future, nil
}

// WriteBytesAsync queues b as one message. Writes are put on the wire in
// the order they are queued. Argument and state errors are returned
// directly; I/O errors resolve the future.
func (p *Pipe) WriteBytesAsync(b []byte) (*Future, error) {
	if len(b) == 0 {
		return nil, ErrZeroLength
	}
	if uint64(len(b)) > frame.MaxPayloadSize {
		return nil, frame.ErrTooLarge
	}
	return p.enqueue(bytes.Clone(b))
}

// WriteTextAsync queues the UTF-8 encoding of s as one message.
func (p *Pipe) WriteTextAsync(s string) (*Future, error) {
	if len(s) == 0 {
		return nil, ErrZeroLength
	}
	if uint64(len(s)) > frame.MaxPayloadSize {
		return nil, frame.ErrTooLarge
	}
	return p.enqueue([]byte(s))
}

// WriteAsync queues msg according to its kind.
func (p *Pipe) WriteAsync(msg frame.Message) (*Future, error) {
	if msg.IsText() {
		return p.WriteTextAsync(msg.Text())
	}
	return p.WriteBytesAsync(msg.Payload())
}

// WriteBytes writes b as one message and waits for it to reach the wire.
func (p *Pipe) WriteBytes(b []byte) error {
	f, err := p.WriteBytesAsync(b)
	if err != nil {
		return err
	}
	return f.Wait()
}

// WriteText writes s as one message and waits for it to reach the wire.
func (p *Pipe) WriteText(s string) error {
	f, err := p.WriteTextAsync(s)
	if err != nil {
		return err
	}
	return f.Wait()
}

// Flush waits until every write queued before it has completed.
func (p *Pipe) Flush() error {
	f, err := p.enqueue(nil)
	if err != nil {
		return err
	}
	return f.Wait()
}

// Close releases the pipe. Pending writes are drained first if the peer is
// still connected. A connected pipe fires its closed event once its reader
// stops. Calling Close more than once is a no-op. A pipe whose peer went
// away has already dropped its connection; Close then only marks it
// released, so later operations report ErrClosed.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return nil
	}
	p.released = true
	close(p.done)
	conn, writes, writerDone := p.conn, p.writes, p.writerDone
	p.conn, p.writes = nil, nil
	connected := p.state == Connected
	p.state = Closed
	p.mu.Unlock()

	// Nil before connecting, or once the reader has released the handle.
	if conn == nil {
		p.log.Debug("pipe released")
		return nil
	}
	close(writes)
	if connected {
		<-writerDone
	}
	p.log.Debug("closing pipe")
	return conn.Close()
}
