// Package peer exchanges typed values over pipes.
//
// A Server or Client encodes each value it sends with a codec and decodes
// every message it receives back into a value of the same type. Both ends
// must use the same codec; a mismatch only shows up as decode errors.
package peer

import (
	"fmt"
	"sync"

	"github.com/progrium/qpipe-go/codec"
	"github.com/progrium/qpipe-go/frame"
	"github.com/progrium/qpipe-go/pipe"
	"github.com/sirupsen/logrus"
)

// Peer is the typed surface shared by Server and Client.
type Peer[T any] struct {
	pipe  *pipe.Pipe
	codec codec.Codec
	log   logrus.FieldLogger

	mu           sync.RWMutex
	onMessage    func(T)
	onConnect    func()
	onDisconnect func()
	onError      func(error)
}

func newPeer[T any](c codec.Codec, opts *pipe.Options) *Peer[T] {
	if c == nil {
		c = codec.CBORCodec{}
	}
	log := logrus.FieldLogger(logrus.StandardLogger())
	if opts != nil && opts.Logger != nil {
		log = opts.Logger
	}
	return &Peer[T]{codec: c, log: log}
}

// Callbacks bundles the callbacks of a Peer so they can be installed
// before its pipe starts delivering events. Nil fields are left unset.
type Callbacks[T any] struct {
	OnMessage    func(T)
	OnConnect    func()
	OnDisconnect func()
	OnError      func(error)
}

func (p *Peer[T]) setCallbacks(cb Callbacks[T]) {
	p.mu.Lock()
	p.onMessage = cb.OnMessage
	p.onConnect = cb.OnConnect
	p.onDisconnect = cb.OnDisconnect
	p.onError = cb.OnError
	p.mu.Unlock()
}

// Pipe returns the underlying pipe.
func (p *Peer[T]) Pipe() *pipe.Pipe {
	return p.pipe
}

// ID returns the ID of the underlying pipe.
func (p *Peer[T]) ID() uint64 {
	return p.pipe.ID()
}

// IsConnected reports whether the underlying pipe has a live peer.
func (p *Peer[T]) IsConnected() bool {
	return p.pipe.IsConnected()
}

// Close closes the underlying pipe.
func (p *Peer[T]) Close() error {
	return p.pipe.Close()
}

// Send encodes v and queues it as one message.
func (p *Peer[T]) Send(v T) (*pipe.Future, error) {
	b, err := codec.Marshal(p.codec, v)
	if err != nil {
		return nil, err
	}
	return p.pipe.WriteBytesAsync(b)
}

// Decode decodes one received payload.
func (p *Peer[T]) Decode(b []byte) (T, error) {
	var v T
	err := codec.Unmarshal(p.codec, b, &v)
	return v, err
}

// OnMessage sets the callback receiving decoded values, replacing any
// previous one.
func (p *Peer[T]) OnMessage(fn func(T)) {
	p.mu.Lock()
	p.onMessage = fn
	p.mu.Unlock()
}

// OnConnect sets the callback run when the pipe connects.
func (p *Peer[T]) OnConnect(fn func()) {
	p.mu.Lock()
	p.onConnect = fn
	p.mu.Unlock()
}

// OnDisconnect sets the callback run when the pipe closes.
func (p *Peer[T]) OnDisconnect(fn func()) {
	p.mu.Lock()
	p.onDisconnect = fn
	p.mu.Unlock()
}

// OnError sets the callback receiving decode failures. Without one,
// failures are logged and the message is dropped.
func (p *Peer[T]) OnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

func (p *Peer[T]) String() string {
	var zero T
	return fmt.Sprintf("%d<%T>", p.pipe.ID(), zero)
}

// events relays pipe events to the callbacks of a Peer.
type events[T any] struct {
	p *Peer[T]
}

func (e events[T]) PipeConnected(*pipe.Pipe) {
	e.p.mu.RLock()
	fn := e.p.onConnect
	e.p.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (e events[T]) PipeClosed(*pipe.Pipe) {
	e.p.mu.RLock()
	fn := e.p.onDisconnect
	e.p.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (e events[T]) MessageReceived(pp *pipe.Pipe, msg frame.Message) {
	v, err := e.p.Decode(msg.Payload())

	e.p.mu.RLock()
	onMessage, onError := e.p.onMessage, e.p.onError
	e.p.mu.RUnlock()

	if err != nil {
		if onError != nil {
			onError(err)
			return
		}
		e.p.log.WithError(err).WithField("pipe", pp.ID()).Warn("dropping undecodable message")
		return
	}
	if onMessage == nil {
		e.p.log.WithField("pipe", pp.ID()).Debug("no message callback, dropping value")
		return
	}
	onMessage(v)
}
