package peer

import (
	"github.com/progrium/qpipe-go/codec"
	"github.com/progrium/qpipe-go/pipe"
)

// Server exchanges values of type T with the single client it accepts.
type Server[T any] struct {
	*Peer[T]
	server *pipe.ServerPipe
}

// NewServer listens on the endpoint name. A nil codec selects CBOR.
// The server accepts a client as soon as it returns, so values arriving
// before OnMessage is set are dropped; use Serve to avoid that.
func NewServer[T any](name string, c codec.Codec, opts *pipe.Options) (*Server[T], error) {
	return Serve[T](name, c, opts, Callbacks[T]{})
}

// Serve is NewServer with cb installed before listening starts.
func Serve[T any](name string, c codec.Codec, opts *pipe.Options, cb Callbacks[T]) (*Server[T], error) {
	p := newPeer[T](c, opts)
	p.setCallbacks(cb)
	sp, err := pipe.NewServerPipe(name, events[T]{p}, opts)
	if err != nil {
		return nil, err
	}
	p.pipe = sp.Pipe
	return &Server[T]{Peer: p, server: sp}, nil
}

func (s *Server[T]) String() string {
	return "S" + s.Peer.String()
}

// Close stops listening, or closes the connection if a client arrived.
func (s *Server[T]) Close() error {
	return s.server.Close()
}
