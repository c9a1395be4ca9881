package pipe

import "github.com/progrium/qpipe-go/frame"

// Handler observes the events of a pipe. Per pipe, PipeConnected is
// called at most once and before any MessageReceived, messages arrive in
// wire order from a single goroutine, and PipeClosed is called at most
// once after the last message. By the time PipeClosed runs the pipe has
// dropped its connection and stopped its writer; calling Close is only
// needed to make later writes fail with ErrClosed.
type Handler interface {
	PipeConnected(p *Pipe)
	PipeClosed(p *Pipe)
	MessageReceived(p *Pipe, msg frame.Message)
}

// Funcs adapts ordinary functions to a Handler. Nil fields are skipped.
type Funcs struct {
	OnConnect func(p *Pipe)
	OnClose   func(p *Pipe)
	OnMessage func(p *Pipe, msg frame.Message)
}

func (f Funcs) PipeConnected(p *Pipe) {
	if f.OnConnect != nil {
		f.OnConnect(p)
	}
}

func (f Funcs) PipeClosed(p *Pipe) {
	if f.OnClose != nil {
		f.OnClose(p)
	}
}

func (f Funcs) MessageReceived(p *Pipe, msg frame.Message) {
	if f.OnMessage != nil {
		f.OnMessage(p, msg)
	}
}
