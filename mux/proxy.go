package mux

import (
	"context"
	"sync"
	"time"

	"github.com/progrium/qpipe-go/frame"
	"github.com/progrium/qpipe-go/pipe"
	"github.com/sirupsen/logrus"
)

// ProxyDialTimeout bounds how long a proxied client waits for its
// connection to the target endpoint.
var ProxyDialTimeout = 5 * time.Second

// Proxy serves name until ctx is done, giving every client its own
// connection to the target endpoint. Messages are relayed unchanged in
// both directions and either side closing closes the other.
func Proxy(ctx context.Context, name, target string, opts *pipe.Options) error {
	var (
		mu    sync.Mutex
		peers = make(map[uint64]*pipe.ClientPipe)
	)
	var log logrus.FieldLogger = logrus.StandardLogger()
	if opts != nil && opts.Logger != nil {
		log = opts.Logger
	}
	log = log.WithFields(logrus.Fields{"endpoint": name, "target": target})

	lookup := func(id uint64) *pipe.ClientPipe {
		mu.Lock()
		defer mu.Unlock()
		return peers[id]
	}

	ep, err := Listen(name, pipe.Funcs{
		OnConnect: func(front *pipe.Pipe) {
			back := pipe.NewClientPipe(".", target, pipe.Funcs{
				OnMessage: func(_ *pipe.Pipe, msg frame.Message) {
					relay(log, front, msg)
				},
				OnClose: func(*pipe.Pipe) {
					front.Close()
				},
			}, opts)
			mu.Lock()
			peers[front.ID()] = back
			mu.Unlock()

			dctx, cancel := context.WithTimeout(ctx, ProxyDialTimeout)
			defer cancel()
			// The front pipe starts reading once this returns, so nothing
			// it sends can arrive before the target is connected.
			if err := back.Connect(dctx); err != nil {
				log.WithError(err).WithField("pipe", front.ID()).Warn("target unreachable, dropping client")
				front.Close()
			}
		},
		OnMessage: func(front *pipe.Pipe, msg frame.Message) {
			if back := lookup(front.ID()); back != nil {
				relay(log, back.Pipe, msg)
			}
		},
		OnClose: func(front *pipe.Pipe) {
			mu.Lock()
			back := peers[front.ID()]
			delete(peers, front.ID())
			mu.Unlock()
			if back != nil {
				back.Close()
			}
		},
	}, opts)
	if err != nil {
		return err
	}
	log.Debug("proxying")

	<-ctx.Done()
	return ep.Close()
}

// relay queues msg on dst. Write I/O failures are logged by dst itself.
func relay(log logrus.FieldLogger, dst *pipe.Pipe, msg frame.Message) {
	if _, err := dst.WriteAsync(msg); err != nil {
		log.WithError(err).WithField("pipe", dst.ID()).Warn("relay failed, dropping message")
	}
}
