package pipe

// ServerPipe waits on a named endpoint for a single client.
type ServerPipe struct {
	*Pipe
	ep      *endpoint
	err     error
	stopped chan struct{}
}

// NewServerPipe starts listening on the endpoint name and returns a pipe
// in the Listening state. It becomes Connected when a client arrives,
// firing h's connected event. Handlers are given at construction so no
// connection can be observed before they are in place.
func NewServerPipe(name string, h Handler, opts *Options) (*ServerPipe, error) {
	p := newPipe(name, Listening, h, opts)
	ep, err := acquireEndpoint(name, p.opts)
	if err != nil {
		return nil, err
	}
	sp := &ServerPipe{Pipe: p, ep: ep, stopped: make(chan struct{})}
	go sp.waitForConnection()
	return sp, nil
}

// Err returns the listener failure that ended the wait for a client, if any.
func (sp *ServerPipe) Err() error {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.err
}

// Close stops waiting for a client, or closes the connection if one has
// arrived. A pipe closed while listening has released its endpoint when
// Close returns.
func (sp *ServerPipe) Close() error {
	listening := sp.State() == Listening
	err := sp.Pipe.Close()
	if listening {
		<-sp.stopped
	}
	return err
}

func (sp *ServerPipe) waitForConnection() {
	defer close(sp.stopped)
	// The connected event runs before the endpoint is released, so a
	// handler arming the next server pipe keeps the listener up.
	defer sp.ep.release()

	select {
	case conn := <-sp.ep.accepted:
		if !sp.attach(conn) {
			// Closed while the connection was handed over; let another
			// server pipe have it.
			go sp.ep.handoff(conn)
		}
	case <-sp.ep.failed:
		sp.mu.Lock()
		sp.err = sp.ep.err
		if sp.state == Listening {
			sp.state = Closed
		}
		sp.mu.Unlock()
		sp.log.WithError(sp.ep.err).Warn("stopped waiting for a client")
		sp.currentHandler().PipeClosed(sp.Pipe)
	case <-sp.done:
	}
}
