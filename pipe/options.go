package pipe

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultRetryInterval is the pause between attempts to reach an endpoint.
	DefaultRetryInterval = 10 * time.Millisecond

	// DefaultWriteQueueSize is the number of writes a pipe buffers before
	// further writes block.
	DefaultWriteQueueSize = 64
)

// Options configures pipes. A nil *Options selects the defaults.
type Options struct {
	// Dir holds the socket files of endpoints named without a path.
	// Defaults to os.TempDir(). Ignored on Windows.
	Dir string

	// MaxMessageSize caps the declared length of inbound frames. A pipe
	// receiving a larger frame is closed. Zero means no limit.
	MaxMessageSize uint32

	// MaxInstances caps the number of connections an endpoint has accepted
	// and not yet closed. Connections over the cap are closed as soon as
	// they are accepted, so their clients see an immediate closed event.
	// Connections are counted for as long as some server pipe keeps the
	// endpoint listening, as mux.Endpoint does. Zero means no limit.
	MaxInstances int

	// RetryInterval is the pause between client dial attempts.
	RetryInterval time.Duration

	// WriteQueueSize is the per-pipe queue length for pending writes.
	WriteQueueSize int

	// Logger receives lifecycle and I/O failure logs. Defaults to the
	// logrus standard logger.
	Logger logrus.FieldLogger
}

func (o *Options) withDefaults() Options {
	var opts Options
	if o != nil {
		opts = *o
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.WriteQueueSize <= 0 {
		opts.WriteQueueSize = DefaultWriteQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return opts
}
