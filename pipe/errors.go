package pipe

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/progrium/qpipe-go/frame"
)

var (
	// ErrZeroLength is returned when writing an empty payload or string.
	ErrZeroLength = frame.ErrZeroLength

	// ErrNotConnected is returned when writing to a pipe that is not connected.
	ErrNotConnected = fmt.Errorf("pipe: not connected: %w", errdefs.ErrFailedPrecondition)

	// ErrAlreadyConnected is returned by Connect on a pipe that is connecting or connected.
	ErrAlreadyConnected = fmt.Errorf("pipe: already connected: %w", errdefs.ErrFailedPrecondition)

	// ErrClosed is returned by operations on a closed pipe.
	ErrClosed = fmt.Errorf("pipe: closed: %w", errdefs.ErrUnavailable)

	// ErrRemoteServer is returned for endpoints on another host.
	ErrRemoteServer = fmt.Errorf("pipe: only local endpoints are supported: %w", errdefs.ErrInvalidArgument)

	// ErrEmptyName is returned for endpoints without a name.
	ErrEmptyName = fmt.Errorf("pipe: empty endpoint name: %w", errdefs.ErrInvalidArgument)

	// ErrTimeout is returned when a bounded connect does not complete in time.
	// It matches context.DeadlineExceeded but no other connect failure.
	ErrTimeout error = timeoutError{}
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "pipe: connect timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
func (timeoutError) Unwrap() error   { return context.DeadlineExceeded }
