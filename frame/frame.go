// Package frame implements the length-prefixed wire format used by pipes.
//
// A frame is a four byte little endian unsigned length followed by exactly
// that many payload bytes. There is no header, terminator or checksum.
package frame

import (
	"fmt"
	"io"

	"github.com/containerd/errdefs"
)

// PrefixSize is the size in bytes of the frame length prefix.
const PrefixSize = 4

// MaxPayloadSize is the largest payload a length prefix can describe.
const MaxPayloadSize = 1<<32 - 1

var (
	// Debug can be set to get frames as they're encoded and decoded
	Debug io.Writer
)

var (
	// ErrZeroLength is returned when asked to transmit an empty payload.
	ErrZeroLength = fmt.Errorf("frame: cannot transmit zero-length data: %w", errdefs.ErrInvalidArgument)

	// ErrTooLarge is returned when a payload cannot be described by a length prefix.
	ErrTooLarge = fmt.Errorf("frame: payload exceeds %d bytes: %w", uint64(MaxPayloadSize), errdefs.ErrInvalidArgument)

	// ErrLimitExceeded is returned by a Decoder reading a frame larger than its limit.
	ErrLimitExceeded = fmt.Errorf("frame: frame too large: %w", errdefs.ErrInvalidArgument)

	// ErrEmptyFrame is returned by a Decoder that reads a zero length prefix.
	ErrEmptyFrame = fmt.Errorf("frame: zero length frame: %w", io.EOF)
)
