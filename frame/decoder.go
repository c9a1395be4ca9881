package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"syscall"
)

// Decoder reads frames from an io.Reader.
type Decoder struct {
	r   io.Reader
	max uint32
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// SetMaxSize makes Decode reject frames declaring more than n payload
// bytes. Zero removes the limit.
func (dec *Decoder) SetMaxSize(n uint32) {
	dec.max = n
}

// Decode reads the next frame and returns its payload. A peer that went
// away, at either the prefix or the payload stage, is reported as io.EOF.
func (dec *Decoder) Decode() ([]byte, error) {
	var prefix [PrefixSize]byte
	if _, err := io.ReadFull(dec.r, prefix[:]); err != nil {
		return nil, endOfStream(err)
	}

	size := binary.LittleEndian.Uint32(prefix[:])
	if size == 0 {
		return nil, ErrEmptyFrame
	}
	if dec.max > 0 && size > dec.max {
		return nil, fmt.Errorf("frame: declared length %d exceeds limit %d: %w", size, dec.max, ErrLimitExceeded)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(dec.r, payload); err != nil {
		return nil, endOfStream(err)
	}

	if Debug != nil {
		fmt.Fprintln(Debug, ">>DEC", size)
	}

	return payload, nil
}

func endOfStream(err error) error {
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return io.EOF
	}
	return err
}
