package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Encoder writes frames to an io.Writer. Each frame is issued as a single
// Write and concurrent calls to Encode are serialized.
type Encoder struct {
	w io.Writer
	sync.Mutex
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes payload as one frame. Empty payloads are rejected before
// anything is written.
func (enc *Encoder) Encode(payload []byte) error {
	packet, err := Append(nil, payload)
	if err != nil {
		return err
	}

	enc.Lock()
	defer enc.Unlock()

	if Debug != nil {
		fmt.Fprintln(Debug, "<<ENC", len(payload))
	}

	_, err = enc.w.Write(packet)
	return err
}

// Append appends the frame for payload to dst and returns the extended buffer.
func Append(dst []byte, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return dst, ErrZeroLength
	}
	if uint64(len(payload)) > MaxPayloadSize {
		return dst, ErrTooLarge
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}
