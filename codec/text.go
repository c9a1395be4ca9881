package codec

import (
	"fmt"
	"io"
	"strings"
)

// TextCodec encodes strings as raw UTF-8 without any framing of its own.
// Decoding consumes the whole Reader and strips trailing NUL characters.
type TextCodec struct{}

func (c TextCodec) Encoder(w io.Writer) Encoder {
	return &textEncoder{w: w}
}

func (c TextCodec) Decoder(r io.Reader) Decoder {
	return &textDecoder{r: r}
}

type textEncoder struct {
	w io.Writer
}

func (e *textEncoder) Encode(v interface{}) error {
	var s string
	switch vv := v.(type) {
	case string:
		s = vv
	case *string:
		s = *vv
	case []byte:
		s = string(vv)
	case fmt.Stringer:
		s = vv.String()
	default:
		return fmt.Errorf("codec: text codec cannot encode %T", v)
	}
	_, err := io.WriteString(e.w, s)
	return err
}

type textDecoder struct {
	r io.Reader
}

func (d *textDecoder) Decode(v interface{}) error {
	b, err := io.ReadAll(d.r)
	if err != nil {
		return err
	}
	s := strings.TrimRight(string(b), "\x00")
	switch vv := v.(type) {
	case *string:
		*vv = s
	case *[]byte:
		*vv = []byte(s)
	case *interface{}:
		*vv = s
	default:
		return fmt.Errorf("codec: text codec cannot decode into %T", v)
	}
	return nil
}
