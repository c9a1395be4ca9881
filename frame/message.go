package frame

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Message is the unit exchanged over a pipe. It holds either raw bytes
// or text, never both, and is not modified after construction.
type Message struct {
	data   []byte
	text   string
	isText bool
}

// Bytes returns a message holding the raw payload b.
func Bytes(b []byte) Message {
	return Message{data: b}
}

// Text returns a message holding the text s.
func Text(s string) Message {
	return Message{text: s, isText: true}
}

// IsText reports whether the message was constructed from text.
func (m Message) IsText() bool {
	return m.isText
}

// IsEmpty reports whether the message has no payload.
func (m Message) IsEmpty() bool {
	if m.isText {
		return m.text == ""
	}
	return len(m.data) == 0
}

// Len is the byte length of a raw message or the character count of a text message.
func (m Message) Len() int {
	if m.isText {
		return utf8.RuneCountInString(m.text)
	}
	return len(m.data)
}

// Payload returns the bytes sent on the wire: the raw bytes, or the
// UTF-8 encoding of the text.
func (m Message) Payload() []byte {
	if m.isText {
		return []byte(m.text)
	}
	return m.data
}

// Text returns the text of the message. Raw payloads are decoded as
// UTF-8 with trailing NUL characters stripped.
func (m Message) Text() string {
	if m.isText {
		return m.text
	}
	return TrimNUL(string(m.data))
}

func (m Message) String() string {
	if m.isText {
		return fmt.Sprintf("{Text Length:%d}", m.Len())
	}
	return fmt.Sprintf("{Bytes Length:%d}", m.Len())
}

// TrimNUL strips trailing NUL characters from s.
func TrimNUL(s string) string {
	return strings.TrimRight(s, "\x00")
}
