package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// maxLineSize bounds one frame; TX_EVENT frames carry full transactions.
const maxLineSize = 8 << 20

// ErrMalformedFrame marks a frame that could not be decoded. The stream
// remains readable after it.
var ErrMalformedFrame = errors.New("ipc: malformed frame")

// Encoder writes one JSON message per line. Safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes msg followed by a newline.
func (e *Encoder) Encode(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("ipc: encode %s: %w", msg.Type, err)
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("ipc: write %s: %w", msg.Type, err)
	}
	return nil
}

// Send builds and encodes a message.
func (e *Encoder) Send(t Type, payload any) error {
	msg, err := New(t, payload)
	if err != nil {
		return err
	}
	return e.Encode(msg)
}

// Decoder reads line-delimited messages.
type Decoder struct {
	sc *bufio.Scanner
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Decoder{sc: sc}
}

// Decode returns the next message. Blank lines are skipped. It returns
// io.EOF when the stream ends.
func (d *Decoder) Decode() (Message, error) {
	for d.sc.Scan() {
		line := d.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if msg.Type == "" {
			return Message{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
		}
		return msg, nil
	}
	if err := d.sc.Err(); err != nil {
		return Message{}, fmt.Errorf("ipc: read: %w", err)
	}
	return Message{}, io.EOF
}
