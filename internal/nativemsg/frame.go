package nativemsg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// headerLen is the number of bytes in the native messaging header.
const headerLen = 4

// DefaultMaxRequestBytes is the default limit on the length of a message from
// the browser (not including the 4-byte header).
const DefaultMaxRequestBytes = 64 << 20

// MaxResponseBytes is the largest message a browser accepts from a native
// messaging host.
const MaxResponseBytes = 1 << 20

// ErrEndOfInput means the browser closed the pipe before a complete header
// could be read.  It is the normal way for a host to be told to exit.
var ErrEndOfInput = errors.New("end of input")

// MalformedMessageError reports a message whose header was read, but whose
// body was truncated, too long, or not UTF-8 encoded JSON.
type MalformedMessageError struct {
	Length uint32
	Reason string
	Err    error
}

func (e *MalformedMessageError) Error() string {
	msg := fmt.Sprintf("malformed %d-byte message: %s", e.Length, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// ReadMessage reads one framed message and returns its JSON payload.
//
// It returns ErrEndOfInput if fewer than 4 header bytes are available, and a
// *MalformedMessageError if the payload is unusable.  A maxBytes of 0 means
// DefaultMaxRequestBytes.
func ReadMessage(in io.Reader, maxBytes uint32) ([]byte, error) {
	if maxBytes == 0 {
		maxBytes = DefaultMaxRequestBytes
	}

	header := make([]byte, headerLen)
	switch _, err := io.ReadFull(in, header); {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		// Clean shutdown from the browser's end.
		return nil, ErrEndOfInput
	case err != nil:
		return nil, err
	}

	payloadLen := nativeEndian.Uint32(header)
	if payloadLen > maxBytes {
		return nil, &MalformedMessageError{
			Length: payloadLen,
			Reason: fmt.Sprintf("want at most %d bytes", maxBytes),
		}
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(in, payload); err != nil {
		return nil, &MalformedMessageError{Length: payloadLen, Reason: "short body", Err: err}
	}
	if !utf8.Valid(payload) {
		return nil, &MalformedMessageError{Length: payloadLen, Reason: "invalid UTF-8"}
	}
	if !json.Valid(payload) {
		return nil, &MalformedMessageError{Length: payloadLen, Reason: "invalid JSON"}
	}
	return payload, nil
}

// flusher is implemented by buffered writers such as *bufio.Writer.
type flusher interface {
	Flush() error
}

// WriteMessage frames the payload and writes it in full, flushing the writer
// if it is buffered.
func WriteMessage(out io.Writer, payload []byte) error {
	if uint64(len(payload)) > 1<<32-1 {
		return fmt.Errorf("payload of %d bytes does not fit the header", len(payload))
	}
	buf := make([]byte, headerLen+len(payload))
	nativeEndian.PutUint32(buf[:headerLen], uint32(len(payload)))
	copy(buf[headerLen:], payload)

	for len(buf) > 0 {
		switch n, err := out.Write(buf); {
		case err != nil:
			return err
		case n == 0:
			return io.ErrShortWrite
		default:
			buf = buf[n:]
		}
	}

	if f, ok := out.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Marshal encodes v as JSON without HTML escaping, so that bibliographic text
// keeps its literal ampersands and angle brackets.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ReadJSON reads one message and decodes it into v.
func ReadJSON(in io.Reader, maxBytes uint32, v any) error {
	payload, err := ReadMessage(in, maxBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &MalformedMessageError{Length: uint32(len(payload)), Reason: "decoding", Err: err}
	}
	return nil
}

// WriteJSON encodes v and writes it as one message.
func WriteJSON(out io.Writer, v any) error {
	payload, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return WriteMessage(out, payload)
}
