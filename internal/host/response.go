package host

import (
	"unicode/utf8"
)

import "github.com/p00ya/jabref-host/internal/nativemsg"

// Values of Response.Message.
const (
	MessageOK          = "ok"
	MessageError       = "error"
	MessageJarFound    = "jarFound"
	MessageJarNotFound = "jarNotFound"
)

// Response is the reply sent to the browser.  Which of Output and Path is
// present depends on Message.
type Response struct {
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
	Path    string `json:"path,omitempty"`
}

// OK reports a successful import.
func OK(output string) Response {
	return Response{Message: MessageOK, Output: output}
}

// Error reports a failed import, or a request that could not be served.
func Error(output string) Response {
	return Response{Message: MessageError, Output: output}
}

// JarFound reports a successful validation.
func JarFound() Response {
	return Response{Message: MessageJarFound}
}

// JarNotFound reports a failed validation of the executable at path.
func JarNotFound(path string) Response {
	return Response{Message: MessageJarNotFound, Path: path}
}

// MarshalJSON always includes the payload field of the message, even when it
// is empty, and leaves out the other one.
func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Message {
	case MessageOK, MessageError:
		return nativemsg.Marshal(struct {
			Message string `json:"message"`
			Output  string `json:"output"`
		}{r.Message, r.Output})
	case MessageJarNotFound:
		return nativemsg.Marshal(struct {
			Message string `json:"message"`
			Path    string `json:"path"`
		}{r.Message, r.Path})
	default:
		return nativemsg.Marshal(struct {
			Message string `json:"message"`
		}{r.Message})
	}
}

// truncationMarker ends an output that was cut to fit a message.
const truncationMarker = "\n[output truncated]"

// Encode marshals the response, cutting Output on a UTF-8 boundary so that
// the encoding fits in limit bytes.  A cut Output ends with the truncation
// marker.  If not even the marker fits, Output is left empty.
func Encode(r Response, limit int) ([]byte, error) {
	b, err := nativemsg.Marshal(r)
	if err != nil || len(b) <= limit || r.Output == "" {
		return b, err
	}

	full := r.Output
	// Escaping grows a byte up to six times, so fit is measured encoded.
	encode := func(n int) ([]byte, error) {
		r.Output = full[:runeStart(full, n)] + truncationMarker
		return nativemsg.Marshal(r)
	}

	// Invariant: prefixes up to lo fit, or lo is 0.
	lo, hi := 0, len(full)-1
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		b, err := encode(mid)
		if err != nil {
			return nil, err
		}
		if len(b) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	if b, err = encode(lo); err != nil || len(b) <= limit {
		return b, err
	}
	r.Output = ""
	return nativemsg.Marshal(r)
}

// runeStart moves n back to the start of the rune containing s[n].
func runeStart(s string, n int) int {
	for n > 0 && n < len(s) && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
