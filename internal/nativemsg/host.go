// Package nativemsg implements the browser native messaging protocol: JSON
// payloads prefixed by a 4-byte length in native byte order, exchanged over
// standard input and output.
//
// The same framing is used by Chrome, Chromium, Edge and Firefox.
package nativemsg

import (
	"io"
	"sync"
)

// Host manages the I/O for a native messaging host.
//
// Create a new Host with NewHost().  Run Start() to start the event loop.
// Read and respond to messages from the browser, one at a time, with
// Receive().  Terminate the connection with Close().
type Host struct {
	// MaxRequestBytes limits the size of a single request payload.  Zero
	// means DefaultMaxRequestBytes.  Must be set before Start().
	MaxRequestBytes uint32

	// in receives payloads that were received from the browser.
	// Only written to by Start(), only read by Receive().
	in chan []byte

	// out receives payloads that should be sent to the browser.
	// Only written to by Respond(), only read by Start().
	out chan []byte

	// closed is closed when the connection should be shut down.
	closed    chan struct{}
	closeOnce sync.Once

	// reader is the stream from the browser (typically stdin).
	// Only read by (an anonymous goroutine spawned by) Start().
	reader io.Reader

	// writer is the stream to the browser (typically stdout).
	// Only written to by Start().
	writer io.WriteCloser
}

// NewHost returns a native messaging host that will read requests from the
// given reader, and send responses on the given writer.
func NewHost(in io.Reader, out io.WriteCloser) *Host {
	return &Host{
		in:     make(chan []byte),
		out:    make(chan []byte),
		closed: make(chan struct{}),
		reader: in,
		writer: out,
	}
}

// readResult is a payload or the error that stopped the reader.
type readResult struct {
	payload []byte
	err     error
}

// Start begins listening for messages from the browser, and will return them
// via Receive().  It then waits for a response via Respond(), and will send
// the response to the browser.
//
// Start returns nil when the browser closes the pipe or Close() is called.
// It returns a *MalformedMessageError if a message could not be decoded, in
// which case nothing more is read.  It closes the writer the host was created
// with, but not the reader.
func (h *Host) Start() error {
	readerCh := make(chan readResult)
	done := make(chan struct{})
	defer close(done)

	// Read messages from h.reader and send them to readerCh.
	// This goroutine has exclusive access to h.reader.  It runs until it
	// fails to read a message.
	go func(r io.Reader, maxBytes uint32) {
		defer close(readerCh)
		for {
			buf, err := ReadMessage(r, maxBytes)
			if err == ErrEndOfInput {
				return
			}
			select {
			case readerCh <- readResult{payload: buf, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}(h.reader, h.MaxRequestBytes)

	defer close(h.in)
	defer h.writer.Close()

	for {
		select {
		case r, ok := <-readerCh:
			if !ok {
				// Browser-initiated shutdown.
				return nil
			}
			if r.err != nil {
				return r.err
			}
			h.in <- r.payload
		case <-h.closed:
			// Client-initiated shutdown.
			return nil
		}

		// Don't read more messages until we've responded.
		response := <-h.out
		if err := WriteMessage(h.writer, response); err != nil {
			return err
		}
	}
}

// Responder is an abstraction for responding to a request from the browser.
type Responder struct {
	// response receives a payload for sending to the browser.
	response chan []byte
}

// Respond sends the given response payload to the browser.  Must be called
// exactly once.
func (r Responder) Respond(response []byte) {
	r.response <- response
}

// Receive blocks on receiving one message from the browser, and then returns
// the request payload and a Responder object.  The caller must call the
// Respond() method on the returned object exactly once (and before calling
// Receive again), which will forward the response to the browser.
//
// A nil request means the event loop has stopped.
func (h *Host) Receive() (request []byte, responder *Responder) {
	request, ok := <-h.in
	if !ok {
		return nil, nil
	}
	return request, &Responder{response: h.out}
}

// Close terminates the event loop and indicates that no more messages will
// be processed.  It is safe to call more than once.
func (h *Host) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
	})
}
