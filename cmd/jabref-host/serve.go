package main

import (
	"context"
	"io"
)

import (
	"github.com/google/uuid"
	"github.com/p00ya/jabref-host/internal/host"
	"github.com/p00ya/jabref-host/internal/log"
	"github.com/p00ya/jabref-host/internal/nativemsg"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// encodingFailed is sent when a response cannot be encoded at all.
var encodingFailed = []byte(`{"message":"error","output":"could not encode response"}`)

// serve answers requests from in on out, one at a time, until the browser
// closes in.  It returns the error that stopped the host, if any.
func serve(ctx context.Context, in io.Reader, out io.WriteCloser, d *host.Dispatcher, maxRequestBytes uint32) error {
	h := nativemsg.NewHost(in, out)
	h.MaxRequestBytes = maxRequestBytes

	var g errgroup.Group
	g.Go(h.Start)
	g.Go(func() error {
		defer h.Close()
		for {
			req, responder := h.Receive()
			if req == nil {
				// Clean exit - the browser destroyed the native messaging port.
				return nil
			}

			ctx := log.ContextFields(ctx, zap.String("request", uuid.NewString()))
			buf, err := host.Encode(d.Handle(ctx, req), nativemsg.MaxResponseBytes)
			if err != nil {
				log.From(ctx).Error("encoding response", zap.Error(err))
				buf = encodingFailed
			}
			responder.Respond(buf)
		}
	})
	return g.Wait()
}
