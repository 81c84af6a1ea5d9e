// Package host turns decoded browser requests into JabRef invocations and
// replies.
//
// Every request gets exactly one Response, and at most one JabRef process is
// run for it.  Failures after a request was decoded, including a missing or
// unreachable JabRef, become error responses; nothing is retried.
package host

import (
	"context"
	"errors"
	"time"
)

import (
	"github.com/p00ya/jabref-host/internal/config"
	"github.com/p00ya/jabref-host/internal/log"
	"github.com/p00ya/jabref-host/internal/resolver"
	"github.com/p00ya/jabref-host/internal/runner"
	"go.uber.org/zap"
)

// Runner runs one command to completion.
type Runner interface {
	Run(ctx context.Context, c runner.Command) runner.Result
}

// Dispatcher serves requests against one resolved JabRef location.
type Dispatcher struct {
	// Location is where JabRef was found.  When ResolveErr is a
	// *resolver.NotFoundError, Path is the last candidate tried.
	Location   resolver.Location
	ResolveErr error

	Runner      Runner
	ImportFlag  string
	VersionFlag string
	Env         []string
	Timeout     time.Duration
}

// New returns a Dispatcher configured from cfg.
func New(cfg config.Config, loc resolver.Location, resolveErr error, r Runner) *Dispatcher {
	return &Dispatcher{
		Location:    loc,
		ResolveErr:  resolveErr,
		Runner:      r,
		ImportFlag:  cfg.ImportFlag,
		VersionFlag: cfg.VersionFlag,
		Env:         cfg.CommandEnv(),
		Timeout:     cfg.Timeout,
	}
}

// Handle decodes one JSON payload and returns the reply.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) Response {
	req, err := DecodeRequest(payload)
	if err != nil {
		log.From(ctx).Warn("rejecting request", zap.Error(err))
		return Error(err.Error())
	}

	ctx = log.ContextFields(ctx, zap.String("kind", req.Kind()))
	switch req := req.(type) {
	case ValidateRequest:
		return d.validate(ctx)
	case ImportRequest:
		return d.importEntry(ctx, req.Text)
	default:
		return Error("unsupported request")
	}
}

func (d *Dispatcher) validate(ctx context.Context) Response {
	logger := log.From(ctx)

	var notFound *resolver.NotFoundError
	switch {
	case errors.As(d.ResolveErr, &notFound):
		logger.Warn("validation failed", zap.Error(d.ResolveErr))
		return JarNotFound(d.Location.Path)
	case d.ResolveErr != nil:
		logger.Error("validation failed", zap.Error(d.ResolveErr))
		return Error(d.ResolveErr.Error())
	}

	res := d.run(ctx, d.VersionFlag)
	if !res.OK() {
		logger.Warn("validation failed",
			zap.Int("exit", res.ExitCode()),
			zap.String("output", res.Text()),
			zap.Error(res.Err))
		return JarNotFound(d.tried())
	}
	logger.Info("validated", zap.String("version", res.Text()))
	return JarFound()
}

func (d *Dispatcher) importEntry(ctx context.Context, text string) Response {
	logger := log.From(ctx)
	if d.ResolveErr != nil {
		logger.Error("import failed", zap.Error(d.ResolveErr))
		return Error(d.ResolveErr.Error())
	}

	logger.Debug("importing", zap.Int("bytes", len(text)), zap.String("text", text))
	res := d.run(ctx, d.ImportFlag, text)
	if !res.OK() {
		logger.Error("import failed",
			zap.Int("exit", res.ExitCode()),
			zap.String("output", res.Text()),
			zap.Error(res.Err))
		return Error(res.Text())
	}
	logger.Info("imported", zap.String("output", res.Text()))
	return OK(res.Text())
}

// tried describes the location for a failed validation: the path alone, or
// the whole command line when a helper runs JabRef.
func (d *Dispatcher) tried() string {
	if len(d.Location.Args) == 0 {
		return d.Location.Path
	}
	return d.Location.String()
}

// run invokes JabRef once with the given arguments.
func (d *Dispatcher) run(ctx context.Context, args ...string) runner.Result {
	path, full := d.Location.Command(args...)
	res := d.Runner.Run(ctx, runner.Command{
		Path:    path,
		Args:    full,
		Env:     d.Env,
		Timeout: d.Timeout,
	})
	log.From(ctx).Debug("finished",
		zap.String("path", res.Path),
		zap.Int("args", len(res.Args)),
		zap.Duration("timeout", d.Timeout),
		zap.Duration("elapsed", res.Stopped.Sub(res.Started)),
		zap.Int("exit", res.ExitCode()))
	return res
}
