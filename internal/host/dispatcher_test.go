package host_test

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

import (
	"github.com/p00ya/jabref-host/internal/config"
	"github.com/p00ya/jabref-host/internal/host"
	"github.com/p00ya/jabref-host/internal/resolver"
	"github.com/p00ya/jabref-host/internal/runner"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands and replies with a canned result.
type fakeRunner struct {
	calls  []runner.Command
	output string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, c runner.Command) runner.Result {
	f.calls = append(f.calls, c)
	now := time.Now()
	return runner.Result{
		Path:    c.Path,
		Args:    c.Args,
		Started: now,
		Stopped: now,
		Output:  bytes.NewBufferString(f.output),
		Err:     f.err,
	}
}

var jabref = resolver.Location{Path: "/usr/bin/jabref", Strategy: resolver.StrategyPathLower}

func newDispatcher(loc resolver.Location, resolveErr error, r host.Runner) *host.Dispatcher {
	cfg := config.Default()
	cfg.Timeout = 5 * time.Second
	return host.New(cfg, loc, resolveErr, r)
}

func TestValidate(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		r := &fakeRunner{output: "JabRef 5.15\n"}
		d := newDispatcher(jabref, nil, r)
		got := d.Handle(context.Background(), []byte(`{"status":"validate"}`))
		require.Equal(t, host.JarFound(), got)

		require.Len(t, r.calls, 1)
		require.Equal(t, "/usr/bin/jabref", r.calls[0].Path)
		require.Equal(t, []string{"--version"}, r.calls[0].Args)
		require.Equal(t, 5*time.Second, r.calls[0].Timeout)
	})

	t.Run("version query fails", func(t *testing.T) {
		r := &fakeRunner{output: "Error: could not find or load main class", err: errors.New("exit status 1")}
		d := newDispatcher(jabref, nil, r)
		got := d.Handle(context.Background(), []byte(`{"status":"validate"}`))
		require.Equal(t, host.JarNotFound("/usr/bin/jabref"), got)
		require.Len(t, r.calls, 1)
	})

	t.Run("sandbox command fails", func(t *testing.T) {
		r := &fakeRunner{err: errors.New("exit status 1")}
		loc := resolver.Location{
			Path:     "/usr/bin/flatpak-spawn",
			Args:     []string{"--host", "flatpak", "run", "org.jabref.jabref"},
			Strategy: resolver.StrategySandbox,
		}
		d := newDispatcher(loc, nil, r)
		got := d.Handle(context.Background(), []byte(`{"status":"validate"}`))
		require.Equal(t, host.JarNotFound("/usr/bin/flatpak-spawn --host flatpak run org.jabref.jabref"), got)
	})

	t.Run("not resolved", func(t *testing.T) {
		r := &fakeRunner{}
		last := "/var/lib/flatpak/exports/bin/org.jabref.jabref"
		notFound := &resolver.NotFoundError{Tried: []string{"jabref", "JabRef", last}}
		d := newDispatcher(resolver.Location{Path: last}, notFound, r)
		got := d.Handle(context.Background(), []byte(`{"status":"validate"}`))
		require.Equal(t, host.JarNotFound(last), got)
		require.Empty(t, r.calls)
	})

	t.Run("sandbox helper missing", func(t *testing.T) {
		r := &fakeRunner{}
		confinement := &resolver.ConfinementError{Sandbox: "flatpak", Helper: "flatpak-spawn", Err: exec.ErrNotFound}
		d := newDispatcher(resolver.Location{}, confinement, r)
		got := d.Handle(context.Background(), []byte(`{"status":"validate"}`))
		require.Equal(t, host.MessageError, got.Message)
		require.Contains(t, got.Output, "flatpak-spawn")
		require.Empty(t, r.calls)
	})
}

func TestImport(t *testing.T) {
	t.Run("imported", func(t *testing.T) {
		r := &fakeRunner{output: "Imported"}
		d := newDispatcher(jabref, nil, r)
		got := d.Handle(context.Background(), []byte(`{"text":"@article{x}"}`))
		require.Equal(t, host.OK("Imported"), got)
		require.Equal(t, []string{"--importBibtex", "@article{x}"}, r.calls[0].Args)
	})

	t.Run("text is one argument", func(t *testing.T) {
		text := "@article{x,\n  title = {\"Tom\" & 'Jerry' \\emph{ok}},\n}"
		r := &fakeRunner{}
		loc := resolver.Location{Path: "/usr/bin/flatpak-spawn", Args: []string{"--host", "flatpak", "run", "org.jabref.jabref"}}
		d := newDispatcher(loc, nil, r)
		payload := []byte(`{"text":"@article{x,\n  title = {\"Tom\" & 'Jerry' \\emph{ok}},\n}"}`)
		got := d.Handle(context.Background(), payload)
		require.Equal(t, host.MessageOK, got.Message)
		require.Equal(t, []string{"--host", "flatpak", "run", "org.jabref.jabref", "--importBibtex", text}, r.calls[0].Args)
	})

	t.Run("import fails", func(t *testing.T) {
		r := &fakeRunner{output: "Could not parse entry", err: errors.New("exit status 2")}
		d := newDispatcher(jabref, nil, r)
		got := d.Handle(context.Background(), []byte(`{"text":"garbage"}`))
		require.Equal(t, host.Error("Could not parse entry"), got)
	})

	t.Run("spawn fails without output", func(t *testing.T) {
		r := &fakeRunner{err: errors.New("fork/exec /usr/bin/jabref: permission denied")}
		d := newDispatcher(jabref, nil, r)
		got := d.Handle(context.Background(), []byte(`{"text":"@misc{y}"}`))
		require.Equal(t, host.Error("fork/exec /usr/bin/jabref: permission denied"), got)
	})

	t.Run("not resolved", func(t *testing.T) {
		r := &fakeRunner{}
		notFound := &resolver.NotFoundError{Tried: []string{"jabref"}}
		d := newDispatcher(resolver.Location{Path: "jabref"}, notFound, r)
		got := d.Handle(context.Background(), []byte(`{"text":"@misc{y}"}`))
		require.Equal(t, host.MessageError, got.Message)
		require.Contains(t, got.Output, "not found")
		require.Empty(t, r.calls)
	})
}

func TestMissingField(t *testing.T) {
	r := &fakeRunner{}
	d := newDispatcher(jabref, nil, r)
	got := d.Handle(context.Background(), []byte(`{"title":"no text"}`))
	require.Equal(t, host.MessageError, got.Message)
	require.Contains(t, got.Output, `"text"`)
	require.Empty(t, r.calls)
}

func TestNewUsesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ImportFlag = "--import"
	cfg.VersionFlag = "-v"
	cfg.Env = map[string]string{"JAVA_OPTS": "-Xmx1g"}

	r := &fakeRunner{}
	d := host.New(cfg, jabref, nil, r)
	d.Handle(context.Background(), []byte(`{"status":"validate"}`))
	d.Handle(context.Background(), []byte(`{"text":"t"}`))

	require.Len(t, r.calls, 2)
	require.Equal(t, []string{"-v"}, r.calls[0].Args)
	require.Equal(t, []string{"--import", "t"}, r.calls[1].Args)
	require.Equal(t, []string{"JAVA_OPTS=-Xmx1g"}, r.calls[1].Env)
	require.Zero(t, r.calls[1].Timeout)
}
