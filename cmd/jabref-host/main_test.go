package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

import (
	"github.com/kballard/go-shellquote"
	"github.com/p00ya/jabref-host/internal/config"
	"github.com/p00ya/jabref-host/internal/nativemsg"
	"github.com/p00ya/jabref-host/internal/resolver"
	"github.com/p00ya/jabref-host/internal/runner"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeJabRefEnv makes the test binary behave like JabRef.  With the value
// "echo", imports print the BibTeX text back.
const fakeJabRefEnv = "JABREF_HOST_FAKE_JABREF"

func TestMain(m *testing.M) {
	if mode := os.Getenv(fakeJabRefEnv); mode != "" {
		os.Exit(fakeJabRef(os.Args[1:], mode))
	}
	goleak.VerifyTestMain(m)
}

// fakeJabRef mimics the JabRef command line and returns the exit status.
func fakeJabRef(args []string, mode string) int {
	switch {
	case len(args) == 1 && args[0] == "--version":
		fmt.Println("JabRef 5.15")
		return 0
	case len(args) == 2 && args[0] == "--importBibtex":
		switch {
		case args[1] == "@fail":
			fmt.Fprintln(os.Stderr, "Import failed")
			return 1
		case mode == "echo":
			fmt.Print(args[1])
		default:
			fmt.Println("Imported")
		}
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unexpected arguments %q\n", args)
		return 64
	}
}

// output collects what the host sends to the browser.
type output struct {
	bytes.Buffer
	closed bool
}

func (o *output) Close() error {
	o.closed = true
	return nil
}

// brokenPipe fails every write, like a browser that went away.
type brokenPipe struct{}

func (brokenPipe) Write([]byte) (int, error) { return 0, fs.ErrClosed }
func (brokenPipe) Close() error              { return nil }

func frames(t *testing.T, payloads ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, p := range payloads {
		require.NoError(t, nativemsg.WriteMessage(&buf, []byte(p)))
	}
	return buf.Bytes()
}

// replies decodes every message the host wrote.
func replies(t *testing.T, out []byte) []string {
	t.Helper()
	r := bytes.NewReader(out)
	var got []string
	for {
		payload, err := nativemsg.ReadMessage(r, 0)
		if errors.Is(err, nativemsg.ErrEndOfInput) {
			return got
		}
		require.NoError(t, err)
		got = append(got, string(payload))
	}
}

// writeConfig writes a config that runs the test binary as JabRef.
func writeConfig(t *testing.T, mode string) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	dir := t.TempDir()
	yaml := fmt.Sprintf("executables:\n  - %q\nenv:\n  %s: %q\nlog_file: %q\nverbose: true\ntimeout: 30s\n",
		shellquote.Join(exe), fakeJabRefEnv, mode, filepath.Join(dir, "host.log"))
	path := filepath.Join(dir, "jabref-host.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}

// nowhere is a machine without JabRef.
func nowhere() resolver.Env {
	return resolver.Env{
		GOOS:     "linux",
		Getenv:   func(string) string { return "" },
		LookPath: func(string) (string, error) { return "", errors.New("not in PATH") },
		Stat:     func(string) (fs.FileInfo, error) { return nil, fs.ErrNotExist },
	}
}

// session runs the host command once.
type session struct {
	stdin  []byte
	stdout io.WriteCloser
	system func() resolver.Env
	args   []string
	// interactive pretends stdin is a terminal.
	interactive bool
}

func (s session) run(t *testing.T) error {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	// Keep the default config and log out of the real user directories.
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("AppData", filepath.Join(home, "AppData"))
	if s.system == nil {
		s.system = resolver.System
	}
	a := &app{
		stdin:       bytes.NewReader(s.stdin),
		stdout:      s.stdout,
		stderr:      io.Discard,
		interactive: func() bool { return s.interactive },
		system:      s.system,
		runner:      runner.Exec{},
	}
	cmd := newRootCmd(a)
	cmd.SetArgs(s.args)
	err := cmd.Execute()
	a.close()
	return err
}

func TestHostImport(t *testing.T) {
	var out output
	err := session{
		stdin:  frames(t, `{"text":"@article{x}"}`),
		stdout: &out,
		args:   []string{"--config", writeConfig(t, "1"), "chrome-extension://bifehkofibaamoeaopjglfkddgkijdlh/"},
	}.run(t)
	require.NoError(t, err)
	require.True(t, out.closed)
	require.Equal(t, []string{`{"message":"ok","output":"Imported"}`}, replies(t, out.Bytes()))
}

func TestHostSession(t *testing.T) {
	text := "@misc{a,\n  title = {\"Tom\" & <Jerry>},\n}"
	request, err := nativemsg.Marshal(map[string]string{"text": text})
	require.NoError(t, err)

	var out output
	err = session{
		stdin: frames(t,
			`{"status":"validate"}`,
			string(request),
			`{"title":"no text"}`,
			`{"text":"@fail"}`,
			`{"status":"validate"}`),
		stdout: &out,
		args:   []string{"--config", writeConfig(t, "echo"), "/usr/lib/mozilla/native-messaging-hosts/org.jabref.jabref.json", "browserextension@jabref.org"},
	}.run(t)
	require.NoError(t, err)

	got := replies(t, out.Bytes())
	require.Len(t, got, 5)
	require.Equal(t, `{"message":"jarFound"}`, got[0])
	require.Equal(t, `{"message":"ok","output":"@misc{a,\n  title = {\"Tom\" & <Jerry>},\n}"}`, got[1])
	require.True(t, strings.HasPrefix(got[2], `{"message":"error","output":`), got[2])
	require.Equal(t, `{"message":"error","output":"Import failed"}`, got[3])
	require.Equal(t, `{"message":"jarFound"}`, got[4])
}

func TestHostNotFound(t *testing.T) {
	var out output
	err := session{
		stdin:  frames(t, `{"status":"validate"}`, `{"text":"@article{x}"}`),
		stdout: &out,
		system: nowhere,
	}.run(t)
	require.NoError(t, err)

	got := replies(t, out.Bytes())
	require.Len(t, got, 2)
	require.Equal(t, `{"message":"jarNotFound","path":"/var/lib/flatpak/exports/bin/org.jabref.jabref"}`, got[0])
	require.True(t, strings.HasPrefix(got[1], `{"message":"error","output":"JabRef executable not found`), got[1])
}

func TestHostEndOfInput(t *testing.T) {
	for _, in := range [][]byte{nil, {0x0d, 0x00}} {
		var out output
		err := session{stdin: in, stdout: &out, system: nowhere}.run(t)
		require.NoError(t, err)
		require.Zero(t, out.Len())
		require.Equal(t, exitSuccess, exitCode(io.Discard, err))
	}
}

func TestHostMalformed(t *testing.T) {
	// The header promises 13 bytes, but only 11 follow.
	in := frames(t, `{"text":"ab"}`)
	in = in[:len(in)-2]

	var out output
	err := session{stdin: in, stdout: &out, system: nowhere}.run(t)
	var malformed *nativemsg.MalformedMessageError
	require.ErrorAs(t, err, &malformed)
	require.Zero(t, out.Len())
	require.Equal(t, exitMalformed, exitCode(io.Discard, err))
}

func TestHostWriteFailure(t *testing.T) {
	err := session{
		stdin:  frames(t, `{"status":"validate"}`),
		stdout: brokenPipe{},
		system: nowhere,
	}.run(t)
	require.ErrorIs(t, err, fs.ErrClosed)
	require.Equal(t, exitFailure, exitCode(io.Discard, err))
}

func TestHostInteractive(t *testing.T) {
	var out output
	err := session{stdout: &out, interactive: true, system: nowhere}.run(t)
	require.Error(t, err)
	require.Equal(t, exitInvalidUsage, exitCode(io.Discard, err))
	require.Zero(t, out.Len())
}

func TestHostBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: soon\n"), 0644))

	var out output
	err := session{stdout: &out, system: nowhere, args: []string{"--config", path}}.run(t)
	require.ErrorContains(t, err, "parsing config")
	require.Equal(t, exitFailure, exitCode(io.Discard, err))
}

func TestResolveCmd(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	var out output
	err = session{stdout: &out, args: []string{"resolve", "--config", writeConfig(t, "1")}}.run(t)
	require.NoError(t, err)
	require.Equal(t, resolver.StrategyConfigured+"\t"+shellquote.Join(exe)+"\n", out.String())

	out.Reset()
	err = session{stdout: &out, system: nowhere, args: []string{"resolve"}}.run(t)
	require.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestVersionCmd(t *testing.T) {
	var out output
	err := session{stdout: &out, args: []string{"version"}}.run(t)
	require.NoError(t, err)
	require.Contains(t, out.String(), "jabref-host:")
}

func TestUnknownFlag(t *testing.T) {
	var out output
	err := session{stdout: &out, args: []string{"--bogus"}}.run(t)
	require.Equal(t, exitInvalidUsage, exitCode(io.Discard, err))
}
