// Package resolver locates the JabRef executable without user configuration.
//
// Resolution walks an ordered list of strategies; the first one that finds
// an executable wins.  A strategy reports "not here" with ErrNotFound, and
// any other error stops the walk.
package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

import "github.com/kballard/go-shellquote"

// ErrNotFound is returned by a strategy that found nothing.
var ErrNotFound = errors.New("executable not found")

// Location is a resolved way of running JabRef.  Args are prepended to every
// invocation, which is how sandbox helpers are expressed.
type Location struct {
	Path     string
	Args     []string
	Strategy string
}

// Command returns the program and full argument list for running JabRef
// with the given arguments.
func (l Location) Command(args ...string) (string, []string) {
	full := make([]string, 0, len(l.Args)+len(args))
	full = append(full, l.Args...)
	full = append(full, args...)
	return l.Path, full
}

// String returns the location as a shell-quoted command line.
func (l Location) String() string {
	return shellquote.Join(append([]string{l.Path}, l.Args...)...)
}

// NotFoundError reports that no strategy found an executable.
type NotFoundError struct {
	// Tried lists every path that was checked, in order.
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("JabRef executable not found, tried: %s", strings.Join(e.Tried, ", "))
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Last returns the last path that was tried, or "" if none was.
func (e *NotFoundError) Last() string {
	if len(e.Tried) == 0 {
		return ""
	}
	return e.Tried[len(e.Tried)-1]
}

// ConfinementError reports that the host runs inside a sandbox, but the
// helper needed to leave it is not usable.
type ConfinementError struct {
	Sandbox string
	Helper  string
	Err     error
}

func (e *ConfinementError) Error() string {
	return fmt.Sprintf("running inside %s, but sandbox helper %s is not accessible: %v", e.Sandbox, e.Helper, e.Err)
}

func (e *ConfinementError) Unwrap() error {
	return e.Err
}

// Env is the view of the system that strategies use.  The zero value is not
// usable; see System().
type Env struct {
	// GOOS selects the platform specific candidates.
	GOOS string
	// Executable is the path of the running host binary.
	Executable string
	Getenv     func(string) string
	LookPath   func(string) (string, error)
	Stat       func(string) (fs.FileInfo, error)

	// tried collects every candidate path, for NotFoundError.
	tried []string
}

// System returns an Env backed by the running process.
func System() Env {
	exe, err := os.Executable()
	if err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
	}
	return Env{
		GOOS:       runtime.GOOS,
		Executable: exe,
		Getenv:     os.Getenv,
		LookPath:   exec.LookPath,
		Stat:       os.Stat,
	}
}

// Strategy is one way of finding JabRef.
type Strategy struct {
	Name string
	Find func(env *Env) (Location, error)
}

// Resolve runs the strategies in order and returns the first Location found.
//
// If nothing is found it returns a *NotFoundError, together with a Location
// holding the last path that was tried, so that callers can still report it.
func Resolve(env Env, strategies []Strategy) (Location, error) {
	env.tried = nil
	for _, s := range strategies {
		loc, err := s.Find(&env)
		switch {
		case err == nil:
			loc.Strategy = s.Name
			return loc, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return Location{Strategy: s.Name}, fmt.Errorf("%s: %w", s.Name, err)
		}
	}

	notFound := &NotFoundError{Tried: env.tried}
	return Location{Path: notFound.Last()}, notFound
}

// executable checks that name is an executable regular file, and records it
// as tried.
func (env *Env) executable(name string) bool {
	env.tried = append(env.tried, name)
	fi, err := env.Stat(name)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	// Windows has no execute bit.
	return env.GOOS == "windows" || fi.Mode()&0111 != 0
}

// lookPath searches PATH for name, recording it as tried.
func (env *Env) lookPath(name string) (string, bool) {
	env.tried = append(env.tried, name)
	p, err := env.LookPath(name)
	return p, err == nil
}

// firstExecutable returns a Location for the first executable path.
func (env *Env) firstExecutable(paths ...string) (Location, error) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if env.executable(p) {
			return Location{Path: p}, nil
		}
	}
	return Location{}, ErrNotFound
}
