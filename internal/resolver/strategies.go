package resolver

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

import "github.com/kballard/go-shellquote"

// Strategy names, in the default order.
const (
	StrategyConfigured = "configured"
	StrategyPortable   = "portable"
	StrategyPathLower  = "path-lower"
	StrategyPathUpper  = "path-upper"
	StrategySandbox    = "sandbox"
	StrategyWellKnown  = "well-known"
)

// errHelperMissing must not match ErrNotFound, so that a broken sandbox stops
// resolution.
var errHelperMissing = errors.New("not found in PATH")

// flatpakApp is the Flatpak application id of JabRef.
const flatpakApp = "org.jabref.jabref"

// Default returns the canonical strategy list.  Command lines in configured
// are tried first, in order.
func Default(configured []string) []Strategy {
	var strategies []Strategy
	if len(configured) > 0 {
		strategies = append(strategies, Strategy{StrategyConfigured, Configured(configured)})
	}
	return append(strategies,
		Strategy{StrategyPortable, Portable},
		Strategy{StrategyPathLower, SearchPath("jabref")},
		Strategy{StrategyPathUpper, SearchPath("JabRef")},
		Strategy{StrategySandbox, Sandbox},
		Strategy{StrategyWellKnown, WellKnown},
	)
}

// Configured tries user supplied command lines such as
// "flatpak run org.jabref.jabref".  The first word is looked up on PATH
// unless it contains a path separator.
func Configured(cmdlines []string) func(env *Env) (Location, error) {
	return func(env *Env) (Location, error) {
		for _, line := range cmdlines {
			argv, err := shellquote.Split(line)
			if err != nil {
				return Location{}, fmt.Errorf("parsing executable %q: %w", line, err)
			}
			if len(argv) == 0 {
				continue
			}

			if strings.ContainsAny(argv[0], `/\`) {
				if env.executable(argv[0]) {
					return Location{Path: argv[0], Args: argv[1:]}, nil
				}
				continue
			}
			if p, ok := env.lookPath(argv[0]); ok {
				return Location{Path: p, Args: argv[1:]}, nil
			}
		}
		return Location{}, ErrNotFound
	}
}

// Portable looks for JabRef relative to the host binary, which is how the
// portable archives and installers lay things out.
func Portable(env *Env) (Location, error) {
	if env.Executable == "" {
		return Location{}, ErrNotFound
	}
	dir := filepath.Dir(env.Executable)

	switch env.GOOS {
	case "windows":
		return env.firstExecutable(
			filepath.Join(dir, "JabRef.exe"),
			filepath.Join(dir, "..", "JabRef.exe"),
		)
	case "darwin":
		return env.firstExecutable(
			filepath.Join(dir, "..", "MacOS", "JabRef"),
			filepath.Join(dir, "..", "bin", "JabRef"),
		)
	default:
		return env.firstExecutable(
			filepath.Join(dir, "..", "bin", "JabRef"),
			filepath.Join(dir, "JabRef"),
		)
	}
}

// SearchPath returns a strategy that finds a launcher by name on PATH.
func SearchPath(name string) func(env *Env) (Location, error) {
	return func(env *Env) (Location, error) {
		if p, ok := env.lookPath(name); ok {
			return Location{Path: p}, nil
		}
		return Location{}, ErrNotFound
	}
}

// Sandbox escapes a Flatpak sandbox with flatpak-spawn, and runs the JabRef
// Flatpak on the host.  It only applies when FLATPAK_ID is set.
func Sandbox(env *Env) (Location, error) {
	if env.Getenv("FLATPAK_ID") == "" {
		return Location{}, ErrNotFound
	}

	const helper = "flatpak-spawn"
	p, ok := env.lookPath(helper)
	if !ok {
		return Location{}, &ConfinementError{Sandbox: "flatpak", Helper: helper, Err: errHelperMissing}
	}
	return Location{Path: p, Args: []string{"--host", "flatpak", "run", flatpakApp}}, nil
}

// WellKnown checks the standard install locations of each platform.
func WellKnown(env *Env) (Location, error) {
	return env.firstExecutable(wellKnownPaths(env)...)
}

func wellKnownPaths(env *Env) []string {
	home := env.Getenv("HOME")
	switch env.GOOS {
	case "darwin":
		paths := []string{"/Applications/JabRef.app/Contents/MacOS/JabRef"}
		if home != "" {
			paths = append(paths, filepath.Join(home, "Applications", "JabRef.app", "Contents", "MacOS", "JabRef"))
		}
		return paths
	case "windows":
		var paths []string
		for _, v := range []string{"LOCALAPPDATA", "ProgramFiles"} {
			if dir := env.Getenv(v); dir != "" {
				paths = append(paths, filepath.Join(dir, "JabRef", "JabRef.exe"))
			}
		}
		return paths
	default:
		paths := []string{
			"/opt/jabref/bin/JabRef",
			"/snap/bin/jabref",
			"/var/lib/flatpak/exports/bin/" + flatpakApp,
		}
		if home != "" {
			paths = append(paths, filepath.Join(home, ".local", "share", "flatpak", "exports", "bin", flatpakApp))
		}
		return paths
	}
}
