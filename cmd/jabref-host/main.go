// package main implements a browser native messaging host that hands BibTeX
// entries from the JabRef browser extension to a locally installed JabRef.
//
// Browsers start the host with the caller's origin as an argument; the
// install and uninstall subcommands register it with the browsers.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
)

import (
	"github.com/mattn/go-isatty"
	"github.com/p00ya/jabref-host/internal/config"
	"github.com/p00ya/jabref-host/internal/host"
	"github.com/p00ya/jabref-host/internal/log"
	"github.com/p00ya/jabref-host/internal/nativemsg"
	"github.com/p00ya/jabref-host/internal/resolver"
	"github.com/p00ya/jabref-host/internal/runner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exitSuccess      = 0
	exitInvalidUsage = 1
	exitMalformed    = 1
	exitFailure      = 2
)

// usageError marks errors caused by how the host was invoked.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// app is the state shared by the commands.
type app struct {
	stdin  io.Reader
	stdout io.WriteCloser
	stderr io.Writer

	// interactive reports whether stdin is a terminal.
	interactive func() bool
	// system returns the view of the machine used to find JabRef.
	system func() resolver.Env
	runner host.Runner

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagParentWindow   int    // value of --parent-window, passed by Chrome on Windows

	configPath string // config file used (it may not exist)
	config     config.Config
	logger     *zap.Logger
	closeLog   func()
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func main() {
	a := &app{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		interactive: stdinIsTerminal,
		system:      resolver.System,
		runner:      runner.Exec{},
	}
	err := newRootCmd(a).Execute()
	a.close()
	os.Exit(exitCode(a.stderr, err))
}

// exitCode reports err on w and maps it to the process exit status.
func exitCode(w io.Writer, err error) int {
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintf(w, "Error: %v\n", err)

	var malformed *nativemsg.MalformedMessageError
	var usage usageError
	switch {
	case errors.As(err, &malformed):
		return exitMalformed
	case errors.As(err, &usage):
		return exitInvalidUsage
	default:
		return exitFailure
	}
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jabref-host [ORIGIN]...",
		Short: "Native messaging host connecting the JabRef browser extension to JabRef",
		// Browsers pass the caller's origin, and Firefox also passes the
		// manifest path.
		Args:              cobra.ArbitraryArgs,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runHost,
	}
	rootCmd.SetIn(a.stdin)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	rootCmd.PersistentFlags().StringVar(&a.flagConfigFilePath, "config", "", "Config file to load; $"+config.EnvConfig+" takes precedence")
	rootCmd.PersistentFlags().BoolVar(&a.flagVerbose, "verbose", false, "verbose logging")
	rootCmd.Flags().IntVar(&a.flagParentWindow, "parent-window", 0, "native window handle of the calling browser")
	_ = rootCmd.Flags().MarkHidden("parent-window")

	rootCmd.AddCommand(newInstallCmd(a))
	rootCmd.AddCommand(newUninstallCmd(a))
	rootCmd.AddCommand(newResolveCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of jabref-host",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(w, "jabref-host: version info not available")
				return
			}
			fmt.Fprintf(w, "jabref-host: %s\n", info.Main.Version)
			fmt.Fprintf(w, "go:          %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(w, "commit:      %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(w, "date:        %s\n", s.Value)
				case "vcs.modified":
					fmt.Fprintf(w, "dirty:       %s\n", s.Value)
				}
			}
		},
	}
}

// setup loads the config and opens the log.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	// A stderr logger covers config errors; the browser shows stderr in its
	// extension console.
	a.logger = log.NewStderr(a.flagVerbose)
	a.closeLog = func() { _ = a.logger.Sync() }

	path, err := config.Path(a.flagConfigFilePath)
	if err != nil {
		return fmt.Errorf("locating config file: %w", err)
	}
	a.configPath = path
	a.config, err = config.LoadFile(path)
	if err != nil {
		a.logger.Error("loading config", zap.String("path", path), zap.Error(err))
		return err
	}

	// --verbose has a precedence over config file
	if a.flagVerbose {
		a.config.Verbose = true
	}

	logFile := a.config.LogFile
	if logFile == "" {
		if logFile, err = config.DefaultLogFile(); err != nil {
			a.logger.Warn("logging to stderr", zap.Error(err))
			return nil
		}
	}
	a.logger, a.closeLog = log.Open(logFile, a.config.Verbose)
	return nil
}

// close flushes the log.
func (a *app) close() {
	if a.closeLog != nil {
		a.closeLog()
	}
}

// runHost serves the browser on stdin and stdout until it disconnects.
func (a *app) runHost(cmd *cobra.Command, args []string) error {
	if a.interactive() {
		return usageError{errors.New("jabref-host is started by the browser; run \"jabref-host install\" to register it")}
	}

	ctx := log.ContextFields(log.WithLogger(cmd.Context(), a.logger),
		zap.Int("pid", os.Getpid()))
	logger := log.From(ctx)

	caller := callerOf(args)
	if caller != "" && !IsValidOrigin(caller) {
		logger.Warn("unknown caller", zap.String("caller", caller))
	}
	logger.Info("started",
		zap.String("caller", caller),
		zap.String("config", a.configPath))

	loc, resolveErr := resolver.Resolve(a.system(), resolver.Default(a.config.Executables))
	if resolveErr != nil {
		logger.Warn("JabRef not found", zap.Error(resolveErr))
	} else {
		logger.Info("found JabRef",
			zap.Stringer("command", loc),
			zap.String("strategy", loc.Strategy))
	}

	d := host.New(a.config, loc, resolveErr, a.runner)
	if err := serve(ctx, a.stdin, a.stdout, d, a.config.MaxRequestBytes); err != nil {
		logger.Error("host stopped", zap.Error(err))
		return err
	}
	logger.Info("browser closed the connection")
	return nil
}

// newResolveCmd reports where JabRef would be run from.
func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Print the JabRef command line that the host would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := resolver.Resolve(a.system(), resolver.Default(a.config.Executables))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", loc.Strategy, loc)
			return nil
		},
	}
}
