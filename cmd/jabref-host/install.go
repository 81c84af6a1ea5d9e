package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

import (
	"github.com/p00ya/jabref-host/internal/nativemsg/install"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// defaultName is the host name the JabRef extension connects to.
const defaultName = "org.jabref.jabref"

const description = "JabRef native messaging host"

var nameRE = regexp.MustCompile(`^([a-z0-9_]+)(\.[a-z0-9_]+)*$`)

func validateName(name string) bool {
	return nameRE.MatchString(name)
}

// installFlags are shared by install and uninstall.
type installFlags struct {
	system   bool
	name     string
	browsers []string
}

func (f *installFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.system, "system", false, "Install system-wide (instead of for current user)")
	cmd.Flags().StringVar(&f.name, "name", defaultName, "Host name")
	cmd.Flags().StringSliceVar(&f.browsers, "browser", browserNames(install.Browsers), "Browsers to register with.  Repeat flag for multiple browsers")
}

// parse validates the flags and returns the selected browsers.
func (f *installFlags) parse() ([]install.Browser, error) {
	if !validateName(f.name) {
		return nil, usageError{fmt.Errorf("invalid host name %q", f.name)}
	}
	var browsers []install.Browser
	for _, s := range f.browsers {
		b, err := install.ParseBrowser(s)
		if err != nil {
			return nil, usageError{err}
		}
		browsers = append(browsers, b)
	}
	if len(browsers) == 0 {
		return nil, usageError{errors.New("no browser selected")}
	}
	return browsers, nil
}

func browserNames(bs []install.Browser) []string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = string(b)
	}
	return names
}

func newInstallCmd(a *app) *cobra.Command {
	var f installFlags
	var origins, extensions []string
	cmd := &cobra.Command{
		Use:   "install [BINARY]",
		Short: "Register the host with browsers",
		Long: "Register the host with browsers, by writing a manifest where each browser looks for it.\n" +
			"BINARY defaults to this executable.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			browsers, err := f.parse()
			if err != nil {
				return err
			}

			binary := ""
			if len(args) == 1 {
				binary = args[0]
			} else if binary, err = os.Executable(); err != nil {
				return fmt.Errorf("locating host binary: %w", err)
			}
			warnNotExecutable(cmd.ErrOrStderr(), binary)
			absPath, err := filepath.Abs(binary)
			if err != nil {
				return fmt.Errorf("resolving absolute path to %s: %w", binary, err)
			}

			m := install.Manifest{
				Name:              f.name,
				Description:       description,
				Path:              absPath,
				AllowedOrigins:    origins,
				AllowedExtensions: extensions,
			}
			for _, b := range browsers {
				var path string
				if f.system {
					path, err = install.System(m, b)
				} else {
					path, err = install.CurrentUser(m, b)
				}
				if err != nil {
					return fmt.Errorf("%s: %w", b, err)
				}
				a.logger.Info("installed manifest",
					zap.String("browser", string(b)),
					zap.String("path", path))
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s manifest %s\n", b, path)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringSliceVarP(&origins, "origin", "o", allowedOrigins(), "Allowed Chromium extension origin.  Repeat flag for multiple origins")
	cmd.Flags().StringSliceVarP(&extensions, "extension", "e", allowedExtensions(), "Allowed Firefox add-on id.  Repeat flag for multiple ids")
	return cmd
}

func newUninstallCmd(a *app) *cobra.Command {
	var f installFlags
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the host's browser registrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			browsers, err := f.parse()
			if err != nil {
				return err
			}
			for _, b := range browsers {
				if f.system {
					err = install.RemoveSystem(f.name, b)
				} else {
					err = install.RemoveCurrentUser(f.name, b)
				}
				if err != nil {
					return fmt.Errorf("%s: %w", b, err)
				}
				a.logger.Info("removed manifest", zap.String("browser", string(b)))
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s manifest for %s\n", b, f.name)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// warnNotExecutable prints a warning if binary can't be run by the browser.
func warnNotExecutable(w io.Writer, binary string) {
	switch fi, err := os.Stat(binary); {
	case err != nil:
		fmt.Fprintf(w, "Warning: accessing binary: %v\n", err)
	case filepath.Ext(binary) == ".exe":
	case fi.Mode()&0100 == 0:
		fmt.Fprintf(w, "Warning: binary %s is not executable\n", binary)
	}
}
