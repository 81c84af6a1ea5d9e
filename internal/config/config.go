// Package config holds the settings of the native messaging host.  They are
// read once at startup and passed down explicitly.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

import (
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable that points to a config file.
const EnvConfig = "JABREF_HOST_CONFIG"

// appDir is the directory under os.UserConfigDir() used for the config file
// and the log.
const appDir = "jabref"

const (
	configName = "jabref-host.yaml"
	logName    = "jabref-host.log"
)

// Config is the host configuration.  The zero value is not useful; start
// from Default().
type Config struct {
	// Executables are command lines tried before the built-in search, e.g.
	// "/opt/JabRef/bin/JabRef" or "flatpak run org.jabref.jabref".
	Executables []string `yaml:"executables,omitempty"`
	// ImportFlag precedes the BibTeX text when importing.
	ImportFlag string `yaml:"import_flag"`
	// VersionFlag is used to validate that JabRef can be run.
	VersionFlag string `yaml:"version_flag"`
	// Timeout bounds each JabRef invocation.  Zero means no timeout.
	Timeout time.Duration `yaml:"timeout"`
	// Env is added to JabRef's environment.
	Env map[string]string `yaml:"env,omitempty"`
	// LogFile is the diagnostic log.  Empty means DefaultLogFile().
	LogFile string `yaml:"log_file,omitempty"`
	Verbose bool   `yaml:"verbose"`
	// MaxRequestBytes limits a single message from the browser.
	MaxRequestBytes uint32 `yaml:"max_request_bytes"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ImportFlag:      "--importBibtex",
		VersionFlag:     "--version",
		MaxRequestBytes: 64 << 20,
	}
}

// Load decodes YAML on top of Default().  Unknown keys are rejected, and an
// empty document yields the defaults.
func Load(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile reads the config at path.  A missing file yields the defaults.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	} else if err != nil {
		return Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return Load(f)
}

// Path picks the config file: $JABREF_HOST_CONFIG, then flagPath, then the
// per-user default.
func Path(flagPath string) (string, error) {
	if p, ok := os.LookupEnv(EnvConfig); ok && p != "" {
		return p, nil
	}
	if flagPath != "" {
		return flagPath, nil
	}
	return userFile(configName)
}

// DefaultLogFile is the log location used when none is configured.
func DefaultLogFile() (string, error) {
	return userFile(logName)
}

func userFile(name string) (string, error) {
	d, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, appDir, name), nil
}

// Validate checks values that would otherwise fail on first use.
func (c Config) Validate() error {
	if c.ImportFlag == "" {
		return errors.New("import_flag must not be empty")
	}
	if c.VersionFlag == "" {
		return errors.New("version_flag must not be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	for _, e := range c.Executables {
		argv, err := shellquote.Split(e)
		if err != nil {
			return fmt.Errorf("executable %q: %w", e, err)
		}
		if len(argv) == 0 {
			return errors.New("executables must not contain empty entries")
		}
	}
	return nil
}

// CommandEnv returns Env as sorted KEY=value pairs.  Values starting with $
// are expanded from the host environment.
func (c Config) CommandEnv() []string {
	env := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		if len(v) > 0 && v[0] == '$' {
			v = os.ExpandEnv(v)
		}
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}
