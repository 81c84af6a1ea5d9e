// Package install registers a native messaging host with browsers, by
// writing the host manifest where each browser looks for it.
package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Browser identifies a browser family with its own manifest location.
type Browser string

const (
	Chrome   Browser = "chrome"
	Chromium Browser = "chromium"
	Edge     Browser = "edge"
	Firefox  Browser = "firefox"
)

// Browsers lists every supported browser.
var Browsers = []Browser{Chrome, Chromium, Edge, Firefox}

// ParseBrowser returns the Browser named by s.
func ParseBrowser(s string) (Browser, error) {
	b := Browser(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Browsers {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown browser %q", s)
}

// Manifest models the native messaging host manifest JSON.
//
// Chromium-based browsers read AllowedOrigins, Firefox reads
// AllowedExtensions.  See:
// https://developer.chrome.com/docs/extensions/develop/concepts/native-messaging#native-messaging-host
// https://developer.mozilla.org/en-US/docs/Mozilla/Add-ons/WebExtensions/Native_manifests
type Manifest struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Path              string   `json:"path"`
	Typ               string   `json:"type"`
	AllowedOrigins    []string `json:"allowed_origins,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
}

// manifestType is the (only supported) value for the "type" field in the
// manifest.
const manifestType = "stdio"

// For returns a copy of the manifest with only the allow list that the given
// browser understands.
func (m Manifest) For(b Browser) Manifest {
	if b == Firefox {
		m.AllowedOrigins = nil
	} else {
		m.AllowedExtensions = nil
	}
	return m
}

// Marshal returns on-disk encoding of the manifest for the given browser.
func (m Manifest) Marshal(b Browser) ([]byte, error) {
	m = m.For(b)
	m.Typ = manifestType
	buf, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

// Filename is the appropriate name for the manifest file (with no path).
func (m Manifest) Filename() string {
	return m.Name + ".json"
}

// install writes the serialized manifest buffer to the given path, creating
// the parent directory if needed.
func install(name string, buf []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf(`creating manifest directory: %w`, err)
	}
	if err := os.WriteFile(name, buf, 0644); err != nil {
		return fmt.Errorf(`writing manifest: %w`, err)
	}
	return nil
}

// remove deletes a manifest file.  A missing file is not an error.
func remove(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf(`removing manifest: %w`, err)
	}
	return nil
}
