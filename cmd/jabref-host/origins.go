package main

import (
	_ "embed"
	"strings"
)

// originsDelimited is the newline-delimited set of browser extensions that
// are allowed to call the native messaging host: chrome-extension:// origins
// for Chromium-based browsers, and add-on ids for Firefox.  It is initialized
// from the contents of "origins.txt".
//
//go:embed origins.txt
var originsDelimited string

// origins is the set of allowed callers, in file order.
var origins []string

// originSet indexes origins.
var originSet = make(map[string]struct{})

// chromeOriginPrefix starts every Chromium extension origin.
const chromeOriginPrefix = "chrome-extension://"

// IsValidOrigin returns true if s matches a line in origins.txt.
func IsValidOrigin(s string) bool {
	_, ok := originSet[s]
	return ok
}

// allowedOrigins returns the Chromium extension origins.
func allowedOrigins() []string {
	var out []string
	for _, o := range origins {
		if strings.HasPrefix(o, chromeOriginPrefix) {
			out = append(out, o)
		}
	}
	return out
}

// allowedExtensions returns the Firefox add-on ids.
func allowedExtensions() []string {
	var out []string
	for _, o := range origins {
		if !strings.HasPrefix(o, chromeOriginPrefix) {
			out = append(out, o)
		}
	}
	return out
}

// callerOf extracts the calling extension from the host's arguments.
// Chromium passes the origin first; Firefox passes the manifest path and then
// the add-on id.
func callerOf(args []string) string {
	switch {
	case len(args) >= 1 && strings.HasPrefix(args[0], chromeOriginPrefix):
		return args[0]
	case len(args) >= 2:
		return args[1]
	default:
		return ""
	}
}

func init() {
	for _, s := range strings.Split(originsDelimited, "\n") {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		origins = append(origins, trimmed)
		originSet[trimmed] = struct{}{}
	}
}
