//go:build darwin || linux

package install

import (
	"fmt"
	"os/user"
	"path/filepath"
)

// CurrentUser installs the manifest for the calling user, and returns the
// path it was written to.
func CurrentUser(m Manifest, b Browser) (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return User(m, b, usr.HomeDir)
}

// User creates and installs a manifest to a user-specific directory.
func User(m Manifest, b Browser, homeDir string) (string, error) {
	dir, ok := userSubDirs[b]
	if !ok {
		return "", fmt.Errorf("no user manifest location for %s", b)
	}
	return write(m, b, filepath.Join(homeDir, dir, m.Filename()))
}

// System creates and installs a manifest to the system-wide directory.
func System(m Manifest, b Browser) (string, error) {
	dir, ok := systemDirs[b]
	if !ok {
		return "", fmt.Errorf("no system manifest location for %s", b)
	}
	return write(m, b, filepath.Join(dir, m.Filename()))
}

// RemoveCurrentUser deletes the calling user's manifest for the named host.
func RemoveCurrentUser(name string, b Browser) error {
	usr, err := user.Current()
	if err != nil {
		return err
	}
	return RemoveUser(name, b, usr.HomeDir)
}

// RemoveUser deletes a user-specific manifest for the named host.
func RemoveUser(name string, b Browser, homeDir string) error {
	dir, ok := userSubDirs[b]
	if !ok {
		return fmt.Errorf("no user manifest location for %s", b)
	}
	return remove(filepath.Join(homeDir, dir, Manifest{Name: name}.Filename()))
}

// RemoveSystem deletes the system-wide manifest for the named host.
func RemoveSystem(name string, b Browser) error {
	dir, ok := systemDirs[b]
	if !ok {
		return fmt.Errorf("no system manifest location for %s", b)
	}
	return remove(filepath.Join(dir, Manifest{Name: name}.Filename()))
}

func write(m Manifest, b Browser, name string) (string, error) {
	buf, err := m.Marshal(b)
	if err != nil {
		return "", err
	}
	return name, install(name, buf)
}
