package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

import "golang.org/x/sys/windows/registry"

// keyPaths are the paths under the registry root where each browser looks
// for native messaging hosts.
var keyPaths = map[Browser]string{
	Chrome:   `SOFTWARE\Google\Chrome\NativeMessagingHosts`,
	Chromium: `SOFTWARE\Chromium\NativeMessagingHosts`,
	Edge:     `SOFTWARE\Microsoft\Edge\NativeMessagingHosts`,
	Firefox:  `SOFTWARE\Mozilla\NativeMessagingHosts`,
}

// CurrentUser writes a manifest next to the host binary, and registers it in
// the Windows registry under HKEY_CURRENT_USER.
func CurrentUser(m Manifest, b Browser) (string, error) {
	return writeManifestAndRegister(m, b, registry.CURRENT_USER)
}

// System writes a manifest next to the host binary, and registers it in the
// Windows registry under HKEY_LOCAL_MACHINE.
func System(m Manifest, b Browser) (string, error) {
	return writeManifestAndRegister(m, b, registry.LOCAL_MACHINE)
}

// RemoveCurrentUser unregisters the named host from HKEY_CURRENT_USER.
func RemoveCurrentUser(name string, b Browser) error {
	return unregister(registry.CURRENT_USER, b, name)
}

// RemoveSystem unregisters the named host from HKEY_LOCAL_MACHINE.
func RemoveSystem(name string, b Browser) error {
	return unregister(registry.LOCAL_MACHINE, b, name)
}

func writeManifestAndRegister(m Manifest, b Browser, root registry.Key) (string, error) {
	manifestPath, err := writeManifest(filepath.Dir(m.Path), m, b)
	if err != nil {
		return "", err
	}
	return manifestPath, register(root, b, m.Name, manifestPath)
}

// writeManifest writes one manifest per browser, since Firefox and the
// Chromium family disagree on the allow list field.
func writeManifest(dir string, m Manifest, b Browser) (string, error) {
	buf, err := m.Marshal(b)
	if err != nil {
		return "", err
	}

	manifestPath := filepath.Join(dir, fmt.Sprintf("%s.%s.json", m.Name, b))
	if err = install(manifestPath, buf); err != nil {
		return "", err
	}

	return manifestPath, nil
}

// register registers the native messaging host in the Windows registry.
func register(root registry.Key, b Browser, name string, manifestPath string) error {
	keyPath, ok := keyPaths[b]
	if !ok {
		return fmt.Errorf("no registry location for %s", b)
	}
	p := fmt.Sprintf(`%s\%s`, keyPath, name)
	k, _, err := registry.CreateKey(root, p, registry.CREATE_SUB_KEY|registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()
	return k.SetStringValue("", manifestPath)
}

// unregister deletes the registry key, and the manifest file it points to.
func unregister(root registry.Key, b Browser, name string) error {
	keyPath, ok := keyPaths[b]
	if !ok {
		return fmt.Errorf("no registry location for %s", b)
	}
	p := fmt.Sprintf(`%s\%s`, keyPath, name)

	k, err := registry.OpenKey(root, p, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	manifestPath, _, err := k.GetStringValue("")
	k.Close()
	if err == nil && manifestPath != "" {
		if err := remove(manifestPath); err != nil {
			return err
		}
	}

	if err := registry.DeleteKey(root, p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
