package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/drewfead/arcbox-desktop/internal/executil"
)

// errBinaryNotFound is returned by Locate when every search location misses.
var errBinaryNotFound = errors.New("daemon binary not found")

// Locator finds the daemon binary.
type Locator interface {
	Locate() (string, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func() (string, error)

// Locate calls f.
func (f LocatorFunc) Locate() (string, error) { return f() }

// BinaryLocator searches, in order: the enclosing macOS app bundle, the
// directory holding the running executable, and the sanitized PATH.
type BinaryLocator struct {
	Name string
	// Path skips the search when set.
	Path string
	// Executable is the running binary; empty means os.Executable.
	Executable string
}

// Locate returns the first candidate that exists and is executable.
func (l BinaryLocator) Locate() (string, error) {
	if l.Path != "" {
		if executil.IsExecutable(l.Path) {
			return l.Path, nil
		}
		return "", errBinaryNotFound
	}

	exe := l.Executable
	if exe == "" {
		if p, err := os.Executable(); err == nil {
			exe = p
		}
	}

	if exe != "" {
		if root, ok := bundleRoot(exe); ok {
			candidate := filepath.Join(root, "Contents", "MacOS", l.Name)
			if executil.IsExecutable(candidate) {
				return candidate, nil
			}
		}
		candidate := filepath.Join(filepath.Dir(exe), l.Name)
		if candidate != exe && executil.IsExecutable(candidate) {
			return candidate, nil
		}
	}

	if p, err := executil.LookPath(l.Name); err == nil {
		return p, nil
	}
	return "", errBinaryNotFound
}

// bundleRoot returns X.app when exe lives at X.app/Contents/MacOS/<exe>.
func bundleRoot(exe string) (string, bool) {
	macos := filepath.Dir(exe)
	contents := filepath.Dir(macos)
	root := filepath.Dir(contents)
	if filepath.Base(macos) != "MacOS" || filepath.Base(contents) != "Contents" {
		return "", false
	}
	if !strings.HasSuffix(root, ".app") {
		return "", false
	}
	return root, true
}
