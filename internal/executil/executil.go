// Package executil finds and starts external binaries using a sanitized PATH.
package executil

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no executable matches.
var ErrNotFound = errors.New("executable not found")

var defaultSafeDirs = []string{
	"/usr/local/bin",
	"/usr/bin",
	"/bin",
	"/usr/sbin",
	"/sbin",
	"/opt/homebrew/bin",
}

// Command builds an exec.Cmd for name with PATH replaced by the sanitized
// search path. The daemon inherits that environment.
func Command(name string, args ...string) (*exec.Cmd, error) {
	dirs := safePathDirs()
	path, err := findExecutable(name, dirs)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command(path, args...)
	cmd.Env = safeEnv(dirs)
	return cmd, nil
}

// LookPath resolves name against the sanitized PATH. Directories that are
// group or world writable are skipped.
func LookPath(name string) (string, error) {
	return findExecutable(name, safePathDirs())
}

// IsExecutable reports whether path is a regular file with an execute bit.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}

// SafeEnv returns the current environment with PATH sanitized.
func SafeEnv() []string {
	return safeEnv(safePathDirs())
}

func safeEnv(dirs []string) []string {
	if len(dirs) == 0 {
		return os.Environ()
	}
	return replaceEnv(os.Environ(), "PATH", strings.Join(dirs, string(os.PathListSeparator)))
}

func safePathDirs() []string {
	seen := make(map[string]struct{})
	dirs := make([]string, 0, len(defaultSafeDirs))

	add := func(dir string, requireSafe bool) {
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if !filepath.IsAbs(dir) {
			return
		}
		if _, ok := seen[dir]; ok {
			return
		}
		if requireSafe {
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() || info.Mode().Perm()&0o022 != 0 {
				return
			}
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	for _, dir := range defaultSafeDirs {
		add(dir, true)
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		add(dir, true)
	}
	if len(dirs) == 0 {
		for _, dir := range defaultSafeDirs {
			add(dir, false)
		}
	}
	return dirs
}

func findExecutable(name string, dirs []string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		cleaned := filepath.Clean(name)
		if IsExecutable(cleaned) {
			return cleaned, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, name)
		if IsExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w in safe PATH: %s", ErrNotFound, name)
}

func replaceEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if !strings.HasPrefix(entry, prefix) {
			out = append(out, entry)
		}
	}
	if value != "" {
		out = append(out, prefix+value)
	}
	return out
}
