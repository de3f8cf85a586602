// Package fsutil resolves user-supplied paths for element catalogues and
// config files.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotDir is returned by ResolveDir when the path exists but is a file.
var ErrNotDir = errors.New("not a directory")

// ExpandPath expands $VAR / ${VAR} references and a leading '~'.
func ExpandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		// ~user is not supported
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, strings.TrimLeft(path[1:], `/\`)), nil
}

// ResolveDir expands path and returns it absolute, failing unless it names an
// existing directory.
func ResolveDir(path string) (string, error) {
	p, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s: %w", abs, ErrNotDir)
	}
	return abs, nil
}

// HasExt reports whether name ends in one of exts, case-insensitively.
func HasExt(name string, exts ...string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
