package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// ResolveUnder expands '~' in p and, when p is relative, joins it onto base.
// An empty p stays empty.
func ResolveUnder(base, p string) (string, error) {
	if p == "" {
		return "", nil
	}
	exp, err := ExpandHome(p)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(exp) || base == "" {
		return exp, nil
	}
	b, err := ExpandHome(base)
	if err != nil {
		return "", err
	}
	return filepath.Join(b, exp), nil
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}

// PathExists reports whether something exists at path. Errors other than
// not-exist (permissions) count as existing.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
