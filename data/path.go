package data

import (
	"path"
	"strings"
)

// CleanPath normalizes a path to its canonical absolute form with a
// leading slash and no trailing slash. The root is "/".
func CleanPath(p string) (string, error) {
	if p == "" {
		return "", ErrInvalidPath
	}

	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	cleaned := path.Clean(p)
	if strings.Contains(cleaned, "\x00") {
		return "", ErrInvalidPath
	}

	return cleaned, nil
}

// SplitPath returns the parent directory and base name of a cleaned path.
// The root splits into ("/", "/").
func SplitPath(p string) (parent, name string) {
	return path.Dir(p), path.Base(p)
}

// JoinPath joins a parent path and child name into a cleaned path.
func JoinPath(parent, name string) string {
	return path.Join(parent, name)
}

// IsPathPrefix reports whether child equals prefix or lies beneath it.
// Both paths must be cleaned.
func IsPathPrefix(child, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if child == prefix {
		return true
	}
	return strings.HasPrefix(child, prefix+"/")
}

// RebasePath replaces the src prefix of p with dst. The caller must ensure
// IsPathPrefix(p, src) holds.
func RebasePath(p, src, dst string) string {
	if p == src {
		return dst
	}
	return dst + strings.TrimPrefix(p, src)
}
