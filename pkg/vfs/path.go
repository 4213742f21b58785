package vfs

import (
	"errors"
	"strings"
)

// Common path-related errors.
var (
	ErrEmptyPath   = errors.New("vfs: empty path")
	ErrInvalidPath = errors.New("vfs: invalid path")
	ErrPathTooLong = errors.New("vfs: path too long")
)

// MaxPathLength is the maximum allowed path length.
const MaxPathLength = 4096

// Clean returns the canonical form of a file name. Relative names are
// resolved against the root, so "a.txt", "./a.txt" and "/a.txt" are the
// same file.
func Clean(p string) string {
	if p == "" {
		return "/"
	}

	p = strings.ReplaceAll(p, "\\", "/")

	var result []string
	for _, comp := range strings.Split(p, "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			// Never climb past root
			if len(result) > 0 {
				result = result[:len(result)-1]
			}
		default:
			result = append(result, comp)
		}
	}

	if len(result) == 0 {
		return "/"
	}

	return "/" + strings.Join(result, "/")
}

// Dir returns all but the last element of the path.
func Dir(p string) string {
	p = Clean(p)

	lastSlash := strings.LastIndex(p, "/")
	if lastSlash == 0 {
		return "/"
	}

	return p[:lastSlash]
}

// Base returns the last element of the path.
func Base(p string) string {
	p = Clean(p)
	return p[strings.LastIndex(p, "/")+1:]
}

// ValidatePath checks if the name can be used as a file name.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}

	if len(p) > MaxPathLength {
		return ErrPathTooLong
	}

	if strings.Contains(p, "\x00") {
		return ErrInvalidPath
	}

	if Clean(p) == "/" {
		return ErrInvalidPath
	}

	return nil
}
