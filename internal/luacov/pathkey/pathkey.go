// Package pathkey canonicalizes source file paths into a single FileKey
// identity used throughout the coverage engine.
package pathkey

import (
	"errors"
	"strings"
)

// ErrInvalidPath is returned when normalize is given empty input.
var ErrInvalidPath = errors.New("pathkey: invalid path")

// Key is a canonical file identity: forward slashes, no "." or ".."
// segments, no duplicate slashes, no trailing slash.
type Key string

// String returns the underlying string.
func (k Key) String() string {
	return string(k)
}

// Normalize converts an OS path (from any platform's separators) into a
// canonical Key. It is idempotent: Normalize(string(Normalize(p))) == Normalize(p).
func Normalize(path string) (Key, error) {
	if path == "" {
		return "", ErrInvalidPath
	}

	// Accept both '\\' and '/' as separators so the same logical path
	// produces the same key regardless of the host OS.
	unified := strings.ReplaceAll(path, "\\", "/")

	isAbs := strings.HasPrefix(unified, "/")
	segments := strings.Split(unified, "/")

	var cleaned []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(cleaned) > 0 && cleaned[len(cleaned)-1] != ".." {
				cleaned = cleaned[:len(cleaned)-1]
			} else if !isAbs {
				cleaned = append(cleaned, seg)
			}
		default:
			cleaned = append(cleaned, seg)
		}
	}

	joined := strings.Join(cleaned, "/")
	if joined == "" {
		return "", ErrInvalidPath
	}
	if isAbs {
		joined = "/" + joined
	}

	return Key(joined), nil
}

// MustNormalize normalizes path and panics on error. Intended for tests
// and call sites that already validated the path is non-empty.
func MustNormalize(path string) Key {
	k, err := Normalize(path)
	if err != nil {
		panic(err)
	}
	return k
}
