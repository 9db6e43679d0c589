// Package objectid converts between provider keys and opaque file IDs for
// providers whose native identifier is a path.
package objectid

import (
	"encoding/base64"
	"path"
	"strings"

	"github.com/drivepane/drivepane/pkg/models"
)

// Encode returns the ID for key. The root key "" maps to the root ID "".
func Encode(key string) string {
	if key == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Decode returns the key for id. Keys that are not clean slash-separated
// relative paths are rejected.
func Decode(id string) (string, error) {
	if id == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", models.Validationf("invalid file id")
	}
	key := string(raw)
	trimmed := strings.TrimSuffix(key, "/")
	if trimmed == "" || strings.HasPrefix(trimmed, "/") || path.Clean(trimmed) != trimmed || trimmed == ".." || strings.HasPrefix(trimmed, "../") {
		return "", models.Validationf("invalid file id")
	}
	return key, nil
}

// Name returns the last element of key, ignoring a trailing slash.
func Name(key string) string {
	return path.Base(strings.TrimSuffix(key, "/"))
}

// ValidName rejects names that cannot be a single path element.
func ValidName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return models.Validationf("file name is required")
	case name == "." || name == "..", strings.ContainsAny(name, "/\\\x00"):
		return models.Validationf("invalid file name %q", name)
	}
	return nil
}
