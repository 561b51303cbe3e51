package objectstore

import (
	"mime"
	"strings"

	"github.com/google/uuid"
)

const archiveDir = "archive"

// sanitize keeps asset names safe as object keys and file names.
func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, strings.TrimSpace(name))
	name = strings.Trim(name, ".")
	if name == "" {
		return "asset"
	}
	return name
}

func extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// newRef builds a unique single-segment ref for a named asset.
func newRef(name, mimeType string) string {
	return uuid.NewString() + "-" + sanitize(name) + extension(mimeType)
}
