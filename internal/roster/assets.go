package roster

import (
	"net/url"
	"regexp"
	"strings"
)

// DefaultAssetURLPrefix matches the Drive-style links older rows carry.
const DefaultAssetURLPrefix = "https://drive.google.com/uc?id="

var idParam = regexp.MustCompile(`[?&]id=([^&]+)`)

// AssetURL embeds ref in a retrievable URL.
func AssetURL(prefix, ref string) string {
	if ref == "" {
		return ""
	}
	return prefix + ref
}

// RefFromURL recovers the asset ref from a URL built by AssetURL. URLs written
// under another prefix are accepted when they carry an id query parameter.
func RefFromURL(prefix, u string) string {
	if u == "" {
		return ""
	}
	if prefix != "" && strings.HasPrefix(u, prefix) {
		return strings.TrimPrefix(u, prefix)
	}
	if m := idParam.FindStringSubmatch(u); m != nil {
		if ref, err := url.QueryUnescape(m[1]); err == nil {
			return ref
		}
		return m[1]
	}
	return u
}

// AssetName is the name given to a person's photo.
func AssetName(id, firstName, lastName string) string {
	return id + "_" + firstName + "_" + lastName
}

// ArchivedAssetName is the soft-delete name of a person's photo.
func ArchivedAssetName(id, firstName, lastName string) string {
	return "deleted_" + AssetName(id, firstName, lastName)
}
