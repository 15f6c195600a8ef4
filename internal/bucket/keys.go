package bucket

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Fallback names used when sanitization leaves nothing usable. The
// storage layer's metadata headers cannot carry arbitrary Unicode, so a
// key must never end up empty.
const (
	FallbackFileName   = "document.pdf"
	FallbackIdentifier = "anonymous"
)

// SanitizeFileName maps a filename onto the storage layer's safe
// character set: NFD-normalize, strip combining marks, drop everything
// that is not ASCII alphanumeric, '.', '-' or '_' (spaces become
// underscores). If the stem empties out entirely the fixed fallback
// name is returned. Idempotent.
func SanitizeFileName(name string) string {
	s := sanitize(name)
	if stem(s) == "" {
		return FallbackFileName
	}
	return s
}

// SanitizeIdentifier is SanitizeFileName for user identifiers, with its
// own fallback.
func SanitizeIdentifier(id string) string {
	s := sanitize(id)
	if stem(s) == "" {
		return FallbackIdentifier
	}
	return s
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(s) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark left over from decomposition
		case r == ' ':
			b.WriteByte('_')
		case r > unicode.MaxASCII:
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stem strips the extension and separator runes so ".pdf" or "___"
// count as empty.
func stem(s string) string {
	s = strings.TrimSuffix(s, path.Ext(s))
	return strings.Trim(s, "._-")
}

// UploadKey derives the object key for an upload:
// {uploadFolder}{user}_{timestamp}_{file}. The timestamp makes keys
// from the same user collision-resistant and lets a stateless client
// re-derive the matching output key later.
func UploadKey(cfg Config, userID, fileName string, now time.Time) string {
	return fmt.Sprintf("%s%s_%d_%s",
		cfg.UploadFolder,
		SanitizeIdentifier(userID),
		now.Unix(),
		SanitizeFileName(fileName),
	)
}

// OutputKey derives the key the remediation pipeline writes its result
// to, given the uploaded object's filename (the last key segment).
// Pure: identical inputs always yield identical output.
func OutputKey(cfg Config, uploadedFileName string) string {
	name := uploadedFileName
	if cfg.ReplaceExtension {
		name = strings.TrimSuffix(name, path.Ext(name)) + cfg.OutputExtension
	}
	return cfg.OutputFolder + cfg.OutputPrefix + name
}

// DownloadFileName is the human-facing filename for the result, built
// from the original (unsanitized-key-free) filename the user selected.
func DownloadFileName(cfg Config, originalFileName string) string {
	name := SanitizeFileName(originalFileName)
	if cfg.ReplaceExtension {
		name = strings.TrimSuffix(name, path.Ext(name)) + cfg.OutputExtension
	}
	return cfg.OutputPrefix + name
}

// BaseName returns the last segment of an object key.
func BaseName(key string) string {
	return path.Base(key)
}
