package fileutil

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameLength = 180

var unsafeChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"\x00", "_",
)

// SanitizeFilename normalizes a client-supplied filename into something safe
// to write under the work and output directories. Diacritics are stripped,
// path separators and shell-hostile characters replaced, and the stem is
// truncated so the full name stays under filesystem limits. The extension is
// preserved.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "file"
	}

	stripper := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(stripper, name); err == nil {
		name = stripped
	}

	name = unsafeChars.Replace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	if name == "" {
		return "file"
	}

	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	if len(stem) > maxFilenameLength {
		stem = stem[:maxFilenameLength]
		stem = strings.TrimRight(stem, ". ")
	}
	if stem == "" {
		stem = "file"
	}
	return stem + strings.ToLower(ext)
}
