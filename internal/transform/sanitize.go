package transform

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultFilenameLength bounds the base name before the extension
	DefaultFilenameLength = 60
	// MaxFilenameLength bounds the whole name, extension included
	MaxFilenameLength = 64
)

// forbiddenChars cannot appear in an uploaded file name
const forbiddenChars = `\/*?:"<>|`

// FilenamePolicy turns arbitrary titles into upload-safe file names
type FilenamePolicy struct {
	MaxLength int
	Fallback  string
}

// SanitizeFilename applies the default policy with an "audio" fallback name
func SanitizeFilename(title, ext string) string {
	return FilenamePolicy{MaxLength: DefaultFilenameLength, Fallback: "audio"}.Apply(title, ext)
}

// Apply folds title to ASCII, drops forbidden and control characters,
// bounds the length and appends ext. The result is never empty and never
// longer than MaxFilenameLength unless ext alone does not fit.
func (p FilenamePolicy) Apply(title, ext string) string {
	fallback := p.Fallback
	if fallback == "" {
		fallback = "file"
	}

	ext = strings.TrimPrefix(ext, ".")
	maxLen := p.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultFilenameLength
	}
	if ext != "" {
		maxLen = min(maxLen, MaxFilenameLength-1-len(ext))
	}
	if maxLen < 1 {
		maxLen = 1
	}

	name := strings.TrimSpace(asciiFold(title))
	if len(name) > maxLen {
		name = strings.TrimSpace(name[:maxLen])
	}
	if name == "" {
		name = fallback
	}
	if len(name) > maxLen {
		name = name[:maxLen]
	}

	if ext == "" {
		return name
	}
	return name + "." + ext
}

func asciiFold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r > unicode.MaxASCII || unicode.IsControl(r) || strings.ContainsRune(forbiddenChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
