package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFilenameLength is the maximum allowed length for the filename base.
	MaxFilenameLength = 80
	// MaxTitlePart is how much of the title goes into a queue item filename.
	MaxTitlePart = 25
	// DefaultName is the replacement name when the title is empty.
	DefaultName = "video"
)

var (
	// Characters that break Windows paths or shell quoting.
	unsafeChars = regexp.MustCompile("[<>:\"/\\\\|?*()\\[\\]{}'`~!@#$%^&+=,;]")
	collapseRe  = regexp.MustCompile(`[_\s-]+`)
	digitsOnly  = regexp.MustCompile(`^[0-9]+$`)
)

// Filename builds a Windows-safe ASCII filename base from a video title.
// Unicode is folded to ASCII, unsafe characters and dots become underscores,
// runs of separators collapse, and the result is capped at MaxFilenameLength.
func Filename(title string) string {
	name := asciiFold(title)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = collapseRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_ ")

	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}

	if name == "" {
		return DefaultName
	}
	if digitsOnly.MatchString(name) {
		return DefaultName + "_" + name
	}
	return name
}

// BaseName builds the output filename base used for queue items:
// a truncated title followed by a quality tag and the video ID,
// e.g. "Never Gonna Give You Up [720p] [dQw4w9WgXcQ]".
func BaseName(title, qualityTag, videoID string) string {
	var b strings.Builder
	for _, r := range asciiFold(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	safe := strings.Join(strings.Fields(b.String()), " ")
	if len(safe) > MaxTitlePart {
		safe = strings.TrimRight(safe[:MaxTitlePart], " ")
	}

	if safe == "" {
		safe = DefaultName
	}
	return safe + " [" + qualityTag + "] [" + videoID + "]"
}

// asciiFold normalizes to NFKD and drops combining marks and any remaining
// non-ASCII runes, mirroring an "encode ascii, ignore" fold.
func asciiFold(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
