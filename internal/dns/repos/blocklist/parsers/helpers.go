package parsers

import (
	"strings"
	"unicode"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
)

const (
	maxNameLen  = 253
	maxLabelLen = 63
)

// isValidName checks whether name is usable as a blocklist entry.
// It enforces the following rules:
//   - The total length must not exceed 253 characters.
//   - Each dot-separated label must be between 1 and 63 characters long.
//   - Labels contain only letters, digits, '-' or '_'.
//
// Single-label names are accepted. Anything with '@', '/', ':' or spaces is
// rejected, which filters out e-mail addresses, URLs and IP literals.
func isValidName(name string) bool {
	if name == "" || len(name) > maxNameLen {
		return false
	}
	for label := range strings.SplitSeq(name, ".") {
		if len(label) == 0 || len(label) > maxLabelLen {
			return false
		}
		for _, r := range label {
			if !isLabelRune(r) {
				return false
			}
		}
	}
	return true
}

func isLabelRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'
}

// normalizeDomainName trims whitespace, removes any leading "*." or "."
// marker and applies n. Every entry is apex-inclusive, so the markers carry no
// extra meaning. The second result is false when the name is not valid.
//
// When n keeps trailing dots, a single trailing dot is ignored for validation
// but preserved in the returned name.
func normalizeDomainName(raw string, n utils.Normalizer) (string, bool) {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimPrefix(name, ".")
	name = n.Normalize(name)
	return name, isValidName(strings.TrimSuffix(name, "."))
}

// stripLineBOM removes a UTF-8 byte order mark at the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether line is blank or a whole-line comment.
func classifyLine(line string) (isEmpty, isComment bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	return false, strings.HasPrefix(trimmed, "#")
}

// stripInlineComment drops everything from the first '#'.
func stripInlineComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		return line[:idx]
	}
	return line
}
