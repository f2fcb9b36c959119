package utils

import "strings"

// CanonicalDNSName returns a DNS name in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dot
func CanonicalDNSName(name string) string {
	return Normalizer{FoldCase: true, TrimTrailingDot: true}.Normalize(strings.TrimSpace(name))
}

// Normalizer applies the configured name normalization. The same Normalizer must
// be applied to blocklist entries at load time and to query names at match time.
type Normalizer struct {
	FoldCase        bool
	TrimTrailingDot bool
}

// Normalize returns name with the enabled transformations applied.
// It does not allocate when name is already in normal form.
func (n Normalizer) Normalize(name string) string {
	if n.TrimTrailingDot {
		for len(name) > 0 && name[len(name)-1] == '.' {
			name = name[:len(name)-1]
		}
	}
	if n.FoldCase {
		name = strings.ToLower(name)
	}
	return name
}
