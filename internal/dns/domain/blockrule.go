package domain

import (
	"fmt"
	"strings"
	"time"
)

// BlockRule represents a single blocking rule sourced from configuration, a file or a feed.
//
// Every rule is apex-inclusive: it matches Name itself and any name ending in "." + Name.
//
// Notes:
// - Name is expected to be normalized already (case folding and trailing dot handling are load-time settings).
// - Source identifies where the rule came from (file path or "config").
// - AddedAt records when the rule was ingested.
type BlockRule struct {
	Name    string    // normalized domain, e.g., "example.com"
	Source  string    // feed/file identifier
	AddedAt time.Time // ingestion timestamp
}

// NewBlockRule constructs a BlockRule and validates its fields.
func NewBlockRule(name, source string, addedAt time.Time) (BlockRule, error) {
	r := BlockRule{
		Name:    strings.TrimSpace(name),
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return BlockRule{}, err
	}
	return r, nil
}

// Validate checks the BlockRule for required fields.
func (r BlockRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name must not be empty")
	}
	if r.Source == "" {
		return fmt.Errorf("rule source must not be empty")
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("rule addedAt must be set")
	}
	return nil
}

// Matches reports whether name equals the rule or is a subdomain of it.
// The comparison is byte-wise; callers normalize both sides the same way first.
func (r BlockRule) Matches(name string) bool {
	if name == r.Name {
		return true
	}
	return len(name) > len(r.Name) &&
		name[len(name)-len(r.Name)-1] == '.' &&
		name[len(name)-len(r.Name):] == r.Name
}
