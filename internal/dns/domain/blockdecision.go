package domain

// BlockDecision is the matcher's answer for one query name.
type BlockDecision struct {
	Blocked     bool   // a rule covers the name
	MatchedRule string // normalized rule name, equal to the name or one of its parent domains
	Source      string // where the rule came from: "config" or "file:<path>"
}

// IsBlocked reports whether the packet carrying this name should be dropped.
func (d BlockDecision) IsBlocked() bool { return d.Blocked }

// NotBlocked is the decision for names no rule covers, and for lookups that
// failed.
func NotBlocked() BlockDecision { return BlockDecision{} }

// BlockedBy returns the decision produced by rule r.
func BlockedBy(r BlockRule) BlockDecision {
	return BlockDecision{Blocked: true, MatchedRule: r.Name, Source: r.Source}
}
