package parsers

import (
	"bufio"
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// ParsePlainList parses a newline-delimited list of domains into BlockRule values.
// Leading "*." or "." markers are accepted and stripped; every rule matches
// the name and all of its subdomains.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Trims surrounding whitespace and normalizes with n
// - Skips empty lines, invalid names and duplicates, preserving first-seen order
// - Each rule is attributed to the provided source and timestamped with now
func ParsePlainList(r io.Reader, source string, n utils.Normalizer, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.BlockRule, 0, 256)
	logger.Debug(map[string]any{"source": source}, "parse_plain_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			if isEmpty {
				logger.Debug(map[string]any{"line": lineNum}, "skip_empty")
			} else {
				logger.Debug(map[string]any{"line": lineNum}, "skip_comment")
			}
			continue
		}

		s := strings.TrimSpace(stripInlineComment(line))
		rule, ok := plainEntry(s, source, n, now, seen, logger, lineNum)
		if !ok {
			continue
		}
		out = append(out, rule)
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_plain_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_plain_list_done")
	return out, nil
}

// ParseDomains turns inline configuration entries into rules using the same
// rules as ParsePlainList, one entry per element.
func ParseDomains(entries []string, source string, n utils.Normalizer, logger logpkg.Logger, now time.Time) []domain.BlockRule {
	seen := make(map[string]struct{}, len(entries))
	out := make([]domain.BlockRule, 0, len(entries))
	for i, e := range entries {
		if rule, ok := plainEntry(e, source, n, now, seen, logger, i+1); ok {
			out = append(out, rule)
		}
	}
	return out
}

// plainEntry validates a single list token and records it in seen.
func plainEntry(raw, source string, n utils.Normalizer, now time.Time, seen map[string]struct{}, logger logpkg.Logger, lineNum int) (domain.BlockRule, bool) {
	name, ok := normalizeDomainName(raw, n)
	if !ok {
		logger.Debug(map[string]any{"line": lineNum, "raw": raw, "name": name}, "skip_invalid_name")
		return domain.BlockRule{}, false
	}
	if _, dup := seen[name]; dup {
		logger.Debug(map[string]any{"line": lineNum, "name": name}, "skip_duplicate")
		return domain.BlockRule{}, false
	}
	rule, err := domain.NewBlockRule(name, source, now)
	if err != nil {
		logger.Debug(map[string]any{"line": lineNum, "name": name, "error": err}, "skip_constructor_error")
		return domain.BlockRule{}, false
	}
	seen[name] = struct{}{}
	logger.Debug(map[string]any{"line": lineNum, "name": rule.Name}, "emit_rule")
	return rule, true
}
