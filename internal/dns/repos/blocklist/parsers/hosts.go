package parsers

import (
	"bufio"
	"io"
	"net/netip"
	"strings"
	"time"

	logpkg "github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// hostsDefaults are names every hosts file carries for the local machine.
// Blocking them would break resolution of loopback and broadcast names.
var hostsDefaults = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
	"local":                 {},
	"broadcasthost":         {},
	"ip6-localhost":         {},
	"ip6-loopback":          {},
	"ip6-localnet":          {},
	"ip6-mcastprefix":       {},
	"ip6-allnodes":          {},
	"ip6-allrouters":        {},
	"ip6-allhosts":          {},
	"0.0.0.0":               {},
}

// ParseHostsFile parses /etc/hosts-style files and returns rules for the hostnames.
//
// Rules:
// - Ignore the IP field; extract one or more hostnames following it
// - Skip comments (whole-line or inline after '#') and blank lines
// - Skip wildcard tokens, names starting with '.', IP literals and the
//   standard loopback/broadcast entries
// - Normalize with n, validate, and de-duplicate preserving first-seen order
func ParseHostsFile(r io.Reader, source string, n utils.Normalizer, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.BlockRule, 0, 256)

	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripLineBOM(scanner.Text())

		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			if isEmpty {
				logger.Debug(map[string]any{"line": lineNum}, "hosts_skip_empty")
			} else {
				logger.Debug(map[string]any{"line": lineNum}, "hosts_skip_comment")
			}
			continue
		}

		fields := strings.Fields(stripInlineComment(line))
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "hosts_no_hostnames")
			continue
		}

		for _, raw := range fields[1:] {
			if strings.HasPrefix(raw, ".") || strings.Contains(raw, "*") {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "hosts_skip_invalid_token")
				continue
			}
			if isHostsDefault(raw) {
				logger.Debug(map[string]any{"line": lineNum, "raw": raw}, "hosts_skip_default")
				continue
			}

			name, ok := normalizeDomainName(raw, n)
			if !ok {
				logger.Debug(map[string]any{"line": lineNum, "name": name}, "hosts_skip_invalid_name")
				continue
			}

			if _, dup := seen[name]; dup {
				logger.Debug(map[string]any{"line": lineNum, "name": name}, "hosts_skip_duplicate")
				continue
			}

			rule, err := domain.NewBlockRule(name, source, now)
			if err != nil {
				logger.Debug(map[string]any{"line": lineNum, "name": name, "error": err}, "hosts_skip_constructor_error")
				continue
			}

			out = append(out, rule)
			seen[name] = struct{}{}
			logger.Debug(map[string]any{"line": lineNum, "name": rule.Name}, "hosts_emit_rule")
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_hosts_scan_error")
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_hosts_done")
	return out, nil
}

// isHostsDefault reports whether token is a loopback/broadcast alias or an
// address rather than a hostname.
func isHostsDefault(token string) bool {
	if _, err := netip.ParseAddr(token); err == nil {
		return true
	}
	_, ok := hostsDefaults[utils.CanonicalDNSName(token)]
	return ok
}
