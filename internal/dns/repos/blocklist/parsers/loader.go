package parsers

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/clock"
	logpkg "github.com/haukened/nfq-dnsfilter/internal/dns/common/log"
	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
)

// SourceConfig is the source recorded for rules from inline configuration.
const SourceConfig = "config"

// Format identifies a blocklist file layout.
type Format int

const (
	FormatPlain Format = iota
	FormatHosts
)

func (f Format) String() string {
	if f == FormatHosts {
		return "hosts"
	}
	return "plain"
}

// detectLines bounds how many entries DetectFormat looks at.
const detectLines = 32

// DetectFormat inspects the first entries of r. A file whose first
// non-comment line starts with an IP address followed by a name is a hosts
// file; anything else is a plain list.
func DetectFormat(r io.Reader) Format {
	scanner := bufio.NewScanner(r)
	for seen := 0; scanner.Scan() && seen < detectLines; {
		line := stripLineBOM(scanner.Text())
		if isEmpty, isComment := classifyLine(line); isEmpty || isComment {
			continue
		}
		seen++
		fields := strings.Fields(stripInlineComment(line))
		if len(fields) == 0 {
			continue
		}
		if _, err := netip.ParseAddr(fields[0]); err == nil && len(fields) >= 2 {
			return FormatHosts
		}
		return FormatPlain
	}
	return FormatPlain
}

// LoadFile reads a blocklist file, detects its format and parses it.
// Rules are attributed to "file:<path>".
func LoadFile(path string, n utils.Normalizer, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read blocklist %q: %w", path, err)
	}
	source := "file:" + path
	format := DetectFormat(bytes.NewReader(data))
	logger.Debug(map[string]any{"path": path, "format": format.String()}, "blocklist_format")

	var rules []domain.BlockRule
	if format == FormatHosts {
		rules, err = ParseHostsFile(bytes.NewReader(data), source, n, logger, now)
	} else {
		rules, err = ParsePlainList(bytes.NewReader(data), source, n, logger, now)
	}
	if err != nil {
		return nil, fmt.Errorf("parse blocklist %q: %w", path, err)
	}
	return rules, nil
}

// LoadOptions lists the configured rule sources.
type LoadOptions struct {
	Domains    []string
	Files      []string
	Normalizer utils.Normalizer
	Clock      clock.Clock
	Logger     logpkg.Logger
}

// LoadAll collects rules from inline domains then each file in order. Files
// are read concurrently. A name seen in an earlier source wins. An unreadable
// file is an error; malformed entries inside a file are skipped.
func LoadAll(ctx context.Context, opts LoadOptions) ([]domain.BlockRule, error) {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNoopLogger()
	}
	now := opts.Clock.Now()

	perFile := make([][]domain.BlockRule, len(opts.Files))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range opts.Files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rules, err := LoadFile(path, opts.Normalizer, opts.Logger, now)
			if err != nil {
				return err
			}
			perFile[i] = rules
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := ParseDomains(opts.Domains, SourceConfig, opts.Normalizer, opts.Logger, now)
	seen := make(map[string]struct{}, len(out))
	for _, r := range out {
		seen[r.Name] = struct{}{}
	}
	for i, rules := range perFile {
		added := 0
		for _, r := range rules {
			if _, dup := seen[r.Name]; dup {
				continue
			}
			seen[r.Name] = struct{}{}
			out = append(out, r)
			added++
		}
		opts.Logger.Info(map[string]any{"path": opts.Files[i], "parsed": len(rules), "added": added}, "blocklist file loaded")
	}
	return out, nil
}
