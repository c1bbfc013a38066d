// Package pairs parses interferometric pair lists and derives acquisition
// dates from Sentinel-1 scene identifiers.
//
// A pair list is a UTF-8 text file with one pair per line. Blank lines and
// lines starting with '#' are ignored. Each remaining line must resolve to
// exactly two scene identifiers, either by matching the canonical SAFE
// naming pattern or via a generic two-token fallback. Malformed lines are
// skipped with a warning; they never abort the parse.
package pairs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// UnknownDate is the placeholder label used when no acquisition date can
// be extracted from a scene identifier.
const UnknownDate = "unknown"

var (
	// safePattern matches canonical Sentinel-1 IW SLC product names.
	safePattern = regexp.MustCompile(`S1[AB]_IW_SLC__[0-9A-Za-zT_\-]+\.SAFE`)

	// datePattern matches the acquisition timestamp embedded in a scene
	// identifier: eight date digits immediately followed by 'T' and six
	// time digits.
	datePattern = regexp.MustCompile(`(\d{8})T\d{6}`)
)

// Pair is one unit of work: a reference scene and a secondary scene to be
// jointly processed. Pairs are immutable once parsed.
type Pair struct {
	Reference string
	Secondary string
}

// Label returns a short human-readable identifier for the pair based on
// the extractable acquisition dates.
func (p Pair) Label() string {
	ref, ok := ExtractDate(p.Reference)
	if !ok {
		ref = UnknownDate
	}
	sec, ok := ExtractDate(p.Secondary)
	if !ok {
		sec = UnknownDate
	}
	return fmt.Sprintf("%s_%s", ref, sec)
}

// Resolver parses pair lists. The zero value is not usable; construct
// with NewResolver.
type Resolver struct {
	log      *zap.Logger
	rejected int
}

// Rejected returns how many malformed lines the last parse dropped.
func (r *Resolver) Rejected() int { return r.rejected }

// NewResolver creates a resolver that reports skipped lines on log.
// A nil logger disables reporting.
func NewResolver(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log}
}

// ParseFile reads and parses the pair list at path. A missing file yields
// an empty list and no error: an absent list simply means there is no
// work, which the caller reports.
func (r *Resolver) ParseFile(path string) ([]Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Warn("pair list not found", zap.String("path", path))
			return nil, nil
		}
		return nil, fmt.Errorf("open pair list: %w", err)
	}
	defer func() { _ = f.Close() }()

	return r.Parse(f)
}

// Parse reads pairs from rd, preserving input order. Malformed lines are
// skipped and logged.
func (r *Resolver) Parse(rd io.Reader) ([]Pair, error) {
	var out []Pair
	r.rejected = 0

	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if p, ok := parseLine(line); ok {
			out = append(out, p)
			continue
		}
		r.rejected++
		r.log.Warn("skipping malformed pair line", zap.String("line", line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read pair list: %w", err)
	}

	return out, nil
}

// parseLine applies the two line grammars in order: canonical identifier
// search first, then the generic two-token fallback.
func parseLine(line string) (Pair, bool) {
	if found := safePattern.FindAllString(line, -1); len(found) == 2 {
		return Pair{Reference: found[0], Secondary: found[1]}, true
	}

	cleaned := strings.TrimSpace(line)
	cleaned = strings.TrimPrefix(cleaned, "(")
	cleaned = strings.TrimSuffix(cleaned, ")")
	cleaned = strings.TrimSpace(cleaned)

	var raw []string
	if strings.Contains(cleaned, ",") {
		raw = strings.Split(cleaned, ",")
	} else {
		raw = strings.Fields(cleaned)
	}

	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		t = strings.Trim(t, `"'`)
		if t != "" {
			tokens = append(tokens, t)
		}
	}

	if len(tokens) != 2 {
		return Pair{}, false
	}
	return Pair{Reference: tokens[0], Secondary: tokens[1]}, true
}

// ExtractDate returns the YYYYMMDD acquisition date embedded in a scene
// identifier. The second return value is false when no date is present;
// callers must treat that as a non-fatal outcome.
func ExtractDate(id string) (string, bool) {
	m := datePattern.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// DateRange collects every extractable date from every pair and returns
// the lexical minimum and maximum. Lexical comparison is valid because
// the date format is fixed-width YYYYMMDD. Both values are empty when no
// date could be extracted from any pair.
func DateRange(list []Pair) (minDate, maxDate string) {
	for _, p := range list {
		for _, id := range []string{p.Reference, p.Secondary} {
			d, ok := ExtractDate(id)
			if !ok {
				continue
			}
			if minDate == "" || d < minDate {
				minDate = d
			}
			if maxDate == "" || d > maxDate {
				maxDate = d
			}
		}
	}
	return minDate, maxDate
}
