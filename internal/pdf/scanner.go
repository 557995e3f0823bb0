package pdf

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ContentScanner screens text for sensitive terms. The pattern set is fixed
// at construction and the scanner is safe for concurrent use.
type ContentScanner struct {
	patterns []string // original spelling, first occurrence order
	folded   []string
}

// NewContentScanner builds a scanner over patterns. Empty patterns are
// ignored and patterns that only differ in case are kept once.
func NewContentScanner(patterns []string) *ContentScanner {
	s := &ContentScanner{}
	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f := fold(p)
		if seen[f] {
			continue
		}
		seen[f] = true
		s.patterns = append(s.patterns, p)
		s.folded = append(s.folded, f)
	}
	return s
}

// Patterns returns the effective pattern set.
func (s *ContentScanner) Patterns() []string {
	return append([]string(nil), s.patterns...)
}

// Scan returns the patterns found in text, in pattern-set order.
func (s *ContentScanner) Scan(text string) []string {
	if s == nil || len(s.patterns) == 0 || text == "" {
		return nil
	}
	t := fold(text)
	var matched []string
	for i, f := range s.folded {
		if strings.Contains(t, f) {
			matched = append(matched, s.patterns[i])
		}
	}
	return matched
}

// fold normalises compatibility forms and folds case.
func fold(s string) string {
	// cases.Caser holds state and is not safe to share
	return cases.Fold().String(norm.NFKC.String(s))
}
