package phrases

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rg/arcguard/internal/textnorm"
)

// Set is an ordered, read-only list of lowercase phrases loaded at startup.
type Set struct {
	name     string
	phrases  []string
	patterns []*regexp.Regexp
	folded   []*regexp.Regexp
	index    map[string]struct{}
}

// Load reads a phrase file, one phrase per line. A missing or unreadable file
// is an error; an empty file yields an empty set.
func Load(name, path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s phrases: %w", name, err)
	}
	defer f.Close()

	set, err := Parse(name, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s phrases from %s: %w", name, path, err)
	}
	return set, nil
}

// Parse reads phrases from r. Lines are trimmed and lower-cased; blank lines
// and repeats are skipped.
func Parse(name string, r io.Reader) (*Set, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return New(name, lines)
}

func New(name string, phrases []string) (*Set, error) {
	s := &Set{
		name:  name,
		index: make(map[string]struct{}, len(phrases)),
	}

	for _, p := range phrases {
		p = textnorm.Normalize(p)
		if p == "" {
			continue
		}
		if _, dup := s.index[p]; dup {
			continue
		}

		re, err := textnorm.WordPattern(p, "")
		if err != nil {
			return nil, fmt.Errorf("invalid phrase %q: %w", p, err)
		}
		fre, err := textnorm.WordPattern(textnorm.Fold(p), "")
		if err != nil {
			return nil, fmt.Errorf("invalid phrase %q: %w", p, err)
		}

		s.index[p] = struct{}{}
		s.phrases = append(s.phrases, p)
		s.patterns = append(s.patterns, re)
		s.folded = append(s.folded, fre)
	}

	return s, nil
}

// Match returns the first phrase, in file order, that occurs in text as a
// whole word. The folded form of the text is tried as well so that
// look-alike spellings ("sc4m") hit the plain phrase ("scam").
func (s *Set) Match(text string) (string, bool) {
	if s == nil || len(s.phrases) == 0 {
		return "", false
	}

	lower := strings.ToLower(text)
	folded := textnorm.Fold(lower)

	for i, re := range s.patterns {
		if re.MatchString(lower) {
			return s.phrases[i], true
		}
		if s.folded[i].MatchString(folded) {
			return s.phrases[i], true
		}
	}
	return "", false
}

// Contains reports whether normalized equals one of the phrases exactly.
func (s *Set) Contains(normalized string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[normalized]
	return ok
}

func (s *Set) Name() string { return s.name }

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.phrases)
}

func (s *Set) Phrases() []string {
	out := make([]string, len(s.phrases))
	copy(out, s.phrases)
	return out
}
