package review

import (
	"sort"
	"strings"
	"unicode"
)

// Mapper resolves a raw control name to its canonical review area.
type Mapper interface {
	Map(rawName string) (area string, matched bool)
	Targets() []string
}

type tableMapper struct {
	table map[string]string
}

// NewMapper builds a mapper from a prefix table. Keys are normalized with
// NormalizeKey so the table may be written with any dash or ampersand style.
func NewMapper(prefixes map[string]string) Mapper {
	t := make(map[string]string, len(prefixes))
	for prefix, area := range prefixes {
		t[NormalizeKey(prefix)] = area
	}
	return &tableMapper{table: t}
}

func DefaultMapper() Mapper {
	return NewMapper(defaultPrefixes)
}

func (m *tableMapper) Map(rawName string) (string, bool) {
	prefix, ok := ExtractPrefix(rawName)
	if !ok {
		return "", false
	}
	area, ok := m.table[NormalizeKey(prefix)]
	return area, ok
}

// Targets returns every distinct area the table can produce, sorted.
func (m *tableMapper) Targets() []string {
	seen := make(map[string]struct{}, len(m.table))
	targets := make([]string, 0, len(m.table))
	for _, area := range m.table {
		if _, ok := seen[area]; ok {
			continue
		}
		seen[area] = struct{}{}
		targets = append(targets, area)
	}
	sort.Strings(targets)
	return targets
}

// ExtractPrefix returns the text before the first colon with whitespace trimmed
// and collapsed. Names without a colon or with an empty prefix are rejected.
func ExtractPrefix(rawName string) (string, bool) {
	before, _, found := strings.Cut(rawName, ":")
	if !found {
		return "", false
	}
	prefix := strings.Join(strings.Fields(before), " ")
	if prefix == "" {
		return "", false
	}
	return prefix, true
}

var dashes = map[rune]bool{
	'-':      true,
	'\u2010': true,
	'\u2011': true,
	'\u2013': true,
	'\u2014': true,
	'\u2212': true,
}

// NormalizeKey folds a prefix to its lookup key: upper case, dashes and
// separators turned into spaces, ampersands and the word AND removed.
func NormalizeKey(prefix string) string {
	folded := strings.Map(func(r rune) rune {
		switch {
		case dashes[r]:
			return ' '
		case r == '/' || r == ',' || r == '.' || r == '(' || r == ')':
			return ' '
		case r == '&':
			return ' '
		}
		return unicode.ToUpper(r)
	}, prefix)

	words := strings.Fields(folded)
	kept := words[:0]
	for _, w := range words {
		if w == "AND" {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
