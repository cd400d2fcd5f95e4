package text

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Replacer applies whole-word pronunciation fixes before synthesis.
type Replacer struct {
	pattern      *regexp.Regexp
	replacements map[string]string
}

// NewReplacer compiles the replacement table. Longer patterns win over their
// prefixes.
func NewReplacer(replacements map[string]string) *Replacer {
	keys := make([]string, 0, len(replacements))
	table := make(map[string]string, len(replacements))

	for from, to := range replacements {
		if strings.TrimSpace(from) == "" {
			continue
		}

		keys = append(keys, from)
		table[from] = to
	}

	if len(keys) == 0 {
		return &Replacer{replacements: table}
	}

	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}

		return keys[i] < keys[j]
	})

	quoted := make([]string, len(keys))
	for i, key := range keys {
		quoted[i] = regexp.QuoteMeta(key)
	}

	return &Replacer{
		pattern:      regexp.MustCompile(strings.Join(quoted, "|")),
		replacements: table,
	}
}

// LoadReplacements reads a JSON object of pattern to replacement. A missing
// file yields an empty replacer.
func LoadReplacements(path string) (*Replacer, error) {
	if path == "" {
		return NewReplacer(nil), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewReplacer(nil), nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read replacements file %q: %w", path, err)
	}

	var table map[string]string

	err = json.Unmarshal(data, &table)
	if err != nil {
		return nil, fmt.Errorf("failed to parse replacements file %q: %w", path, err)
	}

	return NewReplacer(table), nil
}

// Len returns the number of active replacements.
func (r *Replacer) Len() int {
	return len(r.replacements)
}

// Apply rewrites every whole-word occurrence of a pattern in a single pass.
func (r *Replacer) Apply(input string) string {
	if r.pattern == nil || input == "" {
		return input
	}

	matches := r.pattern.FindAllStringIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	var builder strings.Builder

	last := 0

	for _, match := range matches {
		start, end := match[0], match[1]
		if !isWordBoundary(input, start, end) {
			continue
		}

		builder.WriteString(input[last:start])
		builder.WriteString(r.replacements[input[start:end]])

		last = end
	}

	builder.WriteString(input[last:])

	return builder.String()
}

func isWordBoundary(input string, start, end int) bool {
	if start > 0 {
		before, _ := utf8.DecodeLastRuneInString(input[:start])
		if isWordRune(before) {
			return false
		}
	}

	if end < len(input) {
		after, _ := utf8.DecodeRuneInString(input[end:])
		if isWordRune(after) {
			return false
		}
	}

	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
