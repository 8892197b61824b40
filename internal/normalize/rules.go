package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// patternRule is the compiled form of both rule syntaxes.
type patternRule struct {
	re          *regexp.Regexp
	replacement string
	literal     bool
	all         bool
}

func (r patternRule) Apply(input string) (string, bool) {
	var output string
	switch {
	case r.literal:
		output = r.re.ReplaceAllLiteralString(input, r.replacement)
	case r.all:
		output = r.re.ReplaceAllString(input, r.replacement)
	default:
		loc := r.re.FindStringSubmatchIndex(input)
		if loc == nil {
			return input, false
		}
		expanded := r.re.ExpandString(nil, r.replacement, input, loc)
		output = input[:loc[0]] + string(expanded) + input[loc[1]:]
	}
	return output, output != input
}

// literalRuleParser handles "heard => meant". Matching ignores case and only
// replaces whole words, so "jon => John" leaves "Jonathan" alone.
type literalRuleParser struct{}

func (literalRuleParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (literalRuleParser) Parse(line string) (rewrite, error) {
	heard, meant, _ := strings.Cut(line, "=>")
	heard, meant = strings.TrimSpace(heard), strings.TrimSpace(meant)
	if heard == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(heard)
	if isWordRune(firstRune(heard)) {
		pattern = `\b` + pattern
	}
	if isWordRune(lastRune(heard)) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return patternRule{re: re, replacement: meant, literal: true}, nil
}

// regexRuleParser handles sed-style "s/pattern/replacement/flags" with any
// punctuation delimiter. Patterns are case-insensitive; g replaces every match.
type regexRuleParser struct{}

func (regexRuleParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 's' && isDelimiter(line[1])
}

func (regexRuleParser) Parse(line string) (rewrite, error) {
	fields, rest, err := splitSed(line[2:], line[1], 2)
	if err != nil {
		return nil, err
	}

	modes := "i"
	all := false
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'i', ' ':
		case 'g':
			all = true
		case 'm', 's':
			if !strings.ContainsRune(modes, flag) {
				modes += string(flag)
			}
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + modes + ")" + fields[0])
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return patternRule{re: re, replacement: fields[1], all: all}, nil
}

// splitSed reads n delim-terminated fields from s and returns the remainder.
// A backslash keeps the following byte, so an escaped delimiter stays in the
// field with its backslash for the regexp compiler to interpret.
func splitSed(s string, delim byte, n int) ([]string, string, error) {
	fields := make([]string, 0, n)
	start := 0
	for i := 0; i < len(s) && len(fields) < n; i++ {
		switch s[i] {
		case '\\':
			i++
		case delim:
			fields = append(fields, s[start:i])
			start = i + 1
		}
	}
	if len(fields) < n {
		return nil, "", errors.New("unterminated regex rule")
	}
	return fields, s[start:], nil
}

func isDelimiter(b byte) bool {
	return b < unicode.MaxASCII && unicode.IsPunct(rune(b)) || b == '|'
}

// isWordRune matches the ASCII word class that \b is defined over.
func isWordRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}
