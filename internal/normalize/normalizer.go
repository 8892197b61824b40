// Package normalize rewrites recognized utterances before the entry parser
// splits them into name and phone. It applies user substitution rules until
// the text is stable, then collapses runs of spoken digit words into digits.
//
// Rule syntax, one per line ('#' starts a comment):
//
//	jon smyth => Jon Smith        literal, case-insensitive
//	s/\bdr\.?\s+/Doctor /g        sed-style regex, flags i g m s
package normalize

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	defaultLoopLimit   = 30
	defaultMinDigitRun = 3
)

type rewrite interface {
	Apply(input string) (output string, changed bool)
}

// RuleParser parses one line into a rewrite.
type RuleParser interface {
	CanParse(line string) bool
	Parse(line string) (rewrite, error)
}

// Option configures a Normalizer.
type Option func(*options)

type options struct {
	path        string
	lines       []string
	loopLimit   int
	minDigitRun int
	parsers     []RuleParser
}

// WithRulesFile loads rules from path. A missing file is not an error.
func WithRulesFile(path string) Option {
	return func(o *options) { o.path = strings.TrimSpace(path) }
}

// WithRules adds inline rules, applied after those from the rules file.
func WithRules(lines ...string) Option {
	return func(o *options) { o.lines = append(o.lines, lines...) }
}

// WithLoopLimit bounds how many full passes run before giving up on stability.
func WithLoopLimit(limit int) Option {
	return func(o *options) { o.loopLimit = limit }
}

// WithMinDigitRun sets how many consecutive digits a spoken run needs before
// it is collapsed. Zero or less disables digit collapsing.
func WithMinDigitRun(n int) Option {
	return func(o *options) { o.minDigitRun = n }
}

// WithParsers replaces the rule parsers. Parsers are tried in order.
func WithParsers(parsers ...RuleParser) Option {
	return func(o *options) { o.parsers = parsers }
}

// Normalizer applies deterministic rewrites to utterances.
type Normalizer struct {
	rules       []rewrite
	loopLimit   int
	minDigitRun int
}

func New(opts ...Option) (*Normalizer, error) {
	o := options{loopLimit: defaultLoopLimit, minDigitRun: defaultMinDigitRun}
	for _, opt := range opts {
		opt(&o)
	}
	if o.loopLimit <= 0 {
		o.loopLimit = defaultLoopLimit
	}
	if len(o.parsers) == 0 {
		o.parsers = defaultRuleParsers()
	}

	var rules []rewrite
	if o.path != "" {
		contents, err := os.ReadFile(o.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read rules file %q: %w", o.path, err)
		default:
			parsed, err := parseRules(strings.Split(string(contents), "\n"), o.parsers)
			if err != nil {
				return nil, fmt.Errorf("failed to parse rules file %q: %w", o.path, err)
			}
			rules = append(rules, parsed...)
		}
	}
	if len(o.lines) > 0 {
		parsed, err := parseRules(o.lines, o.parsers)
		if err != nil {
			return nil, fmt.Errorf("failed to parse inline rules: %w", err)
		}
		rules = append(rules, parsed...)
	}

	return &Normalizer{rules: rules, loopLimit: o.loopLimit, minDigitRun: o.minDigitRun}, nil
}

// Apply rewrites text. It never fails for a constructed Normalizer; the error
// return keeps the ports.Normalizer contract open for remote normalizers.
func (n *Normalizer) Apply(text string) (string, error) {
	result := n.substitute(text)
	if n.minDigitRun > 0 {
		result = collapseSpokenDigits(result, n.minDigitRun)
	}
	return result, nil
}

func (n *Normalizer) substitute(text string) string {
	if len(n.rules) == 0 {
		return text
	}

	result := text
	for i := 0; i < n.loopLimit; i++ {
		changed := false
		for _, rule := range n.rules {
			next, ruleChanged := rule.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result
}

func parseRules(lines []string, parsers []RuleParser) ([]rewrite, error) {
	rules := make([]rewrite, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			rule, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			rules = append(rules, rule)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported rule format", index+1)
		}
	}

	return rules, nil
}

func defaultRuleParsers() []RuleParser {
	return []RuleParser{regexRuleParser{}, literalRuleParser{}}
}
