package normalize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRules(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "names.rules")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}

func TestNormalizerLiteralAndRegexRules(t *testing.T) {
	t.Parallel()

	path := writeRules(t, `
# literal
jon smyth => Jon Smith
# regex, case-insensitive by default
s/\bdr\.?\s+/Doctor /g
`)

	n, err := New(WithRulesFile(path))
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	output, err := n.Apply("DR. jon smyth")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "Doctor Jon Smith" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestNormalizerIteratesUntilStable(t *testing.T) {
	t.Parallel()

	n, err := New(WithRules("a => b", "b => c"), WithLoopLimit(5))
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	output, _ := n.Apply("a")
	if output != "c" {
		t.Fatalf("expected c, got %q", output)
	}
}

func TestNormalizerMissingRulesFileIsEmpty(t *testing.T) {
	t.Parallel()

	n, err := New(WithRulesFile(filepath.Join(t.TempDir(), "absent.rules")), WithMinDigitRun(0))
	if err != nil {
		t.Fatalf("missing rules file should not fail: %v", err)
	}

	output, _ := n.Apply("one two three")
	if output != "one two three" {
		t.Fatalf("expected passthrough, got %q", output)
	}
}

func TestNormalizerLiteralRuleStartingWithS(t *testing.T) {
	t.Parallel()

	n, err := New(WithRules("sara lee => Sarah Lee"))
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	output, _ := n.Apply("sara lee")
	if output != "Sarah Lee" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestNormalizerRulesRunBeforeDigitCollapse(t *testing.T) {
	t.Parallel()

	n, err := New(WithRules("to => two"), WithMinDigitRun(3))
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	output, _ := n.Apply("Amy five five to one")
	if output != "Amy 5521" {
		t.Fatalf("unexpected output: %q", output)
	}
}

type prefixRuleParser struct{}

func (prefixRuleParser) CanParse(line string) bool {
	return strings.HasPrefix(line, "prefix:")
}

func (prefixRuleParser) Parse(line string) (rewrite, error) {
	return prefixRule{value: strings.TrimSpace(strings.TrimPrefix(line, "prefix:"))}, nil
}

type prefixRule struct {
	value string
}

func (r prefixRule) Apply(input string) (string, bool) {
	if strings.HasPrefix(input, r.value+" ") {
		return input, false
	}
	return r.value + " " + input, true
}

func TestNormalizerSupportsParserExtension(t *testing.T) {
	t.Parallel()

	n, err := New(
		WithRules("prefix: Guest"),
		WithParsers(prefixRuleParser{}, regexRuleParser{}, literalRuleParser{}),
	)
	if err != nil {
		t.Fatalf("failed to create normalizer: %v", err)
	}

	output, _ := n.Apply("Amy")
	if output != "Guest Amy" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestRegexRuleWithoutGlobalReplacesFirstMatchOnly(t *testing.T) {
	t.Parallel()

	rule, err := parseRegexRule(`s/o/0/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	output, changed := rule.Apply("foo")
	if !changed || output != "f0o" {
		t.Fatalf("unexpected output: %q changed=%v", output, changed)
	}
}

func TestParseRegexRuleUnsupportedFlag(t *testing.T) {
	t.Parallel()

	if _, err := parseRegexRule(`s/a/b/x`); err == nil {
		t.Fatalf("expected unsupported flag error")
	}
}

func TestNewRejectsUnsupportedRuleLine(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "jon smyth => Jon Smith\nthis is not a rule\n")
	_, err := New(WithRulesFile(path))
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line number in error, got %v", err)
	}
}
