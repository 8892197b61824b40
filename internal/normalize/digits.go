package normalize

import (
	"strings"
)

var spokenDigits = map[string]string{
	"zero":  "0",
	"oh":    "0",
	"one":   "1",
	"two":   "2",
	"three": "3",
	"four":  "4",
	"five":  "5",
	"six":   "6",
	"seven": "7",
	"eight": "8",
	"nine":  "9",
}

var repeaters = map[string]int{
	"double": 2,
	"triple": 3,
}

// collapseSpokenDigits replaces runs of digit words ("five five five one")
// with the digits they spell ("5551"). Numeric tokens and "double"/"triple"
// join a run. A run is only rewritten when it holds at least minRun digit
// tokens and at least one spoken word, so a lone "one" in a name survives.
func collapseSpokenDigits(text string, minRun int) string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text
	}

	out := make([]string, 0, len(tokens))
	var (
		run    []string
		digits strings.Builder
		spoken bool
		repeat int
		count  int
	)

	flush := func() {
		if len(run) > 0 && spoken && count >= minRun {
			out = append(out, digits.String())
		} else {
			out = append(out, run...)
		}
		run = run[:0]
		digits.Reset()
		spoken = false
		repeat = 0
		count = 0
	}

	for _, token := range tokens {
		word := strings.ToLower(strings.Trim(token, ".,;:!?"))

		if n, ok := repeaters[word]; ok {
			run = append(run, token)
			repeat = n
			spoken = true
			continue
		}
		if digit, ok := spokenDigits[word]; ok {
			run = append(run, token)
			digits.WriteString(strings.Repeat(digit, max(repeat, 1)))
			repeat = 0
			spoken = true
			count++
			continue
		}
		if word != "" && isAllDigits(word) {
			run = append(run, token)
			digits.WriteString(word)
			repeat = 0
			count++
			continue
		}

		flush()
		out = append(out, token)
	}
	flush()

	return strings.Join(out, " ")
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
