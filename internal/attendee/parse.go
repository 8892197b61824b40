package attendee

import "strings"

// ParseEntry splits an utterance into a leading name and a trailing phone
// number at the first ASCII digit. When there is no digit, or the utterance
// starts with one, the whole trimmed text is the name and phone is empty.
func ParseEntry(text string) (name string, phone string) {
	trimmed := strings.TrimSpace(text)

	index := strings.IndexFunc(trimmed, isDigit)
	if index <= 0 {
		return trimmed, ""
	}

	prefix := strings.TrimSpace(trimmed[:index])
	if prefix == "" {
		return trimmed, ""
	}
	return prefix, strings.TrimSpace(trimmed[index:])
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
