package attendee

import "testing"

func TestParseEntry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		input     string
		wantName  string
		wantPhone string
	}{
		{name: "name only", input: "  amy cooper ", wantName: "amy cooper", wantPhone: ""},
		{name: "name and phone", input: "Amy Cooper 1234567890", wantName: "Amy Cooper", wantPhone: "1234567890"},
		{name: "phone with separators", input: "Bob Lee 555-123 4567", wantName: "Bob Lee", wantPhone: "555-123 4567"},
		{name: "no space before digits", input: "Zed99", wantName: "Zed", wantPhone: "99"},
		{name: "starts with digit", input: "42 Wallaby Way", wantName: "42 Wallaby Way", wantPhone: ""},
		{name: "digits only", input: "1234567890", wantName: "1234567890", wantPhone: ""},
		{name: "punctuation prefix", input: "- 555", wantName: "-", wantPhone: "555"},
		{name: "empty", input: "   ", wantName: "", wantPhone: ""},
		{name: "unicode name", input: "Zoë Ñúñez 0711", wantName: "Zoë Ñúñez", wantPhone: "0711"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotName, gotPhone := ParseEntry(tc.input)
			if gotName != tc.wantName || gotPhone != tc.wantPhone {
				t.Fatalf("ParseEntry(%q) = (%q, %q), want (%q, %q)", tc.input, gotName, gotPhone, tc.wantName, tc.wantPhone)
			}
		})
	}
}

func TestParseEntryNeverReturnsEmptyNameForNonEmptyInput(t *testing.T) {
	t.Parallel()

	inputs := []string{"7", "0 0 0", "a1", " 9 lives", "x"}
	for _, input := range inputs {
		name, _ := ParseEntry(input)
		if name == "" {
			t.Fatalf("ParseEntry(%q) returned empty name", input)
		}
	}
}
