package correct

import (
	"bytes"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

type entryCorrection struct {
	Original       string `json:"original"`
	CorrectedName  string `json:"correctedName"`
	CorrectedPhone string `json:"correctedPhone"`
}

func responseSchema() *jsonschema.Schema {
	schema, err := jsonschema.For[[]entryCorrection](&jsonschema.ForOptions{})
	if err != nil {
		// The type is static; inference cannot fail at runtime.
		panic("correct: infer response schema: " + err.Error())
	}
	// A nil slice infers as ["null", "array"]; providers want a plain array.
	schema.Type, schema.Types = "array", nil
	return schema
}

// errNoCorrections means the response was valid JSON but carried no entries.
var errNoCorrections = errors.New("response holds no corrections")

// parseCorrections accepts a bare JSON array, or an object wrapping the array
// in an array-valued field, which some providers produce when they only
// support object-shaped structured output. Wrapper fields are tried in key
// order and null fields are skipped.
func parseCorrections(content string) ([]entryCorrection, error) {
	data := []byte(stripMarkdown(content))

	var list []entryCorrection
	err := unmarshalJSON(data, &list)
	if err == nil {
		if len(list) == 0 {
			return nil, errNoCorrections
		}
		return list, nil
	}

	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		return nil, err
	}

	var wrapped map[string]json.RawMessage
	if err := unmarshalJSON(data, &wrapped); err != nil {
		return nil, err
	}
	empty := false
	for _, key := range slices.Sorted(maps.Keys(wrapped)) {
		raw := bytes.TrimSpace(wrapped[key])
		if len(raw) == 0 || raw[0] != '[' {
			continue
		}
		var candidate []entryCorrection
		if err := json.Unmarshal(raw, &candidate); err != nil {
			continue
		}
		if len(candidate) == 0 {
			empty = true
			continue
		}
		return candidate, nil
	}
	if empty {
		return nil, errNoCorrections
	}
	return nil, errors.New("no correction array in response")
}

// unmarshalJSON retries once through jsonrepair when the model emitted
// syntactically broken JSON.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	fixed, repairErr := jsonrepair.JSONRepair(string(data))
	if repairErr != nil {
		return errors.Join(err, repairErr)
	}
	return json.Unmarshal([]byte(fixed), v)
}

// stripMarkdown removes ```json fences some models wrap around JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
