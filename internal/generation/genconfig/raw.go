package genconfig

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
)

// UnmarshalJSON accepts any JSON. Keys are coerced one by one and values of
// an unusable shape are dropped, so a config object never fails a request.
func (r *Raw) UnmarshalJSON(data []byte) error {
	*r = Raw{}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	r.Level = looseString(m["level"])
	r.Niveau = looseString(m["niveau"])
	r.Count = looseString(m["count"])

	r.MCQ = looseBool(m["mcq"])
	r.TrueFalse = looseBool(m["true_false"])
	r.FillBlank = looseBool(m["fill_blank"])
	r.Flashcards = looseBool(m["flashcards"])
	r.Basic = looseBool(m["basic"])
	r.Cloze = looseBool(m["cloze"])
	r.Reversed = looseBool(m["reversed"])

	r.Types = looseStrings(m["types"])
	return nil
}

func looseString(v any) string {
	s, _ := v.(string)
	return s
}

func looseBool(v any) *bool {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case float64:
		b = x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "on", "1", "oui":
			b = true
		case "false", "no", "n", "off", "0", "non":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

// looseStrings reads a list of names, or a single comma-separated string.
func looseStrings(v any) []string {
	switch x := v.(type) {
	case string:
		return lo.Compact(lo.Map(strings.Split(x, ","), func(s string, _ int) string {
			return strings.TrimSpace(s)
		}))
	case []any:
		return lo.FilterMap(x, func(e any, _ int) (string, bool) {
			s, ok := e.(string)
			return s, ok && strings.TrimSpace(s) != ""
		})
	}
	return nil
}
