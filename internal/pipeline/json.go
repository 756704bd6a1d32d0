package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.ContainsAny(text[:nl], "{[") {
		text = text[nl+1:]
	} else {
		text = strings.TrimPrefix(text, "json")
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// firstValue returns the first complete JSON value in text that starts with
// open and passes accept (nil accepts any value). Candidates that do not
// parse are skipped, so delimiters in surrounding prose are ignored. Text is
// returned unchanged when no candidate fits.
func firstValue(text string, open byte, accept func(json.RawMessage) bool) string {
	for i := 0; i < len(text); i++ {
		j := strings.IndexByte(text[i:], open)
		if j < 0 {
			break
		}
		i += j
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw); err != nil {
			continue
		}
		if accept == nil || accept(raw) {
			return string(raw)
		}
	}
	return text
}

func isStringList(raw json.RawMessage) bool {
	var points []string
	return json.Unmarshal(raw, &points) == nil
}

// cleanJSON strips code fences and surrounding prose from a model reply
// that should hold a JSON object.
func cleanJSON(text string) string {
	return firstValue(stripFences(text), '{', nil)
}

// cleanJSONArray is cleanJSON for replies that should hold a JSON array of
// strings.
func cleanJSONArray(text string) string {
	return firstValue(stripFences(text), '[', isStringList)
}

// decodeObject unmarshals a model reply holding a JSON object into v.
func decodeObject(text string, v any) error {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return eris.New("empty model response")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return eris.Wrapf(err, "decode model response %q", preview(cleaned))
	}
	return nil
}

// decodePoints reads a list of text points from a reply that is either a
// JSON array of strings or an object wrapping one (for example
// {"summary": [...]}).
func decodePoints(text string) ([]string, error) {
	stripped := stripFences(text)
	arr := strings.IndexByte(stripped, '[')
	obj := strings.IndexByte(stripped, '{')

	if arr >= 0 && (obj < 0 || arr < obj) {
		var points []string
		cleaned := cleanJSONArray(stripped)
		if err := json.Unmarshal([]byte(cleaned), &points); err != nil {
			return nil, eris.Wrapf(err, "decode point list %q", preview(cleaned))
		}
		return points, nil
	}

	var wrapped map[string]json.RawMessage
	if err := decodeObject(stripped, &wrapped); err != nil {
		return nil, err
	}
	for _, key := range []string{"summary", "points", "insights", "general_summary"} {
		if raw, ok := wrapped[key]; ok {
			return rawPoints(raw)
		}
	}
	// A single array-valued field is accepted whatever its name.
	if len(wrapped) == 1 {
		for _, raw := range wrapped {
			return rawPoints(raw)
		}
	}
	return nil, eris.Errorf("no point list in model response %q", preview(stripped))
}

// rawPoints decodes a JSON value into points. A bare string is one point.
func rawPoints(raw json.RawMessage) ([]string, error) {
	var points []string
	if err := json.Unmarshal(raw, &points); err == nil {
		return points, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	return nil, eris.Errorf("expected a list of strings, got %q", preview(string(raw)))
}

func preview(s string) string {
	const limit = 200
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
