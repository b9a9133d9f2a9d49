package federation

import (
	"golang.org/x/text/unicode/norm"
)

// Canonicalizer rewrites an inbound document into the canonical form the
// rest of the system interprets.
type Canonicalizer interface {
	Canonicalize(doc map[string]any) (map[string]any, error)
}

// Normalizer is the built-in Canonicalizer. It NFC-normalizes every string
// in the document so URIs and content compare byte-for-byte regardless of
// how the origin server composed them, and defaults the document type.
type Normalizer struct{}

func (Normalizer) Canonicalize(doc map[string]any) (map[string]any, error) {
	if doc == nil {
		return nil, nil
	}
	out := normalizeValue(doc).(map[string]any)
	if _, ok := out["type"]; !ok {
		out["type"] = "Object"
	}
	return out, nil
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case string:
		return norm.NFC.String(v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[norm.NFC.String(key)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}
