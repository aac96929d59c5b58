package observability

import "strings"

// sensitiveSubstrings is the key-substring set from §4.5: any attribute key
// whose lowercased name contains one of these has its value replaced by the
// redaction sentinel. This walks structure (maps, slices) recursively and
// preserves keys — it is a different mechanism from Logger's regex-over-
// rendered-text redaction and the two are not meant to substitute for one
// another.
var sensitiveSubstrings = []string{
	"secret", "token", "password", "api_key", "credential", "auth", "authorization", "bearer",
}

// RedactedSentinel replaces the value of any sensitive-keyed attribute.
const RedactedSentinel = "[REDACTED]"

// isSensitiveKey reports whether name contains any sensitive substring,
// case-insensitively.
func isSensitiveKey(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactAttributes walks attrs recursively, replacing the value of any
// sensitive-keyed entry with RedactedSentinel while preserving structure and
// key names (§3.2 invariant: "An event never contains unredacted values for
// keys in the sensitive-key set"). The input is not mutated; a redacted
// copy is returned.
func RedactAttributes(attrs map[string]any) map[string]any {
	if attrs == nil {
		return nil
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if isSensitiveKey(k) {
			out[k] = RedactedSentinel
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return RedactAttributes(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
