package export

import "regexp"

// Stable placeholder tokens. Keeping them constant means repeated exports of
// the same store diff cleanly.
const (
	emailPlaceholder = "[EMAIL]"
	urlPlaceholder   = "[URL]"
	pathPlaceholder  = "[PATH]"
)

var (
	urlPattern   = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	// Absolute or home-relative paths with at least two segments; single
	// slashes in prose ("either/or") stay untouched.
	pathPattern = regexp.MustCompile(`(~?/[A-Za-z0-9._@+-]+(?:/[A-Za-z0-9._@+-]+)+)`)
)

// redactText replaces emails, URLs, and filesystem paths in free text with
// stable placeholders. URLs go first so their path component is not matched
// again by the path pattern.
func redactText(text string) string {
	if text == "" {
		return text
	}
	text = urlPattern.ReplaceAllString(text, urlPlaceholder)
	text = emailPattern.ReplaceAllString(text, emailPlaceholder)
	text = pathPattern.ReplaceAllString(text, pathPlaceholder)
	return text
}

// redactValue walks arbitrary metadata values and redacts every string leaf,
// preserving structure and collection sizes.
func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return redactText(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = redactText(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
