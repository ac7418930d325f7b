package audit

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

var sensitiveKeys = []string{
	"password", "secret", "token", "api_key", "apikey", "auth", "key", "credential", "signature",
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)"(password|secret|token|api_key|apikey|auth)"\s*:\s*"[^"]*"`),
	regexp.MustCompile(`(?i)(password|secret|token|api_key|apikey)=\S+`),
	regexp.MustCompile(`(?i)Bearer\s+\S+`),
}

// RedactString replaces credential-looking substrings in free text.
func RedactString(s string) string {
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, redacted)
	}
	return s
}

// RedactMap returns a copy of details with sensitive keys masked and string
// values scrubbed. Nested maps are handled recursively; the input is never
// mutated.
func RedactMap(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		if isSensitiveKey(key) {
			out[key] = redacted
			continue
		}
		switch v := value.(type) {
		case map[string]any:
			out[key] = RedactMap(v)
		case string:
			out[key] = RedactString(v)
		default:
			out[key] = value
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
