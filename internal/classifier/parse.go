package classifier

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var fenceRe = regexp.MustCompile("```json\\s*|\\s*```")

// stripFences removes markdown code-fence markup the model sometimes wraps
// around its JSON despite being told not to.
func stripFences(raw string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(strings.TrimSpace(raw), ""))
}

// decodeModelJSON parses the model's reply into v. On a parse failure it
// retries against the first balanced-brace substring; if that also fails
// the raw text is preserved on the returned error for diagnostics.
func decodeModelJSON(raw string, v any) error {
	cleaned := stripFences(raw)

	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	if sub, ok := extractObject(cleaned); ok {
		if err := json.Unmarshal([]byte(sub), v); err == nil {
			return nil
		}
	}
	return &Error{Kind: KindMalformedResponse, Detail: "no parseable JSON object", Raw: raw}
}

// extractObject returns the first balanced-brace substring of s.
// Brace characters inside JSON strings are ignored.
func extractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

var retryDelayRe = regexp.MustCompile(`retry in (\d+\.?\d*)`)

// parseRetryDelay extracts a server-suggested retry delay (seconds) from a
// quota error message, e.g. "... please retry in 7.5 seconds".
func parseRetryDelay(msg string) (float64, bool) {
	m := retryDelayRe.FindStringSubmatch(strings.ToLower(msg))
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return secs, true
}
