package codegen

import "strings"

// StripFences removes a surrounding markdown code fence, keeping the body.
// Text without a leading fence is returned trimmed but otherwise unchanged.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return strings.Trim(trimmed, "`")
	}
	body := trimmed[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
